// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/separate"
)

// ErrNotFound is returned when a job ID is unknown.
var ErrNotFound = errors.New("job not found")

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	state       TEXT NOT NULL,
	request     TEXT NOT NULL,
	artifacts   TEXT,
	error       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL,
	started_at  TIMESTAMP,
	finished_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);
CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at);
`

// Store persists jobs in sqlite so queued work survives restarts.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the job database at path. Jobs left in a
// non-terminal state by a previous process are marked failed.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	// sqlite handles one writer at a time; serialize through one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create job schema: %w", err)
	}

	st := &Store{db: db}
	if err := st.failInterrupted(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) failInterrupted(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET state = ?, error = ?, finished_at = ? WHERE state IN (?, ?)`,
		StateFailed, "interrupted by daemon restart", time.Now().UTC(),
		StateQueued, StateRunning)
	if err != nil {
		return fmt.Errorf("fail interrupted jobs: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts the job.
func (s *Store) Save(ctx context.Context, job *Job) error {
	reqJSON, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	var artJSON any
	if job.Artifacts != nil {
		b, err := json.Marshal(job.Artifacts)
		if err != nil {
			return fmt.Errorf("marshal artifacts: %w", err)
		}
		artJSON = string(b)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO jobs (id, state, request, artifacts, error, created_at, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	state = excluded.state,
	artifacts = excluded.artifacts,
	error = excluded.error,
	started_at = excluded.started_at,
	finished_at = excluded.finished_at`,
		job.ID, job.State, string(reqJSON), artJSON, job.Error,
		job.CreatedAt.UTC(), nullTime(job.StartedAt), nullTime(job.FinishedAt))
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// Get returns one job by ID.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, state, request, artifacts, error, created_at, started_at, finished_at
FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

// List returns jobs newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, state, request, artifacts, error, created_at, started_at, finished_at
FROM jobs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (*Job, error) {
	var (
		job       Job
		reqJSON   string
		artJSON   sql.NullString
		startedAt sql.NullTime
		finished  sql.NullTime
	)
	if err := sc.Scan(&job.ID, &job.State, &reqJSON, &artJSON, &job.Error,
		&job.CreatedAt, &startedAt, &finished); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(reqJSON), &job.Request); err != nil {
		return nil, fmt.Errorf("decode request for job %s: %w", job.ID, err)
	}
	if artJSON.Valid && artJSON.String != "" {
		job.Artifacts = &separate.Artifacts{}
		if err := json.Unmarshal([]byte(artJSON.String), job.Artifacts); err != nil {
			return nil, fmt.Errorf("decode artifacts for job %s: %w", job.ID, err)
		}
	}
	if startedAt.Valid {
		job.StartedAt = startedAt.Time
	}
	if finished.Valid {
		job.FinishedAt = finished.Time
	}
	return &job, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
