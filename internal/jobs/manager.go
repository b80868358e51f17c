// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	xglog "github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/log"
	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/metrics"
	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/separate"
)

var (
	// ErrQueueFull is returned by Submit when the backlog is at capacity.
	ErrQueueFull = errors.New("job queue is full")
	// ErrTerminal is returned by Cancel for jobs that already finished.
	ErrTerminal = errors.New("job already finished")
)

// ManagerConfig sizes the worker pool and backlog.
type ManagerConfig struct {
	Workers   int
	QueueSize int
}

// Manager runs queued jobs on a fixed pool of workers.
type Manager struct {
	store  *Store
	runner Runner
	cfg    ManagerConfig
	queue  chan string
	clock  func() time.Time

	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	canceled map[string]bool
}

// NewManager builds a Manager. A nil runner uses the real pipeline.
func NewManager(store *Store, runner Runner, cfg ManagerConfig) *Manager {
	if runner == nil {
		runner = func(ctx context.Context, req separate.Request) (*separate.Artifacts, error) {
			return separate.RunWithDeps(ctx, req, separate.Deps{Metrics: metrics.Recorder{}})
		}
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}
	return &Manager{
		store:    store,
		runner:   runner,
		cfg:      cfg,
		queue:    make(chan string, cfg.QueueSize),
		clock:    time.Now,
		cancels:  make(map[string]context.CancelFunc),
		canceled: make(map[string]bool),
	}
}

// Run blocks until ctx is canceled, executing queued jobs on Workers
// goroutines. Jobs in flight finish before Run returns.
func (m *Manager) Run(ctx context.Context) error {
	logger := xglog.WithComponentFromContext(ctx, "jobs")
	logger.Info().
		Str(xglog.FieldEvent, "manager.start").
		Int("workers", m.cfg.Workers).
		Msg("job manager started")

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < m.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case id := <-m.queue:
					m.execute(ctx, id)
				}
			}
		})
	}
	err := g.Wait()
	logger.Info().Str(xglog.FieldEvent, "manager.stop").Msg("job manager stopped")
	return err
}

// Submit stores a new queued job and hands it to the pool.
func (m *Manager) Submit(ctx context.Context, req separate.Request) (*Job, error) {
	job := &Job{
		ID:        uuid.NewString(),
		State:     StateQueued,
		Request:   req,
		CreatedAt: m.clock().UTC(),
	}
	if err := m.store.Save(ctx, job); err != nil {
		return nil, err
	}

	select {
	case m.queue <- job.ID:
	default:
		job.State = StateFailed
		job.Error = ErrQueueFull.Error()
		job.FinishedAt = m.clock().UTC()
		_ = m.store.Save(ctx, job)
		return nil, ErrQueueFull
	}

	metrics.RecordJobState(string(StateQueued))
	logger := xglog.WithComponentFromContext(ctx, "jobs")
	logger.Info().
		Str(xglog.FieldEvent, "job.submit").
		Str(xglog.FieldJobID, job.ID).
		Str(xglog.FieldModel, req.Model).
		Str(xglog.FieldInput, req.InputPath).
		Msg("job submitted")
	return job, nil
}

// Get returns a job by ID.
func (m *Manager) Get(ctx context.Context, id string) (*Job, error) {
	return m.store.Get(ctx, id)
}

// List returns recent jobs, newest first.
func (m *Manager) List(ctx context.Context, limit int) ([]*Job, error) {
	return m.store.List(ctx, limit)
}

// Cancel stops a queued or running job.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminal, job.State)
	}

	// A worker registers its cancel func under mu before it marks the job
	// running, so exactly one of these branches wins: either the job has
	// started and we cancel its context, or we flag it so the worker drops
	// it without running.
	m.mu.Lock()
	if cancel, ok := m.cancels[id]; ok {
		m.mu.Unlock()
		cancel()
		return nil
	}
	m.canceled[id] = true
	m.mu.Unlock()

	job.State = StateCanceled
	job.FinishedAt = m.clock().UTC()
	if err := m.store.Save(ctx, job); err != nil {
		return err
	}
	metrics.RecordJobState(string(StateCanceled))
	return nil
}

func (m *Manager) execute(ctx context.Context, id string) {
	logger := xglog.WithComponentFromContext(ctx, "jobs")

	job, err := m.store.Get(ctx, id)
	if err != nil {
		logger.Error().Err(err).
			Str(xglog.FieldEvent, "job.load_error").
			Str(xglog.FieldJobID, id).
			Msg("failed to load queued job")
		return
	}
	// Canceled while still in the queue.
	if job.State != StateQueued {
		m.mu.Lock()
		delete(m.canceled, id)
		m.mu.Unlock()
		return
	}

	jobCtx, cancel := context.WithCancel(xglog.ContextWithJobID(ctx, job.ID))
	m.mu.Lock()
	if m.canceled[job.ID] {
		delete(m.canceled, job.ID)
		m.mu.Unlock()
		cancel()
		return
	}
	m.cancels[job.ID] = cancel
	m.mu.Unlock()
	defer func() {
		cancel()
		m.mu.Lock()
		delete(m.cancels, job.ID)
		m.mu.Unlock()
	}()

	job.State = StateRunning
	job.StartedAt = m.clock().UTC()
	if err := m.store.Save(ctx, job); err != nil {
		logger.Error().Err(err).
			Str(xglog.FieldEvent, "job.save_error").
			Str(xglog.FieldJobID, id).
			Msg("failed to mark job running")
		return
	}
	metrics.RecordJobState(string(StateRunning))
	metrics.JobsRunning.Inc()
	defer metrics.JobsRunning.Dec()

	logger.Info().
		Str(xglog.FieldEvent, "job.start").
		Str(xglog.FieldJobID, job.ID).
		Str(xglog.FieldModel, job.Request.Model).
		Msg("job started")

	art, runErr := m.runner(jobCtx, job.Request)
	job.FinishedAt = m.clock().UTC()

	switch {
	case runErr == nil:
		job.State = StateDone
		job.Artifacts = art
		logger.Info().
			Str(xglog.FieldEvent, "job.done").
			Str(xglog.FieldJobID, job.ID).
			Int64("duration_ms", job.FinishedAt.Sub(job.StartedAt).Milliseconds()).
			Msg("job completed")
	case errors.Is(runErr, context.Canceled) && ctx.Err() == nil:
		job.State = StateCanceled
		job.Error = runErr.Error()
		logger.Info().
			Str(xglog.FieldEvent, "job.canceled").
			Str(xglog.FieldJobID, job.ID).
			Msg("job canceled")
	default:
		job.State = StateFailed
		job.Error = runErr.Error()
		logger.Error().Err(runErr).
			Str(xglog.FieldEvent, "job.failed").
			Str(xglog.FieldJobID, job.ID).
			Msg("job failed")
	}
	metrics.RecordJobState(string(job.State))

	// Save with a fresh context: the manager may be shutting down.
	saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer saveCancel()
	if err := m.store.Save(saveCtx, job); err != nil {
		logger.Error().Err(err).
			Str(xglog.FieldEvent, "job.save_error").
			Str(xglog.FieldJobID, job.ID).
			Msg("failed to persist job result")
	}
}
