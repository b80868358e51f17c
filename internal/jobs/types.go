// SPDX-License-Identifier: MIT

// Package jobs queues and executes separation runs: a sqlite-backed store
// for durability, a bounded worker pool, and per-job cancellation.
package jobs

import (
	"context"
	"time"

	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/separate"
)

// State is the lifecycle state of a job.
type State string

const (
	StateQueued   State = "queued"
	StateRunning  State = "running"
	StateDone     State = "done"
	StateFailed   State = "failed"
	StateCanceled State = "canceled"
)

// Job is one separation request and its outcome.
type Job struct {
	ID         string              `json:"id"`
	State      State               `json:"state"`
	Request    separate.Request    `json:"request"`
	Artifacts  *separate.Artifacts `json:"artifacts,omitempty"`
	Error      string              `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	StartedAt  time.Time           `json:"started_at,omitempty"`
	FinishedAt time.Time           `json:"finished_at,omitempty"`
}

// Terminal reports whether the job can no longer change state.
func (j *Job) Terminal() bool {
	switch j.State {
	case StateDone, StateFailed, StateCanceled:
		return true
	}
	return false
}

// Runner executes one separation. The default is separate.Run; tests
// substitute their own.
type Runner func(ctx context.Context, req separate.Request) (*separate.Artifacts, error)
