// Package backend defines the narrow contract between the orchestration
// core and the remote execution platform, plus an HTTP implementation of
// it and an in-memory fake for tests.
package backend

import (
	"context"
)

// State represents the last-known state of a remote job.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"

	// StateNotFound is reported by the backend when it has no record of a
	// job id. The orchestration layer maps it to StateLost once the job is
	// known to have been submitted.
	StateNotFound State = "not_found"

	// StateLost marks a job the backend reported NotFound after having
	// accepted it. Terminal-like: the job will never resolve.
	StateLost State = "lost"

	StateUnknown State = "unknown"
)

// Terminal reports whether no further state transition can occur.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateLost:
		return true
	}
	return false
}

// Failure reports whether the state is a terminal non-success.
func (s State) Failure() bool {
	switch s {
	case StateFailed, StateCancelled, StateLost:
		return true
	}
	return false
}

// SubmitRequest describes one job to queue on the remote scheduler.
type SubmitRequest struct {
	// Target is the work-definition path being invoked,
	// e.g. "process-table-etl/process-table-etl-deployment".
	Target     string
	Parameters map[string]any
	Tags       []string
	// WorkPool routes the job to a named pool of workers. Optional.
	WorkPool string
	// IdempotencyKey lets the scheduler dedupe retried submissions.
	IdempotencyKey string
}

// ConcurrencyLimit is a server-side cap on jobs sharing a tag.
type ConcurrencyLimit struct {
	Tag   string `json:"tag"`
	Limit int    `json:"limit"`
}

// Backend is the minimal surface the orchestration core needs.
// Submit has asynchronous-accept semantics: it returns once the job is
// queued, not when it finishes. GetStatus is an idempotent read; a job the
// backend does not know yields StateNotFound with a nil error.
type Backend interface {
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	GetStatus(ctx context.Context, id string) (State, error)

	// CancelJob requests best-effort remote cancellation. The bool reports
	// whether the backend accepted the request.
	CancelJob(ctx context.Context, id string) (bool, error)
}

// StatusBatcher is implemented by backends that can resolve many ids in
// one round-trip. Pollers prefer it over per-id GetStatus calls.
type StatusBatcher interface {
	GetStatuses(ctx context.Context, ids []string) (map[string]State, error)
}

// LimitAdmin is implemented by backends that expose tag concurrency limit
// administration.
type LimitAdmin interface {
	SetConcurrencyLimit(ctx context.Context, tag string, limit int) error
	ListConcurrencyLimits(ctx context.Context) ([]ConcurrencyLimit, error)
}
