// Package orchestrate implements the client-side submission, admission,
// polling and phasing engine for the conveyor scheduler. Callers build
// SubmissionBatches against a backend target, submit jobs against them,
// and wait for completion; a PhaseRunner composes batches into sequential
// phases of concurrent work.
package orchestrate

import (
	"sync"
	"time"

	"github.com/conveyordev/conveyor/pkg/backend"
)

// State aliases the backend's job state so callers don't import two enums
// for the same concept.
type State = backend.State

// JobHandle tracks one submitted unit of work. Identity fields are set at
// submission and never change; only the CompletionPoller mutates state,
// and a terminal state is sticky.
type JobHandle struct {
	ID          string
	Target      string
	Tags        []string
	Parameters  map[string]any
	SubmittedAt time.Time

	mu    sync.RWMutex
	state State
}

func newJobHandle(id, target string, tags []string, params map[string]any) *JobHandle {
	return &JobHandle{
		ID:          id,
		Target:      target,
		Tags:        tags,
		Parameters:  params,
		SubmittedAt: time.Now(),
		state:       backend.StatePending,
	}
}

// State returns the last-known state of the job.
func (h *JobHandle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Terminal reports whether the job has reached a state it cannot leave.
func (h *JobHandle) Terminal() bool {
	return h.State().Terminal()
}

// setState records a newly observed state. Transitions are monotonic
// toward a terminal state: once terminal the handle never changes again.
// It returns false when the update was ignored.
func (h *JobHandle) setState(s State) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Terminal() {
		return false
	}
	h.state = s
	return true
}
