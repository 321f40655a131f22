package orchestrate

import (
	"context"
	"sort"
	"time"

	"github.com/conveyordev/conveyor/pkg/backend"
	"github.com/conveyordev/conveyor/pkg/cverr"
	"github.com/conveyordev/conveyor/pkg/cvlog"
)

const (
	// DefaultPollInterval is the tick between status rounds. Sensible for
	// jobs lasting tens of seconds; callers tracking very short or very
	// long jobs should override it (2–30s is the useful range).
	DefaultPollInterval = 5 * time.Second

	// pollRetriesPerTick bounds in-tick retries of a failed status read
	// before the tick is written off with a warning.
	pollRetriesPerTick = 2

	pollRetryDelay = 200 * time.Millisecond
)

// WaitOptions control one wait on a set of jobs.
type WaitOptions struct {
	// Interval between poll ticks. Zero means DefaultPollInterval.
	Interval time.Duration

	// FailFast ends the wait as soon as one job reaches a terminal
	// failure state; remaining jobs are left unresolved.
	FailFast bool

	// MaxWait, when positive, bounds the whole wait. Exceeding it yields
	// a WaitTimeoutError listing the still-pending ids.
	MaxWait time.Duration
}

// CompletionPoller drives jobs to resolution by polling the backend.
// One poller may serve many concurrent Watch calls; each call keeps its
// own working set, so independent waiters never interfere.
type CompletionPoller struct {
	backend backend.Backend
	log     *cvlog.Logger
}

// PollerOption configures a CompletionPoller.
type PollerOption func(*CompletionPoller)

// WithPollerLogger sets the logger used for poll warnings.
func WithPollerLogger(log *cvlog.Logger) PollerOption {
	return func(p *CompletionPoller) {
		p.log = log
	}
}

// NewCompletionPoller returns a poller reading statuses from be.
func NewCompletionPoller(be backend.Backend, opts ...PollerOption) *CompletionPoller {
	p := &CompletionPoller{backend: be, log: cvlog.Discard()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Watch polls until every handle is terminal, invoking record exactly
// once per job as it resolves. A backend NotFound for a watched job is
// recorded as StateLost. Under FailFast the watch returns as soon as one
// terminal failure is recorded. Cancelling ctx releases the wait within
// one tick without touching already-recorded results.
func (p *CompletionPoller) Watch(ctx context.Context, handles []*JobHandle, opts WaitOptions, record func(h *JobHandle, s State)) error {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	working := make(map[string]*JobHandle, len(handles))
	for _, h := range handles {
		if st := h.State(); st.Terminal() {
			// Already resolved, e.g. by an earlier wait on the same batch.
			if record != nil {
				record(h, st)
			}
			continue
		}
		working[h.ID] = h
	}

	var deadlineCh <-chan time.Time
	if opts.MaxWait > 0 {
		timer := time.NewTimer(opts.MaxWait)
		defer timer.Stop()
		deadlineCh = timer.C
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for len(working) > 0 {
		states, err := p.pollOnce(ctx, sortedIDs(working))
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			// Non-fatal: keep the wait alive and try again next tick.
			p.log.Warn("status poll failed, retrying next tick", "error", err)
		default:
			done := p.applyStates(working, states, opts.FailFast, record)
			if done {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadlineCh:
			return &WaitTimeoutError{Pending: sortedIDs(working)}
		case <-ticker.C:
		}
	}
	return nil
}

// applyStates folds one tick's observations into the working set. It
// returns true when the watch is finished, either because the set
// drained or a failure ended a fail-fast wait.
func (p *CompletionPoller) applyStates(working map[string]*JobHandle, states map[string]State, failFast bool, record func(h *JobHandle, s State)) bool {
	for _, id := range sortedIDs(working) {
		st, ok := states[id]
		if !ok {
			continue
		}
		h := working[id]

		if st == backend.StateNotFound {
			// The backend accepted this job and has since forgotten it.
			st = backend.StateLost
		}

		if !st.Terminal() {
			h.setState(st)
			continue
		}

		h.setState(st)
		delete(working, id)
		if record != nil {
			record(h, st)
		}
		if failFast && st.Failure() {
			return true
		}
	}
	return len(working) == 0
}

// pollOnce reads the current states of ids, retrying transient failures
// a bounded number of times within the tick.
func (p *CompletionPoller) pollOnce(ctx context.Context, ids []string) (map[string]State, error) {
	var lastErr error
	for attempt := 0; attempt <= pollRetriesPerTick; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(pollRetryDelay):
			}
		}

		states, err := p.statuses(ctx, ids)
		if err == nil {
			return states, nil
		}
		lastErr = err
		if !cverr.Retryable(err) {
			break
		}
	}
	return nil, &PollError{Err: lastErr}
}

// statuses reads all ids in one round-trip when the backend supports
// batched reads, falling back to per-id queries otherwise.
func (p *CompletionPoller) statuses(ctx context.Context, ids []string) (map[string]State, error) {
	if batcher, ok := p.backend.(backend.StatusBatcher); ok {
		return batcher.GetStatuses(ctx, ids)
	}

	states := make(map[string]State, len(ids))
	for _, id := range ids {
		st, err := p.backend.GetStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		states[id] = st
	}
	return states, nil
}

func sortedIDs(working map[string]*JobHandle) []string {
	ids := make([]string, 0, len(working))
	for id := range working {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
