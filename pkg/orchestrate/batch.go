package orchestrate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conveyordev/conveyor/pkg/backend"
	"github.com/conveyordev/conveyor/pkg/cverr"
	"github.com/conveyordev/conveyor/pkg/cvlog"
)

const (
	defaultSubmitAttempts = 3
	defaultSubmitBackoff  = 250 * time.Millisecond

	defaultAdmitAttempts = 3
	defaultAdmitBackoff  = 200 * time.Millisecond
)

// SubmissionBatch collects jobs submitted against one backend target and
// owns their result aggregation. Handles keep submission order; results
// are append-only and filled in by the poller as jobs resolve.
type SubmissionBatch struct {
	backend  backend.Backend
	poller   *CompletionPoller
	log      *cvlog.Logger
	name     string
	target   string
	tags     []string
	workPool string

	admission *AdmissionController
	journal   *Journal

	submitAttempts int
	submitBackoff  time.Duration
	admitAttempts  int
	admitBackoff   time.Duration

	mu      sync.RWMutex
	handles []*JobHandle
	results map[string]State
}

// BatchOption configures a SubmissionBatch.
type BatchOption func(*SubmissionBatch)

// WithName sets the batch name used in logs and the journal. Defaults to
// a generated "<target>-<timestamp>-<uuid8>" name.
func WithName(name string) BatchOption {
	return func(b *SubmissionBatch) { b.name = name }
}

// WithTags attaches admission-control tags to every job in the batch.
func WithTags(tags ...string) BatchOption {
	return func(b *SubmissionBatch) { b.tags = tags }
}

// WithWorkPool routes the batch's jobs to a named worker pool.
func WithWorkPool(pool string) BatchOption {
	return func(b *SubmissionBatch) { b.workPool = pool }
}

// WithAdmission paces submissions through the given controller.
func WithAdmission(ac *AdmissionController) BatchOption {
	return func(b *SubmissionBatch) { b.admission = ac }
}

// WithJournal records submissions and results to the given journal.
func WithJournal(j *Journal) BatchOption {
	return func(b *SubmissionBatch) { b.journal = j }
}

// WithBatchLogger sets the batch logger.
func WithBatchLogger(log *cvlog.Logger) BatchOption {
	return func(b *SubmissionBatch) { b.log = log }
}

// WithSubmitRetry overrides the transient-failure retry budget.
func WithSubmitRetry(attempts int, backoff time.Duration) BatchOption {
	return func(b *SubmissionBatch) {
		b.submitAttempts = attempts
		b.submitBackoff = backoff
	}
}

// WithAdmitRetry overrides how long a deferred submission waits for local
// admission before it is sent anyway and left to queue server-side.
func WithAdmitRetry(attempts int, backoff time.Duration) BatchOption {
	return func(b *SubmissionBatch) {
		b.admitAttempts = attempts
		b.admitBackoff = backoff
	}
}

// NewBatch creates an empty batch for the given work-definition target.
func NewBatch(be backend.Backend, target string, opts ...BatchOption) *SubmissionBatch {
	b := &SubmissionBatch{
		backend:        be,
		log:            cvlog.Discard(),
		target:         target,
		results:        make(map[string]State),
		submitAttempts: defaultSubmitAttempts,
		submitBackoff:  defaultSubmitBackoff,
		admitAttempts:  defaultAdmitAttempts,
		admitBackoff:   defaultAdmitBackoff,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.name == "" {
		b.name = generateBatchName(target)
	}
	b.poller = NewCompletionPoller(be, WithPollerLogger(b.log))
	return b
}

func generateBatchName(target string) string {
	base := target
	if i := strings.IndexByte(base, '/'); i > 0 {
		base = base[:i]
	}
	timestamp := time.Now().UTC().Format("20060102-150405")
	return fmt.Sprintf("%s-%s-%s", base, timestamp, uuid.New().String()[:8])
}

// Name returns the batch name.
func (b *SubmissionBatch) Name() string { return b.name }

// Target returns the work-definition path shared by the batch's jobs.
func (b *SubmissionBatch) Target() string { return b.target }

// Submit queues one job with the given parameters. Admission pacing defers
// the submission with backoff while the tags are saturated locally, then
// submits anyway and lets the server queue it. Transient backend failures
// are retried with exponential backoff; a permanent rejection or an
// exhausted retry budget yields a *SubmissionError and adds no handle.
func (b *SubmissionBatch) Submit(ctx context.Context, parameters map[string]any) (*JobHandle, error) {
	if err := b.admit(ctx); err != nil {
		return nil, err
	}

	req := backend.SubmitRequest{
		Target:     b.target,
		Parameters: parameters,
		Tags:       b.tags,
		WorkPool:   b.workPool,
		// One key across retries so the scheduler can dedupe.
		IdempotencyKey: uuid.New().String(),
	}

	id, err := b.submitWithRetry(ctx, req)
	if err != nil {
		if b.admission != nil {
			b.admission.Release(b.tags...)
		}
		return nil, err
	}

	h := newJobHandle(id, b.target, b.tags, parameters)
	b.mu.Lock()
	b.handles = append(b.handles, h)
	b.mu.Unlock()

	if b.journal != nil {
		if err := b.journal.RecordSubmitted(ctx, b.name, h); err != nil {
			b.log.Warn("journal write failed", "batch", b.name, "run", h.ID, "error", err)
		}
	}

	b.log.Info("job submitted", "batch", b.name, "target", b.target, "run", h.ID)
	return h, nil
}

// admit blocks (briefly, bounded) until the controller admits the batch's
// tags, then claims in-flight slots for them.
func (b *SubmissionBatch) admit(ctx context.Context) error {
	if b.admission == nil {
		return nil
	}
	if b.admission.TryAdmit(b.tags...) {
		return nil
	}

	backoff := b.admitBackoff
	for attempt := 0; attempt < b.admitAttempts; attempt++ {
		b.log.Debug("submission deferred by admission control", "target", b.target, "tags", strings.Join(b.tags, ","))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if b.admission.TryAdmit(b.tags...) {
			return nil
		}
		backoff *= 2
	}

	// The local limit is advisory; the server enforces the real one.
	b.log.Debug("admission still deferred, submitting anyway", "target", b.target)
	b.admission.Admit(b.tags...)
	return nil
}

func (b *SubmissionBatch) submitWithRetry(ctx context.Context, req backend.SubmitRequest) (string, error) {
	backoff := b.submitBackoff
	var lastErr error
	for attempt := 1; attempt <= b.submitAttempts; attempt++ {
		id, err := b.backend.Submit(ctx, req)
		if err == nil {
			return id, nil
		}
		lastErr = err

		// A cancelled wait is the caller's doing, not a backend verdict.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !cverr.Retryable(err) {
			return "", newSubmissionError(b.target, err)
		}
		if attempt == b.submitAttempts {
			break
		}

		b.log.Warn("submit failed, retrying", "target", b.target, "attempt", fmt.Sprint(attempt), "error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return "", newSubmissionError(b.target, lastErr)
}

// Wait blocks until every job in the batch is terminal, then returns the
// aggregated summary. Under opts.FailFast it returns as soon as one job
// fails, with the summary covering only what resolved by then. A
// WaitTimeoutError or context error is returned alongside the partial
// summary; recorded results are never lost.
func (b *SubmissionBatch) Wait(ctx context.Context, opts WaitOptions) (*ResultSummary, error) {
	pending := b.unresolved()
	if len(pending) > 0 {
		b.log.Info("waiting for jobs", "batch", b.name, "count", fmt.Sprint(len(pending)))
		if err := b.poller.Watch(ctx, pending, opts, b.recordResult); err != nil {
			return b.Summary(), err
		}
	}

	summary := b.Summary()
	b.log.Info("batch finished",
		"batch", b.name,
		"succeeded", fmt.Sprintf("%d/%d", summary.Completed, summary.Total),
		"failed", fmt.Sprint(summary.Failures()))
	return summary, nil
}

// unresolved returns the handles with no recorded result yet.
func (b *SubmissionBatch) unresolved() []*JobHandle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var pending []*JobHandle
	for _, h := range b.handles {
		if _, done := b.results[h.ID]; !done {
			pending = append(pending, h)
		}
	}
	return pending
}

// recordResult stores a terminal observation. Results are append-only:
// re-observing a terminal job never changes or double-counts it.
func (b *SubmissionBatch) recordResult(h *JobHandle, st State) {
	b.mu.Lock()
	if _, dup := b.results[h.ID]; dup {
		b.mu.Unlock()
		return
	}
	b.results[h.ID] = st
	b.mu.Unlock()

	if b.admission != nil {
		b.admission.Release(h.Tags...)
	}
	if b.journal != nil {
		if err := b.journal.RecordResult(context.Background(), b.name, h.ID, st); err != nil {
			b.log.Warn("journal write failed", "batch", b.name, "run", h.ID, "error", err)
		}
	}
	b.log.Info("job finished", "batch", b.name, "run", h.ID, "state", string(st))
}

// Handles returns the batch's handles in submission order.
func (b *SubmissionBatch) Handles() []*JobHandle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*JobHandle, len(b.handles))
	copy(out, b.handles)
	return out
}

// Results returns a copy of the recorded terminal states by job id.
func (b *SubmissionBatch) Results() map[string]State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]State, len(b.results))
	for id, st := range b.results {
		out[id] = st
	}
	return out
}

// Summary aggregates the recorded results.
func (b *SubmissionBatch) Summary() *ResultSummary {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := &ResultSummary{
		Batch:   b.name,
		Target:  b.target,
		Total:   len(b.handles),
		Results: make(map[string]State, len(b.results)),
	}
	for id, st := range b.results {
		s.Results[id] = st
		switch st {
		case backend.StateCompleted:
			s.Completed++
		case backend.StateFailed:
			s.Failed++
		case backend.StateCancelled:
			s.Cancelled++
		case backend.StateLost:
			s.Lost++
		}
	}
	return s
}

// Snapshot returns a point-in-time view of the batch for status reporting.
func (b *SubmissionBatch) Snapshot() BatchSnapshot {
	s := b.Summary()
	return BatchSnapshot{
		Name:      s.Batch,
		Target:    s.Target,
		Submitted: s.Total,
		Completed: s.Completed,
		Failed:    s.Failed,
		Cancelled: s.Cancelled,
		Lost:      s.Lost,
		Pending:   s.Total - len(s.Results),
	}
}

// ResultSummary aggregates a batch's terminal results. Results holds only
// jobs that resolved; under fail-fast waits it can cover fewer jobs than
// Total.
type ResultSummary struct {
	Batch     string           `json:"batch"`
	Target    string           `json:"target"`
	Total     int              `json:"total"`
	Completed int              `json:"completed"`
	Failed    int              `json:"failed"`
	Cancelled int              `json:"cancelled"`
	Lost      int              `json:"lost"`
	Results   map[string]State `json:"results"`
}

// Failures counts terminal non-success results.
func (s *ResultSummary) Failures() int {
	return s.Failed + s.Cancelled + s.Lost
}

// BatchSnapshot is a compact progress view used by status reporting.
type BatchSnapshot struct {
	Name      string `json:"name"`
	Target    string `json:"target"`
	Submitted int    `json:"submitted"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Cancelled int    `json:"cancelled"`
	Lost      int    `json:"lost"`
	Pending   int    `json:"pending"`
}
