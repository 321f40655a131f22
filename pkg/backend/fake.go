package backend

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Backend for tests. Each submitted run walks a
// scripted state sequence: every status observation advances it one step
// and the last state sticks. The default script is
// pending -> running -> completed, i.e. a job resolves on the third poll.
//
// All methods are safe for concurrent use.
type Fake struct {
	mu         sync.Mutex
	seq        int
	scripts    map[string][]State
	runs       map[string]*fakeRun
	submitErrs map[string][]error
	statusErrs []error
	limits     map[string]int
}

type fakeRun struct {
	target string
	req    SubmitRequest
	states []State
	pos    int
	pinned State
	lost   bool
}

// NewFake returns an empty fake backend.
func NewFake() *Fake {
	return &Fake{
		scripts:    make(map[string][]State),
		runs:       make(map[string]*fakeRun),
		submitErrs: make(map[string][]error),
		limits:     make(map[string]int),
	}
}

// Script sets the state sequence for future submissions against target.
func (f *Fake) Script(target string, states ...State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[target] = states
}

// FailSubmit queues errors to return from Submit for the given target
// before submissions start succeeding again.
func (f *Fake) FailSubmit(target string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitErrs[target] = append(f.submitErrs[target], errs...)
}

// FailStatus queues errors to return from status reads before they start
// succeeding again.
func (f *Fake) FailStatus(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusErrs = append(f.statusErrs, errs...)
}

// Pin freezes a run at the given state regardless of its script.
func (f *Fake) Pin(id string, state State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if run, ok := f.runs[id]; ok {
		run.pinned = state
	}
}

// Lose makes the backend forget a run: further status reads report
// StateNotFound.
func (f *Fake) Lose(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if run, ok := f.runs[id]; ok {
		run.lost = true
	}
}

// SubmitCount reports how many submissions succeeded for a target.
func (f *Fake) SubmitCount(target string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, run := range f.runs {
		if run.target == target {
			n++
		}
	}
	return n
}

// Request returns the SubmitRequest recorded for a run id.
func (f *Fake) Request(id string) (SubmitRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return SubmitRequest{}, false
	}
	return run.req, true
}

func (f *Fake) Submit(_ context.Context, req SubmitRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if queue := f.submitErrs[req.Target]; len(queue) > 0 {
		err := queue[0]
		f.submitErrs[req.Target] = queue[1:]
		return "", err
	}

	f.seq++
	id := fmt.Sprintf("run-%04d", f.seq)

	states := f.scripts[req.Target]
	if len(states) == 0 {
		states = []State{StatePending, StateRunning, StateCompleted}
	}
	f.runs[id] = &fakeRun{target: req.Target, req: req, states: states}
	return id, nil
}

func (f *Fake) GetStatus(_ context.Context, id string) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.nextStatusErr(); err != nil {
		return StateUnknown, err
	}
	return f.observe(id), nil
}

func (f *Fake) GetStatuses(_ context.Context, ids []string) (map[string]State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.nextStatusErr(); err != nil {
		return nil, err
	}
	states := make(map[string]State, len(ids))
	for _, id := range ids {
		states[id] = f.observe(id)
	}
	return states, nil
}

func (f *Fake) CancelJob(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok || run.lost {
		return false, nil
	}
	current := run.pinned
	if current == "" {
		idx := min(run.pos, len(run.states)-1)
		current = run.states[idx]
	}
	if current.Terminal() {
		return false, nil
	}
	run.pinned = StateCancelled
	return true, nil
}

func (f *Fake) SetConcurrencyLimit(_ context.Context, tag string, limit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits[tag] = limit
	return nil
}

func (f *Fake) ListConcurrencyLimits(context.Context) ([]ConcurrencyLimit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	limits := make([]ConcurrencyLimit, 0, len(f.limits))
	for tag, limit := range f.limits {
		limits = append(limits, ConcurrencyLimit{Tag: tag, Limit: limit})
	}
	return limits, nil
}

// observe returns the run's current state and advances its script.
// Callers must hold f.mu.
func (f *Fake) observe(id string) State {
	run, ok := f.runs[id]
	if !ok {
		return StateNotFound
	}
	if run.lost {
		return StateNotFound
	}
	if run.pinned != "" {
		return run.pinned
	}
	idx := min(run.pos, len(run.states)-1)
	if run.pos < len(run.states) {
		run.pos++
	}
	return run.states[idx]
}

// nextStatusErr pops one queued status error. Callers must hold f.mu.
func (f *Fake) nextStatusErr() error {
	if len(f.statusErrs) == 0 {
		return nil
	}
	err := f.statusErrs[0]
	f.statusErrs = f.statusErrs[1:]
	return err
}

var (
	_ Backend       = (*Fake)(nil)
	_ StatusBatcher = (*Fake)(nil)
	_ LimitAdmin    = (*Fake)(nil)
)
