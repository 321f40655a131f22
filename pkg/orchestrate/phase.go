package orchestrate

import (
	"context"
	"fmt"
	"sync"

	"github.com/conveyordev/conveyor/pkg/cvlog"
)

// FailurePolicy decides what a job failure means for the rest of a run.
type FailurePolicy string

const (
	// FailFast stops the run after the first failing phase: batches
	// already submitted in that phase finish their waits, but no later
	// phase is submitted.
	FailFast FailurePolicy = "fail_fast"

	// BestEffort runs every phase regardless of earlier failures and
	// aggregates them in the final report.
	BestEffort FailurePolicy = "best_effort"
)

// RunStatus is the phase runner's position in its state machine.
type RunStatus string

const (
	RunNotStarted RunStatus = "not_started"
	RunInProgress RunStatus = "running"
	RunCompleted  RunStatus = "completed"
	RunAborted    RunStatus = "aborted_on_failure"
)

// PhaseBatch pairs a batch with the parameter sets to submit against it.
// An empty Parameters slice means one submission with no parameters.
type PhaseBatch struct {
	Batch      *SubmissionBatch
	Parameters []map[string]any
}

// Phase is a set of batches meant to run concurrently, ordered relative
// to other phases.
type Phase struct {
	Name    string
	Batches []PhaseBatch
}

// PhaseReport holds everything that happened in one phase.
type PhaseReport struct {
	Name             string           `json:"name"`
	Summaries        []*ResultSummary `json:"summaries"`
	SubmissionErrors []error          `json:"-"`
	WaitErrors       []error          `json:"-"`
}

// Failed reports whether anything in the phase went wrong.
func (r *PhaseReport) Failed() bool {
	if len(r.SubmissionErrors) > 0 || len(r.WaitErrors) > 0 {
		return true
	}
	for _, s := range r.Summaries {
		if s != nil && s.Failures() > 0 {
			return true
		}
	}
	return false
}

// RunReport is the final account of one orchestration run.
type RunReport struct {
	Status RunStatus `json:"status"`
	// AbortedPhase is the index of the phase that stopped a fail-fast
	// run, or -1.
	AbortedPhase int           `json:"aborted_phase"`
	Phases       []PhaseReport `json:"phases"`
}

// Failures counts failed jobs across all phases.
func (r *RunReport) Failures() int {
	n := 0
	for _, p := range r.Phases {
		for _, s := range p.Summaries {
			if s != nil {
				n += s.Failures()
			}
		}
	}
	return n
}

// PhaseRunner submits and awaits batches phase by phase: all batches in a
// phase run concurrently, phases themselves strictly in order. It is
// stateless between runs apart from the live status snapshot.
type PhaseRunner struct {
	phases   []Phase
	policy   FailurePolicy
	waitOpts WaitOptions
	log      *cvlog.Logger

	mu      sync.Mutex
	status  RunStatus
	current int
}

// RunnerOption configures a PhaseRunner.
type RunnerOption func(*PhaseRunner)

// WithRunnerLogger sets the runner's logger.
func WithRunnerLogger(log *cvlog.Logger) RunnerOption {
	return func(r *PhaseRunner) { r.log = log }
}

// WithWaitOptions sets the poll options used for every batch wait. The
// FailFast field is derived from the runner's policy and ignored here.
func WithWaitOptions(opts WaitOptions) RunnerOption {
	return func(r *PhaseRunner) { r.waitOpts = opts }
}

// NewPhaseRunner builds a runner with the given failure policy.
func NewPhaseRunner(policy FailurePolicy, opts ...RunnerOption) *PhaseRunner {
	r := &PhaseRunner{
		policy: policy,
		log:    cvlog.Discard(),
		status: RunNotStarted,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddPhase appends a phase. Phases execute in the order they were added.
func (r *PhaseRunner) AddPhase(name string, batches ...PhaseBatch) *PhaseRunner {
	r.phases = append(r.phases, Phase{Name: name, Batches: batches})
	return r
}

// AddPhases appends pre-built phases.
func (r *PhaseRunner) AddPhases(phases ...Phase) *PhaseRunner {
	r.phases = append(r.phases, phases...)
	return r
}

// Status returns the runner's current state and active phase index.
func (r *PhaseRunner) Status() (RunStatus, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.current
}

func (r *PhaseRunner) setStatus(status RunStatus, phase int) {
	r.mu.Lock()
	r.status = status
	r.current = phase
	r.mu.Unlock()
}

// Run executes all phases. A phase's batches are first all submitted,
// then all awaited; the next phase starts only when every batch in the
// current one has reported. Under FailFast a failed phase aborts the run
// but already-submitted batches in that phase still finish their waits.
// The report is returned even when ctx is cancelled mid-run.
func (r *PhaseRunner) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{Status: RunInProgress, AbortedPhase: -1}

	for i := range r.phases {
		phase := &r.phases[i]
		r.setStatus(RunInProgress, i)
		r.log.Info("starting phase", "phase", phase.Name, "batches", fmt.Sprint(len(phase.Batches)))

		pr := r.runPhase(ctx, phase)
		report.Phases = append(report.Phases, pr)

		if ctx.Err() != nil {
			report.Status = RunAborted
			report.AbortedPhase = i
			r.setStatus(RunAborted, i)
			return report, ctx.Err()
		}

		if r.policy == FailFast && pr.Failed() {
			r.log.Warn("phase failed, aborting subsequent phases", "phase", phase.Name)
			report.Status = RunAborted
			report.AbortedPhase = i
			r.setStatus(RunAborted, i)
			return report, nil
		}

		r.log.Info("phase finished", "phase", phase.Name)
	}

	report.Status = RunCompleted
	r.setStatus(RunCompleted, max(len(r.phases)-1, 0))
	return report, nil
}

func (r *PhaseRunner) runPhase(ctx context.Context, phase *Phase) PhaseReport {
	pr := PhaseReport{Name: phase.Name}

	// Fan out submissions, one goroutine per batch.
	subErrs := make([][]error, len(phase.Batches))
	var wg sync.WaitGroup
	for bi := range phase.Batches {
		wg.Add(1)
		go func(bi int) {
			defer wg.Done()
			pb := phase.Batches[bi]
			paramSets := pb.Parameters
			if len(paramSets) == 0 {
				paramSets = []map[string]any{nil}
			}
			for _, params := range paramSets {
				if _, err := pb.Batch.Submit(ctx, params); err != nil {
					r.log.Warn("submission failed", "target", pb.Batch.Target(), "error", err)
					subErrs[bi] = append(subErrs[bi], err)
					if r.policy == FailFast {
						return
					}
				}
			}
		}(bi)
	}
	wg.Wait()
	for _, errs := range subErrs {
		pr.SubmissionErrors = append(pr.SubmissionErrors, errs...)
	}

	// Await every batch concurrently. Even when a submission failed under
	// FailFast, jobs already queued in this phase are allowed to finish;
	// only the next phase is withheld.
	opts := r.waitOpts
	opts.FailFast = r.policy == FailFast

	pr.Summaries = make([]*ResultSummary, len(phase.Batches))
	waitErrs := make([]error, len(phase.Batches))
	for bi := range phase.Batches {
		wg.Add(1)
		go func(bi int) {
			defer wg.Done()
			pr.Summaries[bi], waitErrs[bi] = phase.Batches[bi].Batch.Wait(ctx, opts)
		}(bi)
	}
	wg.Wait()

	for _, err := range waitErrs {
		if err != nil {
			pr.WaitErrors = append(pr.WaitErrors, err)
		}
	}
	return pr
}
