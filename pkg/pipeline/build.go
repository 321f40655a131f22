package pipeline

import (
	"github.com/conveyordev/conveyor/pkg/backend"
	"github.com/conveyordev/conveyor/pkg/cvlog"
	"github.com/conveyordev/conveyor/pkg/orchestrate"
)

// BuildOption configures how pipeline phases are materialized.
type BuildOption func(*builder)

type builder struct {
	admission *orchestrate.AdmissionController
	journal   *orchestrate.Journal
	log       *cvlog.Logger
	workPool  string
	batchOpts []orchestrate.BatchOption
}

// WithAdmission paces every batch through the controller.
func WithAdmission(ac *orchestrate.AdmissionController) BuildOption {
	return func(b *builder) { b.admission = ac }
}

// WithJournal records all batches to the journal.
func WithJournal(j *orchestrate.Journal) BuildOption {
	return func(b *builder) { b.journal = j }
}

// WithLogger sets the logger passed to every batch.
func WithLogger(log *cvlog.Logger) BuildOption {
	return func(b *builder) { b.log = log }
}

// WithWorkPool overrides the pipeline's work pool.
func WithWorkPool(pool string) BuildOption {
	return func(b *builder) { b.workPool = pool }
}

// WithBatchOptions appends extra options to every batch, e.g. shortened
// retry backoffs.
func WithBatchOptions(opts ...orchestrate.BatchOption) BuildOption {
	return func(b *builder) { b.batchOpts = append(b.batchOpts, opts...) }
}

// Build materializes the pipeline into runner phases backed by be. The
// returned batches are the same objects referenced from the phases, in
// encounter order, for progress reporting.
func (p *Pipeline) Build(be backend.Backend, opts ...BuildOption) ([]orchestrate.Phase, []*orchestrate.SubmissionBatch) {
	b := &builder{workPool: p.WorkPool}
	for _, opt := range opts {
		opt(b)
	}

	var phases []orchestrate.Phase
	var batches []*orchestrate.SubmissionBatch
	for _, phase := range p.Phases {
		op := orchestrate.Phase{Name: phase.Name}
		for _, job := range phase.Jobs {
			batch := orchestrate.NewBatch(be, job.Target, b.batchOptions(job)...)
			batches = append(batches, batch)
			op.Batches = append(op.Batches, orchestrate.PhaseBatch{
				Batch:      batch,
				Parameters: job.ParameterSets(),
			})
		}
		phases = append(phases, op)
	}
	return phases, batches
}

func (b *builder) batchOptions(job Job) []orchestrate.BatchOption {
	var opts []orchestrate.BatchOption
	if job.Name != "" {
		opts = append(opts, orchestrate.WithName(job.Name))
	}
	if len(job.Tags) > 0 {
		opts = append(opts, orchestrate.WithTags(job.Tags...))
	}
	if b.workPool != "" {
		opts = append(opts, orchestrate.WithWorkPool(b.workPool))
	}
	if b.admission != nil {
		opts = append(opts, orchestrate.WithAdmission(b.admission))
	}
	if b.journal != nil {
		opts = append(opts, orchestrate.WithJournal(b.journal))
	}
	if b.log != nil {
		opts = append(opts, orchestrate.WithBatchLogger(b.log))
	}
	return append(opts, b.batchOpts...)
}
