package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/conveyordev/conveyor/pkg/backend"
	"github.com/conveyordev/conveyor/pkg/orchestrate"
)

const doc = `
name: nightly-etl
workPool: etl-pool
policy: besteffort
phases:
  - name: extract
    jobs:
      - target: etl-job/extract
        tags: [database]
        count: 3
        parameters:
          source: warehouse
  - name: load
    jobs:
      - target: etl-job/load
`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if p.Name != "nightly-etl" || p.WorkPool != "etl-pool" {
		t.Errorf("header = %q/%q", p.Name, p.WorkPool)
	}
	if p.FailurePolicy() != orchestrate.BestEffort {
		t.Errorf("policy = %s, want best effort", p.FailurePolicy())
	}
	if len(p.Phases) != 2 {
		t.Fatalf("got %d phases, want 2", len(p.Phases))
	}
	job := p.Phases[0].Jobs[0]
	if job.Target != "etl-job/extract" || job.Count != 3 {
		t.Errorf("job = %+v", job)
	}
}

func TestParseDefaultsToFailFast(t *testing.T) {
	p, err := Parse([]byte("phases:\n  - name: only\n    jobs:\n      - target: a/b\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.FailurePolicy() != orchestrate.FailFast {
		t.Errorf("policy = %s, want fail fast by default", p.FailurePolicy())
	}
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"no phases", "name: empty\n"},
		{"unknown policy", "policy: maybe\nphases:\n  - name: p\n    jobs:\n      - target: a/b\n"},
		{"unnamed phase", "phases:\n  - jobs:\n      - target: a/b\n"},
		{"no jobs", "phases:\n  - name: p\n"},
		{"no target", "phases:\n  - name: p\n    jobs:\n      - tags: [x]\n"},
		{"negative count", "phases:\n  - name: p\n    jobs:\n      - target: a/b\n        count: -1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.doc)); err == nil {
				t.Errorf("Parse accepted %q", tc.doc)
			}
		})
	}
}

func TestParameterSetsFanOut(t *testing.T) {
	job := Job{
		Target:     "etl-job/extract",
		Parameters: map[string]any{"source": "warehouse"},
		Count:      3,
	}

	sets := job.ParameterSets()
	if len(sets) != 3 {
		t.Fatalf("got %d sets, want 3", len(sets))
	}
	for i, set := range sets {
		if set["index"] != i {
			t.Errorf("sets[%d][index] = %v, want %d", i, set["index"], i)
		}
		if set["source"] != "warehouse" {
			t.Errorf("sets[%d] lost the base parameters: %v", i, set)
		}
	}

	// Fan-out copies must not share a map.
	sets[0]["source"] = "other"
	if sets[1]["source"] != "warehouse" {
		t.Error("parameter sets alias each other")
	}
}

func TestParameterSetsCustomKey(t *testing.T) {
	job := Job{Target: "a/b", Count: 2, CountParameter: "shard"}
	sets := job.ParameterSets()
	if len(sets) != 2 || sets[1]["shard"] != 1 {
		t.Fatalf("sets = %v, want shard index", sets)
	}
}

func TestParameterSetsSingle(t *testing.T) {
	if sets := (Job{Target: "a/b"}).ParameterSets(); sets != nil {
		t.Errorf("sets = %v, want nil for a bare job", sets)
	}
	sets := (Job{Target: "a/b", Parameters: map[string]any{"k": "v"}}).ParameterSets()
	if len(sets) != 1 || sets[0]["k"] != "v" {
		t.Errorf("sets = %v, want the single parameter map", sets)
	}
}

func TestBuildAndRun(t *testing.T) {
	p, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	fake := backend.NewFake()
	ac := orchestrate.NewAdmissionController(map[string]int{"database": 10})
	phases, batches := p.Build(fake,
		WithAdmission(ac),
		WithBatchOptions(orchestrate.WithSubmitRetry(1, time.Millisecond)))

	if len(phases) != 2 || len(batches) != 2 {
		t.Fatalf("got %d phases, %d batches, want 2 each", len(phases), len(batches))
	}

	runner := orchestrate.NewPhaseRunner(p.FailurePolicy(),
		orchestrate.WithWaitOptions(orchestrate.WaitOptions{Interval: 5 * time.Millisecond})).
		AddPhases(phases...)

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Status != orchestrate.RunCompleted {
		t.Errorf("status = %s, want completed", report.Status)
	}
	if got := fake.SubmitCount("etl-job/extract"); got != 3 {
		t.Errorf("extract submissions = %d, want 3 from fan-out", got)
	}
	if got := fake.SubmitCount("etl-job/load"); got != 1 {
		t.Errorf("load submissions = %d, want 1", got)
	}

	req, ok := fake.Request("run-0001")
	if !ok {
		t.Fatal("no recorded request for run-0001")
	}
	if req.WorkPool != "etl-pool" {
		t.Errorf("work pool = %q, want the pipeline's", req.WorkPool)
	}
	if len(req.Tags) != 1 || req.Tags[0] != "database" {
		t.Errorf("tags = %v, want [database]", req.Tags)
	}
}
