// Package pipeline loads YAML pipeline definitions and turns them into
// orchestration phases. A pipeline names its phases in execution order;
// within a phase every job runs concurrently.
package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/conveyordev/conveyor/pkg/orchestrate"
)

// Pipeline is the root of a pipeline.yaml document.
type Pipeline struct {
	Name     string  `yaml:"name"`
	WorkPool string  `yaml:"workPool"`
	Policy   string  `yaml:"policy"` // failfast (default) or besteffort
	Phases   []Phase `yaml:"phases"`
}

// Phase is a named group of jobs submitted and awaited together.
type Phase struct {
	Name string `yaml:"name"`
	Jobs []Job  `yaml:"jobs"`
}

// Job describes submissions against one deployment target. Count > 1
// fans the job out into that many submissions, each carrying the fan-out
// index under CountParameter.
type Job struct {
	Target         string         `yaml:"target"`
	Name           string         `yaml:"name"`
	Tags           []string       `yaml:"tags"`
	Parameters     map[string]any `yaml:"parameters"`
	Count          int            `yaml:"count"`
	CountParameter string         `yaml:"countParameter"`
}

// Load reads and parses a pipeline file.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses YAML content into a validated Pipeline.
func Parse(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing pipeline: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks structural requirements before anything is submitted.
func (p *Pipeline) Validate() error {
	if len(p.Phases) == 0 {
		return fmt.Errorf("pipeline %q has no phases", p.Name)
	}
	switch p.Policy {
	case "", "failfast", "besteffort":
	default:
		return fmt.Errorf("pipeline %q: unknown policy %q (want failfast or besteffort)", p.Name, p.Policy)
	}
	for pi, phase := range p.Phases {
		if phase.Name == "" {
			return fmt.Errorf("phase %d has no name", pi)
		}
		if len(phase.Jobs) == 0 {
			return fmt.Errorf("phase %q has no jobs", phase.Name)
		}
		for ji, job := range phase.Jobs {
			if job.Target == "" {
				return fmt.Errorf("phase %q job %d has no target", phase.Name, ji)
			}
			if job.Count < 0 {
				return fmt.Errorf("phase %q job %q: count must not be negative", phase.Name, job.Target)
			}
		}
	}
	return nil
}

// FailurePolicy maps the document's policy field onto the runner's.
func (p *Pipeline) FailurePolicy() orchestrate.FailurePolicy {
	if p.Policy == "besteffort" {
		return orchestrate.BestEffort
	}
	return orchestrate.FailFast
}

// ParameterSets expands a job into the parameter maps to submit, one per
// submission. Count fans out copies with the index added under
// CountParameter (default "index").
func (j Job) ParameterSets() []map[string]any {
	if j.Count <= 1 {
		if len(j.Parameters) == 0 {
			return nil
		}
		return []map[string]any{cloneParams(j.Parameters, nil)}
	}

	key := j.CountParameter
	if key == "" {
		key = "index"
	}
	sets := make([]map[string]any, j.Count)
	for i := 0; i < j.Count; i++ {
		sets[i] = cloneParams(j.Parameters, map[string]any{key: i})
	}
	return sets
}

func cloneParams(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
