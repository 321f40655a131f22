package orchestrate

import (
	"fmt"
	"strings"

	"github.com/conveyordev/conveyor/pkg/cverr"
)

// SubmissionError is returned when a submit call fails for good: either
// the backend rejected it permanently or transient retries were
// exhausted.
type SubmissionError struct {
	Target    string
	Permanent bool
	Err       error
}

func (e *SubmissionError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("submission to %s failed (%s): %v", e.Target, kind, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollError wraps a status-read failure that survived the per-tick retry
// budget. The poller logs it and keeps trying on later ticks; it never
// aborts a wait on its own.
type PollError struct {
	Err error
}

func (e *PollError) Error() string { return fmt.Sprintf("status poll failed: %v", e.Err) }

func (e *PollError) Unwrap() error { return e.Err }

// WaitTimeoutError reports that a caller-specified maximum wait elapsed
// with jobs still unresolved. The listed jobs keep whatever non-terminal
// state was last observed.
type WaitTimeoutError struct {
	Pending []string
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("wait timed out with %d jobs unresolved: %s",
		len(e.Pending), strings.Join(e.Pending, ", "))
}

func newSubmissionError(target string, err error) *SubmissionError {
	return &SubmissionError{
		Target:    target,
		Permanent: !cverr.Retryable(err),
		Err:       err,
	}
}
