package harness

import (
	"github.com/roach88/wfsync/internal/patch"
	"github.com/roach88/wfsync/internal/state"
)

// TraceEntry is one emitted update as seen by the harness.
type TraceEntry struct {
	Seq    int64             `json:"seq"`
	Update patch.StateUpdate `json:"update"`
	Digest string            `json:"digest"` // Producer digest after the update

	// UpdateBytes and SnapshotBytes are the wire sizes of the update and of
	// the full state after it.
	UpdateBytes   int `json:"update_bytes"`
	SnapshotBytes int `json:"snapshot_bytes"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if the run, every convergence check and every assertion passed.
	Pass bool `json:"pass"`

	// Trace contains every emitted update in order.
	Trace []TraceEntry `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Initial and Final are the producer's first and last states.
	Initial state.WorkflowState `json:"initial"`
	Final   state.WorkflowState `json:"final"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEntry{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an entry to the trace.
func (r *Result) AddTrace(e TraceEntry) {
	r.Trace = append(r.Trace, e)
}
