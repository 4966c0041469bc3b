package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/wfsync/internal/render"
	"github.com/roach88/wfsync/internal/state"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEntry // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, entry := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s\n", entry.Seq, entry.Update.Description)
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion against the result and returns
// the failure messages.
func EvaluateAssertions(r *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(r, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluate(r *Result, a Assertion) error {
	switch a.Type {
	case AssertTaskStatus:
		return assertTaskStatus(r, a)
	case AssertOverallProgress:
		return assertOverallProgress(r, a)
	case AssertUpdateCount:
		return assertUpdateCount(r, a)
	case AssertTerminalCount:
		return assertTerminalCount(r, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// assertTaskStatus checks the final status of one task.
func assertTaskStatus(r *Result, a Assertion) error {
	want, err := state.ParseStatus(a.Status)
	if err != nil {
		return err
	}
	for _, t := range r.Final.Tasks {
		if t.ID != a.Task {
			continue
		}
		if t.Status != want {
			return &AssertionError{
				Type:     AssertTaskStatus,
				Expected: fmt.Sprintf("task %s %s", a.Task, want),
				Actual:   fmt.Sprintf("task %s %s (%s)", a.Task, t.Status, render.Bar(t.Progress)),
				Trace:    r.Trace,
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertTaskStatus,
		Expected: fmt.Sprintf("task %s %s", a.Task, want),
		Actual:   fmt.Sprintf("no task %s in workflow %s", a.Task, r.Final.WorkflowID),
		Trace:    r.Trace,
	}
}

func assertOverallProgress(r *Result, a Assertion) error {
	if r.Final.OverallProgress != *a.Value {
		return &AssertionError{
			Type:     AssertOverallProgress,
			Expected: fmt.Sprintf("%d%%", *a.Value),
			Actual:   fmt.Sprintf("%d%%", r.Final.OverallProgress),
			Trace:    r.Trace,
		}
	}
	return nil
}

func assertUpdateCount(r *Result, a Assertion) error {
	if len(r.Trace) != *a.Count {
		return &AssertionError{
			Type:     AssertUpdateCount,
			Expected: fmt.Sprintf("%d updates", *a.Count),
			Actual:   fmt.Sprintf("%d updates", len(r.Trace)),
			Trace:    r.Trace,
		}
	}
	return nil
}

// assertTerminalCount counts updates that move a task to completed or
// failed.
func assertTerminalCount(r *Result, a Assertion) error {
	n := 0
	for _, e := range r.Trace {
		if setsTaskStatus(e.Update, state.StatusCompleted, state.StatusFailed) {
			n++
		}
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertTerminalCount,
			Expected: fmt.Sprintf("%d terminal updates", *a.Count),
			Actual:   fmt.Sprintf("%d terminal updates", n),
			Trace:    r.Trace,
		}
	}
	return nil
}
