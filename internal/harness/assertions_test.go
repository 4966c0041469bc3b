package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wfsync/internal/patch"
	"github.com/roach88/wfsync/internal/state"
)

func finishedResult(t *testing.T) *Result {
	t.Helper()
	ws, err := state.New("wf-1", "W", []state.TaskSpec{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}})
	require.NoError(t, err)
	ws.Tasks[0].Status = state.StatusCompleted
	ws.Tasks[1].Status = state.StatusFailed
	ws.OverallProgress = 50

	r := NewResult()
	r.Final = ws
	r.AddTrace(TraceEntry{Seq: 1, Update: patch.StateUpdate{Description: "Workflow started"}})
	return r
}

func TestEvaluateAssertionsPass(t *testing.T) {
	r := finishedResult(t)
	errs := EvaluateAssertions(r, []Assertion{
		{Type: AssertTaskStatus, Task: "a", Status: "completed"},
		{Type: AssertTaskStatus, Task: "b", Status: "failed"},
		{Type: AssertOverallProgress, Value: value(50)},
		{Type: AssertUpdateCount, Count: count(1)},
		{Type: AssertTerminalCount, Count: count(0)},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertionsFailures(t *testing.T) {
	r := finishedResult(t)

	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{"wrong status", Assertion{Type: AssertTaskStatus, Task: "a", Status: "failed"}, "Actual: task a completed"},
		{"missing task", Assertion{Type: AssertTaskStatus, Task: "z", Status: "failed"}, "no task z"},
		{"bad status", Assertion{Type: AssertTaskStatus, Task: "a", Status: "done"}, "done"},
		{"progress", Assertion{Type: AssertOverallProgress, Value: value(100)}, "Expected: 100%"},
		{"updates", Assertion{Type: AssertUpdateCount, Count: count(3)}, "Actual: 1 updates"},
		{"terminal", Assertion{Type: AssertTerminalCount, Count: count(2)}, "Actual: 0 terminal updates"},
		{"unknown", Assertion{Type: "trace_order"}, "unknown assertion type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(r, []Assertion{tt.assertion})
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.want)
		})
	}
}

func TestAssertionErrorIncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertUpdateCount,
		Expected: "2 updates",
		Actual:   "1 updates",
		Trace:    []TraceEntry{{Seq: 1, Update: patch.StateUpdate{Description: "Workflow started"}}},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: update_count")
	assert.Contains(t, msg, "[1] Workflow started")
}
