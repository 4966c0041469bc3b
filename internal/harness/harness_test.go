package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wfsync/internal/state"
)

func count(n int) *int { return &n }
func value(n int64) *int64 { return &n }

func TestRunScenarioFiles(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, path := range files {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRunInlineWorkflow(t *testing.T) {
	scenario := &Scenario{
		Name:        "inline",
		Description: "inline workflow",
		Workflow: &WorkflowSpec{
			ID:    "wf-inline",
			Title: "Inline",
			Tasks: []TaskSpec{{ID: "a", Title: "A"}, {ID: "b", Title: "B", Trivial: true}},
		},
		Journal: true,
		Assertions: []Assertion{
			{Type: AssertUpdateCount, Count: count(17)},
			{Type: AssertOverallProgress, Value: value(100)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, "wf-inline", result.Final.WorkflowID)
	assert.Len(t, result.Trace, 17)
	assert.True(t, result.Final.AllTerminal())
	assert.NotNil(t, result.Final.CompletedAt)
	for i, e := range result.Trace {
		assert.Equal(t, int64(i+1), e.Seq)
		assert.Less(t, e.UpdateBytes, e.SnapshotBytes)
	}
}

func TestRunDefaultsWorkflowID(t *testing.T) {
	scenario := &Scenario{
		Name:        "no_id",
		Description: "workflow without id",
		Workflow:    &WorkflowSpec{Title: "Anon", Tasks: []TaskSpec{{ID: "a", Title: "A"}}},
		Assertions:  []Assertion{{Type: AssertTerminalCount, Count: count(1)}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "wf-test", result.Final.WorkflowID)
}

func TestRunReportsFailedAssertions(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong",
		Description: "assertions that do not hold",
		Workflow:    &WorkflowSpec{ID: "wf-1", Title: "W", Tasks: []TaskSpec{{ID: "a", Title: "A"}}},
		Assertions: []Assertion{
			{Type: AssertTaskStatus, Task: "a", Status: "failed"},
			{Type: AssertOverallProgress, Value: value(50)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "task a failed")
	assert.Contains(t, result.Errors[1], "50%")
}

func TestRunFailureInjection(t *testing.T) {
	scenario := &Scenario{
		Name:        "fail",
		Description: "one of two tasks fails",
		Workflow: &WorkflowSpec{
			ID:    "wf-1",
			Title: "W",
			Tasks: []TaskSpec{{ID: "a", Title: "A", Fail: "declared"}, {ID: "b", Title: "B"}},
		},
		Failures: map[string]string{"b": "injected"},
		Assertions: []Assertion{
			{Type: AssertTaskStatus, Task: "a", Status: "failed"},
			{Type: AssertTaskStatus, Task: "b", Status: "failed"},
			{Type: AssertOverallProgress, Value: value(0)},
			{Type: AssertTerminalCount, Count: count(2)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	b := result.Final.Tasks[1]
	assert.Equal(t, state.StatusFailed, b.Status)
	require.NotNil(t, b.Result)
	assert.Equal(t, "B failed: injected", *b.Result)
	assert.Equal(t, int64(50), b.Progress)
	assert.Nil(t, b.CompletedAt)
}

func TestRunSchemaErrorIsSetupError(t *testing.T) {
	scenario := &Scenario{
		Name:        "dup",
		Description: "duplicate ids",
		Workflow: &WorkflowSpec{
			Title: "W",
			Tasks: []TaskSpec{{ID: "a", Title: "A"}, {ID: "a", Title: "B"}},
		},
		Assertions: []Assertion{{Type: AssertUpdateCount, Count: count(0)}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate task id")
}

func TestRunUnknownDefinition(t *testing.T) {
	scenario := &Scenario{
		Name:        "missing",
		Description: "definition not in directory",
		Definitions: "testdata/definitions",
		Definition:  "nope",
		Assertions:  []Assertion{{Type: AssertUpdateCount, Count: count(0)}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `workflow "nope" not found`)
}
