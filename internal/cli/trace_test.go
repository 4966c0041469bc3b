package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wfsync/internal/store"
)

func TestTraceRequiresFlags(t *testing.T) {
	_, err := execute(t, NewTraceCommand(rootOpts("text")), "--db", "x.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "workflow")
}

func TestTraceText(t *testing.T) {
	dbPath := journaledRuns(t)

	out, err := execute(t, NewTraceCommand(rootOpts("text")), "--db", dbPath, "--workflow", "wf-docs")
	require.NoError(t, err)
	assert.Contains(t, out, "Trace for Workflow: wf-docs (Docs)")
	assert.Contains(t, out, "Status: completed")
	assert.Contains(t, out, "[1] Workflow started")
	assert.Contains(t, out, "[8] Completed: Lint")
	assert.Contains(t, out, "[9] Workflow completed")
	assert.Contains(t, out, `replace /tasks/0/status = "completed"`)
	assert.Contains(t, out, "Updates:    9")
	assert.Contains(t, out, "Completed:  1")
}

func TestTraceJSON(t *testing.T) {
	dbPath := journaledRuns(t)

	out, err := execute(t, NewTraceCommand(rootOpts("json")), "--db", dbPath, "--workflow", "wf-release")
	require.NoError(t, err)

	status, result, _ := decode[TraceResult](t, out)
	assert.Equal(t, "ok", status)
	assert.Equal(t, "wf-release", result.WorkflowID)
	require.Len(t, result.Timeline, 18)
	for i, u := range result.Timeline {
		assert.Equal(t, int64(i+1), u.Seq)
		assert.NotEmpty(t, u.Operations)
		assert.NotEmpty(t, u.Digest)
	}
	assert.Equal(t, TraceStats{Updates: 18, Operations: result.Stats.Operations, Completed: 2, IsComplete: true}, result.Stats)
	assert.Greater(t, result.Stats.Operations, 18)
}

func TestTracePathFilter(t *testing.T) {
	dbPath := journaledRuns(t)

	out, err := execute(t, NewTraceCommand(rootOpts("json")), "--db", dbPath,
		"--workflow", "wf-release", "--path", "/overall_progress")
	require.NoError(t, err)

	_, result, _ := decode[TraceResult](t, out)
	require.Len(t, result.Timeline, 2)
	assert.Equal(t, "Completed: Build", result.Timeline[0].Description)
	assert.Equal(t, "Completed: Test", result.Timeline[1].Description)
	require.Len(t, result.Timeline[1].Operations, 1)
	assert.JSONEq(t, "100", string(result.Timeline[1].Operations[0].Value))
}

func TestTraceUnknownWorkflow(t *testing.T) {
	dbPath := journaledRuns(t)

	_, err := execute(t, NewTraceCommand(rootOpts("text")), "--db", dbPath, "--workflow", "wf-missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, store.ErrNotFound)
}
