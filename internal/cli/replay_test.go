package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wfsync/internal/store"
)

// journaledRuns runs release and docs into a fresh database.
func journaledRuns(t *testing.T) string {
	t.Helper()
	dir := definitionsDir(t)
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	_, err := execute(t, NewRunCommand(rootOpts("text")), dir, "release", "--quiet", "--db", dbPath)
	require.NoError(t, err)
	_, err = execute(t, NewRunCommand(rootOpts("text")), dir, "docs", "--quiet", "--db", dbPath, "--id", "wf-docs")
	require.NoError(t, err)
	return dbPath
}

func TestReplayMissingDatabaseFlag(t *testing.T) {
	_, err := execute(t, NewReplayCommand(rootOpts("text")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "db")
}

func TestReplayMissingDatabase(t *testing.T) {
	_, err := execute(t, NewReplayCommand(rootOpts("text")), "--db", filepath.Join(t.TempDir(), "nope.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
}

func TestReplayAllWorkflows(t *testing.T) {
	dbPath := journaledRuns(t)

	out, err := execute(t, NewReplayCommand(rootOpts("text")), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Replay Summary: 2 workflow(s)")
	assert.Contains(t, out, "✓ Workflow: wf-docs (Docs)")
	assert.Contains(t, out, "✓ Workflow: wf-release (Release)")
	assert.Contains(t, out, "Updates: 18, status completed, 100%")
	assert.Contains(t, out, "✓ All workflows verified")
}

func TestReplaySingleWorkflowJSON(t *testing.T) {
	dbPath := journaledRuns(t)

	out, err := execute(t, NewReplayCommand(rootOpts("json")), "--db", dbPath, "--workflow", "wf-docs")
	require.NoError(t, err)

	status, result, _ := decode[ReplaySummary](t, out)
	assert.Equal(t, "ok", status)
	assert.True(t, result.AllVerified)
	require.Len(t, result.Workflows, 1)
	wr := result.Workflows[0]
	assert.Equal(t, "wf-docs", wr.WorkflowID)
	assert.Equal(t, 9, wr.Updates)
	assert.Equal(t, int64(9), wr.LastSeq)
	assert.True(t, wr.Verified)
	assert.Equal(t, store.StatusCompleted, wr.Status)
}

func TestReplayShowPrintsPanel(t *testing.T) {
	dbPath := journaledRuns(t)

	out, err := execute(t, NewReplayCommand(rootOpts("text")), "--db", dbPath, "--workflow", "wf-release", "--show")
	require.NoError(t, err)
	assert.Contains(t, out, "Release - 100% Complete")
}

func TestReplayUnknownWorkflow(t *testing.T) {
	dbPath := journaledRuns(t)

	_, err := execute(t, NewReplayCommand(rootOpts("text")), "--db", dbPath, "--workflow", "wf-missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReplayDetectsTamperedJournal(t *testing.T) {
	dbPath := journaledRuns(t)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	_, err = st.DB().ExecContext(context.Background(),
		`UPDATE updates SET digest = 'tampered' WHERE workflow_id = ? AND seq = 5`, "wf-release")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := execute(t, NewReplayCommand(rootOpts("json")), "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	status, result, cliErr := decode[ReplaySummary](t, out)
	assert.Equal(t, "error", status)
	require.NotNil(t, cliErr)
	assert.Equal(t, ErrCodeReplayMismatch, cliErr.Code)
	assert.False(t, result.AllVerified)

	byID := map[string]ReplayWorkflowResult{}
	for _, wr := range result.Workflows {
		byID[wr.WorkflowID] = wr
	}
	assert.True(t, byID["wf-docs"].Verified)
	assert.False(t, byID["wf-release"].Verified)
	assert.Contains(t, byID["wf-release"].Error, "seq 5")
	assert.Equal(t, 4, byID["wf-release"].Updates)
}

func TestReplayEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := execute(t, NewReplayCommand(rootOpts("text")), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No workflows found in database.")
}
