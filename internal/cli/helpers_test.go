package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wfsync/internal/testutil"
)

const definitionsCUE = `package workflows

workflow: release: {
	id:    "wf-release"
	title: "Release"
	tasks: [
		{id: "build", title: "Build"},
		{id: "test", title: "Test"},
	]
}

workflow: docs: {
	title: "Docs"
	tasks: [{id: "lint", title: "Lint", trivial: true}]
}
`

func rootOpts(format string) *RootOptions {
	return &RootOptions{Format: format, Logger: testutil.QuietLogger()}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// definitionsDir writes the release and docs workflows to a temp dir.
func definitionsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "workflows.cue", definitionsCUE)
	return dir
}

// execute runs cmd with args and returns everything written to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decode parses a JSON CLIResponse whose data is of type T.
func decode[T any](t *testing.T, out string) (string, T, *CLIError) {
	t.Helper()
	var resp struct {
		Status string    `json:"status"`
		Data   T         `json:"data"`
		Error  *CLIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp.Status, resp.Data, resp.Error
}
