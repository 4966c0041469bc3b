package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: lint_only
description: One trivial task
workflow:
  id: wf-lint
  title: Lint
  tasks:
    - {id: lint, title: Lint, trivial: true}
assertions:
  - {type: task_status, task: lint, status: completed}
  - {type: update_count, count: 9}
`

const failingScenario = `name: wrong_count
workflow:
  id: wf-wrong
  title: Wrong
  tasks:
    - {id: build, title: Build}
assertions:
  - {type: update_count, count: 3}
`

func scenariosDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		writeFile(t, dir, name, content)
	}
	return dir
}

func TestTestCommandPasses(t *testing.T) {
	dir := scenariosDir(t, map[string]string{"lint.yaml": passingScenario})

	out, err := execute(t, NewTestCommand(rootOpts("text")), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ lint_only")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandFailures(t *testing.T) {
	dir := scenariosDir(t, map[string]string{
		"lint.yaml":  passingScenario,
		"wrong.yaml": failingScenario,
	})

	out, err := execute(t, NewTestCommand(rootOpts("json")), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	status, result, cliErr := decode[TestResult](t, out)
	assert.Equal(t, "error", status)
	require.NotNil(t, cliErr)
	assert.Equal(t, "E_TEST_FAILED", cliErr.Code)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Total)

	for _, sr := range result.Scenarios {
		if sr.Name == "wrong_count" {
			assert.False(t, sr.Pass)
			assert.Equal(t, 10, sr.Updates)
			require.NotEmpty(t, sr.Errors)
		}
	}
}

func TestTestCommandFilter(t *testing.T) {
	dir := scenariosDir(t, map[string]string{
		"lint.yaml":  passingScenario,
		"wrong.yaml": failingScenario,
	})

	out, err := execute(t, NewTestCommand(rootOpts("text")), dir, "--filter", "li*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 total")
	assert.NotContains(t, out, "wrong_count")
}

func TestTestCommandGoldenRoundTrip(t *testing.T) {
	dir := scenariosDir(t, map[string]string{"lint.yaml": passingScenario})
	goldenPath := filepath.Join(dir, "golden", "lint_only.golden")

	out, err := execute(t, NewTestCommand(rootOpts("text")), dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ lint_only (golden updated)")
	require.FileExists(t, goldenPath)

	// The golden directory is not scanned for scenarios.
	out, err = execute(t, NewTestCommand(rootOpts("json")), dir)
	require.NoError(t, err)
	_, result, _ := decode[TestResult](t, out)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, "match", result.Scenarios[0].Golden)

	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"trace":[]}`), 0o644))
	out, err = execute(t, NewTestCommand(rootOpts("text")), dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommandLoadError(t *testing.T) {
	dir := scenariosDir(t, map[string]string{"broken.yaml": "name: broken\nbogus: true\n"})

	out, err := execute(t, NewTestCommand(rootOpts("text")), dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommandEmptyAndMissing(t *testing.T) {
	out, err := execute(t, NewTestCommand(rootOpts("text")), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")

	_, err = execute(t, NewTestCommand(rootOpts("text")), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandHarnessScenarios(t *testing.T) {
	out, err := execute(t, NewTestCommand(rootOpts("text")), "../harness/testdata/scenarios")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ release_happy_path")
	assert.Contains(t, out, "✓ release_with_failure")
	assert.Contains(t, out, "3 passed, 0 failed, 3 total")
}
