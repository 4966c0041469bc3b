package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenarioResolvesDefinitions(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/from_definitions.yaml")
	require.NoError(t, err)

	assert.Equal(t, "from_definitions", s.Name)
	assert.Equal(t, filepath.Join("testdata", "definitions"), s.Definitions)
	assert.Equal(t, "docs", s.Definition)
	assert.Equal(t, "wf-docs-test", s.WorkflowID)
	require.Len(t, s.Assertions, 3)
	require.NotNil(t, s.Assertions[2].Count)
	assert.Equal(t, 17, *s.Assertions[2].Count)
}

func TestLoadScenarioInlineWorkflow(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/release_with_failure.yaml")
	require.NoError(t, err)

	require.NotNil(t, s.Workflow)
	assert.Equal(t, "wf-release-fail", s.Workflow.ID)
	require.Len(t, s.Workflow.Tasks, 3)
	assert.True(t, s.Workflow.Tasks[2].Trivial)
	assert.Equal(t, "flaky integration suite", s.Failures["test"])
	assert.True(t, s.Journal)
}

func TestParseScenarioRejectsUnknownFields(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
description: misspelled key
workflow: {title: W, tasks: []}
assertion:
  - {type: update_count, count: 0}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertion")
}

func TestParseScenarioValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "description: d\nworkflow: {title: W, tasks: []}\nassertions: [{type: update_count, count: 0}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: n\nworkflow: {title: W, tasks: []}\nassertions: [{type: update_count, count: 0}]\n",
			want: "description is required",
		},
		{
			name: "no workflow",
			yaml: "name: n\ndescription: d\nassertions: [{type: update_count, count: 0}]\n",
			want: "one of workflow or definitions",
		},
		{
			name: "both sources",
			yaml: "name: n\ndescription: d\nworkflow: {title: W, tasks: []}\ndefinitions: x\ndefinition: y\nassertions: [{type: update_count, count: 0}]\n",
			want: "mutually exclusive",
		},
		{
			name: "definitions without name",
			yaml: "name: n\ndescription: d\ndefinitions: x\nassertions: [{type: update_count, count: 0}]\n",
			want: "definition is required",
		},
		{
			name: "no assertions",
			yaml: "name: n\ndescription: d\nworkflow: {title: W, tasks: []}\n",
			want: "assertions list is required",
		},
		{
			name: "unknown assertion",
			yaml: "name: n\ndescription: d\nworkflow: {title: W, tasks: []}\nassertions: [{type: final_state}]\n",
			want: `unknown assertion type "final_state"`,
		},
		{
			name: "task_status needs task",
			yaml: "name: n\ndescription: d\nworkflow: {title: W, tasks: []}\nassertions: [{type: task_status, status: completed}]\n",
			want: "requires task and status",
		},
		{
			name: "count required",
			yaml: "name: n\ndescription: d\nworkflow: {title: W, tasks: []}\nassertions: [{type: terminal_count}]\n",
			want: "requires count",
		},
		{
			name: "value required",
			yaml: "name: n\ndescription: d\nworkflow: {title: W, tasks: []}\nassertions: [{type: overall_progress}]\n",
			want: "requires value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseScenarioZeroCountIsSet(t *testing.T) {
	s, err := ParseScenario([]byte("name: n\ndescription: d\nworkflow: {title: W, tasks: []}\nassertions: [{type: overall_progress, value: 0}]\n"))
	require.NoError(t, err)
	require.NotNil(t, s.Assertions[0].Value)
	assert.Zero(t, *s.Assertions[0].Value)
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenarioMissingDefinitionsDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"name: n\ndescription: d\ndefinitions: ./defs\ndefinition: x\nassertions: [{type: update_count, count: 0}]\n"), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "definitions directory not found")
}
