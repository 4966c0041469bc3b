package compiler

import (
	"errors"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wfsync/internal/engine"
	"github.com/roach88/wfsync/internal/state"
)

func compileOne(t *testing.T, src, name string) (*Definition, error) {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return CompileWorkflow(name, v.LookupPath(cue.ParsePath("workflow."+name)), engine.NewFixedGenerator("wf-generated"))
}

func TestCompileWorkflowBasic(t *testing.T) {
	d, err := compileOne(t, `
		workflow: release: {
			id:    "wf-1"
			title: "Release"
			tasks: [
				{id: "build", title: "Build"},
				{id: "ship", title: "Ship", trivial: true},
				{id: "notify", title: "Notify", fail: "smtp down"},
			]
		}
	`, "release")
	require.NoError(t, err)

	assert.Equal(t, "release", d.Name)
	assert.Equal(t, "wf-1", d.ID)
	assert.Equal(t, "Release", d.Title)
	assert.Equal(t, []TaskDef{
		{ID: "build", Title: "Build"},
		{ID: "ship", Title: "Ship", Trivial: true},
		{ID: "notify", Title: "Notify", Fail: "smtp down"},
	}, d.Tasks)
}

func TestCompileWorkflowGeneratesMissingID(t *testing.T) {
	d, err := compileOne(t, `
		workflow: w: {
			title: "No id"
			tasks: [{id: "a", title: "A"}]
		}
	`, "w")
	require.NoError(t, err)
	assert.Equal(t, "wf-generated", d.ID)
}

func TestCompileWorkflowDefaultIDIsUUIDv7(t *testing.T) {
	v := cuecontext.New().CompileString(`title: "x", tasks: []`)
	require.NoError(t, v.Err())

	d, err := CompileWorkflow("w", v, nil)
	require.NoError(t, err)
	assert.Len(t, d.ID, 36)
	assert.Equal(t, byte('7'), d.ID[14])
}

func TestCompileWorkflowRejectsDuplicateTaskIDs(t *testing.T) {
	_, err := compileOne(t, `
		workflow: w: {
			title: "Dup"
			tasks: [
				{id: "a", title: "A"},
				{id: "a", title: "Again"},
			]
		}
	`, "w")
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, KindDuplicateTask, ce.Kind)
	assert.Equal(t, "w.tasks[1].id", ce.Field)
	assert.Contains(t, ce.Message, `duplicate task id "a"`)
}

func TestCompileWorkflowSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "missing title",
			src:  `workflow: w: { tasks: [] }`,
			want: "title",
		},
		{
			name: "unknown field",
			src:  `workflow: w: { title: "x", tasks: [], owner: "me" }`,
			want: "owner",
		},
		{
			name: "task missing id",
			src:  `workflow: w: { title: "x", tasks: [{title: "A"}] }`,
			want: "id",
		},
		{
			name: "bad task id",
			src:  `workflow: w: { title: "x", tasks: [{id: "has space", title: "A"}] }`,
			want: "id",
		},
		{
			name: "trivial not bool",
			src:  `workflow: w: { title: "x", tasks: [{id: "a", title: "A", trivial: "yes"}] }`,
			want: "trivial",
		},
		{
			name: "empty title",
			src:  `workflow: w: { title: "", tasks: [] }`,
			want: "title",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileOne(t, tt.src, "w")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			var ce *CompileError
			if assert.True(t, errors.As(err, &ce)) {
				assert.Equal(t, KindSchema, ce.Kind)
			}
		})
	}
}

func TestDefinitionInitial(t *testing.T) {
	d := &Definition{
		Name:  "w",
		ID:    "wf-1",
		Title: "Two",
		Tasks: []TaskDef{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}},
	}

	ws, err := d.Initial()
	require.NoError(t, err)
	assert.Equal(t, "wf-1", ws.WorkflowID)
	require.Len(t, ws.Tasks, 2)
	for _, task := range ws.Tasks {
		assert.Equal(t, state.StatusPending, task.Status)
		assert.Zero(t, task.Progress)
	}
	assert.Zero(t, ws.OverallProgress)
}

func TestDefinitionSimTasksFailureOverride(t *testing.T) {
	d := &Definition{
		Tasks: []TaskDef{
			{ID: "a", Title: "A", Trivial: true},
			{ID: "b", Title: "B", Fail: "declared"},
			{ID: "c", Title: "C"},
		},
	}

	sims := d.SimTasks(map[string]string{"c": "injected"})
	assert.Equal(t, []engine.SimTask{
		{Title: "A", Trivial: true},
		{Title: "B", Fail: "declared"},
		{Title: "C", Fail: "injected"},
	}, sims)
}
