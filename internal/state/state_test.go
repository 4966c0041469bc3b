package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoTaskState(t *testing.T) WorkflowState {
	t.Helper()
	ws, err := New("wf-1", "Deploy", []TaskSpec{
		{ID: "1", Title: "Build image"},
		{ID: "2", Title: "Push image"},
	})
	require.NoError(t, err)
	return ws
}

func TestNewInitialSnapshot(t *testing.T) {
	ws := twoTaskState(t)

	assert.Equal(t, "wf-1", ws.WorkflowID)
	assert.Len(t, ws.Tasks, 2)
	assert.Equal(t, int64(0), ws.OverallProgress)
	for _, task := range ws.Tasks {
		assert.Equal(t, StatusPending, task.Status)
		assert.Equal(t, int64(0), task.Progress)
		assert.Nil(t, task.Result)
		assert.Nil(t, task.CompletedAt)
	}
}

func TestNewRejectsDuplicateTaskIDs(t *testing.T) {
	_, err := New("wf-1", "Deploy", []TaskSpec{{ID: "a", Title: "x"}, {ID: "a", Title: "y"}})
	require.Error(t, err)

	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "/tasks/1/id", fe.Path)
}

func TestNewRejectsMissingWorkflowID(t *testing.T) {
	_, err := New("", "Deploy", nil)
	require.Error(t, err)
}

func TestCloneIsDeep(t *testing.T) {
	ws := twoTaskState(t)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	result := "ok"
	ws.StartedAt = &now
	ws.Tasks[0].Result = &result
	ws.Tasks[0].Status = StatusCompleted

	c := ws.Clone()
	c.Tasks[0].Title = "changed"
	*c.Tasks[0].Result = "changed"
	*c.StartedAt = now.Add(time.Hour)

	assert.Equal(t, "Build image", ws.Tasks[0].Title)
	assert.Equal(t, "ok", *ws.Tasks[0].Result)
	assert.Equal(t, now, *ws.StartedAt)
}

func TestOverallProgress(t *testing.T) {
	tests := []struct {
		completed, total int
		expected         int64
	}{
		{0, 0, 0},
		{0, 5, 0},
		{1, 2, 50},
		{2, 2, 100},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13}, // 12.5 rounds half up
		{5, 5, 100},
		{199, 200, 99}, // 99.5 would round to 100 with a task unfinished
		{200, 200, 100},
		{999, 1000, 99},
		{1, 200, 1}, // 0.5 rounds half up
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, OverallProgress(tt.completed, tt.total), "%d/%d", tt.completed, tt.total)
	}
}

func TestValidateInvariants(t *testing.T) {
	result := "done"
	now := time.Now()

	tests := []struct {
		name   string
		mutate func(*WorkflowState)
		path   string
	}{
		{"overall above 100", func(ws *WorkflowState) { ws.OverallProgress = 101 }, "/overall_progress"},
		{"negative progress", func(ws *WorkflowState) { ws.Tasks[1].Progress = -1 }, "/tasks/1/progress"},
		{"index out of range", func(ws *WorkflowState) { ws.CurrentTaskIndex = 2 }, "/current_task_index"},
		{"unknown status", func(ws *WorkflowState) { ws.Tasks[0].Status = "paused" }, "/tasks/0/status"},
		{"result on pending", func(ws *WorkflowState) { ws.Tasks[0].Result = &result }, "/tasks/0/result"},
		{"completed_at on running", func(ws *WorkflowState) {
			ws.Tasks[0].Status = StatusInProgress
			ws.Tasks[0].CompletedAt = &now
		}, "/tasks/0/completed_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := twoTaskState(t)
			tt.mutate(&ws)

			err := ws.Validate()
			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.path, fe.Path)
		})
	}
}

func TestValidateEmptyWorkflow(t *testing.T) {
	ws, err := New("wf-empty", "Nothing to do", nil)
	require.NoError(t, err)
	assert.True(t, ws.AllTerminal())
	assert.Equal(t, 0, ws.CompletedCount())
}
