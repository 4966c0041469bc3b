package state

import (
	"fmt"
	"time"
)

// TaskItem is one row of work inside a workflow.
type TaskItem struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Status      TaskStatus `json:"status"`
	Progress    int64      `json:"progress"`     // 0-100
	Result      *string    `json:"result"`       // Set on reaching a terminal state
	StartedAt   *time.Time `json:"started_at"`   // Set when the task leaves PENDING
	CompletedAt *time.Time `json:"completed_at"` // Set on reaching a terminal state
}

// WorkflowState is the root aggregate synchronized between producer and consumers.
type WorkflowState struct {
	WorkflowID       string     `json:"workflow_id"`
	Title            string     `json:"title"`
	Tasks            []TaskItem `json:"tasks"`
	OverallProgress  int64      `json:"overall_progress"`
	CurrentTaskIndex int64      `json:"current_task_index"`
	StartedAt        *time.Time `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at"`
}

// TaskSpec is the creation-time description of a task.
type TaskSpec struct {
	ID    string
	Title string
}

// New builds the initial snapshot for a workflow run: every task PENDING at
// progress 0 and overall progress 0.
func New(workflowID, title string, tasks []TaskSpec) (WorkflowState, error) {
	ws := WorkflowState{
		WorkflowID: workflowID,
		Title:      title,
		Tasks:      make([]TaskItem, len(tasks)),
	}
	for i, t := range tasks {
		ws.Tasks[i] = TaskItem{
			ID:     t.ID,
			Title:  t.Title,
			Status: StatusPending,
		}
	}
	if err := ws.Validate(); err != nil {
		return WorkflowState{}, err
	}
	return ws, nil
}

// Clone returns a deep copy. Producer and consumer copies never share memory,
// so every value crossing that boundary goes through Clone.
func (ws WorkflowState) Clone() WorkflowState {
	out := ws
	out.StartedAt = cloneTime(ws.StartedAt)
	out.CompletedAt = cloneTime(ws.CompletedAt)
	if ws.Tasks != nil {
		out.Tasks = make([]TaskItem, len(ws.Tasks))
		for i, t := range ws.Tasks {
			out.Tasks[i] = t.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the task.
func (t TaskItem) Clone() TaskItem {
	out := t
	if t.Result != nil {
		r := *t.Result
		out.Result = &r
	}
	out.StartedAt = cloneTime(t.StartedAt)
	out.CompletedAt = cloneTime(t.CompletedAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// CompletedCount returns the number of tasks that finished successfully.
func (ws WorkflowState) CompletedCount() int {
	n := 0
	for _, t := range ws.Tasks {
		if t.Status == StatusCompleted {
			n++
		}
	}
	return n
}

// AllTerminal reports whether every task reached COMPLETED or FAILED.
func (ws WorkflowState) AllTerminal() bool {
	for _, t := range ws.Tasks {
		if !t.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// OverallProgress computes round(100 * completed / total) with halves rounded
// up, using integer arithmetic only. Failed tasks count toward total but never
// toward completed. An empty workflow has no progress to report and yields 0.
//
// 100 means every task completed: with 200 or more tasks the rounded value
// of total-1 would already reach 100, so it is held at 99.
func OverallProgress(completed, total int) int64 {
	if total <= 0 {
		return 0
	}
	p := int64((200*completed + total) / (2 * total))
	if completed < total && p > 99 {
		return 99
	}
	return p
}

// FieldError describes a state that violates a model invariant.
type FieldError struct {
	Path    string // Patch path of the offending field, e.g. "/tasks/2/progress"
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate checks the invariants that must hold for any complete state,
// independent of how it was reached. It returns the first *FieldError found.
func (ws WorkflowState) Validate() error {
	if ws.WorkflowID == "" {
		return &FieldError{Path: "/workflow_id", Message: "workflow id is required"}
	}
	if !inPercentRange(ws.OverallProgress) {
		return &FieldError{Path: "/overall_progress", Message: fmt.Sprintf("%d outside 0..100", ws.OverallProgress)}
	}
	maxIndex := int64(len(ws.Tasks)) - 1
	if maxIndex < 0 {
		maxIndex = 0
	}
	if ws.CurrentTaskIndex < 0 || ws.CurrentTaskIndex > maxIndex {
		return &FieldError{Path: "/current_task_index", Message: fmt.Sprintf("%d outside 0..%d", ws.CurrentTaskIndex, maxIndex)}
	}

	seen := make(map[string]int, len(ws.Tasks))
	for i, t := range ws.Tasks {
		base := fmt.Sprintf("/tasks/%d", i)
		if t.ID == "" {
			return &FieldError{Path: base + "/id", Message: "task id is required"}
		}
		if prev, dup := seen[t.ID]; dup {
			return &FieldError{Path: base + "/id", Message: fmt.Sprintf("duplicate task id %q (also at index %d)", t.ID, prev)}
		}
		seen[t.ID] = i

		if !t.Status.Valid() {
			return &FieldError{Path: base + "/status", Message: fmt.Sprintf("unknown status %q", t.Status)}
		}
		if !inPercentRange(t.Progress) {
			return &FieldError{Path: base + "/progress", Message: fmt.Sprintf("%d outside 0..100", t.Progress)}
		}
		if !t.Status.IsTerminal() {
			if t.Result != nil {
				return &FieldError{Path: base + "/result", Message: "result set on non-terminal task"}
			}
			if t.CompletedAt != nil {
				return &FieldError{Path: base + "/completed_at", Message: "completed_at set on non-terminal task"}
			}
		}
	}
	return nil
}

func inPercentRange(n int64) bool {
	return n >= 0 && n <= 100
}
