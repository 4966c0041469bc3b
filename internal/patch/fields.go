package patch

import (
	"fmt"
	"time"

	"github.com/roach88/wfsync/internal/ir"
	"github.com/roach88/wfsync/internal/state"
)

// Field names, identical to the JSON snapshot keys.
const (
	FieldWorkflowID       = "workflow_id"
	FieldTitle            = "title"
	FieldOverallProgress  = "overall_progress"
	FieldCurrentTaskIndex = "current_task_index"
	FieldStartedAt        = "started_at"
	FieldCompletedAt      = "completed_at"

	FieldID       = "id"
	FieldStatus   = "status"
	FieldProgress = "progress"
	FieldResult   = "result"

	fieldTasks = "tasks"
)

// field is a strongly typed accessor for one scalar of T. set coerces the
// wire value or returns the reason it does not fit, reported as a
// PathResolutionError.
// check, when present, compares the value before and after an op and
// returns a non-empty reason if the transition breaks an invariant.
type field[T any] struct {
	immutable bool
	get       func(*T) ir.Value
	set       func(*T, ir.Value) error
	check     func(before, after *T) string
}

var rootFields = map[string]field[state.WorkflowState]{
	FieldWorkflowID: withImmutable(stringField(func(ws *state.WorkflowState) *string { return &ws.WorkflowID })),
	FieldTitle:      stringField(func(ws *state.WorkflowState) *string { return &ws.Title }),
	FieldOverallProgress: intField(func(ws *state.WorkflowState) *int64 {
		return &ws.OverallProgress
	}),
	FieldCurrentTaskIndex: intField(func(ws *state.WorkflowState) *int64 {
		return &ws.CurrentTaskIndex
	}),
	FieldStartedAt:   timeField(func(ws *state.WorkflowState) **time.Time { return &ws.StartedAt }),
	FieldCompletedAt: timeField(func(ws *state.WorkflowState) **time.Time { return &ws.CompletedAt }),
}

var taskFields = map[string]field[state.TaskItem]{
	FieldID:    withImmutable(stringField(func(t *state.TaskItem) *string { return &t.ID })),
	FieldTitle: stringField(func(t *state.TaskItem) *string { return &t.Title }),
	FieldStatus: {
		get: func(t *state.TaskItem) ir.Value { return ir.String(t.Status) },
		set: func(t *state.TaskItem, v ir.Value) error {
			s, ok := v.(ir.String)
			if !ok {
				return typeMismatch("string", v)
			}
			status, err := state.ParseStatus(string(s))
			if err != nil {
				return err
			}
			t.Status = status
			return nil
		},
		check: func(before, after *state.TaskItem) string {
			if !state.CanTransition(before.Status, after.Status) {
				return fmt.Sprintf("status cannot move from %s to %s", before.Status, after.Status)
			}
			return ""
		},
	},
	FieldProgress: withCheck(
		intField(func(t *state.TaskItem) *int64 { return &t.Progress }),
		func(before, after *state.TaskItem) string {
			if after.Progress < before.Progress {
				return fmt.Sprintf("progress cannot decrease from %d to %d", before.Progress, after.Progress)
			}
			return ""
		},
	),
	FieldResult:      optStringField(func(t *state.TaskItem) **string { return &t.Result }),
	FieldStartedAt:   timeField(func(t *state.TaskItem) **time.Time { return &t.StartedAt }),
	FieldCompletedAt: timeField(func(t *state.TaskItem) **time.Time { return &t.CompletedAt }),
}

func isRootField(name string) bool {
	_, ok := rootFields[name]
	return ok
}

func isTaskField(name string) bool {
	_, ok := taskFields[name]
	return ok
}

func withImmutable[T any](f field[T]) field[T] {
	f.immutable = true
	return f
}

func withCheck[T any](f field[T], check func(before, after *T) string) field[T] {
	f.check = check
	return f
}

func stringField[T any](ptr func(*T) *string) field[T] {
	return field[T]{
		get: func(x *T) ir.Value { return ir.String(*ptr(x)) },
		set: func(x *T, v ir.Value) error {
			s, ok := v.(ir.String)
			if !ok {
				return typeMismatch("string", v)
			}
			*ptr(x) = string(s)
			return nil
		},
	}
}

func optStringField[T any](ptr func(*T) **string) field[T] {
	return field[T]{
		get: func(x *T) ir.Value {
			if p := *ptr(x); p != nil {
				return ir.String(*p)
			}
			return ir.Null{}
		},
		set: func(x *T, v ir.Value) error {
			switch s := v.(type) {
			case ir.Null:
				*ptr(x) = nil
			case ir.String:
				str := string(s)
				*ptr(x) = &str
			default:
				return typeMismatch("string or null", v)
			}
			return nil
		},
	}
}

func intField[T any](ptr func(*T) *int64) field[T] {
	return field[T]{
		get: func(x *T) ir.Value { return ir.Int(*ptr(x)) },
		set: func(x *T, v ir.Value) error {
			n, ok := v.(ir.Int)
			if !ok {
				return typeMismatch("int", v)
			}
			*ptr(x) = int64(n)
			return nil
		},
	}
}

func timeField[T any](ptr func(*T) **time.Time) field[T] {
	return field[T]{
		get: func(x *T) ir.Value {
			if p := *ptr(x); p != nil {
				return ir.String(state.FormatTime(*p))
			}
			return ir.Null{}
		},
		set: func(x *T, v ir.Value) error {
			switch s := v.(type) {
			case ir.Null:
				*ptr(x) = nil
			case ir.String:
				t, err := state.ParseTime(string(s))
				if err != nil {
					return err
				}
				*ptr(x) = &t
			default:
				return typeMismatch("timestamp string or null", v)
			}
			return nil
		},
	}
}

func typeMismatch(want string, got ir.Value) error {
	return fmt.Errorf("expected %s, got %s", want, ir.KindOf(got))
}
