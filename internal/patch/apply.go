package patch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/wfsync/internal/ir"
	"github.com/roach88/wfsync/internal/state"
)

// Apply folds u into a copy of ws and returns the result.
//
// ws itself is never modified. On error the returned state is the zero
// value and the caller's copy remains the last good state.
func Apply(ws state.WorkflowState, u StateUpdate) (state.WorkflowState, error) {
	work := ws.Clone()
	for i, op := range u.Operations {
		if err := applyOp(&work, &ws, i, op); err != nil {
			return state.WorkflowState{}, err
		}
	}
	if err := work.Validate(); err != nil {
		var fe *state.FieldError
		if errors.As(err, &fe) {
			return state.WorkflowState{}, &StateInvariantViolation{OpIndex: -1, Path: fe.Path, Reason: fe.Message}
		}
		return state.WorkflowState{}, &StateInvariantViolation{OpIndex: -1, Reason: err.Error()}
	}
	return work, nil
}

// ApplyInPlace folds u into *ws, replacing it only if the whole batch succeeds.
func ApplyInPlace(ws *state.WorkflowState, u StateUpdate) error {
	next, err := Apply(*ws, u)
	if err != nil {
		return err
	}
	*ws = next
	return nil
}

// ApplySequence folds updates in order. It stops at the first rejected batch
// and reports its position.
func ApplySequence(ws state.WorkflowState, updates ...StateUpdate) (state.WorkflowState, error) {
	cur := ws.Clone()
	for i, u := range updates {
		next, err := Apply(cur, u)
		if err != nil {
			return state.WorkflowState{}, fmt.Errorf("update %d (%s): %w", i, u.Description, err)
		}
		cur = next
	}
	return cur, nil
}

// applyOp mutates work. start is the state as it was before the batch and is
// only read, to decide whether a task was already finished.
func applyOp(work, start *state.WorkflowState, index int, op Operation) error {
	switch op.Op {
	case OpReplace:
	case OpAdd, OpRemove:
		return &InvalidOperationError{OpIndex: index, Op: string(op.Op), Path: op.Path, Reason: "reserved for structural changes, not accepted by this applier"}
	default:
		return &InvalidOperationError{OpIndex: index, Op: string(op.Op), Path: op.Path, Reason: "unsupported op"}
	}
	if op.Value == nil {
		return &InvalidOperationError{OpIndex: index, Op: string(op.Op), Path: op.Path, Reason: "replace requires a value"}
	}

	target, err := ParsePath(op.Path)
	if err != nil {
		var pe *PathResolutionError
		if errors.As(err, &pe) {
			pe.OpIndex = index
		}
		return err
	}

	switch t := target.(type) {
	case RootField:
		return replaceField(work, rootFields[t.Name], index, op)
	case TaskField:
		if t.Index >= len(work.Tasks) {
			return &PathResolutionError{
				OpIndex: index,
				Path:    op.Path,
				Segment: fmt.Sprintf("%d", t.Index),
				Reason:  fmt.Sprintf("task index out of range (workflow has %d tasks)", len(work.Tasks)),
			}
		}
		f := taskFields[t.Name]
		task := &work.Tasks[t.Index]
		if prev := start.Tasks[t.Index]; prev.Status.IsTerminal() {
			// A finished task only accepts replaces that change nothing.
			if err := replaceField(task, f, index, op); err != nil {
				return err
			}
			if !ir.Equal(f.get(task), f.get(&prev)) {
				return &StateInvariantViolation{OpIndex: index, Path: op.Path, Reason: fmt.Sprintf("task %q is already %s", prev.ID, prev.Status)}
			}
			return nil
		}
		return replaceField(task, f, index, op)
	default:
		panic(fmt.Sprintf("patch: unhandled target %T", target))
	}
}

func replaceField[T any](x *T, f field[T], index int, op Operation) error {
	before := *x
	if err := f.set(x, op.Value); err != nil {
		// The value does not fit the field the path resolved to.
		return &PathResolutionError{OpIndex: index, Path: op.Path, Segment: lastSegment(op.Path), Reason: "type mismatch: " + err.Error()}
	}
	if f.immutable && !ir.Equal(f.get(&before), f.get(x)) {
		return &StateInvariantViolation{OpIndex: index, Path: op.Path, Reason: "field is immutable"}
	}
	if f.check != nil {
		if reason := f.check(&before, x); reason != "" {
			return &StateInvariantViolation{OpIndex: index, Path: op.Path, Reason: reason}
		}
	}
	return nil
}

func lastSegment(path string) string {
	return path[strings.LastIndexByte(path, '/')+1:]
}
