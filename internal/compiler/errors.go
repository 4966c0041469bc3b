package compiler

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// ErrorKind classifies a CompileError.
type ErrorKind string

const (
	KindLoad              ErrorKind = "load"   // CUE files could not be loaded or built
	KindSchema            ErrorKind = "schema" // A value does not satisfy #Workflow
	KindDuplicateTask     ErrorKind = "duplicate_task"
	KindDuplicateWorkflow ErrorKind = "duplicate_workflow"
	KindEmpty             ErrorKind = "empty" // No workflow: entries
)

// CompileError is a definition error with its CUE source position.
type CompileError struct {
	Kind    ErrorKind
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(field string, err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	first := errs[0]
	var pos token.Pos
	if positions := errors.Positions(first); len(positions) > 0 {
		pos = positions[0]
	}
	kind := KindSchema
	if field == "load" || field == "build" {
		kind = KindLoad
	}
	return &CompileError{
		Kind:    kind,
		Field:   field,
		Message: first.Error(),
		Pos:     pos,
	}
}
