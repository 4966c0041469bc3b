package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/token"

	"github.com/roach88/wfsync/internal/compiler"
	"github.com/roach88/wfsync/internal/engine"
)

// LoadResult is the set of workflow definitions found in a directory.
type LoadResult struct {
	Definitions []*compiler.Definition
	FileCount   int
}

// LoadError is a loading or compile problem with a stable error code.
type LoadError struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Line returns the source line of the error, or 0.
func (e *LoadError) Line() int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// Error code constants, shared by every command.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load or build failed
	ErrCodeNotFound    = "E005" // Path or record not found
	ErrCodeWriteFailed = "E007" // File write error

	// Definition errors
	ErrCodeSchema            = "E101" // Value does not satisfy the workflow schema
	ErrCodeDuplicateTask     = "E102" // Two tasks share an id
	ErrCodeDuplicateWorkflow = "E103" // Two workflows share an id
	ErrCodeNoWorkflows       = "E104" // No workflow: entries
	ErrCodeUnknownWorkflow   = "E105" // Named workflow not defined
	ErrCodeUnknownTask       = "E106" // --fail names a task the workflow lacks

	// Run errors
	ErrCodeRunFailed      = "E201"
	ErrCodeReplayMismatch = "E202"
	ErrCodeDatabase       = "E203"
	ErrCodeTransport      = "E204"
)

// LoadWorkflows compiles every workflow definition in dir. Definitions that
// compile are returned alongside the errors of those that do not; a nil
// result means nothing could be loaded at all.
func LoadWorkflows(dir string, ids engine.IDGenerator) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("definitions directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing definitions directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	v, err := compiler.Load(dir)
	if err != nil {
		return nil, []error{convertCompileError(err)}
	}

	defs, compileErrs := compiler.CompileAll(v, ids)
	errs := make([]error, len(compileErrs))
	for i, e := range compileErrs {
		errs[i] = convertCompileError(e)
	}
	return &LoadResult{Definitions: defs, FileCount: len(cueFiles)}, errs
}

// loadWorkflow loads dir and returns the workflow called name. Any
// definition error in dir fails the load.
func loadWorkflow(dir, name string, ids engine.IDGenerator) (*compiler.Definition, error) {
	result, errs := LoadWorkflows(dir, ids)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	d := compiler.Find(result.Definitions, name)
	if d == nil {
		return nil, &LoadError{
			Code:    ErrCodeUnknownWorkflow,
			Message: fmt.Sprintf("workflow %q not found in %s", name, dir),
		}
	}
	return d, nil
}

// FindCUEFiles returns the .cue files directly inside dir, which are the
// files of the package compiler.Load builds. Subdirectories are ignored.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

// convertCompileError maps a *compiler.CompileError onto its E1xx code and
// keeps the CUE position; other errors become E001.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapKindToErrorCode(compileErr.Kind),
			Field:   compileErr.Field,
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// MapKindToErrorCode maps a compile error kind to an error code.
func MapKindToErrorCode(kind compiler.ErrorKind) string {
	switch kind {
	case compiler.KindLoad:
		return ErrCodeLoadFailed
	case compiler.KindSchema:
		return ErrCodeSchema
	case compiler.KindDuplicateTask:
		return ErrCodeDuplicateTask
	case compiler.KindDuplicateWorkflow:
		return ErrCodeDuplicateWorkflow
	case compiler.KindEmpty:
		return ErrCodeNoWorkflows
	default:
		return ErrCodeGeneric
	}
}

// errorCode returns the LoadError code in err, or fallback.
func errorCode(err error, fallback string) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return fallback
}
