package patch

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes batch rejections.
type ErrorCode string

const (
	// ErrCodePathResolution indicates a path that does not resolve against the state.
	ErrCodePathResolution ErrorCode = "PATH_RESOLUTION"

	// ErrCodeInvalidOperation indicates an op this applier does not accept.
	ErrCodeInvalidOperation ErrorCode = "INVALID_OPERATION"

	// ErrCodeInvariantViolation indicates a well-formed patch that would break a model invariant.
	ErrCodeInvariantViolation ErrorCode = "STATE_INVARIANT_VIOLATION"
)

// PathResolutionError reports a path that does not resolve: a missing segment,
// an index out of range, or a value whose type does not match the field the
// path addresses (including an unknown status string).
type PathResolutionError struct {
	OpIndex int    // Position of the operation within its batch, -1 if not applicable
	Path    string // The full path as received
	Segment string // The segment that failed to resolve, if known
	Reason  string
}

func (e *PathResolutionError) Error() string {
	if e.Segment != "" {
		return fmt.Sprintf("%s: op %d: path %q: segment %q: %s", ErrCodePathResolution, e.OpIndex, e.Path, e.Segment, e.Reason)
	}
	return fmt.Sprintf("%s: op %d: path %q: %s", ErrCodePathResolution, e.OpIndex, e.Path, e.Reason)
}

// InvalidOperationError reports an op outside the accepted set, or a replace
// that carries no value.
type InvalidOperationError struct {
	OpIndex int
	Op      string
	Path    string
	Reason  string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("%s: op %d (%s %s): %s", ErrCodeInvalidOperation, e.OpIndex, e.Op, e.Path, e.Reason)
}

// StateInvariantViolation reports a patch that would move a task backward,
// decrease progress, touch a finished task, or otherwise leave the state
// inconsistent.
type StateInvariantViolation struct {
	OpIndex int // -1 when detected by whole-batch validation
	Path    string
	Reason  string
}

func (e *StateInvariantViolation) Error() string {
	if e.OpIndex < 0 {
		return fmt.Sprintf("%s: %s: %s", ErrCodeInvariantViolation, e.Path, e.Reason)
	}
	return fmt.Sprintf("%s: op %d: %s: %s", ErrCodeInvariantViolation, e.OpIndex, e.Path, e.Reason)
}

// IsPathResolution returns true if err is or wraps a *PathResolutionError.
func IsPathResolution(err error) bool {
	var pe *PathResolutionError
	return errors.As(err, &pe)
}

// IsInvalidOperation returns true if err is or wraps an *InvalidOperationError.
func IsInvalidOperation(err error) bool {
	var oe *InvalidOperationError
	return errors.As(err, &oe)
}

// IsInvariantViolation returns true if err is or wraps a *StateInvariantViolation.
func IsInvariantViolation(err error) bool {
	var ve *StateInvariantViolation
	return errors.As(err, &ve)
}

// IsDesync reports whether err means the consumer's copy can no longer be
// trusted. The only recovery is to request a fresh snapshot.
func IsDesync(err error) bool {
	return IsPathResolution(err) || IsInvalidOperation(err) || IsInvariantViolation(err)
}
