// Package patch implements the synchronization wire format and the consumer
// side patch applier.
//
// A StateUpdate is a timestamped, ordered batch of Operations. Each Operation
// addresses one scalar field of a state.WorkflowState through a JSON Pointer
// style path ("/tasks/0/status", "/overall_progress") and carries the new value
// as an ir.Value.
//
// Path resolution is tagged, not reflective: ParsePath yields either a
// RootField or a TaskField, and each known field name maps to a typed setter
// that coerces the untyped wire value (for example the string "in_progress" to
// state.StatusInProgress) before assignment.
//
// Batches are atomic. Apply works on a clone of the input state and returns
// the new state only when every operation resolved, coerced, and respected the
// model invariants. A failed batch leaves the caller's state untouched and
// returns one of *PathResolutionError, *InvalidOperationError, or
// *StateInvariantViolation. Consumers treat all three as loss of
// synchronization and resnapshot (see IsDesync).
//
// Only "replace" is accepted. Replace is idempotent by construction: applying
// the same batch twice yields the same state as applying it once.
package patch
