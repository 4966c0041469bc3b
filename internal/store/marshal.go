package store

import (
	"fmt"

	"github.com/roach88/wfsync/internal/ir"
	"github.com/roach88/wfsync/internal/patch"
	"github.com/roach88/wfsync/internal/state"
)

// marshalSnapshot converts a state to canonical JSON TEXT for storage.
func marshalSnapshot(ws state.WorkflowState) (string, error) {
	data, err := ir.MarshalCanonical(ws.Object())
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	return string(data), nil
}

// unmarshalSnapshot parses stored snapshot TEXT. The canonical form uses the
// same keys as the JSON snapshot, so the regular decoder applies.
func unmarshalSnapshot(data string) (state.WorkflowState, error) {
	return state.UnmarshalSnapshot([]byte(data))
}

// marshalUpdate converts an update to canonical JSON TEXT for storage.
func marshalUpdate(u patch.StateUpdate) (string, error) {
	data, err := ir.MarshalCanonical(u.Object())
	if err != nil {
		return "", fmt.Errorf("marshal update: %w", err)
	}
	return string(data), nil
}

// unmarshalUpdate parses stored update TEXT.
func unmarshalUpdate(data string) (patch.StateUpdate, error) {
	return patch.UnmarshalUpdate([]byte(data))
}
