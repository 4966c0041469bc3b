package stream

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/wfsync/internal/patch"
	"github.com/roach88/wfsync/internal/state"
)

// MessageType tags a websocket frame.
type MessageType string

const (
	TypeSnapshot MessageType = "snapshot"
	TypeUpdate   MessageType = "update"
	TypeEnd      MessageType = "end"
)

// Envelope is one websocket frame. A connection carries exactly one
// snapshot, then updates with contiguous Seq, then at most one end.
//
// Seq on a snapshot is the sequence number of the last update already
// folded into it.
type Envelope struct {
	Type       MessageType     `json:"type"`
	WorkflowID string          `json:"workflow_id"`
	Seq        int64           `json:"seq"`
	Snapshot   json.RawMessage `json:"snapshot,omitempty"`
	Update     json.RawMessage `json:"update,omitempty"`
	Digest     string          `json:"digest,omitempty"` // State digest after this frame
	Error      string          `json:"error,omitempty"`  // Set on end when the run failed
}

func snapshotEnvelope(ws state.WorkflowState, seq int64) (Envelope, error) {
	data, err := state.MarshalSnapshot(ws)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode snapshot: %w", err)
	}
	return Envelope{
		Type:       TypeSnapshot,
		WorkflowID: ws.WorkflowID,
		Seq:        seq,
		Snapshot:   data,
		Digest:     ws.Digest(),
	}, nil
}

func updateEnvelope(workflowID string, seq int64, u patch.StateUpdate, digest string) (Envelope, error) {
	data, err := patch.MarshalUpdate(u)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode update %d: %w", seq, err)
	}
	return Envelope{
		Type:       TypeUpdate,
		WorkflowID: workflowID,
		Seq:        seq,
		Update:     data,
		Digest:     digest,
	}, nil
}

func endEnvelope(ws state.WorkflowState, seq int64, runErr error) Envelope {
	env := Envelope{
		Type:       TypeEnd,
		WorkflowID: ws.WorkflowID,
		Seq:        seq,
		Digest:     ws.Digest(),
	}
	if runErr != nil {
		env.Error = runErr.Error()
	}
	return env
}

// DecodeSnapshot extracts the snapshot carried by a snapshot frame.
func (e Envelope) DecodeSnapshot() (state.WorkflowState, error) {
	if e.Type != TypeSnapshot {
		return state.WorkflowState{}, fmt.Errorf("expected %s frame, got %q", TypeSnapshot, e.Type)
	}
	return state.UnmarshalSnapshot(e.Snapshot)
}

// DecodeUpdate extracts the update carried by an update frame.
func (e Envelope) DecodeUpdate() (patch.StateUpdate, error) {
	if e.Type != TypeUpdate {
		return patch.StateUpdate{}, fmt.Errorf("expected %s frame, got %q", TypeUpdate, e.Type)
	}
	return patch.UnmarshalUpdate(e.Update)
}
