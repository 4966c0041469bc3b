package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/wfsync/internal/ir"
)

// TimeFormat is the wire form of every timestamp in snapshots and patches.
const TimeFormat = time.RFC3339Nano

// FormatTime renders t in wire form.
func FormatTime(t time.Time) string {
	return t.Format(TimeFormat)
}

// localTimeFormat is ISO-8601 without a zone offset, as Python's
// datetime.isoformat() writes naive times. Fractional seconds are accepted
// when parsing even though the layout omits them.
const localTimeFormat = "2006-01-02T15:04:05"

// ParseTime parses a wire timestamp. Timestamps without a zone offset are
// read as UTC. FormatTime always writes the offset.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeFormat, s)
	if err == nil {
		return t, nil
	}
	if local, lerr := time.ParseInLocation(localTimeFormat, s, time.UTC); lerr == nil {
		return local, nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
}

// Object converts the state to its ir form, using the same field names as
// the JSON snapshot and patch paths. Unset optional fields become ir.Null.
func (ws WorkflowState) Object() ir.Object {
	tasks := make(ir.Array, len(ws.Tasks))
	for i, t := range ws.Tasks {
		tasks[i] = t.Object()
	}
	return ir.Object{
		"workflow_id":        ir.String(ws.WorkflowID),
		"title":              ir.String(ws.Title),
		"tasks":              tasks,
		"overall_progress":   ir.Int(ws.OverallProgress),
		"current_task_index": ir.Int(ws.CurrentTaskIndex),
		"started_at":         timeValue(ws.StartedAt),
		"completed_at":       timeValue(ws.CompletedAt),
	}
}

// Object converts the task to its ir form.
func (t TaskItem) Object() ir.Object {
	return ir.Object{
		"id":           ir.String(t.ID),
		"title":        ir.String(t.Title),
		"status":       ir.String(t.Status),
		"progress":     ir.Int(t.Progress),
		"result":       stringValue(t.Result),
		"started_at":   timeValue(t.StartedAt),
		"completed_at": timeValue(t.CompletedAt),
	}
}

func timeValue(t *time.Time) ir.Value {
	if t == nil {
		return ir.Null{}
	}
	return ir.String(FormatTime(*t))
}

func stringValue(s *string) ir.Value {
	if s == nil {
		return ir.Null{}
	}
	return ir.String(*s)
}

// Canonical returns the RFC 8785 canonical JSON of the state.
func (ws WorkflowState) Canonical() []byte {
	return ir.MustMarshalCanonical(ws.Object())
}

// Digest fingerprints the state. Producer and consumer copies have converged
// exactly when their digests match.
func (ws WorkflowState) Digest() string {
	return ir.MustSnapshotDigest(ws.Object())
}

// Equal reports whether two states are identical modulo formatting.
func Equal(a, b WorkflowState) bool {
	return bytes.Equal(a.Canonical(), b.Canonical())
}

// MarshalSnapshot serializes the full state for transmission at subscribe time.
func MarshalSnapshot(ws WorkflowState) ([]byte, error) {
	data, err := json.Marshal(ws)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// wireTime decodes a JSON timestamp string with ParseTime.
type wireTime time.Time

func (w *wireTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	t, err := ParseTime(s)
	if err != nil {
		return err
	}
	*w = wireTime(t)
	return nil
}

// decodeStrict is json.Unmarshal with unknown fields rejected. Custom
// UnmarshalJSON methods do not inherit the outer decoder's setting.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// UnmarshalJSON decodes a task, accepting timestamps in any form ParseTime does.
func (t *TaskItem) UnmarshalJSON(data []byte) error {
	type plain TaskItem
	aux := struct {
		*plain
		StartedAt   *wireTime `json:"started_at"`
		CompletedAt *wireTime `json:"completed_at"`
	}{plain: (*plain)(t)}
	if err := decodeStrict(data, &aux); err != nil {
		return err
	}
	t.StartedAt = (*time.Time)(aux.StartedAt)
	t.CompletedAt = (*time.Time)(aux.CompletedAt)
	return nil
}

// UnmarshalJSON decodes a workflow state, accepting timestamps in any form
// ParseTime does.
func (ws *WorkflowState) UnmarshalJSON(data []byte) error {
	type plain WorkflowState
	aux := struct {
		*plain
		StartedAt   *wireTime `json:"started_at"`
		CompletedAt *wireTime `json:"completed_at"`
	}{plain: (*plain)(ws)}
	if err := decodeStrict(data, &aux); err != nil {
		return err
	}
	ws.StartedAt = (*time.Time)(aux.StartedAt)
	ws.CompletedAt = (*time.Time)(aux.CompletedAt)
	return nil
}

// UnmarshalSnapshot parses and validates a full state snapshot.
// Unknown fields are rejected so that a producer speaking a newer protocol
// forces a visible failure instead of silently dropping state.
func UnmarshalSnapshot(data []byte) (WorkflowState, error) {
	var ws WorkflowState
	if err := decodeStrict(data, &ws); err != nil {
		return WorkflowState{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if err := ws.Validate(); err != nil {
		return WorkflowState{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return ws, nil
}
