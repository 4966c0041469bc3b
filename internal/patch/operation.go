package patch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/wfsync/internal/ir"
)

// Op names a patch operation kind.
type Op string

const (
	// OpReplace overwrites an existing scalar field. The only op this applier accepts.
	OpReplace Op = "replace"

	// OpAdd and OpRemove are reserved for structural changes (task insertion
	// or removal) in a future protocol version; they are rejected today.
	OpAdd    Op = "add"
	OpRemove Op = "remove"
)

// Operation is a single field-level mutation.
type Operation struct {
	Op    Op       `json:"op"`
	Path  string   `json:"path"`
	Value ir.Value `json:"value,omitempty"`
}

// Replace builds a replace operation.
func Replace(path string, value ir.Value) Operation {
	return Operation{Op: OpReplace, Path: path, Value: value}
}

// MarshalJSON writes the wire form. A nil Value omits the "value" key.
func (o Operation) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"op":`)
	opBytes, err := json.Marshal(string(o.Op))
	if err != nil {
		return nil, err
	}
	buf.Write(opBytes)
	buf.WriteString(`,"path":`)
	pathBytes, err := json.Marshal(o.Path)
	if err != nil {
		return nil, err
	}
	buf.Write(pathBytes)
	if o.Value != nil {
		valBytes, err := ir.MarshalValue(o.Value)
		if err != nil {
			return nil, fmt.Errorf("operation %s: %w", o.Path, err)
		}
		buf.WriteString(`,"value":`)
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the wire form. The value is decoded into the ir value
// set, so floats are rejected here rather than silently truncated later.
// An absent "value" leaves Value nil; an explicit null becomes ir.Null.
func (o *Operation) UnmarshalJSON(data []byte) error {
	var raw struct {
		Op    string          `json:"op"`
		Path  string          `json:"path"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	o.Op = Op(raw.Op)
	o.Path = raw.Path
	o.Value = nil
	if raw.Value != nil {
		v, err := ir.UnmarshalValue(raw.Value)
		if err != nil {
			return fmt.Errorf("operation %s: value: %w", raw.Path, err)
		}
		o.Value = v
	}
	return nil
}

// StateUpdate is the wire unit of synchronization: an ordered batch of
// operations plus metadata. Timestamp and Description are for logs and
// display only; the applier never consults them.
type StateUpdate struct {
	Timestamp   time.Time   `json:"timestamp"`
	Operations  []Operation `json:"operations"`
	Description string      `json:"description"`
}

// Clone returns a copy whose Operations slice is not shared with u.
// ir values are immutable scalars, so a shallow copy of each op suffices.
func (u StateUpdate) Clone() StateUpdate {
	out := u
	out.Operations = append([]Operation(nil), u.Operations...)
	return out
}

// Object converts the update to its ir form, used for content addressing.
func (u StateUpdate) Object() ir.Object {
	ops := make(ir.Array, len(u.Operations))
	for i, op := range u.Operations {
		obj := ir.Object{
			"op":   ir.String(op.Op),
			"path": ir.String(op.Path),
		}
		if op.Value != nil {
			obj["value"] = op.Value
		}
		ops[i] = obj
	}
	return ir.Object{
		"timestamp":   ir.String(u.Timestamp.Format(time.RFC3339Nano)),
		"operations":  ops,
		"description": ir.String(u.Description),
	}
}

// MarshalUpdate serializes an update in wire form.
func MarshalUpdate(u StateUpdate) ([]byte, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("marshal update: %w", err)
	}
	return data, nil
}

// UnmarshalUpdate parses an update in wire form.
func UnmarshalUpdate(data []byte) (StateUpdate, error) {
	var u StateUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		return StateUpdate{}, fmt.Errorf("unmarshal update: %w", err)
	}
	return u, nil
}
