package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface over the values a patch operation may carry.
// Only Null, String, Int, Bool, Array, and Object implement it.
// There is no float variant; the wire format is integer-only.
type Value interface {
	irValue()
}

// Null represents a JSON null. Replacing an optional field with Null clears it.
type Null struct{}

func (Null) irValue() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a string value.
type String string

func (String) irValue() {}

// Int represents an integer value. Always int64, never float64.
type Int int64

func (Int) irValue() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) irValue() {}

// Array represents an ordered list of values.
type Array []Value

func (Array) irValue() {}

// Object is a map of field names to values. Iterate with SortedKeys when
// order matters.
type Object map[string]Value

func (Object) irValue() {}

// KindOf returns a short name for the dynamic type of v, for error messages.
func KindOf(v Value) string {
	switch v.(type) {
	case nil:
		return "missing"
	case Null:
		return "null"
	case String:
		return "string"
	case Int:
		return "int"
	case Bool:
		return "bool"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Equal reports whether two values are structurally identical.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case Null:
		_, ok := b.(Null)
		return ok
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, present := bv[k]
			if !present || !Equal(v, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// SortedKeys returns the keys ordered by UTF-16 code units as RFC 8785
// requires. Plain string order compares UTF-8 bytes and disagrees for
// characters outside the BMP.
func (obj Object) SortedKeys() []string {
	return slices.SortedFunc(maps.Keys(obj), func(a, b string) int {
		return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
	})
}

// MarshalJSON writes obj with keys in SortedKeys order. It is stable but not
// canonical; digests use MarshalCanonical.
func (obj Object) MarshalJSON() ([]byte, error) {
	return appendJSON(nil, obj)
}

// UnmarshalJSON implements json.Unmarshaler for Object.
func (obj *Object) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalValue(data)
	if err != nil {
		return err
	}
	o, ok := v.(Object)
	if !ok {
		return fmt.Errorf("expected object, got %s", KindOf(v))
	}
	*obj = o
	return nil
}

// MarshalValue encodes v as compact JSON.
func MarshalValue(v Value) ([]byte, error) {
	return appendJSON(nil, v)
}

func appendJSON(dst []byte, v Value) ([]byte, error) {
	switch val := v.(type) {
	case Null:
		return append(dst, "null"...), nil
	case String:
		b, err := json.Marshal(string(val))
		return append(dst, b...), err
	case Int:
		return strconv.AppendInt(dst, int64(val), 10), nil
	case Bool:
		return strconv.AppendBool(dst, bool(val)), nil
	case Array:
		dst = append(dst, '[')
		for i, elem := range val {
			if i > 0 {
				dst = append(dst, ',')
			}
			var err error
			if dst, err = appendJSON(dst, elem); err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		return append(dst, ']'), nil
	case Object:
		dst = append(dst, '{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				dst = append(dst, ',')
			}
			var err error
			if dst, err = appendJSON(dst, String(k)); err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			dst = append(dst, ':')
			if dst, err = appendJSON(dst, val[k]); err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
		}
		return append(dst, '}'), nil
	default:
		return nil, fmt.Errorf("unknown ir.Value type: %T", v)
	}
}

// UnmarshalValue decodes exactly one JSON document into a Value, streaming
// tokens so that floats and duplicate object keys are caught where they
// occur. JSON null decodes to Null.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected trailing data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return parseInt(t)
	case json.Delim:
		if t == '[' {
			return decodeArray(dec)
		}
		if t == '{' {
			return decodeObject(dec)
		}
	}
	return nil, fmt.Errorf("unexpected JSON token %v", tok)
}

func decodeArray(dec *json.Decoder) (Value, error) {
	arr := Array{}
	for dec.More() {
		elem, err := decodeValue(dec)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", len(arr), err)
		}
		arr = append(arr, elem)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return arr, nil
}

func decodeObject(dec *json.Decoder) (Value, error) {
	obj := Object{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		// Inside an object the decoder only yields string keys here.
		k := tok.(string)
		if _, dup := obj[k]; dup {
			return nil, fmt.Errorf("duplicate key %q", k)
		}
		elem, err := decodeValue(dec)
		if err != nil {
			return nil, fmt.Errorf("object[%q]: %w", k, err)
		}
		obj[k] = elem
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}

func parseInt(n json.Number) (Value, error) {
	s := n.String()
	if strings.ContainsAny(s, ".eE") {
		return nil, fmt.Errorf("floats are not allowed: %s", s)
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("number out of int64 range: %s", s)
	}
	return Int(i), nil
}
