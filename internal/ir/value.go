package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Value is a sealed interface representing a script value.
// Only Empty, String, Int and Bool implement it.
//
// Host events carry at most two Values and routine variables hold exactly one.
type Value interface {
	scriptValue() // Sealed - only these types implement it
}

// Empty is the value of a variable that was never assigned.
type Empty struct{}

func (Empty) scriptValue() {}

// String is a text value.
type String string

func (String) scriptValue() {}

// Int is an integer value. Always int64.
type Int int64

func (Int) scriptValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) scriptValue() {}

// Text renders a value the way a script sees it in string context.
// Empty renders as "", booleans as "1"/"0".
func Text(v Value) string {
	switch val := v.(type) {
	case nil, Empty:
		return ""
	case String:
		return string(val)
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Bool:
		if val {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// AsInt converts a value to an integer in numeric context.
// Empty is 0; strings must parse as base-10 integers after trimming.
func AsInt(v Value) (int64, bool) {
	switch val := v.(type) {
	case nil, Empty:
		return 0, true
	case Int:
		return int64(val), true
	case Bool:
		if val {
			return 1, true
		}
		return 0, true
	case String:
		s := strings.TrimSpace(string(val))
		if s == "" {
			return 0, true
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Size returns the number of bytes needed to hold v in a variable slot.
// Slot capacity never shrinks below the size of the value it holds.
func Size(v Value) int {
	return len(Text(v))
}

// IsEmpty reports whether v is the empty value.
func IsEmpty(v Value) bool {
	switch v.(type) {
	case nil, Empty:
		return true
	default:
		return false
	}
}

// Equal reports whether two values are identical in type and content.
// A nil Value is treated as Empty.
func Equal(a, b Value) bool {
	if IsEmpty(a) || IsEmpty(b) {
		return IsEmpty(a) && IsEmpty(b)
	}
	return a == b
}

// FromAny converts a decoded YAML/JSON scalar into a Value.
// Floats are accepted only when they hold an exact integer.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Empty{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		return Int(int64(val)), nil
	case float64:
		if val != float64(int64(val)) {
			return nil, fmt.Errorf("floats are not script values: %v", val)
		}
		return Int(int64(val)), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats are not script values: %s", val)
		}
		return Int(n), nil
	default:
		return nil, fmt.Errorf("unsupported script value type: %T", v)
	}
}

// ToAny converts a Value to a plain Go value for YAML/JSON encoding.
func ToAny(v Value) any {
	switch val := v.(type) {
	case nil, Empty:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Bool:
		return bool(val)
	default:
		return nil
	}
}

// MarshalValue marshals a Value to JSON bytes.
// Empty marshals as null.
// NOTE: This is NOT canonical marshaling. Use MarshalCanonical for hashing.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Empty:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Bool:
		return json.Marshal(bool(val))
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}

// UnmarshalValue decodes JSON into a Value.
// Rejects floats, arrays and objects: script values are scalars.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	switch raw.(type) {
	case []any, map[string]any:
		return nil, fmt.Errorf("composite JSON is not a script value: %s", string(data))
	}
	return FromAny(raw)
}

// MarshalParams marshals event parameters as a JSON array.
func MarshalParams(params []Value) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, p := range params {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := MarshalValue(p)
		if err != nil {
			return nil, fmt.Errorf("params[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalParams decodes a JSON array of scalars into event parameters.
func UnmarshalParams(data []byte) ([]Value, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	params := make([]Value, len(raw))
	for i, r := range raw {
		v, err := UnmarshalValue(r)
		if err != nil {
			return nil, fmt.Errorf("params[%d]: %w", i, err)
		}
		params[i] = v
	}
	return params, nil
}
