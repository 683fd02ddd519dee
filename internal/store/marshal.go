package store

import (
	"fmt"

	"github.com/roach88/reentry/internal/ir"
)

// marshalParams converts event parameters to JSON TEXT for storage.
// Empty parameters store as null so positions survive a round trip.
func marshalParams(params []ir.Value) (string, error) {
	data, err := ir.MarshalParams(params)
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	return string(data), nil
}

// marshalReturn converts a routine return value to JSON TEXT.
func marshalReturn(v ir.Value) (string, error) {
	data, err := ir.MarshalValue(v)
	if err != nil {
		return "", fmt.Errorf("marshal return: %w", err)
	}
	return string(data), nil
}

func unmarshalParams(data string) ([]ir.Value, error) {
	if data == "" || data == "[]" {
		return []ir.Value{}, nil
	}
	params, err := ir.UnmarshalParams([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	return params, nil
}

func unmarshalReturn(data string) (ir.Value, error) {
	if data == "" {
		return ir.Empty{}, nil
	}
	v, err := ir.UnmarshalValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal return: %w", err)
	}
	return v, nil
}
