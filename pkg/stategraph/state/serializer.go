package state

import (
	"encoding/json"
	"fmt"
)

// Serializer converts states to bytes and back. Checkpoint stores that
// persist outside the process use one.
type Serializer interface {
	Marshal(s State) ([]byte, error)
	Unmarshal(data []byte) (State, error)
}

// JSONSerializer encodes states as JSON objects in key order.
//
// Values decode to the generic JSON types (float64, string, bool,
// []any, map[string]any), so typed values do not survive a round trip.
type JSONSerializer struct{}

// Marshal implements Serializer.
func (JSONSerializer) Marshal(s State) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return data, nil
}

// Unmarshal implements Serializer.
func (JSONSerializer) Unmarshal(data []byte) (State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("unmarshal state: %w", err)
	}
	return s, nil
}
