// Package state provides the data model that flows between graph steps:
// an ordered, immutable State value, Update operations that describe how a
// step changes it, and a Schema of per-key channels that merge updates.
package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// State is an ordered mapping from keys to values.
//
// State is an immutable value: every method that changes content returns a
// new State and leaves the receiver untouched. Keys keep the order in which
// they were first inserted. A missing key is distinct from a key holding nil.
//
// The zero State is empty and ready to use.
type State struct {
	keys   []string
	values map[string]any
}

// New returns an empty State.
func New() State {
	return State{}
}

// FromMap builds a State from a map. Keys are inserted in sorted order so
// the result is deterministic.
func FromMap(m map[string]any) State {
	if len(m) == 0 {
		return State{}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make(map[string]any, len(m))
	for k, v := range m {
		values[k] = v
	}
	return State{keys: keys, values: values}
}

// Get returns the value stored under key and whether the key is present.
func (s State) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Has reports whether key is present.
func (s State) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Len returns the number of keys.
func (s State) Len() int {
	return len(s.keys)
}

// Keys returns the keys in insertion order.
func (s State) Keys() []string {
	keys := make([]string, len(s.keys))
	copy(keys, s.keys)
	return keys
}

// Map returns a shallow copy of the content as a plain map.
func (s State) Map() map[string]any {
	m := make(map[string]any, len(s.values))
	for k, v := range s.values {
		m[k] = v
	}
	return m
}

// With returns a copy of s with key set to value.
func (s State) With(key string, value any) State {
	out := s.clone(1)
	out.set(key, value)
	return out
}

// Without returns a copy of s with key removed.
func (s State) Without(key string) State {
	if !s.Has(key) {
		return s
	}
	out := s.clone(0)
	out.remove(key)
	return out
}

// Select returns the subset of s holding the given keys, in s's order.
// Keys that are absent are skipped.
func (s State) Select(keys ...string) State {
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	var out State
	for _, k := range s.keys {
		if want[k] {
			out.set(k, s.values[k])
		}
	}
	return out
}

// String renders the state as JSON for logs and test failures.
func (s State) String() string {
	data, err := s.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("state(%d keys)", s.Len())
	}
	return string(data)
}

// Value returns the value under key converted to T.
// The second result is false when the key is missing or holds another type.
func Value[T any](s State, key string) (T, bool) {
	var zero T
	v, ok := s.values[key]
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// ValueOr returns the value under key converted to T, or def.
func ValueOr[T any](s State, key string, def T) T {
	if v, ok := Value[T](s, key); ok {
		return v
	}
	return def
}

// clone copies s into a fresh State with room for extra keys.
func (s State) clone(extra int) State {
	keys := make([]string, len(s.keys), len(s.keys)+extra)
	copy(keys, s.keys)
	values := make(map[string]any, len(s.values)+extra)
	for k, v := range s.values {
		values[k] = v
	}
	return State{keys: keys, values: values}
}

// set mutates s in place. Only used on freshly cloned values.
func (s *State) set(key string, value any) {
	if s.values == nil {
		s.values = make(map[string]any)
	}
	if _, exists := s.values[key]; !exists {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// remove mutates s in place. Only used on freshly cloned values.
func (s *State) remove(key string) {
	if _, exists := s.values[key]; !exists {
		return
	}
	delete(s.values, key)
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
}

// MarshalJSON encodes the state as a JSON object, keys in insertion order.
func (s State) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(s.values[k])
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, preserving key order.
func (s *State) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*s = State{}
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("state: expected JSON object, got %v", tok)
	}

	out := State{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("state: expected string key, got %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decode key %q: %w", key, err)
		}
		out.set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*s = out
	return nil
}
