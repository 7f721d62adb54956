package state

import (
	"reflect"
	"sort"
)

// Reducer combines the current value of a key with an incoming value.
// existing is nil when the key is absent and the channel has no default.
// Reducers must not mutate their arguments.
type Reducer func(existing, update any) any

// Channel describes how one key accumulates updates.
type Channel struct {
	// Reducer merges updates. Nil means Replace.
	Reducer Reducer
	// Default seeds the prior value when the key is absent. Optional.
	Default func() any
}

// ReplaceChannel returns a channel whose updates overwrite the prior value.
func ReplaceChannel() Channel {
	return Channel{Reducer: Replace}
}

// AppendChannel returns a channel that accumulates a sequence.
// The key starts as an empty []any.
func AppendChannel() Channel {
	return Channel{
		Reducer: Append,
		Default: func() any { return []any{} },
	}
}

// Replace keeps the update and discards the existing value.
func Replace(_, update any) any {
	return update
}

// Append concatenates sequences. A non-slice update is appended as a
// single element. Slices of the same type keep their type; mixed types
// fall back to []any.
func Append(existing, update any) any {
	if existing == nil {
		if isSlice(update) {
			return copySlice(reflect.ValueOf(update))
		}
		return []any{update}
	}

	ev := reflect.ValueOf(existing)
	if !isSlice(existing) {
		return append([]any{existing}, toAnySlice(update)...)
	}

	if isSlice(update) {
		uv := reflect.ValueOf(update)
		if uv.Type() == ev.Type() {
			out := reflect.MakeSlice(ev.Type(), 0, ev.Len()+uv.Len())
			out = reflect.AppendSlice(out, ev)
			out = reflect.AppendSlice(out, uv)
			return out.Interface()
		}
	} else if update != nil && reflect.TypeOf(update).AssignableTo(ev.Type().Elem()) {
		out := reflect.MakeSlice(ev.Type(), 0, ev.Len()+1)
		out = reflect.AppendSlice(out, ev)
		out = reflect.Append(out, reflect.ValueOf(update))
		return out.Interface()
	}

	return append(toAnySlice(existing), toAnySlice(update)...)
}

func isSlice(v any) bool {
	if v == nil {
		return false
	}
	return reflect.TypeOf(v).Kind() == reflect.Slice
}

func copySlice(v reflect.Value) any {
	out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
	reflect.Copy(out, v)
	return out.Interface()
}

func toAnySlice(v any) []any {
	if !isSlice(v) {
		return []any{v}
	}
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// Schema maps state keys to channels. Keys without a channel use Replace.
//
// A nil *Schema is valid and treats every key as a Replace channel.
type Schema struct {
	channels map[string]Channel
}

// NewSchema returns an empty schema.
func NewSchema() *Schema {
	return &Schema{channels: make(map[string]Channel)}
}

// AddChannel registers the channel for key and returns the schema for chaining.
// Registering a key twice replaces the earlier channel.
func (s *Schema) AddChannel(key string, ch Channel) *Schema {
	if s.channels == nil {
		s.channels = make(map[string]Channel)
	}
	s.channels[key] = ch
	return s
}

// Channel returns the channel registered for key.
func (s *Schema) Channel(key string) (Channel, bool) {
	if s == nil {
		return Channel{}, false
	}
	ch, ok := s.channels[key]
	return ch, ok
}

// Keys returns the keys that have a channel, sorted.
func (s *Schema) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.channels))
	for k := range s.channels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy. Compiled graphs hold a clone so later
// changes to the builder's schema do not leak into them.
func (s *Schema) Clone() *Schema {
	out := NewSchema()
	if s == nil {
		return out
	}
	for k, ch := range s.channels {
		out.channels[k] = ch
	}
	return out
}

// Apply merges u into current and returns the new state. current is not
// modified. Operations are applied in order.
func (s *Schema) Apply(current State, u Update) State {
	if u.IsEmpty() {
		return current
	}
	out := current.clone(u.Len())
	for _, op := range u.ops {
		switch op.Op {
		case OpDelete:
			out.remove(op.Key)
		case OpOverwrite:
			out.set(op.Key, op.Value)
		default:
			out.set(op.Key, s.reduce(out, op.Key, op.Value))
		}
	}
	return out
}

func (s *Schema) reduce(current State, key string, value any) any {
	ch, ok := s.Channel(key)
	if !ok {
		return value
	}
	existing, present := current.Get(key)
	if !present && ch.Default != nil {
		existing = ch.Default()
	}
	reducer := ch.Reducer
	if reducer == nil {
		reducer = Replace
	}
	return reducer(existing, value)
}
