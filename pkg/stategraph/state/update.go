package state

import "sort"

// Op identifies how an Operation changes a key.
type Op int

const (
	// OpSet merges the value into the key through the key's reducer.
	OpSet Op = iota
	// OpDelete removes the key, whatever its reducer.
	OpDelete
	// OpOverwrite stores the value as is, bypassing the reducer.
	OpOverwrite
)

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpSet:
		return "set"
	case OpDelete:
		return "delete"
	case OpOverwrite:
		return "overwrite"
	default:
		return "unknown"
	}
}

// Operation is a single keyed change.
type Operation struct {
	Key   string
	Op    Op
	Value any
}

// Update is an ordered list of operations produced by a step.
//
// Update values are immutable: builder methods return a new Update.
// The zero Update is empty.
//
//	u := state.NewUpdate().
//	    Set("messages", "hello").
//	    Delete("scratch")
type Update struct {
	ops []Operation
}

// NewUpdate returns an empty Update.
func NewUpdate() Update {
	return Update{}
}

// Updates builds an Update that sets every key of m, in sorted key order.
func Updates(m map[string]any) Update {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ops := make([]Operation, 0, len(keys))
	for _, k := range keys {
		ops = append(ops, Operation{Key: k, Op: OpSet, Value: m[k]})
	}
	return Update{ops: ops}
}

// Set appends a reducer-merged assignment.
func (u Update) Set(key string, value any) Update {
	return u.with(Operation{Key: key, Op: OpSet, Value: value})
}

// Delete appends a removal.
func (u Update) Delete(key string) Update {
	return u.with(Operation{Key: key, Op: OpDelete})
}

// Overwrite appends an assignment that skips the reducer.
func (u Update) Overwrite(key string, value any) Update {
	return u.with(Operation{Key: key, Op: OpOverwrite, Value: value})
}

// Merge returns u followed by every operation of other.
func (u Update) Merge(other Update) Update {
	if len(other.ops) == 0 {
		return u
	}
	ops := make([]Operation, 0, len(u.ops)+len(other.ops))
	ops = append(ops, u.ops...)
	ops = append(ops, other.ops...)
	return Update{ops: ops}
}

// Operations returns a copy of the operations in order.
func (u Update) Operations() []Operation {
	ops := make([]Operation, len(u.ops))
	copy(ops, u.ops)
	return ops
}

// Len returns the number of operations.
func (u Update) Len() int {
	return len(u.ops)
}

// IsEmpty reports whether the update has no operations.
func (u Update) IsEmpty() bool {
	return len(u.ops) == 0
}

// Keys returns the distinct keys touched by the update, in first-touch order.
func (u Update) Keys() []string {
	seen := make(map[string]bool, len(u.ops))
	keys := make([]string, 0, len(u.ops))
	for _, op := range u.ops {
		if seen[op.Key] {
			continue
		}
		seen[op.Key] = true
		keys = append(keys, op.Key)
	}
	return keys
}

func (u Update) with(op Operation) Update {
	ops := make([]Operation, len(u.ops), len(u.ops)+1)
	copy(ops, u.ops)
	return Update{ops: append(ops, op)}
}
