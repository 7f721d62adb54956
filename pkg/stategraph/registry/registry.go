package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrNotRegistered is returned by Lookup for an unknown name.
	ErrNotRegistered = errors.New("not registered")

	// ErrDuplicate is returned by Register when the name is already taken.
	ErrDuplicate = errors.New("already registered")

	// ErrEmptyName is returned by Register for an empty name.
	ErrEmptyName = errors.New("empty name")
)

// Registry maps names to values of type V.
// The zero value is not usable; call New.
type Registry[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
}

// New creates an empty registry.
func New[V any]() *Registry[V] {
	return &Registry[V]{entries: make(map[string]V)}
}

// Register adds value under name. Names must be non-empty and unique.
func (r *Registry[V]) Register(name string, value V) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%q: %w", name, ErrDuplicate)
	}
	r.entries[name] = value
	return nil
}

// MustRegister is Register for program initialization; it panics on error.
func (r *Registry[V]) MustRegister(name string, value V) *Registry[V] {
	if err := r.Register(name, value); err != nil {
		panic("registry: " + err.Error())
	}
	return r
}

// Replace sets name to value whether or not it was registered.
func (r *Registry[V]) Replace(name string, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = value
}

// Get returns the value for name and whether it exists.
func (r *Registry[V]) Get(name string) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[name]
	return v, ok
}

// Lookup is Get with a descriptive error for missing names.
func (r *Registry[V]) Lookup(name string) (V, error) {
	if v, ok := r.Get(name); ok {
		return v, nil
	}
	var zero V
	known := r.Names()
	if len(known) == 0 {
		return zero, fmt.Errorf("%q: %w (registry is empty)", name, ErrNotRegistered)
	}
	return zero, fmt.Errorf("%q: %w (known: %s)", name, ErrNotRegistered, strings.Join(known, ", "))
}

// Has reports whether name is registered.
func (r *Registry[V]) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Delete removes name. Deleting an unknown name is a no-op.
func (r *Registry[V]) Delete(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// Names returns the registered names in sorted order.
func (r *Registry[V]) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len returns the number of entries.
func (r *Registry[V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Range calls fn for each entry in name order until fn returns false.
// It iterates over a snapshot, so fn may modify the registry.
func (r *Registry[V]) Range(fn func(name string, value V) bool) {
	r.mu.RLock()
	snapshot := make(map[string]V, len(r.entries))
	for k, v := range r.entries {
		snapshot[k] = v
	}
	r.mu.RUnlock()

	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !fn(name, snapshot[name]) {
			return
		}
	}
}

// GetOrCreate returns the value for name, creating it with factory if
// absent. factory runs at most once per name.
func (r *Registry[V]) GetOrCreate(name string, factory func() V) V {
	r.mu.RLock()
	v, ok := r.entries[name]
	r.mu.RUnlock()
	if ok {
		return v
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.entries[name]; ok {
		return v
	}
	v = factory()
	r.entries[name] = v
	return v
}
