package checkpoint

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory checkpoint store for testing and
// short-lived processes. Data is lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*memoryThread
	closed  bool
}

// memoryThread is the arena for one thread: checkpoints keyed by ID plus
// their write order.
type memoryThread struct {
	byID  map[string]*Checkpoint
	order []string
	seq   int
}

// NewMemoryStore creates a new in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads: make(map[string]*memoryThread),
	}
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, cp *Checkpoint) error {
	if err := validate(cp); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	thread := m.threads[cp.ThreadID]
	if thread == nil {
		thread = &memoryThread{byID: make(map[string]*Checkpoint)}
		m.threads[cp.ThreadID] = thread
	}
	if _, exists := thread.byID[cp.ID]; exists {
		return ErrDuplicate
	}

	thread.seq++
	cp.Sequence = thread.seq

	// Store a copy so later changes to the caller's value are not visible.
	thread.byID[cp.ID] = cp.Clone()
	thread.order = append(thread.order, cp.ID)
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, threadID, id string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	thread, ok := m.threads[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	cp, ok := thread.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cp.Clone(), nil
}

// Latest implements Store.
func (m *MemoryStore) Latest(_ context.Context, threadID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	thread, ok := m.threads[threadID]
	if !ok || len(thread.order) == 0 {
		return nil, ErrNotFound
	}
	return thread.byID[thread.order[len(thread.order)-1]].Clone(), nil
}

// History implements Store.
func (m *MemoryStore) History(_ context.Context, threadID string) ([]*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	thread, ok := m.threads[threadID]
	if !ok {
		return []*Checkpoint{}, nil
	}

	history := make([]*Checkpoint, 0, len(thread.order))
	for i := len(thread.order) - 1; i >= 0; i-- {
		history = append(history, thread.byID[thread.order[i]].Clone())
	}
	return history, nil
}

// Release implements Store.
func (m *MemoryStore) Release(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.threads, threadID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.threads = nil
	return nil
}

// Len returns the total number of checkpoints across all threads.
// Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, thread := range m.threads {
		count += len(thread.order)
	}
	return count
}
