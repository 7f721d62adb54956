// Package checkpoint provides durable, versioned checkpoint storage used to
// resume, inspect and branch graph executions.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
)

// Store persists checkpoints per execution thread.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put appends a checkpoint to its thread and assigns its Sequence.
	// Returns ErrDuplicate if a checkpoint with the same ID exists.
	Put(ctx context.Context, cp *Checkpoint) error

	// Get retrieves a checkpoint by ID.
	// Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, threadID, id string) (*Checkpoint, error)

	// Latest returns the most recently written checkpoint of a thread.
	// Returns ErrNotFound if the thread has no checkpoints.
	Latest(ctx context.Context, threadID string) (*Checkpoint, error)

	// History returns every checkpoint of a thread, most recent first.
	// Returns an empty slice (not error) if the thread has none.
	History(ctx context.Context, threadID string) ([]*Checkpoint, error)

	// Release drops every checkpoint of a thread.
	// Returns nil if the thread has none.
	Release(ctx context.Context, threadID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates a checkpoint doesn't exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")

	// ErrDuplicate indicates a checkpoint ID was already written.
	ErrDuplicate = errors.New("checkpoint already exists")

	// ErrInvalid indicates a checkpoint is missing its ID or thread.
	ErrInvalid = errors.New("invalid checkpoint")
)

func validate(cp *Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("%w: nil checkpoint", ErrInvalid)
	}
	if cp.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalid)
	}
	if cp.ThreadID == "" {
		return fmt.Errorf("%w: empty thread id", ErrInvalid)
	}
	return nil
}

// Children returns the checkpoints of a thread whose parent is parentID,
// most recent first. An empty parentID selects root checkpoints.
func Children(ctx context.Context, store Store, threadID, parentID string) ([]*Checkpoint, error) {
	history, err := store.History(ctx, threadID)
	if err != nil {
		return nil, err
	}
	var children []*Checkpoint
	for _, cp := range history {
		if cp.ParentID == parentID {
			children = append(children, cp)
		}
	}
	return children, nil
}

// Lineage walks parent links from the checkpoint id back to its root and
// returns the chain starting with id itself.
func Lineage(ctx context.Context, store Store, threadID, id string) ([]*Checkpoint, error) {
	history, err := store.History(ctx, threadID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*Checkpoint, len(history))
	for _, cp := range history {
		byID[cp.ID] = cp
	}

	var chain []*Checkpoint
	seen := make(map[string]bool)
	for cur := id; cur != ""; {
		cp, ok := byID[cur]
		if !ok {
			if len(chain) == 0 {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			break
		}
		if seen[cur] {
			return nil, fmt.Errorf("checkpoint %s: parent cycle", cur)
		}
		seen[cur] = true
		chain = append(chain, cp)
		cur = cp.ParentID
	}
	return chain, nil
}
