package checkpoint

import (
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

// Version is the current checkpoint format version.
// Increment when making breaking changes to checkpoint structure.
const Version = 1

// Checkpoint is a persisted snapshot of a thread after one step.
// It contains all information needed to resume execution.
//
// Checkpoints are append-only. A checkpoint may name any earlier checkpoint
// of its thread as parent, so a thread's checkpoints form a tree: following
// ParentID from the newest checkpoint walks the active branch, and writing a
// child of an older checkpoint starts a new branch.
type Checkpoint struct {
	// Metadata
	Version   int
	ID        string
	ThreadID  string
	ParentID  string
	Sequence  int
	Timestamp time.Time

	// Execution state
	State       state.State
	CreatedNode string
	NextNode    string
}

// New creates a checkpoint with a fresh ID. Sequence is assigned by the
// store on Put.
func New(threadID string, s state.State, createdNode, nextNode string) *Checkpoint {
	return &Checkpoint{
		Version:     Version,
		ID:          uuid.NewString(),
		ThreadID:    threadID,
		Timestamp:   time.Now().UTC(),
		State:       s,
		CreatedNode: createdNode,
		NextNode:    nextNode,
	}
}

// WithParent records parentID as the checkpoint this one branches from.
func (c *Checkpoint) WithParent(parentID string) *Checkpoint {
	c.ParentID = parentID
	return c
}

// Clone returns a copy. State is immutable so it is shared.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
