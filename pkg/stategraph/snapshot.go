package stategraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/stategraph/pkg/stategraph/checkpoint"
	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

// Snapshot is a read-only view of one checkpoint.
type Snapshot struct {
	// Node is the node whose completion produced the checkpoint (START for
	// the initial one).
	Node string
	// Next is the node a resume from this checkpoint runs first.
	Next string
	// State is the state at the checkpoint.
	State state.State
	// Config resumes from exactly this checkpoint.
	Config RunConfig
	// ParentConfig points at the checkpoint this one branched from. Its
	// CheckpointID is empty for the first checkpoint of a thread.
	ParentConfig RunConfig
	// CreatedAt is when the checkpoint was written.
	CreatedAt time.Time
}

func newSnapshot(cfg RunConfig, cp *checkpoint.Checkpoint) Snapshot {
	parent := cfg.withCheckpoint(cp.ParentID)
	return Snapshot{
		Node:         cp.CreatedNode,
		Next:         cp.NextNode,
		State:        cp.State,
		Config:       cfg.withCheckpoint(cp.ID),
		ParentConfig: parent,
		CreatedAt:    cp.Timestamp,
	}
}

// GetStateHistory returns one snapshot per checkpoint of cfg's thread, most
// recent first. A thread without checkpoints yields an empty slice.
func (cg *CompiledGraph) GetStateHistory(ctx context.Context, cfg RunConfig) ([]Snapshot, error) {
	store := cg.config.checkpointer
	if store == nil {
		return nil, ErrCheckpointerRequired
	}

	cps, err := store.History(ctx, cfg.thread())
	if err != nil {
		return nil, &CheckpointError{NodeID: START, Op: "history", Err: err}
	}

	snaps := make([]Snapshot, 0, len(cps))
	for _, cp := range cps {
		snaps = append(snaps, newSnapshot(cfg, cp))
	}
	return snaps, nil
}

// LastStateOf returns the snapshot at cfg.CheckpointID, or the thread's
// latest one. It returns nil and no error when the thread has no
// checkpoints.
func (cg *CompiledGraph) LastStateOf(ctx context.Context, cfg RunConfig) (*Snapshot, error) {
	cp, err := cg.loadCheckpoint(ctx, cfg)
	if errors.Is(err, ErrNoCheckpoints) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap := newSnapshot(cfg, cp)
	return &snap, nil
}

// UpdateState patches a thread's state by writing a new checkpoint that
// branches from an existing one. The base is the most recent checkpoint
// created by asNode, or when asNode is empty the checkpoint cfg points at
// (its CheckpointID, else the latest).
//
// update is merged with the schema's reducers. The new checkpoint's next
// node is recomputed from the base's node as if it had just completed, so
// a router sees the patched state. The returned config resumes from the new
// checkpoint:
//
//	cfg, err = compiled.UpdateState(ctx, cfg, state.NewUpdate().Set("approved", true), "")
//	out, err := compiled.Invoke(ctx, stategraph.Resume(), cfg)
func (cg *CompiledGraph) UpdateState(ctx context.Context, cfg RunConfig, update state.Update, asNode string) (RunConfig, error) {
	store := cg.config.checkpointer
	if store == nil {
		return cfg, ErrCheckpointerRequired
	}

	var (
		base *checkpoint.Checkpoint
		err  error
	)
	if asNode == "" {
		base, err = cg.loadCheckpoint(ctx, cfg)
	} else {
		base, err = cg.lastCreatedBy(ctx, cfg, asNode)
	}
	if err != nil {
		return cfg, err
	}

	merged := cg.schema.Apply(base.State, update)

	ec := &executionContext{
		Context:      ctx,
		logger:       slog.Default(),
		checkpointer: store,
		runConfig:    cfg,
		attempt:      1,
	}
	next, err := cg.nextNode(ctx, ec, base.CreatedNode, Command{}, merged)
	if err != nil {
		return cfg, err
	}
	return cg.branch(ctx, cfg, base, merged, next)
}

// patchState writes update over the checkpoint cfg points at without
// rerouting: the branch keeps the base's next node, including one chosen
// by a Goto.
func (cg *CompiledGraph) patchState(ctx context.Context, cfg RunConfig, update state.Update) (RunConfig, error) {
	base, err := cg.loadCheckpoint(ctx, cfg)
	if err != nil {
		return cfg, err
	}
	return cg.branch(ctx, cfg, base, cg.schema.Apply(base.State, update), base.NextNode)
}

// branch stores st as a child of base that resumes at next.
func (cg *CompiledGraph) branch(ctx context.Context, cfg RunConfig, base *checkpoint.Checkpoint, st state.State, next string) (RunConfig, error) {
	cp := checkpoint.New(cfg.thread(), st, base.CreatedNode, next).WithParent(base.ID)
	if err := cg.config.checkpointer.Put(ctx, cp); err != nil {
		return cfg, &CheckpointError{NodeID: base.CreatedNode, Op: "save", Err: err}
	}
	return cfg.withCheckpoint(cp.ID), nil
}

// lastCreatedBy finds the most recent checkpoint written after node ran.
func (cg *CompiledGraph) lastCreatedBy(ctx context.Context, cfg RunConfig, node string) (*checkpoint.Checkpoint, error) {
	if node != START && !cg.HasNode(node) {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, node)
	}

	cps, err := cg.config.checkpointer.History(ctx, cfg.thread())
	if err != nil {
		return nil, &CheckpointError{NodeID: node, Op: "history", Err: err}
	}
	for _, cp := range cps {
		if cp.CreatedNode == node {
			return cp, nil
		}
	}
	return nil, fmt.Errorf("%w: none created by node %s on thread %s", ErrNoCheckpoints, node, cfg.thread())
}

// loadCheckpoint returns the checkpoint cfg points at, or the thread's
// latest when CheckpointID is empty.
func (cg *CompiledGraph) loadCheckpoint(ctx context.Context, cfg RunConfig) (*checkpoint.Checkpoint, error) {
	store := cg.config.checkpointer
	if store == nil {
		return nil, ErrCheckpointerRequired
	}

	thread := cfg.thread()
	var (
		cp  *checkpoint.Checkpoint
		err error
	)
	if cfg.CheckpointID != "" {
		cp, err = store.Get(ctx, thread, cfg.CheckpointID)
	} else {
		cp, err = store.Latest(ctx, thread)
	}
	if errors.Is(err, checkpoint.ErrNotFound) {
		if cfg.CheckpointID != "" {
			return nil, fmt.Errorf("%w: %s has no checkpoint %s", ErrNoCheckpoints, thread, cfg.CheckpointID)
		}
		return nil, fmt.Errorf("%w: %s", ErrNoCheckpoints, thread)
	}
	if err != nil {
		return nil, &CheckpointError{NodeID: START, Op: "load", Err: err}
	}

	if cp.Version != checkpoint.Version {
		return nil, fmt.Errorf("%w: got %d, expected %d",
			ErrCheckpointVersionMismatch, cp.Version, checkpoint.Version)
	}
	return cp, nil
}
