package stategraph

import (
	"context"
	"fmt"

	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

// ResumeSubgraphKey is the state key a suspended subgraph node leaves in
// the outer state. Its value is the subgraph node's ID. When the node runs
// again with the flag set, it resumes the inner thread instead of starting
// a new inner run. The flag is deleted once the inner run reaches END.
const ResumeSubgraphKey = "__resume_subgraph__"

// SubgraphThreadID returns the thread an inner graph runs on for the
// subgraph node nodeID of a run on parentThread.
func SubgraphThreadID(parentThread, nodeID string) string {
	return parentThread + "/" + nodeID + "_subgraph"
}

// SubgraphNode wraps a compiled graph as the node nodeID of another graph.
//
// The inner graph runs on its own thread (see SubgraphThreadID) and reads
// the outer state as its arguments. When it reaches END, every inner key is
// copied back to the outer state, overwriting rather than reducing, since
// the inner state already contains what it was given.
//
// When the inner run suspends, the node returns a *SubgraphInterrupt. The
// outer engine records a checkpoint at this node and ends its stream with
// an InterruptSubgraph output. Resuming the outer thread runs this node
// again; the node first copies the outer state into the inner thread (so
// edits made with UpdateState are visible inside) and then resumes it at the
// node its latest checkpoint names. An inner graph that can suspend must
// have a checkpointer; Compile rejects one that does not.
//
// Subgraphs nest: a signal from a deeper level is re-raised with this
// node's ID prepended to its Path.
func SubgraphNode(nodeID string, inner *CompiledGraph) NodeFunc {
	return func(ctx Context, s state.State) (Command, error) {
		parent := ctx.RunConfig()
		innerCfg := RunConfig{
			ThreadID:   SubgraphThreadID(ctx.ThreadID(), nodeID),
			StreamMode: StreamValues,
			Parent:     &parent,
			NodePath:   append(append([]string(nil), parent.NodePath...), nodeID),
		}

		input := Args(outerArgs(s))
		if flag, _ := state.Value[string](s, ResumeSubgraphKey); flag == nodeID && inner.Checkpointer() != nil {
			cfg, err := inner.patchState(ctx, innerCfg, outerPatch(s))
			if err != nil {
				return Command{}, fmt.Errorf("subgraph %s: resume: %w", nodeID, err)
			}
			innerCfg = cfg
			input = Resume()
		}

		ctx.Logger().Debug("running subgraph",
			"subgraph_thread", innerCfg.ThreadID,
			"resumed", input.IsResume())

		outs, err := inner.Stream(ctx, input, innerCfg, inheritedRunOptions(ctx)...).Collect()
		if err != nil {
			return Command{}, err
		}
		if len(outs) == 0 {
			return Command{}, fmt.Errorf("subgraph %s produced no output", nodeID)
		}

		last := outs[len(outs)-1]
		if last.Kind == OutputInterrupt {
			sig := &SubgraphInterrupt{
				Path:            []string{nodeID},
				NodeID:          nodeID,
				InterruptedNode: last.Node,
				Reason:          last.Reason,
				State:           last.State.With(ResumeSubgraphKey, nodeID),
			}
			if nested := last.Subgraph; nested != nil {
				sig.Path = append(sig.Path, nested.Path...)
				sig.InterruptedNode = nested.InterruptedNode
				sig.Reason = nested.Reason
			}
			return Command{}, sig
		}

		u := state.NewUpdate()
		for _, k := range last.State.Keys() {
			v, _ := last.State.Get(k)
			u = u.Overwrite(k, v)
		}
		return Continue(u.Delete(ResumeSubgraphKey)), nil
	}
}

// outerArgs turns the outer state into inner arguments, leaving out the
// outer resume flag.
func outerArgs(s state.State) state.Update {
	u := state.NewUpdate()
	for _, k := range s.Keys() {
		if k == ResumeSubgraphKey {
			continue
		}
		v, _ := s.Get(k)
		u = u.Set(k, v)
	}
	return u
}

// outerPatch copies the outer state over the inner one without reducing.
func outerPatch(s state.State) state.Update {
	u := state.NewUpdate()
	for _, k := range s.Keys() {
		if k == ResumeSubgraphKey {
			continue
		}
		v, _ := s.Get(k)
		u = u.Overwrite(k, v)
	}
	return u
}

// inheritedRunOptions passes the outer run's options to the inner run.
func inheritedRunOptions(ctx Context) []RunOption {
	if ec, ok := ctx.(*executionContext); ok {
		return ec.runOpts
	}
	return nil
}

// releaseThread deletes the checkpoints of threadID and of the threads its
// subgraph nodes ran on, each in its own graph's store.
func (cg *CompiledGraph) releaseThread(ctx context.Context, threadID string) error {
	if store := cg.config.checkpointer; store != nil {
		if err := store.Release(ctx, threadID); err != nil {
			return err
		}
	}
	for _, id := range sortedKeys(cg.subgraphs) {
		if err := cg.subgraphs[id].releaseThread(ctx, SubgraphThreadID(threadID, id)); err != nil {
			return err
		}
	}
	return nil
}
