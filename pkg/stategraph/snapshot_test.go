package stategraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/stategraph/pkg/stategraph/checkpoint"
	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

// seenNode appends the current value of "k" to "seen".
func seenNode(_ Context, s state.State) (Command, error) {
	return Continue(state.NewUpdate().Set("seen", state.ValueOr(s, "k", ""))), nil
}

func TestSnapshot_RequiresCheckpointer(t *testing.T) {
	compiled := mustCompile(t, linearGraph(nil, "a"))

	_, err := compiled.GetStateHistory(testCtx(), RunConfig{})
	assert.ErrorIs(t, err, ErrCheckpointerRequired)

	_, err = compiled.LastStateOf(testCtx(), RunConfig{})
	assert.ErrorIs(t, err, ErrCheckpointerRequired)

	_, err = compiled.UpdateState(testCtx(), RunConfig{}, state.NewUpdate(), "")
	assert.ErrorIs(t, err, ErrCheckpointerRequired)
}

func TestGetStateHistory(t *testing.T) {
	compiled := mustCompile(t, linearGraph(nil, "a", "b"), WithCheckpointer(newStore(t)))
	cfg := RunConfig{ThreadID: "history"}

	empty, err := compiled.GetStateHistory(testCtx(), cfg)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = compiled.Invoke(testCtx(), ArgsMap(map[string]any{"trace": "in"}), cfg)
	require.NoError(t, err)

	history, err := compiled.GetStateHistory(testCtx(), cfg)
	require.NoError(t, err)
	require.Len(t, history, 3)

	assert.Equal(t, "b", history[0].Node)
	assert.Equal(t, END, history[0].Next)
	assert.Equal(t, []string{"in", "a", "b"}, traceOf(history[0].State))

	assert.Equal(t, "a", history[1].Node)
	assert.Equal(t, "b", history[1].Next)

	assert.Equal(t, START, history[2].Node)
	assert.Equal(t, "a", history[2].Next)
	assert.Equal(t, []string{"in"}, traceOf(history[2].State))
	assert.Empty(t, history[2].ParentConfig.CheckpointID)

	for i, snap := range history {
		assert.Equal(t, "history", snap.Config.ThreadID)
		assert.NotEmpty(t, snap.Config.CheckpointID)
		assert.False(t, snap.CreatedAt.IsZero())
		if i+1 < len(history) {
			assert.Equal(t, history[i+1].Config.CheckpointID, snap.ParentConfig.CheckpointID)
		}
	}
}

func TestLastStateOf(t *testing.T) {
	compiled := mustCompile(t, linearGraph(nil, "a", "b"),
		WithCheckpointer(newStore(t)), WithInterruptAfter("a"))
	cfg := RunConfig{ThreadID: "last"}

	snap, err := compiled.LastStateOf(testCtx(), cfg)
	require.NoError(t, err)
	assert.Nil(t, snap)

	_, err = compiled.Invoke(testCtx(), Args(state.NewUpdate()), cfg)
	require.NoError(t, err)

	snap, err = compiled.LastStateOf(testCtx(), cfg)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "a", snap.Node)
	assert.Equal(t, "b", snap.Next)

	history, err := compiled.GetStateHistory(testCtx(), cfg)
	require.NoError(t, err)
	older, err := compiled.LastStateOf(testCtx(), history[1].Config)
	require.NoError(t, err)
	assert.Equal(t, START, older.Node)
}

func TestUpdateState_PatchVisibleDownstream(t *testing.T) {
	g := NewGraph(state.NewSchema().AddChannel("seen", state.AppendChannel())).
		AddNode("a", setNode("k", "original")).
		AddNode("b", seenNode).
		AddNode("c", seenNode).
		SetEntry("a").
		AddEdge("a", "b").
		AddEdge("b", "c").
		AddEdge("c", END)
	store := newStore(t)
	compiled := mustCompile(t, g, WithCheckpointer(store), WithInterruptAfter("a"))
	cfg := RunConfig{ThreadID: "patch"}

	_, err := compiled.Invoke(testCtx(), Args(state.NewUpdate()), cfg)
	require.NoError(t, err)
	before, err := compiled.LastStateOf(testCtx(), cfg)
	require.NoError(t, err)

	patched, err := compiled.UpdateState(testCtx(), cfg, state.NewUpdate().Set("k", "patched"), "")
	require.NoError(t, err)
	assert.NotEqual(t, before.Config.CheckpointID, patched.CheckpointID)

	snap, err := compiled.LastStateOf(testCtx(), patched)
	require.NoError(t, err)
	assert.Equal(t, "a", snap.Node, "the patch keeps the base checkpoint's node")
	assert.Equal(t, "b", snap.Next)
	assert.Equal(t, before.Config.CheckpointID, snap.ParentConfig.CheckpointID)

	final, err := compiled.Invoke(testCtx(), Resume(), patched)
	require.NoError(t, err)
	assert.Equal(t, []any{"patched", "patched"}, state.ValueOr(final, "seen", []any(nil)))
}

func TestUpdateState_UsesReducers(t *testing.T) {
	compiled := mustCompile(t, linearGraph(nil, "a", "b"),
		WithCheckpointer(newStore(t)), WithInterruptAfter("a"))
	cfg := RunConfig{ThreadID: "reduce"}

	_, err := compiled.Invoke(testCtx(), Args(state.NewUpdate()), cfg)
	require.NoError(t, err)

	cfg, err = compiled.UpdateState(testCtx(), cfg, state.NewUpdate().Set("trace", "human"), "")
	require.NoError(t, err)

	final, err := compiled.Invoke(testCtx(), Resume(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "human", "b"}, traceOf(final))
}

func TestUpdateState_RecomputesRoute(t *testing.T) {
	router := func(_ Context, s state.State) string {
		if state.ValueOr(s, "approved", false) {
			return "yes"
		}
		return "no"
	}
	g := NewGraph(traceSchema()).
		AddNode("review", traceNode("review", nil)).
		AddNode("publish", traceNode("publish", nil)).
		AddNode("revise", traceNode("revise", nil)).
		SetEntry("review").
		AddConditionalEdge("review", router, map[string]string{"yes": "publish", "no": "revise"}).
		AddEdge("publish", END).
		AddEdge("revise", END)
	compiled := mustCompile(t, g, WithCheckpointer(newStore(t)), WithInterruptAfter("review"))
	cfg := RunConfig{ThreadID: "approve"}

	outs, err := compiled.Stream(testCtx(), Args(state.NewUpdate()), cfg).Collect()
	require.NoError(t, err)
	assert.Equal(t, "revise", lastOutput(t, outs).Next)

	cfg, err = compiled.UpdateState(testCtx(), cfg, state.NewUpdate().Set("approved", true), "")
	require.NoError(t, err)

	snap, err := compiled.LastStateOf(testCtx(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "publish", snap.Next)

	final, err := compiled.Invoke(testCtx(), Resume(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"review", "publish"}, traceOf(final))
}

func TestUpdateState_AsNode(t *testing.T) {
	calls := newCallCounter()
	store := newStore(t)
	compiled := mustCompile(t, linearGraph(calls, "a", "b", "c"), WithCheckpointer(store))
	cfg := RunConfig{ThreadID: "as-node"}

	_, err := compiled.Invoke(testCtx(), Args(state.NewUpdate()), cfg)
	require.NoError(t, err)

	history, err := compiled.GetStateHistory(testCtx(), cfg)
	require.NoError(t, err)
	afterA := history[2]
	require.Equal(t, "a", afterA.Node)

	branch, err := compiled.UpdateState(testCtx(), cfg, state.NewUpdate().Set("note", "redo"), "a")
	require.NoError(t, err)

	snap, err := compiled.LastStateOf(testCtx(), branch)
	require.NoError(t, err)
	assert.Equal(t, "b", snap.Next)
	assert.Equal(t, afterA.Config.CheckpointID, snap.ParentConfig.CheckpointID)
	assert.Equal(t, []string{"a"}, traceOf(snap.State))

	children, err := checkpoint.Children(testCtx(), store, "as-node", afterA.Config.CheckpointID)
	require.NoError(t, err)
	assert.Len(t, children, 2, "the original b step and the new branch")

	final, err := compiled.Invoke(testCtx(), Resume(), branch)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, traceOf(final))
	assert.Equal(t, "redo", state.ValueOr(final, "note", ""))
	assert.Equal(t, 1, calls.count("a"))
	assert.Equal(t, 2, calls.count("b"))
}

func TestUpdateState_AsStart(t *testing.T) {
	compiled := mustCompile(t, linearGraph(nil, "a"), WithCheckpointer(newStore(t)))
	cfg := RunConfig{ThreadID: "as-start"}

	_, err := compiled.Invoke(testCtx(), Args(state.NewUpdate()), cfg)
	require.NoError(t, err)

	cfg, err = compiled.UpdateState(testCtx(), cfg, state.NewUpdate().Set("trace", "seed"), START)
	require.NoError(t, err)

	snap, err := compiled.LastStateOf(testCtx(), cfg)
	require.NoError(t, err)
	assert.Equal(t, START, snap.Node)
	assert.Equal(t, "a", snap.Next)
	assert.Equal(t, []string{"seed"}, traceOf(snap.State))
}

func TestUpdateState_Errors(t *testing.T) {
	compiled := mustCompile(t, linearGraph(nil, "a"), WithCheckpointer(newStore(t)))

	_, err := compiled.UpdateState(testCtx(), RunConfig{ThreadID: "empty"}, state.NewUpdate(), "")
	assert.ErrorIs(t, err, ErrNoCheckpoints)

	_, err = compiled.UpdateState(testCtx(), RunConfig{ThreadID: "empty"}, state.NewUpdate(), "ghost")
	assert.ErrorIs(t, err, ErrNodeNotFound)

	_, err = compiled.UpdateState(testCtx(), RunConfig{ThreadID: "empty"}, state.NewUpdate(), "a")
	assert.ErrorIs(t, err, ErrNoCheckpoints)
}

func TestUpdateState_Delete(t *testing.T) {
	compiled := mustCompile(t, linearGraph(nil, "a", "b"),
		WithCheckpointer(newStore(t)), WithInterruptAfter("a"))
	cfg := RunConfig{ThreadID: "delete"}

	_, err := compiled.Invoke(testCtx(), ArgsMap(map[string]any{"draft": "x"}), cfg)
	require.NoError(t, err)

	cfg, err = compiled.UpdateState(testCtx(), cfg, state.NewUpdate().Delete("draft"), "")
	require.NoError(t, err)

	final, err := compiled.Invoke(testCtx(), Resume(), cfg)
	require.NoError(t, err)
	assert.False(t, final.Has("draft"))
}

func TestTimeTravel_ResumeFromOlderCheckpoint(t *testing.T) {
	calls := newCallCounter()
	store := newStore(t)
	compiled := mustCompile(t, linearGraph(calls, "a", "b", "c"), WithCheckpointer(store))
	cfg := RunConfig{ThreadID: "travel"}

	_, err := compiled.Invoke(testCtx(), Args(state.NewUpdate()), cfg)
	require.NoError(t, err)

	history, err := compiled.GetStateHistory(testCtx(), cfg)
	require.NoError(t, err)
	afterA := history[2]
	require.Equal(t, "a", afterA.Node)

	outs, err := compiled.Stream(testCtx(), Resume(), afterA.Config).Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", END}, nodesOf(outs))
	assert.Equal(t, []string{"a", "b", "c"}, traceOf(lastOutput(t, outs).State))
	assert.Equal(t, 1, calls.count("a"))
	assert.Equal(t, 2, calls.count("c"))

	// The replay branched from the older checkpoint
	latest, err := compiled.LastStateOf(testCtx(), cfg)
	require.NoError(t, err)
	lineage, err := checkpoint.Lineage(testCtx(), store, "travel", latest.Config.CheckpointID)
	require.NoError(t, err)
	require.Len(t, lineage, 4)
	assert.Equal(t, afterA.Config.CheckpointID, lineage[2].ID)

	history, err = compiled.GetStateHistory(testCtx(), cfg)
	require.NoError(t, err)
	assert.Len(t, history, 6, "history is append-only")
}
