package checkpoint_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/stategraph/pkg/stategraph/checkpoint"
	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

// storeFactory creates a store instance for testing.
type storeFactory func(t *testing.T) checkpoint.Store

func newCheckpoint(thread, created, next string, kv ...any) *checkpoint.Checkpoint {
	s := state.New()
	for i := 0; i+1 < len(kv); i += 2 {
		s = s.With(kv[i].(string), kv[i+1])
	}
	return checkpoint.New(thread, s, created, next)
}

// storeContractTest runs contract tests against any Store implementation.
func storeContractTest(t *testing.T, name string, factory storeFactory) {
	ctx := context.Background()

	t.Run(name+"/Put_and_Get", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		cp := newCheckpoint("thread-1", "__start__", "agent", "input", "hello")
		require.NoError(t, store.Put(ctx, cp))
		assert.Equal(t, 1, cp.Sequence)

		loaded, err := store.Get(ctx, "thread-1", cp.ID)
		require.NoError(t, err)
		assert.Equal(t, cp.ID, loaded.ID)
		assert.Equal(t, "thread-1", loaded.ThreadID)
		assert.Equal(t, "__start__", loaded.CreatedNode)
		assert.Equal(t, "agent", loaded.NextNode)
		assert.Equal(t, checkpoint.Version, loaded.Version)
		assert.Equal(t, 1, loaded.Sequence)
		assert.Equal(t, "hello", state.ValueOr(loaded.State, "input", ""))
		assert.False(t, loaded.Timestamp.IsZero())
	})

	t.Run(name+"/Get_NotFound", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		_, err := store.Get(ctx, "thread-nonexistent", "nope")
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	})

	t.Run(name+"/Get_WrongThread", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		cp := newCheckpoint("thread-1", "__start__", "a")
		require.NoError(t, store.Put(ctx, cp))

		_, err := store.Get(ctx, "thread-2", cp.ID)
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	})

	t.Run(name+"/Put_Duplicate", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		cp := newCheckpoint("thread-1", "__start__", "a")
		require.NoError(t, store.Put(ctx, cp))

		err := store.Put(ctx, cp)
		assert.ErrorIs(t, err, checkpoint.ErrDuplicate)
	})

	t.Run(name+"/Put_Invalid", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		assert.ErrorIs(t, store.Put(ctx, nil), checkpoint.ErrInvalid)

		noThread := newCheckpoint("", "__start__", "a")
		assert.ErrorIs(t, store.Put(ctx, noThread), checkpoint.ErrInvalid)

		noID := newCheckpoint("thread-1", "__start__", "a")
		noID.ID = ""
		assert.ErrorIs(t, store.Put(ctx, noID), checkpoint.ErrInvalid)
	})

	t.Run(name+"/Latest_NotFound", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		_, err := store.Latest(ctx, "thread-nonexistent")
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	})

	t.Run(name+"/Latest_IsLastWritten", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		first := newCheckpoint("thread-1", "__start__", "a")
		second := newCheckpoint("thread-1", "a", "b").WithParent(first.ID)
		// Branch from the first checkpoint again.
		branch := newCheckpoint("thread-1", "a", "c").WithParent(first.ID)

		require.NoError(t, store.Put(ctx, first))
		require.NoError(t, store.Put(ctx, second))
		require.NoError(t, store.Put(ctx, branch))

		latest, err := store.Latest(ctx, "thread-1")
		require.NoError(t, err)
		assert.Equal(t, branch.ID, latest.ID)
		assert.Equal(t, first.ID, latest.ParentID)
		assert.Equal(t, 3, latest.Sequence)
	})

	t.Run(name+"/History_Empty", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		history, err := store.History(ctx, "thread-nonexistent")
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run(name+"/History_MostRecentFirst", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		a := newCheckpoint("thread-1", "__start__", "a")
		b := newCheckpoint("thread-1", "a", "b").WithParent(a.ID)
		c := newCheckpoint("thread-1", "b", "__end__").WithParent(b.ID)
		for _, cp := range []*checkpoint.Checkpoint{a, b, c} {
			require.NoError(t, store.Put(ctx, cp))
		}

		history, err := store.History(ctx, "thread-1")
		require.NoError(t, err)
		require.Len(t, history, 3)

		assert.Equal(t, c.ID, history[0].ID)
		assert.Equal(t, b.ID, history[1].ID)
		assert.Equal(t, a.ID, history[2].ID)
		assert.Equal(t, 3, history[0].Sequence)
		assert.Equal(t, 1, history[2].Sequence)
	})

	t.Run(name+"/Release", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Put(ctx, newCheckpoint("thread-1", "__start__", "a")))
		require.NoError(t, store.Put(ctx, newCheckpoint("thread-1", "a", "b")))
		require.NoError(t, store.Put(ctx, newCheckpoint("thread-2", "__start__", "a")))

		require.NoError(t, store.Release(ctx, "thread-1"))

		history, err := store.History(ctx, "thread-1")
		require.NoError(t, err)
		assert.Empty(t, history)

		history, err = store.History(ctx, "thread-2")
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run(name+"/Release_Nonexistent", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		assert.NoError(t, store.Release(ctx, "thread-nonexistent"))
	})

	t.Run(name+"/SequencePerThread", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		a1 := newCheckpoint("thread-1", "__start__", "a")
		b1 := newCheckpoint("thread-2", "__start__", "a")
		a2 := newCheckpoint("thread-1", "a", "b")
		require.NoError(t, store.Put(ctx, a1))
		require.NoError(t, store.Put(ctx, b1))
		require.NoError(t, store.Put(ctx, a2))

		assert.Equal(t, 1, a1.Sequence)
		assert.Equal(t, 1, b1.Sequence)
		assert.Equal(t, 2, a2.Sequence)
	})

	t.Run(name+"/ChildrenAndLineage", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		root := newCheckpoint("thread-1", "__start__", "a")
		left := newCheckpoint("thread-1", "a", "b").WithParent(root.ID)
		right := newCheckpoint("thread-1", "a", "c").WithParent(root.ID)
		leaf := newCheckpoint("thread-1", "c", "__end__").WithParent(right.ID)
		for _, cp := range []*checkpoint.Checkpoint{root, left, right, leaf} {
			require.NoError(t, store.Put(ctx, cp))
		}

		children, err := checkpoint.Children(ctx, store, "thread-1", root.ID)
		require.NoError(t, err)
		require.Len(t, children, 2)
		assert.Equal(t, right.ID, children[0].ID)
		assert.Equal(t, left.ID, children[1].ID)

		roots, err := checkpoint.Children(ctx, store, "thread-1", "")
		require.NoError(t, err)
		require.Len(t, roots, 1)
		assert.Equal(t, root.ID, roots[0].ID)

		lineage, err := checkpoint.Lineage(ctx, store, "thread-1", leaf.ID)
		require.NoError(t, err)
		require.Len(t, lineage, 3)
		assert.Equal(t, leaf.ID, lineage[0].ID)
		assert.Equal(t, right.ID, lineage[1].ID)
		assert.Equal(t, root.ID, lineage[2].ID)

		_, err = checkpoint.Lineage(ctx, store, "thread-1", "missing")
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	})

	t.Run(name+"/StoredCopy", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		cp := newCheckpoint("thread-1", "__start__", "a")
		require.NoError(t, store.Put(ctx, cp))

		// Modify the caller's checkpoint after put
		cp.NextNode = "changed"

		loaded, err := store.Get(ctx, "thread-1", cp.ID)
		require.NoError(t, err)
		assert.Equal(t, "a", loaded.NextNode)
	})

	t.Run(name+"/Close_ThenError", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Close())

		// Operations after close should error
		err := store.Put(ctx, newCheckpoint("thread-1", "__start__", "a"))
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)

		_, err = store.Get(ctx, "thread-1", "x")
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)

		_, err = store.Latest(ctx, "thread-1")
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)

		_, err = store.History(ctx, "thread-1")
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)

		err = store.Release(ctx, "thread-1")
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)
	})
}

// TestMemoryStore runs contract tests against MemoryStore.
func TestMemoryStore(t *testing.T) {
	factory := func(t *testing.T) checkpoint.Store {
		return checkpoint.NewMemoryStore()
	}
	storeContractTest(t, "MemoryStore", factory)
}

// TestSQLiteStore runs contract tests against SQLiteStore.
func TestSQLiteStore(t *testing.T) {
	factory := func(t *testing.T) checkpoint.Store {
		store, err := checkpoint.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		return store
	}
	storeContractTest(t, "SQLiteStore", factory)
}
