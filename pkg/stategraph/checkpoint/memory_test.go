package checkpoint_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/stategraph/pkg/stategraph/checkpoint"
)

func TestMemoryStore_Len(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	assert.Equal(t, 0, store.Len())

	require.NoError(t, store.Put(ctx, newCheckpoint("thread-1", "__start__", "a")))
	assert.Equal(t, 1, store.Len())

	require.NoError(t, store.Put(ctx, newCheckpoint("thread-1", "a", "b")))
	assert.Equal(t, 2, store.Len())

	require.NoError(t, store.Put(ctx, newCheckpoint("thread-2", "__start__", "a")))
	assert.Equal(t, 3, store.Len())

	require.NoError(t, store.Release(ctx, "thread-1"))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	const numGoroutines = 100
	const numOps = 50

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()

			threadID := "thread-" + string(rune('a'+id%26))
			for j := 0; j < numOps; j++ {
				// Mix of operations
				switch j % 5 {
				case 0, 1:
					_ = store.Put(ctx, newCheckpoint(threadID, "a", "b"))
				case 2:
					_, _ = store.Latest(ctx, threadID)
				case 3:
					_, _ = store.History(ctx, threadID)
				case 4:
					_ = store.Release(ctx, threadID)
				}
			}
		}(i)
	}

	wg.Wait()

	// Should not panic or deadlock
}

func TestMemoryStore_SharesStateValue(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	cp := newCheckpoint("thread-1", "__start__", "a", "items", []string{"x"})
	require.NoError(t, store.Put(ctx, cp))

	loaded, err := store.Get(ctx, "thread-1", cp.ID)
	require.NoError(t, err)

	// Values keep their Go types in memory, no serialization round trip.
	items, ok := loaded.State.Get("items")
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, items)
}
