package checkpoint_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/stategraph/pkg/stategraph/checkpoint"
	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

func TestSQLiteStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	// First store instance
	store1, err := checkpoint.NewSQLiteStore(dbPath)
	require.NoError(t, err)

	first := newCheckpoint("thread-1", "__start__", "agent", "input", "persistent")
	second := newCheckpoint("thread-1", "agent", "__end__", "input", "persistent", "output", "done").
		WithParent(first.ID)
	require.NoError(t, store1.Put(ctx, first))
	require.NoError(t, store1.Put(ctx, second))
	require.NoError(t, store1.Close())

	// Second store instance (reopening the database)
	store2, err := checkpoint.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store2.Close()

	latest, err := store2.Latest(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, first.ID, latest.ParentID)
	assert.Equal(t, "agent", latest.CreatedNode)
	assert.Equal(t, "__end__", latest.NextNode)
	assert.Equal(t, []string{"input", "output"}, latest.State.Keys())
	assert.Equal(t, "done", state.ValueOr(latest.State, "output", ""))
	assert.WithinDuration(t, second.Timestamp, latest.Timestamp, 0)

	// Sequence continues after reopen
	third := newCheckpoint("thread-1", "agent", "__end__").WithParent(first.ID)
	require.NoError(t, store2.Put(ctx, third))
	assert.Equal(t, 3, third.Sequence)
}

func TestSQLiteStore_InvalidPath(t *testing.T) {
	// Try to create in non-existent directory
	_, err := checkpoint.NewSQLiteStore("/nonexistent/path/db.sqlite")
	assert.Error(t, err)
}

func TestSQLiteStore_CloseIdempotent(t *testing.T) {
	store, err := checkpoint.NewSQLiteStore(":memory:")
	require.NoError(t, err)

	// Close multiple times should be safe
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestSQLiteStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store, err := checkpoint.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	const numGoroutines = 50
	const numOps = 20

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()

			threadID := "thread-" + string(rune('a'+id%26))
			for j := 0; j < numOps; j++ {
				switch j % 4 {
				case 0, 1:
					_ = store.Put(ctx, newCheckpoint(threadID, "a", "b", "n", j))
				case 2:
					_, _ = store.Latest(ctx, threadID)
				case 3:
					_, _ = store.History(ctx, threadID)
				}
			}
		}(i)
	}

	wg.Wait()

	history, err := store.History(ctx, "thread-a")
	require.NoError(t, err)
	// Two goroutines map to thread-a; each writes half of numOps.
	assert.Len(t, history, numOps)
}

func TestSQLiteStore_LargeState(t *testing.T) {
	ctx := context.Background()
	store, err := checkpoint.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	large := strings.Repeat("x", 1024*1024)
	cp := newCheckpoint("thread-1", "__start__", "a", "blob", large)
	require.NoError(t, store.Put(ctx, cp))

	loaded, err := store.Get(ctx, "thread-1", cp.ID)
	require.NoError(t, err)
	assert.Equal(t, large, state.ValueOr(loaded.State, "blob", ""))
}

func TestSQLiteStore_FileSizeGrowth(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "growth.db")

	store, err := checkpoint.NewSQLiteStore(dbPath)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		payload := strings.Repeat("y", 10000) // 10KB each
		require.NoError(t, store.Put(ctx, newCheckpoint("thread-1", "a", "b", "payload", payload)))
	}

	require.NoError(t, store.Close())

	info, err := os.Stat(dbPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(50000))
}

// failingSerializer rejects every state.
type failingSerializer struct{}

func (failingSerializer) Marshal(state.State) ([]byte, error) {
	return nil, errors.New("boom")
}

func (failingSerializer) Unmarshal([]byte) (state.State, error) {
	return state.State{}, errors.New("boom")
}

func TestSQLiteStore_SerializerErrors(t *testing.T) {
	ctx := context.Background()
	store, err := checkpoint.NewSQLiteStore(":memory:", checkpoint.WithSerializer(failingSerializer{}))
	require.NoError(t, err)
	defer store.Close()

	err = store.Put(ctx, newCheckpoint("thread-1", "__start__", "a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serialize checkpoint")

	history, err := store.History(ctx, "thread-1")
	require.NoError(t, err)
	assert.Empty(t, history, "failed put must not leave a row behind")
}

func TestSQLiteStore_CorruptTimestamp(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "corrupt.db")

	store, err := checkpoint.NewSQLiteStore(path)
	require.NoError(t, err)
	cp := newCheckpoint("thread-1", "__start__", "a")
	require.NoError(t, store.Put(ctx, cp))
	require.NoError(t, store.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `UPDATE checkpoints SET timestamp = 'yesterday'`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	store, err = checkpoint.NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get(ctx, "thread-1", cp.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timestamp")

	_, err = store.Latest(ctx, "thread-1")
	assert.Error(t, err)

	_, err = store.History(ctx, "thread-1")
	assert.Error(t, err)
}
