package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

// SQLiteStore persists checkpoints to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db         *sql.DB
	serializer state.Serializer
	mu         sync.RWMutex
	closed     bool
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithSerializer sets the state serializer. Defaults to state.JSONSerializer.
func WithSerializer(s state.Serializer) SQLiteOption {
	return func(store *SQLiteStore) {
		store.serializer = s
	}
}

// NewSQLiteStore creates a new SQLite checkpoint store.
// The path should be a file path (e.g., "./checkpoints.db") or ":memory:" for testing.
func NewSQLiteStore(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every pooled connection to ":memory:" would see its own database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id TEXT NOT NULL,
			checkpoint_id TEXT NOT NULL,
			parent_id TEXT NOT NULL DEFAULT '',
			sequence INTEGER NOT NULL,
			version INTEGER NOT NULL,
			created_node TEXT NOT NULL,
			next_node TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			state BLOB NOT NULL,
			PRIMARY KEY (thread_id, checkpoint_id)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_checkpoints_thread_sequence
		ON checkpoints(thread_id, sequence)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	store := &SQLiteStore{db: db, serializer: state.JSONSerializer{}}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, cp *Checkpoint) error {
	if err := validate(cp); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	data, err := s.serializer.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("serialize checkpoint %s: %w", cp.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var exists int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM checkpoints
		WHERE thread_id = ? AND checkpoint_id = ?
	`, cp.ThreadID, cp.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check checkpoint: %w", err)
	}
	if exists > 0 {
		return ErrDuplicate
	}

	var seq int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence), 0) + 1 FROM checkpoints WHERE thread_id = ?
	`, cp.ThreadID).Scan(&seq)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkpoints (
			thread_id, checkpoint_id, parent_id, sequence, version,
			created_node, next_node, timestamp, state
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, cp.ThreadID, cp.ID, cp.ParentID, seq, cp.Version,
		cp.CreatedNode, cp.NextNode, cp.Timestamp.UTC().Format(time.RFC3339Nano), data)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	cp.Sequence = seq
	return nil
}

const selectColumns = `
	SELECT checkpoint_id, thread_id, parent_id, sequence, version,
		created_node, next_node, timestamp, state
	FROM checkpoints`

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, threadID, id string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRowContext(ctx, selectColumns+`
		WHERE thread_id = ? AND checkpoint_id = ?
	`, threadID, id)
	return s.scan(row)
}

// Latest implements Store.
func (s *SQLiteStore) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRowContext(ctx, selectColumns+`
		WHERE thread_id = ?
		ORDER BY sequence DESC
		LIMIT 1
	`, threadID)
	return s.scan(row)
}

// History implements Store.
func (s *SQLiteStore) History(ctx context.Context, threadID string) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, selectColumns+`
		WHERE thread_id = ?
		ORDER BY sequence DESC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	history := []*Checkpoint{}
	for rows.Next() {
		cp, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return history, nil
}

// Release implements Store.
func (s *SQLiteStore) Release(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM checkpoints WHERE thread_id = ?
	`, threadID)
	if err != nil {
		return fmt.Errorf("release thread checkpoints: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scan(row rowScanner) (*Checkpoint, error) {
	var (
		cp        Checkpoint
		timestamp string
		data      []byte
	)
	err := row.Scan(&cp.ID, &cp.ThreadID, &cp.ParentID, &cp.Sequence, &cp.Version,
		&cp.CreatedNode, &cp.NextNode, &timestamp, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	cp.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return nil, fmt.Errorf("parse checkpoint %s timestamp: %w", cp.ID, err)
	}
	cp.State, err = s.serializer.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("deserialize checkpoint %s: %w", cp.ID, err)
	}
	return &cp, nil
}
