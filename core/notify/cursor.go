package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// CursorStore persists the newest delivered item id per feed and recipient.
// Advance never moves a cursor backwards.
type CursorStore interface {
	Cursor(ctx context.Context, feed string, recipient int64) (id int64, ok bool, err error)
	Advance(ctx context.Context, feed string, recipient int64, id int64) error
}

type cursorKey struct {
	feed      string
	recipient int64
}

// MemoryCursorStore keeps cursors in process memory.
type MemoryCursorStore struct {
	mu      sync.Mutex
	cursors map[cursorKey]int64
}

// NewMemoryCursorStore returns an empty store.
func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{cursors: make(map[cursorKey]int64)}
}

func (s *MemoryCursorStore) Cursor(_ context.Context, feed string, recipient int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.cursors[cursorKey{feed, recipient}]
	return id, ok, nil
}

func (s *MemoryCursorStore) Advance(_ context.Context, feed string, recipient int64, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := cursorKey{feed, recipient}
	if cur, ok := s.cursors[k]; !ok || id > cur {
		s.cursors[k] = id
	}
	return nil
}

// SQLCursorStore keeps cursors in the feed_cursors table.
type SQLCursorStore struct {
	db *sqlx.DB
}

// NewSQLCursorStore wraps db. The schema comes from the database migrations.
func NewSQLCursorStore(db *sqlx.DB) *SQLCursorStore {
	return &SQLCursorStore{db: db}
}

func (s *SQLCursorStore) Cursor(ctx context.Context, feed string, recipient int64) (int64, bool, error) {
	var id int64
	q := s.db.Rebind(`SELECT last_id FROM feed_cursors WHERE feed = ? AND recipient = ?`)
	err := s.db.GetContext(ctx, &id, q, feed, recipient)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("select cursor: %w", err)
	}
	return id, true, nil
}

func (s *SQLCursorStore) Advance(ctx context.Context, feed string, recipient int64, id int64) error {
	q := s.db.Rebind(`INSERT INTO feed_cursors (feed, recipient, last_id, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (feed, recipient) DO UPDATE
SET last_id = excluded.last_id, updated_at = excluded.updated_at
WHERE feed_cursors.last_id < excluded.last_id`)
	if _, err := s.db.ExecContext(ctx, q, feed, recipient, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert cursor: %w", err)
	}
	return nil
}
