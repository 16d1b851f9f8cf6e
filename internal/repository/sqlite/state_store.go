package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// StateStore implements repository.KeyValueStore on the kv table.
// Each key is overwritten in place; there is no expiry.
type StateStore struct {
	db  *DB
	now func() time.Time
}

// NewStateStore creates a key/value store on db.
func NewStateStore(db *DB) *StateStore {
	return &StateStore{db: db, now: time.Now}
}

// Set upserts key with value.
func (s *StateStore) Set(ctx context.Context, key, value string) error {
	s.db.Lock()
	defer s.db.Unlock()

	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Get reads key. ok is false if the key has never been written.
func (s *StateStore) Get(ctx context.Context, key string) (string, time.Time, bool, error) {
	s.db.RLock()
	defer s.db.RUnlock()

	var (
		value     string
		updatedAt int64
	)
	err := s.db.Conn().QueryRowContext(ctx, `SELECT value, updated_at FROM kv WHERE key = ?`, key).
		Scan(&value, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, false, nil
	}
	if err != nil {
		return "", time.Time{}, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, time.UnixMilli(updatedAt), true, nil
}

// Delete removes key; deleting a missing key is not an error.
func (s *StateStore) Delete(ctx context.Context, key string) error {
	s.db.Lock()
	defer s.db.Unlock()

	if _, err := s.db.Conn().ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
