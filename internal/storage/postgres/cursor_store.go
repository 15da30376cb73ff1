package postgres

import (
	"context"
	"fmt"

	"wallet-notifier/internal/storage"
)

// CursorStore is a PostgreSQL implementation of storage.CursorStore.
// Uses the stream_cursors table: one row per account.
type CursorStore struct {
	pool *Pool
}

// NewCursorStore creates a new PostgreSQL cursor store.
func NewCursorStore(pool *Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CursorStore = (*CursorStore)(nil)

// GetCursor returns the paging token of the last processed effect.
func (s *CursorStore) GetCursor(ctx context.Context, accountID string) (string, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT cursor
		FROM stream_cursors
		WHERE account_id = $1
	`, accountID)

	var cursor string
	if err := row.Scan(&cursor); err != nil {
		if isNotFoundError(err) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("get cursor: %w", err)
	}
	return cursor, nil
}

// SetCursor saves the paging token of the last processed effect.
// Uses upsert to handle initial insert and subsequent updates.
func (s *CursorStore) SetCursor(ctx context.Context, accountID, cursor string) error {
	if accountID == "" || cursor == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO stream_cursors (account_id, cursor, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (account_id) DO UPDATE
		SET cursor = EXCLUDED.cursor,
		    updated_at = NOW()
	`, accountID, cursor)
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}

// DeleteCursor forgets the position of an account.
func (s *CursorStore) DeleteCursor(ctx context.Context, accountID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM stream_cursors WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("delete cursor: %w", err)
	}
	return nil
}
