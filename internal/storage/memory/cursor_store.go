package memory

import (
	"context"
	"sync"

	"wallet-notifier/internal/storage"
)

// CursorStore is an in-memory implementation of storage.CursorStore.
type CursorStore struct {
	mu      sync.RWMutex
	cursors map[string]string
}

// NewCursorStore creates a new in-memory cursor store.
func NewCursorStore() *CursorStore {
	return &CursorStore{
		cursors: make(map[string]string),
	}
}

// Compile-time interface check.
var _ storage.CursorStore = (*CursorStore)(nil)

// GetCursor returns the paging token of the last processed effect.
func (s *CursorStore) GetCursor(_ context.Context, accountID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cursor, ok := s.cursors[accountID]
	if !ok {
		return "", storage.ErrNotFound
	}
	return cursor, nil
}

// SetCursor saves the paging token of the last processed effect.
func (s *CursorStore) SetCursor(_ context.Context, accountID, cursor string) error {
	if accountID == "" || cursor == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors[accountID] = cursor
	return nil
}

// DeleteCursor forgets the position of an account.
func (s *CursorStore) DeleteCursor(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cursors, accountID)
	return nil
}
