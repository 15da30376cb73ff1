package memory

import (
	"context"
	"sort"
	"sync"

	"wallet-notifier/internal/domain"
	"wallet-notifier/internal/storage"
)

// AccountStore is an in-memory implementation of storage.AccountStore.
type AccountStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Account // keyed by account id
}

// NewAccountStore creates a new in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		data: make(map[string]*domain.Account),
	}
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

// List returns all tracked accounts ordered by created_at, id.
func (s *AccountStore) List(_ context.Context) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Account, 0, len(s.data))
	for _, a := range s.data {
		accountCopy := *a
		result = append(result, &accountCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Get retrieves an account by its ID. Returns ErrNotFound if not exists.
func (s *AccountStore) Get(_ context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	accountCopy := *a
	return &accountCopy, nil
}

// Upsert inserts an account or updates its name.
func (s *AccountStore) Upsert(_ context.Context, a *domain.Account) error {
	if a == nil || a.ID == "" || a.PublicKey == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.data[a.ID]; ok {
		existing.Name = a.Name
		return nil
	}

	// Store a copy to prevent external mutation
	accountCopy := *a
	s.data[a.ID] = &accountCopy
	return nil
}

// Delete removes an account. Returns ErrNotFound if not exists.
func (s *AccountStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[id]; !exists {
		return storage.ErrNotFound
	}
	delete(s.data, id)
	return nil
}
