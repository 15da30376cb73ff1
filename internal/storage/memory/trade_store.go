package memory

import (
	"context"
	"sort"
	"sync"

	"wallet-notifier/internal/domain"
	"wallet-notifier/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu        sync.RWMutex
	data      map[string]*domain.CompletedTrade // keyed by trade_id
	byAccount map[string][]string               // account_id -> trade_ids
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data:      make(map[string]*domain.CompletedTrade),
		byAccount: make(map[string][]string),
	}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.CompletedTrade) error {
	if t == nil || t.TradeID == "" || t.AccountID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.TradeID]; exists {
		return storage.ErrDuplicateKey
	}

	tradeCopy := *t
	s.data[t.TradeID] = &tradeCopy
	s.byAccount[t.AccountID] = append(s.byAccount[t.AccountID], t.TradeID)
	return nil
}

// ListByAccount retrieves all trades of an account, ordered by occurred_at ASC.
func (s *TradeStore) ListByAccount(_ context.Context, accountID string) ([]*domain.CompletedTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byAccount[accountID]
	result := make([]*domain.CompletedTrade, 0, len(ids))
	for _, id := range ids {
		tradeCopy := *s.data[id]
		result = append(result, &tradeCopy)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OccurredAt < result[j].OccurredAt
	})
	return result, nil
}
