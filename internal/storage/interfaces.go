package storage

import (
	"context"

	"wallet-notifier/internal/domain"
)

// AccountStore provides access to tracked_accounts storage.
type AccountStore interface {
	// List returns all tracked accounts ordered by created_at, id.
	List(ctx context.Context) ([]*domain.Account, error)

	// Get retrieves an account by its ID. Returns ErrNotFound if not exists.
	Get(ctx context.Context, id string) (*domain.Account, error)

	// Upsert inserts an account or updates its name. created_at of an
	// existing account is kept.
	Upsert(ctx context.Context, a *domain.Account) error

	// Delete removes an account. Returns ErrNotFound if not exists.
	Delete(ctx context.Context, id string) error
}

// TradeStore provides access to completed_trades storage.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.CompletedTrade) error

	// ListByAccount retrieves all trades of an account, ordered by occurred_at ASC.
	ListByAccount(ctx context.Context, accountID string) ([]*domain.CompletedTrade, error)
}
