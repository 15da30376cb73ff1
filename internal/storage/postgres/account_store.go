package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"wallet-notifier/internal/domain"
	"wallet-notifier/internal/observability"
	"wallet-notifier/internal/storage"
)

// AccountStore implements storage.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *Pool
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(pool *Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

// List returns all tracked accounts ordered by created_at, id.
func (s *AccountStore) List(ctx context.Context) (_ []*domain.Account, err error) {
	defer observe("list_accounts", time.Now(), &err)

	query := `
		SELECT id, name, public_key, testnet, created_at
		FROM tracked_accounts
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var result []*domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return result, nil
}

// Get retrieves an account by its ID. Returns ErrNotFound if not exists.
func (s *AccountStore) Get(ctx context.Context, id string) (_ *domain.Account, err error) {
	defer observe("get_account", time.Now(), &err)

	query := `
		SELECT id, name, public_key, testnet, created_at
		FROM tracked_accounts
		WHERE id = $1
	`

	a, err := scanAccount(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// Upsert inserts an account or updates its name.
func (s *AccountStore) Upsert(ctx context.Context, a *domain.Account) (err error) {
	if a == nil || a.ID == "" || a.PublicKey == "" {
		return storage.ErrInvalidInput
	}
	defer observe("upsert_account", time.Now(), &err)

	query := `
		INSERT INTO tracked_accounts (id, name, public_key, testnet, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name
	`

	if _, err := s.pool.Exec(ctx, query, a.ID, a.Name, a.PublicKey, a.Testnet, a.CreatedAt); err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// Delete removes an account. Returns ErrNotFound if not exists.
func (s *AccountStore) Delete(ctx context.Context, id string) (err error) {
	defer observe("delete_account", time.Now(), &err)

	tag, err := s.pool.Exec(ctx, `DELETE FROM tracked_accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanAccount scans a single row into Account.
func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	if err := row.Scan(&a.ID, &a.Name, &a.PublicKey, &a.Testnet, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// observe records query metrics. ErrNotFound is not a query failure.
func observe(operation string, start time.Time, errp *error) {
	err := *errp
	if errors.Is(err, storage.ErrNotFound) {
		err = nil
	}
	observability.RecordDBQuery("postgres", operation, time.Since(start).Seconds(), err)
}
