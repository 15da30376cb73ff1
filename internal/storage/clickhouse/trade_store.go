package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"wallet-notifier/internal/domain"
	"wallet-notifier/internal/observability"
	"wallet-notifier/internal/storage"
)

// TradeStore implements storage.TradeStore using ClickHouse.
type TradeStore struct {
	conn *Conn
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(conn *Conn) *TradeStore {
	return &TradeStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.CompletedTrade) (err error) {
	if t == nil || t.TradeID == "" || t.AccountID == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "insert_trade", time.Since(start).Seconds(), err)
	}()

	// Check if exists (ReplacingMergeTree will replace, but we want append-only semantics)
	exists, err := s.exists(ctx, t.AccountID, t.TradeID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO completed_trades (
			trade_id, account_id, offer_id, effect_id,
			selling_asset, buying_asset,
			sold_amount, bought_amount, price,
			occurred_at, notified_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		t.TradeID, t.AccountID, t.OfferID.String(), t.EffectID,
		t.Selling.String(), t.Buying.String(),
		t.SoldAmount, t.BoughtAmount, t.Price,
		t.OccurredAt, t.NotifiedAt,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// ListByAccount retrieves all trades of an account, ordered by occurred_at ASC.
func (s *TradeStore) ListByAccount(ctx context.Context, accountID string) ([]*domain.CompletedTrade, error) {
	query := `
		SELECT
			trade_id, account_id, offer_id, effect_id,
			selling_asset, buying_asset,
			sold_amount, bought_amount, price,
			occurred_at, notified_at
		FROM completed_trades FINAL
		WHERE account_id = ?
		ORDER BY occurred_at ASC, trade_id ASC
	`

	rows, err := s.conn.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// exists checks if a trade with the given id exists.
func (s *TradeStore) exists(ctx context.Context, accountID, tradeID string) (bool, error) {
	query := `
		SELECT count(*) FROM completed_trades FINAL
		WHERE account_id = ? AND trade_id = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, accountID, tradeID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanTrades scans multiple rows into a slice.
func scanTrades(rows chRows) ([]*domain.CompletedTrade, error) {
	var trades []*domain.CompletedTrade

	for rows.Next() {
		var (
			t                   domain.CompletedTrade
			offerID             string
			selling, buying     string
			sold, bought, price decimal.Decimal
		)
		err := rows.Scan(
			&t.TradeID, &t.AccountID, &offerID, &t.EffectID,
			&selling, &buying,
			&sold, &bought, &price,
			&t.OccurredAt, &t.NotifiedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}

		t.OfferID = domain.OfferID(offerID)
		if t.Selling, err = domain.ParseAsset(selling); err != nil {
			return nil, fmt.Errorf("trade %s selling asset: %w", t.TradeID, err)
		}
		if t.Buying, err = domain.ParseAsset(buying); err != nil {
			return nil, fmt.Errorf("trade %s buying asset: %w", t.TradeID, err)
		}
		t.SoldAmount, t.BoughtAmount, t.Price = sold, bought, price
		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
