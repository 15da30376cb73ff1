package clickhouse

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-notifier/internal/domain"
	"wallet-notifier/internal/storage"
)

const usdIssuer = "GDUKMGUGDZQK6YHYA5Z6AY2G4XDSZPSZ3SW5UN3ARVMO6QSRDWP5YLEX"

func newTestTrade(id, account string, occurredAt int64) *domain.CompletedTrade {
	return &domain.CompletedTrade{
		TradeID:      id,
		AccountID:    account,
		OfferID:      "42",
		EffectID:     "0000000012884905985-" + id,
		Selling:      domain.NativeAsset(),
		Buying:       domain.NewAsset("USD", usdIssuer),
		SoldAmount:   decimal.RequireFromString("100.0000000"),
		BoughtAmount: decimal.RequireFromString("25.0000000"),
		Price:        decimal.RequireFromString("0.25"),
		OccurredAt:   occurredAt,
		NotifiedAt:   occurredAt + 50,
	}
}

func TestTradeStore_InsertAndList(t *testing.T) {
	conn := newTestConn(t)

	ctx := context.Background()
	store := NewTradeStore(conn)

	require.NoError(t, store.Insert(ctx, newTestTrade("t2", "mainnet:GA", 2000)))
	require.NoError(t, store.Insert(ctx, newTestTrade("t1", "mainnet:GA", 1000)))
	require.NoError(t, store.Insert(ctx, newTestTrade("t3", "mainnet:GB", 1500)))

	trades, err := store.ListByAccount(ctx, "mainnet:GA")
	require.NoError(t, err)
	require.Len(t, trades, 2)

	got := trades[0]
	assert.Equal(t, "t1", got.TradeID)
	assert.Equal(t, domain.OfferID("42"), got.OfferID)
	assert.True(t, got.Selling.IsNative())
	assert.Equal(t, domain.NewAsset("USD", usdIssuer), got.Buying)
	assert.True(t, got.SoldAmount.Equal(decimal.NewFromInt(100)))
	assert.True(t, got.BoughtAmount.Equal(decimal.NewFromInt(25)))
	assert.True(t, got.Price.Equal(decimal.RequireFromString("0.25")))
	assert.Equal(t, int64(1050), got.NotifiedAt)
	assert.Equal(t, "t2", trades[1].TradeID)
}

func TestTradeStore_DuplicateKey(t *testing.T) {
	conn := newTestConn(t)

	ctx := context.Background()
	store := NewTradeStore(conn)

	require.NoError(t, store.Insert(ctx, newTestTrade("t1", "mainnet:GA", 1000)))
	assert.ErrorIs(t, store.Insert(ctx, newTestTrade("t1", "mainnet:GA", 1000)), storage.ErrDuplicateKey)
}

func TestTradeStore_InvalidInput(t *testing.T) {
	store := NewTradeStore(nil)
	assert.ErrorIs(t, store.Insert(context.Background(), &domain.CompletedTrade{}), storage.ErrInvalidInput)
}
