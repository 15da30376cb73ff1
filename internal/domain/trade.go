package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// CompletedTrade is a fully executed offer that produced a notification.
// Corresponds to completed_trades table in ClickHouse.
type CompletedTrade struct {
	TradeID      string // deterministic hash of (account, offer, effect)
	AccountID    string
	OfferID      OfferID
	EffectID     string
	Selling      Asset
	Buying       Asset
	SoldAmount   decimal.Decimal
	BoughtAmount decimal.Decimal
	Price        decimal.Decimal // bought / sold
	OccurredAt   int64           // effect timestamp (ms)
	NotifiedAt   int64           // dispatch timestamp (ms)
}

// ErrZeroAmount is returned when a trade sold nothing.
var ErrZeroAmount = errors.New("sold amount is zero")

// TradePrice computes bought / sold exactly.
func TradePrice(soldAmount, boughtAmount string) (decimal.Decimal, error) {
	sold, err := decimal.NewFromString(soldAmount)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("sold amount %q: %w", soldAmount, err)
	}
	bought, err := decimal.NewFromString(boughtAmount)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("bought amount %q: %w", boughtAmount, err)
	}
	if sold.IsZero() {
		return decimal.Decimal{}, ErrZeroAmount
	}
	return bought.Div(sold), nil
}

// OfferDetails renders a human readable summary of an executed offer:
// "Sold 100 XLM for 25 USD at 0.25 USD/XLM".
func OfferDetails(sold, bought, price decimal.Decimal, buying, selling Asset) string {
	return fmt.Sprintf("Sold %s %s for %s %s at %s %s/%s",
		sold.String(), selling.DisplayCode(),
		bought.String(), buying.DisplayCode(),
		price.String(), buying.DisplayCode(), selling.DisplayCode(),
	)
}

// Details renders OfferDetails for the trade.
func (t *CompletedTrade) Details() string {
	return OfferDetails(t.SoldAmount, t.BoughtAmount, t.Price, t.Buying, t.Selling)
}

// NewCompletedTrade builds the journal record for a trade effect.
func NewCompletedTrade(tradeID string, account Account, e Effect, notifiedAt int64) (*CompletedTrade, error) {
	sold, err := decimal.NewFromString(e.SoldAmount)
	if err != nil {
		return nil, fmt.Errorf("sold amount %q: %w", e.SoldAmount, err)
	}
	bought, err := decimal.NewFromString(e.BoughtAmount)
	if err != nil {
		return nil, fmt.Errorf("bought amount %q: %w", e.BoughtAmount, err)
	}
	price, err := TradePrice(e.SoldAmount, e.BoughtAmount)
	if err != nil {
		return nil, err
	}
	return &CompletedTrade{
		TradeID:      tradeID,
		AccountID:    account.ID,
		OfferID:      e.OfferID,
		EffectID:     e.ID,
		Selling:      e.Selling(),
		Buying:       e.Buying(),
		SoldAmount:   sold,
		BoughtAmount: bought,
		Price:        price,
		OccurredAt:   e.CreatedAt.UnixMilli(),
		NotifiedAt:   notifiedAt,
	}, nil
}
