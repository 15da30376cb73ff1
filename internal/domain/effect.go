package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Effect types handled by the notifier.
const (
	EffectTypeTrade = "trade"
)

// OfferID identifies an order book offer. Horizon encodes it either as a JSON
// number or as a string depending on the endpoint, so both are accepted.
type OfferID string

// UnmarshalJSON accepts "123" and 123.
func (id *OfferID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("offer id: %w", err)
		}
		*id = OfferID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("offer id: %w", err)
	}
	if _, err := strconv.ParseUint(n.String(), 10, 64); err != nil {
		return fmt.Errorf("offer id %s: %w", n, err)
	}
	*id = OfferID(n.String())
	return nil
}

// String returns the decimal form of the id.
func (id OfferID) String() string {
	return string(id)
}

// Effect is one record of an account's effect stream. Only the fields of the
// trade variant are decoded beyond the common header.
type Effect struct {
	ID          string    `json:"id"`
	PagingToken string    `json:"paging_token"`
	Account     string    `json:"account"`
	Type        string    `json:"type"`
	TypeI       int       `json:"type_i"`
	CreatedAt   time.Time `json:"created_at"`

	// Trade variant
	Seller            string  `json:"seller,omitempty"`
	OfferID           OfferID `json:"offer_id,omitempty"`
	SoldAmount        string  `json:"sold_amount,omitempty"`
	SoldAssetType     string  `json:"sold_asset_type,omitempty"`
	SoldAssetCode     string  `json:"sold_asset_code,omitempty"`
	SoldAssetIssuer   string  `json:"sold_asset_issuer,omitempty"`
	BoughtAmount      string  `json:"bought_amount,omitempty"`
	BoughtAssetType   string  `json:"bought_asset_type,omitempty"`
	BoughtAssetCode   string  `json:"bought_asset_code,omitempty"`
	BoughtAssetIssuer string  `json:"bought_asset_issuer,omitempty"`
}

// IsTrade reports whether the effect is the trade variant.
func (e Effect) IsTrade() bool {
	return e.Type == EffectTypeTrade
}

// Selling returns the asset the account sold in a trade effect.
func (e Effect) Selling() Asset {
	return NewAsset(e.SoldAssetCode, e.SoldAssetIssuer)
}

// Buying returns the asset the account bought in a trade effect.
func (e Effect) Buying() Asset {
	return NewAsset(e.BoughtAssetCode, e.BoughtAssetIssuer)
}
