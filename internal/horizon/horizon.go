// Package horizon is a client for the Stellar Horizon REST and streaming API.
package horizon

import (
	"context"
	"sync/atomic"

	"wallet-notifier/internal/domain"
)

// API defines the Horizon queries used by the daemon.
type API interface {
	// Offers returns all currently open offers of an account.
	Offers(ctx context.Context, accountID string) ([]domain.Offer, error)

	// Account returns the account record. Returns an *Error with status 404
	// for unfunded accounts.
	Account(ctx context.Context, accountID string) (*domain.AccountData, error)

	// LatestLedger returns the latest ledger known to the node.
	LatestLedger(ctx context.Context) (*domain.LedgerInfo, error)
}

// EffectSource defines the live effect stream interface.
type EffectSource interface {
	// SubscribeEffects streams effects of an account starting after cursor
	// ("now" for only new effects). The subscription channel is closed when
	// ctx is done.
	SubscribeEffects(ctx context.Context, accountID, cursor string) (*EffectSubscription, error)
}

// CursorNow starts a stream at the current ledger.
const CursorNow = "now"

// EffectSubscription is a live effect stream of one account.
type EffectSubscription struct {
	C <-chan domain.Effect

	online atomic.Bool
	cursor atomic.Value // string
}

// NewEffectSubscription wraps ch as a subscription. Stream implementations
// and test stubs feed ch and report connection state with SetOnline.
func NewEffectSubscription(ch <-chan domain.Effect) *EffectSubscription {
	s := &EffectSubscription{C: ch}
	s.cursor.Store("")
	return s
}

// Online reports whether the stream is currently connected.
func (s *EffectSubscription) Online() bool {
	return s.online.Load()
}

// SetOnline records the connection state.
func (s *EffectSubscription) SetOnline(online bool) {
	s.online.Store(online)
}

// Cursor returns the paging token of the last delivered effect.
func (s *EffectSubscription) Cursor() string {
	return s.cursor.Load().(string)
}

func (s *EffectSubscription) setCursor(c string) {
	s.cursor.Store(c)
}
