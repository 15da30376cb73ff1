package stub

import (
	"context"
	"errors"
	"sync"

	"wallet-notifier/internal/domain"
	"wallet-notifier/internal/horizon"
)

// ErrNotFound is returned for unknown accounts.
var ErrNotFound = &horizon.Error{Status: 404, Title: "Resource Missing"}

// Horizon implements horizon.API and horizon.EffectSource for testing.
// Effect channels are never closed; consumers stop on their own context.
type Horizon struct {
	mu         sync.Mutex
	offers     map[string][]domain.Offer
	offersErr  map[string]error
	accounts   map[string]*domain.AccountData
	ledger     *domain.LedgerInfo
	ledgerErr  error
	offerCalls map[string]int
	streams    map[string]*stream

	// BeforeOffers, when set, runs at the start of every Offers call.
	BeforeOffers func(ctx context.Context, accountID string)
}

type stream struct {
	ch   chan domain.Effect
	done <-chan struct{}
	sub  *horizon.EffectSubscription
}

// NewHorizon creates a new stub Horizon.
func NewHorizon() *Horizon {
	return &Horizon{
		offers:     make(map[string][]domain.Offer),
		offersErr:  make(map[string]error),
		accounts:   make(map[string]*domain.AccountData),
		offerCalls: make(map[string]int),
		streams:    make(map[string]*stream),
	}
}

// SetOffers replaces the open offers of an account.
func (h *Horizon) SetOffers(accountID string, offers ...domain.Offer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.offers[accountID] = append([]domain.Offer(nil), offers...)
	delete(h.offersErr, accountID)
}

// SetOffersError makes Offers fail for an account.
func (h *Horizon) SetOffersError(accountID string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.offersErr[accountID] = err
}

// SetAccount stores an account record.
func (h *Horizon) SetAccount(data *domain.AccountData) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.accounts[data.ID] = data
}

// SetLedger sets the LatestLedger result.
func (h *Horizon) SetLedger(info *domain.LedgerInfo, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ledger = info
	h.ledgerErr = err
}

// OfferCalls returns how many times Offers was called for an account.
func (h *Horizon) OfferCalls(accountID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.offerCalls[accountID]
}

// Offers returns the stored offers of an account.
func (h *Horizon) Offers(ctx context.Context, accountID string) ([]domain.Offer, error) {
	if h.BeforeOffers != nil {
		h.BeforeOffers(ctx, accountID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.offerCalls[accountID]++
	if err := h.offersErr[accountID]; err != nil {
		return nil, err
	}
	return append([]domain.Offer(nil), h.offers[accountID]...), nil
}

// Account returns the stored account record.
func (h *Horizon) Account(_ context.Context, accountID string) (*domain.AccountData, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	data, ok := h.accounts[accountID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *data
	return &cp, nil
}

// LatestLedger returns the configured ledger.
func (h *Horizon) LatestLedger(_ context.Context) (*domain.LedgerInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ledgerErr != nil {
		return nil, h.ledgerErr
	}
	if h.ledger == nil {
		return nil, errors.New("no ledger configured")
	}
	cp := *h.ledger
	return &cp, nil
}

// SubscribeEffects registers a stream for an account. The subscription is
// reported online until ctx is done.
func (h *Horizon) SubscribeEffects(ctx context.Context, accountID, _ string) (*horizon.EffectSubscription, error) {
	ch := make(chan domain.Effect, 16)
	sub := horizon.NewEffectSubscription(ch)
	sub.SetOnline(true)

	h.mu.Lock()
	h.streams[accountID] = &stream{ch: ch, done: ctx.Done(), sub: sub}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		sub.SetOnline(false)
	}()
	return sub, nil
}

// Subscribed reports whether a live stream exists for an account.
func (h *Horizon) Subscribed(accountID string) bool {
	h.mu.Lock()
	s, ok := h.streams[accountID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Emit delivers an effect on the account's stream. It returns false if no
// live stream exists.
func (h *Horizon) Emit(accountID string, e domain.Effect) bool {
	h.mu.Lock()
	s, ok := h.streams[accountID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case s.ch <- e:
		return true
	case <-s.done:
		return false
	}
}

var (
	_ horizon.API          = (*Horizon)(nil)
	_ horizon.EffectSource = (*Horizon)(nil)
)
