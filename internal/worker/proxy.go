package worker

import (
	"context"

	"wallet-notifier/internal/async"
	"wallet-notifier/internal/domain"
)

// Proxy is the typed foreground API of a NetWorker bridge.
type Proxy struct {
	bridge *Bridge
}

// NewProxy wraps b.
func NewProxy(b *Bridge) *Proxy {
	return &Proxy{bridge: b}
}

// Bridge returns the underlying bridge.
func (p *Proxy) Bridge() *Bridge {
	return p.bridge
}

// OpenOffersAsync queries the open offers of an account in the background.
// Every call goes to Horizon; results are never cached.
func (p *Proxy) OpenOffersAsync(ctx context.Context, network domain.Network, accountID string) <-chan async.Status[[]domain.Offer] {
	return Async[[]domain.Offer](ctx, p.bridge, MethodOpenOffers, AccountParams{Network: network, AccountID: accountID})
}

// AccountData returns the Horizon account record.
func (p *Proxy) AccountData(ctx context.Context, network domain.Network, accountID string) (*domain.AccountData, error) {
	var data domain.AccountData
	if err := p.bridge.Call(ctx, MethodAccountData, AccountParams{Network: network, AccountID: accountID}, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// LatestLedger returns the latest ledger of a network.
func (p *Proxy) LatestLedger(ctx context.Context, network domain.Network) (*domain.LedgerInfo, error) {
	var info domain.LedgerInfo
	if err := p.bridge.Call(ctx, MethodLatestLedger, NetworkParams{Network: network}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Status returns the background status.
func (p *Proxy) Status(ctx context.Context) (*Status, error) {
	var s Status
	if err := p.bridge.Call(ctx, MethodStatus, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Pause suspends background polling.
func (p *Proxy) Pause() { p.bridge.Signal(SignalPause) }

// Resume restarts background polling.
func (p *Proxy) Resume() { p.bridge.Signal(SignalResume) }
