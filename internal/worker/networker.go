package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"wallet-notifier/internal/domain"
	"wallet-notifier/internal/horizon"
	"wallet-notifier/internal/observability"
)

// Methods served by NetWorker.
const (
	MethodOpenOffers   = "openOffers"
	MethodAccountData  = "accountData"
	MethodLatestLedger = "latestLedger"
	MethodStatus       = "status"
)

// DefaultProbeInterval is the ledger probe period.
const DefaultProbeInterval = 30 * time.Second

var (
	ErrUnknownMethod  = errors.New("unknown method")
	ErrUnknownNetwork = errors.New("unknown network")
)

// AccountParams addresses one account on a network.
type AccountParams struct {
	Network   domain.Network `json:"network"`
	AccountID string         `json:"account_id"`
}

// NetworkParams addresses a network.
type NetworkParams struct {
	Network domain.Network `json:"network"`
}

// Status is the background context's view of the networks.
type Status struct {
	Paused      bool                                 `json:"paused"`
	Ledgers     map[domain.Network]domain.LedgerInfo `json:"ledgers"`
	ProbeErrors map[domain.Network]string            `json:"probe_errors,omitempty"`
}

// NetWorker owns the Horizon clients of every network. Its ledger probe is
// suspended while paused; requests are always served.
type NetWorker struct {
	clients  map[domain.Network]horizon.API
	interval time.Duration
	logger   *log.Logger

	mu       sync.Mutex
	paused   bool
	resume   chan struct{}
	ledgers  map[domain.Network]domain.LedgerInfo
	probeErr map[domain.Network]string

	probes atomic.Int64
}

// NetWorkerOption configures NetWorker.
type NetWorkerOption func(*NetWorker)

// WithProbeInterval sets the ledger probe period. Zero disables probing.
func WithProbeInterval(d time.Duration) NetWorkerOption {
	return func(w *NetWorker) {
		w.interval = d
	}
}

// WithNetLogger sets the logger.
func WithNetLogger(l *log.Logger) NetWorkerOption {
	return func(w *NetWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewNetWorker creates a NetWorker and starts its probe loop, which stops
// when ctx is done.
func NewNetWorker(ctx context.Context, clients map[domain.Network]horizon.API, opts ...NetWorkerOption) *NetWorker {
	w := &NetWorker{
		clients:  clients,
		interval: DefaultProbeInterval,
		logger:   log.New(os.Stdout, "[networker] ", log.LstdFlags),
		ledgers:  make(map[domain.Network]domain.LedgerInfo),
		probeErr: make(map[domain.Network]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.interval > 0 {
		go w.probeLoop(ctx)
	}
	return w
}

// Handle serves bridge requests.
func (w *NetWorker) Handle(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case MethodOpenOffers:
		var p AccountParams
		api, err := w.decodeAccount(params, &p)
		if err != nil {
			return nil, err
		}
		return api.Offers(ctx, p.AccountID)

	case MethodAccountData:
		var p AccountParams
		api, err := w.decodeAccount(params, &p)
		if err != nil {
			return nil, err
		}
		return api.Account(ctx, p.AccountID)

	case MethodLatestLedger:
		var p NetworkParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
		api, err := w.client(p.Network)
		if err != nil {
			return nil, err
		}
		info, err := api.LatestLedger(ctx)
		if err != nil {
			return nil, err
		}
		w.observe(p.Network, info, nil)
		return info, nil

	case MethodStatus:
		return w.Status(), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
}

func (w *NetWorker) decodeAccount(params json.RawMessage, p *AccountParams) (horizon.API, error) {
	if err := json.Unmarshal(params, p); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	if p.AccountID == "" {
		return nil, errors.New("account_id is required")
	}
	return w.client(p.Network)
}

func (w *NetWorker) client(network domain.Network) (horizon.API, error) {
	api, ok := w.clients[network]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, network)
	}
	return api, nil
}

// Control applies pause and resume.
func (w *NetWorker) Control(sig Signal) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch sig {
	case SignalPause:
		if w.paused {
			return
		}
		w.paused = true
		w.resume = make(chan struct{})
	case SignalResume:
		if !w.paused {
			return
		}
		w.paused = false
		close(w.resume)
		w.resume = nil
	default:
		return
	}
	observability.SetWorkerPaused(w.paused)
	w.logger.Printf("paused=%v", w.paused)
}

// Paused reports whether probing is suspended.
func (w *NetWorker) Paused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paused
}

// Probes returns the number of completed probe rounds.
func (w *NetWorker) Probes() int64 {
	return w.probes.Load()
}

// Status returns a snapshot of the pause flag and the last probed ledgers.
func (w *NetWorker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Status{
		Paused:  w.paused,
		Ledgers: make(map[domain.Network]domain.LedgerInfo, len(w.ledgers)),
	}
	for n, l := range w.ledgers {
		s.Ledgers[n] = l
	}
	if len(w.probeErr) > 0 {
		s.ProbeErrors = make(map[domain.Network]string, len(w.probeErr))
		for n, e := range w.probeErr {
			s.ProbeErrors[n] = e
		}
	}
	return s
}

// gate returns the resume channel while paused, nil otherwise.
func (w *NetWorker) gate() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.paused {
		return nil
	}
	return w.resume
}

func (w *NetWorker) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if gate := w.gate(); gate != nil {
			select {
			case <-ctx.Done():
				return
			case <-gate:
			}
			ticker.Reset(w.interval)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.Paused() {
				continue
			}
			w.probe(ctx)
		}
	}
}

func (w *NetWorker) probe(ctx context.Context) {
	for network, api := range w.clients {
		info, err := api.LatestLedger(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			observability.RecordProbeError(network.String())
			w.logger.Printf("probe %s: %v", network, err)
		}
		w.observe(network, info, err)
	}
	w.probes.Add(1)
}

func (w *NetWorker) observe(network domain.Network, info *domain.LedgerInfo, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.probeErr[network] = err.Error()
		return
	}
	delete(w.probeErr, network)
	w.ledgers[network] = *info
	observability.UpdateLedgerSequence(network.String(), info.Sequence)
}

var _ Handler = (*NetWorker)(nil)
