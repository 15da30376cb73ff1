// Package pipeline turns live account effects and co-signing requests into
// desktop notifications.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"wallet-notifier/internal/async"
	"wallet-notifier/internal/debounce"
	"wallet-notifier/internal/domain"
	"wallet-notifier/internal/errtrack"
	"wallet-notifier/internal/horizon"
	"wallet-notifier/internal/idhash"
	"wallet-notifier/internal/multisig"
	"wallet-notifier/internal/notify"
	"wallet-notifier/internal/observability"
	"wallet-notifier/internal/storage"
)

// Notification texts.
const (
	TradeTitlePrefix    = "Trade completed | "
	SignatureTitle      = "New transaction to co-sign"
	SignatureBodyPrefix = "From "
)

// DefaultActivityLimit caps the activity feed of one account.
const DefaultActivityLimit = 50

// Error tracker sources.
const (
	SourceOfferLookup = "offer_lookup"
	SourceTrade       = "trade"
	SourceJournal     = "trade_journal"
	SourceCursor      = "stream_cursor"
	SourceDispatch    = "dispatch"
	SourceSignatures  = "signature_requests"
)

var (
	ErrNotStarted     = errors.New("notifier not started")
	ErrUnknownNetwork = errors.New("no effect source for network")
	ErrNotTracked     = errors.New("account not tracked")
)

// OfferLookup queries the currently open offers of an account. The channel
// yields one terminal status.
type OfferLookup interface {
	OpenOffersAsync(ctx context.Context, network domain.Network, accountID string) <-chan async.Status[[]domain.Offer]
}

// Notifier watches tracked accounts and dispatches notifications.
type Notifier struct {
	sources    map[domain.Network]horizon.EffectSource
	lookup     OfferLookup
	signatures multisig.Source
	dispatcher notify.Dispatcher
	tracker    *errtrack.Tracker
	trades     storage.TradeStore
	cursors    storage.CursorStore
	logger     *log.Logger
	clock      func() time.Time

	activityLimit int
	debounceDelay time.Duration

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	tracked map[string]*tracking

	sigMu sync.Mutex // serializes multisig account updates
	wg    sync.WaitGroup
}

// NewNotifier creates a Notifier reading effects from sources and checking
// offers through lookup.
func NewNotifier(sources map[domain.Network]horizon.EffectSource, lookup OfferLookup) *Notifier {
	return &Notifier{
		sources:       sources,
		lookup:        lookup,
		dispatcher:    notify.Nop{},
		logger:        log.New(os.Stdout, "[pipeline] ", log.LstdFlags),
		clock:         func() time.Time { return time.Now().UTC() },
		activityLimit: DefaultActivityLimit,
		debounceDelay: debounce.DefaultDelay,
		tracked:       make(map[string]*tracking),
	}
}

// WithSignatureSource subscribes to co-signing requests.
func (n *Notifier) WithSignatureSource(s multisig.Source) *Notifier {
	n.signatures = s
	return n
}

// WithDispatcher sets the notification surface. A nil dispatcher drops
// notifications silently.
func (n *Notifier) WithDispatcher(d notify.Dispatcher) *Notifier {
	if d == nil {
		d = notify.Nop{}
	}
	n.dispatcher = d
	return n
}

// WithTracker sets the error tracker.
func (n *Notifier) WithTracker(t *errtrack.Tracker) *Notifier {
	n.tracker = t
	return n
}

// WithTradeStore journals completed trades. Trades already journaled are
// not notified again.
func (n *Notifier) WithTradeStore(s storage.TradeStore) *Notifier {
	n.trades = s
	return n
}

// WithCursorStore resumes effect streams from their last position.
func (n *Notifier) WithCursorStore(s storage.CursorStore) *Notifier {
	n.cursors = s
	return n
}

// WithLogger sets the logger.
func (n *Notifier) WithLogger(l *log.Logger) *Notifier {
	if l != nil {
		n.logger = l
	}
	return n
}

// WithClock sets the time source.
func (n *Notifier) WithClock(clock func() time.Time) *Notifier {
	n.clock = clock
	return n
}

// WithActivityLimit caps the per-account activity feed.
func (n *Notifier) WithActivityLimit(limit int) *Notifier {
	if limit > 0 {
		n.activityLimit = limit
	}
	return n
}

// WithDebounceDelay sets the activity feed debounce window.
func (n *Notifier) WithDebounceDelay(d time.Duration) *Notifier {
	if d > 0 {
		n.debounceDelay = d
	}
	return n
}

// Start binds the notifier to ctx and subscribes to co-signing requests.
// Accounts may be tracked once Start returns.
func (n *Notifier) Start(ctx context.Context) error {
	if n.tracker == nil {
		n.tracker = errtrack.New(n.logger)
	}

	ctx, cancel := context.WithCancel(ctx)

	if n.signatures != nil {
		ch, err := n.signatures.SubscribeSignatureRequests(ctx)
		if err != nil {
			cancel()
			return fmt.Errorf("subscribe signature requests: %w", err)
		}
		n.wg.Add(1)
		go n.consumeSignatures(ctx, ch)
	}

	n.mu.Lock()
	n.ctx, n.cancel = ctx, cancel
	n.mu.Unlock()
	return nil
}

// Stop tears down every subscription and waits for in-flight work.
func (n *Notifier) Stop() {
	n.mu.Lock()
	tracked := n.tracked
	n.tracked = make(map[string]*tracking)
	cancel := n.cancel
	n.ctx, n.cancel = nil, nil
	n.mu.Unlock()

	for _, t := range tracked {
		t.teardown()
	}
	if cancel != nil {
		cancel()
	}
	n.wg.Wait()
	observability.UpdateStreams(0, 0)
}

// Track subscribes to the effects of account. Tracking an account again
// only refreshes its name.
func (n *Notifier) Track(account domain.Account) error {
	n.mu.Lock()
	base := n.ctx
	if base == nil {
		n.mu.Unlock()
		return ErrNotStarted
	}
	if t, ok := n.tracked[account.ID]; ok {
		t.rename(account.Name)
		n.mu.Unlock()
		return nil
	}
	n.mu.Unlock()

	source, ok := n.sources[account.Network()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNetwork, account.Network())
	}

	cursor, resumed := n.startCursor(base, account.ID)

	ctx, cancel := context.WithCancel(base)
	sub, err := source.SubscribeEffects(ctx, account.PublicKey, cursor)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe effects of %s: %w", account.ID, err)
	}

	t := newTracking(ctx, cancel, account, sub, n.activityLimit, n.debounceDelay)
	t.startedAt = n.clock()
	t.resumed = resumed

	n.mu.Lock()
	if _, dup := n.tracked[account.ID]; dup || n.ctx == nil {
		n.mu.Unlock()
		t.teardown()
		return nil
	}
	n.tracked[account.ID] = t
	// Added under mu so a concurrent Stop cannot already be waiting.
	n.wg.Add(1)
	n.mu.Unlock()

	go n.consumeEffects(t)

	n.logger.Printf("tracking %s (%s) from %s", account.ID, account.Name, cursor)
	n.syncSignatureAccounts()
	n.updateStreamMetrics()
	return nil
}

// Untrack tears down the subscription of an account. Lookups still in
// flight are discarded.
func (n *Notifier) Untrack(accountID string) error {
	n.mu.Lock()
	t, ok := n.tracked[accountID]
	delete(n.tracked, accountID)
	n.mu.Unlock()

	if !ok {
		return ErrNotTracked
	}
	t.teardown()
	n.logger.Printf("untracked %s", accountID)
	n.syncSignatureAccounts()
	n.updateStreamMetrics()
	return nil
}

func (n *Notifier) startCursor(ctx context.Context, accountID string) (string, bool) {
	if n.cursors == nil {
		return horizon.CursorNow, false
	}
	cursor, err := n.cursors.GetCursor(ctx, accountID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			n.tracker.Track(ctx, SourceCursor, err, map[string]string{"account": accountID})
		}
		return horizon.CursorNow, false
	}
	return cursor, true
}

func (n *Notifier) get(accountID string) (*tracking, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	t, ok := n.tracked[accountID]
	return t, ok
}

func (n *Notifier) snapshot() []*tracking {
	n.mu.Lock()
	defer n.mu.Unlock()
	list := make([]*tracking, 0, len(n.tracked))
	for _, t := range n.tracked {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].account.ID < list[j].account.ID })
	return list
}

func (n *Notifier) consumeEffects(t *tracking) {
	defer n.wg.Done()
	for {
		select {
		case <-t.ctx.Done():
			return
		case e, ok := <-t.sub.C:
			if !ok {
				return
			}
			n.handleEffect(t, e)
		}
	}
}

func (n *Notifier) handleEffect(t *tracking, e domain.Effect) {
	account := t.snapshot()
	observability.RecordEffect(account.Network().String(), e.Type)
	t.record(e)

	if n.cursors != nil && e.PagingToken != "" {
		if err := n.cursors.SetCursor(t.ctx, account.ID, e.PagingToken); err != nil && t.ctx.Err() == nil {
			n.tracker.Track(t.ctx, SourceCursor, err, map[string]string{"account": account.ID})
		}
	}

	if !e.IsTrade() {
		return
	}
	// Effects replayed from a stored cursor only catch up the feed.
	if t.resumed && e.CreatedAt.Before(t.startedAt) {
		return
	}

	n.wg.Add(1)
	go n.lookupAndNotify(t, e)
}

// lookupAndNotify queries the open offers fresh for every trade: a still
// open offer means the trade filled it only partially.
func (n *Notifier) lookupAndNotify(t *tracking, e domain.Effect) {
	defer n.wg.Done()

	account := t.snapshot()
	seq := t.beginLookup()
	status := async.Await(t.ctx, n.lookup.OpenOffersAsync(t.ctx, account.Network(), account.PublicKey))
	t.finishLookup(seq, status)

	if t.ctx.Err() != nil {
		observability.RecordLookupDiscarded()
		return
	}
	offers, err := status.Result()
	if err != nil {
		observability.RecordLookupError()
		n.tracker.Track(t.ctx, SourceOfferLookup, err, map[string]string{
			"account": account.ID,
			"offer":   e.OfferID.String(),
			"effect":  e.ID,
		})
		return
	}
	if domain.ContainsOffer(offers, e.OfferID) {
		observability.RecordTradeSuppressed()
		return
	}

	n.notifyTrade(t.ctx, account, e)
}

func (n *Notifier) notifyTrade(ctx context.Context, account domain.Account, e domain.Effect) {
	tradeID := idhash.ComputeTradeID(account.ID, e.OfferID.String(), e.ID)
	trade, err := domain.NewCompletedTrade(tradeID, account, e, n.clock().UnixMilli())
	if err != nil {
		n.tracker.Track(ctx, SourceTrade, err, map[string]string{"account": account.ID, "effect": e.ID})
		return
	}

	if n.trades != nil {
		if err := n.trades.Insert(ctx, trade); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				n.logger.Printf("trade %s of %s already notified", e.ID, account.ID)
				return
			}
			n.tracker.Track(ctx, SourceJournal, err, map[string]string{"account": account.ID, "trade": tradeID})
		}
	}

	if ctx.Err() != nil {
		observability.RecordLookupDiscarded()
		return
	}
	n.dispatch(ctx, notify.New(
		notify.KindTrade,
		TradeTitlePrefix+displayName(account),
		trade.Details(),
		notify.AccountRoute(account.ID),
	))
}

func (n *Notifier) consumeSignatures(ctx context.Context, ch <-chan domain.SignatureRequest) {
	defer n.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-ch:
			if !ok {
				return
			}
			n.dispatch(ctx, SignatureRequestNotification(req))
		}
	}
}

// SignatureRequestNotification builds the notification of a new co-signing
// request. Only signers that already signed are listed.
func SignatureRequestNotification(req domain.SignatureRequest) notify.Notification {
	return notify.New(
		notify.KindSignatureRequest,
		SignatureTitle,
		SignatureBodyPrefix+strings.Join(req.SignedBy(), ", "),
		notify.RouteAllAccounts,
	)
}

func (n *Notifier) dispatch(ctx context.Context, msg notify.Notification) {
	if err := n.dispatcher.Dispatch(ctx, msg); err != nil {
		n.tracker.Track(ctx, SourceDispatch, err, map[string]string{"kind": string(msg.Kind)})
		return
	}
	observability.RecordNotification(string(msg.Kind))
}

// syncSignatureAccounts pushes the tracked public keys to the co-signing
// service.
func (n *Notifier) syncSignatureAccounts() {
	if n.signatures == nil {
		return
	}

	n.sigMu.Lock()
	defer n.sigMu.Unlock()

	n.mu.Lock()
	ctx := n.ctx
	seen := make(map[string]struct{}, len(n.tracked))
	keys := make([]string, 0, len(n.tracked))
	for _, t := range n.tracked {
		key := t.snapshot().PublicKey
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	n.mu.Unlock()

	if ctx == nil || ctx.Err() != nil {
		return
	}
	sort.Strings(keys)
	if err := n.signatures.SetAccounts(ctx, keys); err != nil {
		n.tracker.Track(ctx, SourceSignatures, err, nil)
	}
}

func displayName(a domain.Account) string {
	if a.Name != "" {
		return a.Name
	}
	return a.PublicKey
}
