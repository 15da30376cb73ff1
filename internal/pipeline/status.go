package pipeline

import (
	"context"
	"sync"
	"time"

	"wallet-notifier/internal/async"
	"wallet-notifier/internal/debounce"
	"wallet-notifier/internal/domain"
	"wallet-notifier/internal/horizon"
	"wallet-notifier/internal/observability"
)

// tracking is the live state of one tracked account.
type tracking struct {
	ctx    context.Context
	cancel context.CancelFunc
	sub    *horizon.EffectSubscription

	activity *debounce.State[[]domain.Effect]
	limit    int

	startedAt time.Time
	resumed   bool

	mu         sync.Mutex
	account    domain.Account
	lookupSeq  uint64
	lastLookup async.Status[[]domain.Offer]
	looked     bool
}

func newTracking(ctx context.Context, cancel context.CancelFunc, account domain.Account, sub *horizon.EffectSubscription, limit int, delay time.Duration) *tracking {
	t := &tracking{
		ctx:      ctx,
		cancel:   cancel,
		sub:      sub,
		account:  account,
		activity: debounce.New[[]domain.Effect](nil, debounce.WithDelay(delay)),
		limit:    limit,
	}
	t.activity.OnPublish(func([]domain.Effect) { observability.RecordActivityPublish() })
	return t
}

func (t *tracking) snapshot() domain.Account {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.account
}

func (t *tracking) rename(name string) {
	t.mu.Lock()
	t.account.Name = name
	t.mu.Unlock()
}

// record prepends e to the activity feed, newest first.
func (t *tracking) record(e domain.Effect) {
	limit := t.limit
	t.activity.Apply(func(prev []domain.Effect) []domain.Effect {
		next := make([]domain.Effect, 0, min(len(prev)+1, limit))
		next = append(next, e)
		for _, p := range prev {
			if len(next) == limit {
				break
			}
			next = append(next, p)
		}
		return next
	})
}

func (t *tracking) beginLookup() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lookupSeq++
	t.lastLookup = async.Pending[[]domain.Offer]()
	t.looked = true
	return t.lookupSeq
}

// finishLookup stores the outcome unless a newer lookup started meanwhile.
func (t *tracking) finishLookup(seq uint64, s async.Status[[]domain.Offer]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if seq != t.lookupSeq {
		return
	}
	if next, ok := t.lastLookup.Then(s); ok {
		t.lastLookup = next
	}
}

func (t *tracking) lookup() (async.Status[[]domain.Offer], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastLookup, t.looked
}

func (t *tracking) teardown() {
	t.cancel()
	t.activity.Close()
}

// AccountStatus summarizes one tracked account.
type AccountStatus struct {
	AccountID  string `json:"account_id"`
	Name       string `json:"name"`
	Network    string `json:"network"`
	Online     bool   `json:"online"`
	Cursor     string `json:"cursor,omitempty"`
	Activity   int    `json:"activity"`
	LastLookup string `json:"last_lookup"`
	OpenOffers int    `json:"open_offers,omitempty"`
	LookupErr  string `json:"lookup_error,omitempty"`
}

// Status reports every tracked account, ordered by id.
func (n *Notifier) Status() []AccountStatus {
	list := n.snapshot()
	out := make([]AccountStatus, 0, len(list))
	online := 0
	for _, t := range list {
		account := t.snapshot()
		st := AccountStatus{
			AccountID:  account.ID,
			Name:       account.Name,
			Network:    account.Network().String(),
			Online:     t.sub.Online(),
			Cursor:     t.sub.Cursor(),
			Activity:   len(t.activity.Get()),
			LastLookup: "none",
		}
		if st.Online {
			online++
		}
		if s, ok := t.lookup(); ok {
			st.LastLookup = s.State().String()
			async.Match(s,
				func() struct{} { return struct{}{} },
				func(offers []domain.Offer) struct{} {
					st.OpenOffers = len(offers)
					return struct{}{}
				},
				func(err error) struct{} {
					st.LookupErr = err.Error()
					return struct{}{}
				},
			)
		}
		out = append(out, st)
	}
	observability.UpdateStreams(len(list), online)
	return out
}

// Activity returns the debounced activity feed of an account, newest first.
func (n *Notifier) Activity(accountID string) ([]domain.Effect, error) {
	t, ok := n.get(accountID)
	if !ok {
		return nil, ErrNotTracked
	}
	return append([]domain.Effect(nil), t.activity.Get()...), nil
}

// LastLookup returns the status of the latest open offers lookup of an
// account. ok is false when no lookup ran yet.
func (n *Notifier) LastLookup(accountID string) (s async.Status[[]domain.Offer], ok bool, err error) {
	t, found := n.get(accountID)
	if !found {
		return s, false, ErrNotTracked
	}
	s, ok = t.lookup()
	return s, ok, nil
}

// Tracked returns the tracked accounts ordered by id.
func (n *Notifier) Tracked() []domain.Account {
	list := n.snapshot()
	out := make([]domain.Account, 0, len(list))
	for _, t := range list {
		out = append(out, t.snapshot())
	}
	return out
}

func (n *Notifier) updateStreamMetrics() {
	list := n.snapshot()
	online := 0
	for _, t := range list {
		if t.sub.Online() {
			online++
		}
	}
	observability.UpdateStreams(len(list), online)
}
