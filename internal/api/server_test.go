package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-notifier/internal/domain"
	"wallet-notifier/internal/errtrack"
	"wallet-notifier/internal/pipeline"
	"wallet-notifier/internal/storage"
	"wallet-notifier/internal/storage/memory"
	"wallet-notifier/internal/worker"
)

const (
	testKey   = "GA7QYNF7SOWQ3GLR2BGMZEHXAVIRZA4KVWLTJJFC7MGXUA74P7UJVSGZ"
	usdIssuer = "GDUKMGUGDZQK6YHYA5Z6AY2G4XDSZPSZ3SW5UN3ARVMO6QSRDWP5YLEX"
)

type fakeNotifier struct {
	mu        sync.Mutex
	tracked   map[string]domain.Account
	activity  map[string][]domain.Effect
	untracked []string
	trackErr  error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		tracked:  make(map[string]domain.Account),
		activity: make(map[string][]domain.Effect),
	}
}

func (n *fakeNotifier) Track(a domain.Account) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.trackErr != nil {
		return n.trackErr
	}
	n.tracked[a.ID] = a
	return nil
}

func (n *fakeNotifier) Untrack(id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.untracked = append(n.untracked, id)
	if _, ok := n.tracked[id]; !ok {
		return pipeline.ErrNotTracked
	}
	delete(n.tracked, id)
	return nil
}

func (n *fakeNotifier) Status() []pipeline.AccountStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []pipeline.AccountStatus
	for id, a := range n.tracked {
		out = append(out, pipeline.AccountStatus{AccountID: id, Name: a.Name, Online: true, LastLookup: "none"})
	}
	return out
}

func (n *fakeNotifier) Activity(id string) ([]domain.Effect, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.tracked[id]; !ok {
		return nil, pipeline.ErrNotTracked
	}
	return n.activity[id], nil
}

type fakeWorker struct {
	mu         sync.Mutex
	signals    []string
	err        error
	accountErr error
}

func (w *fakeWorker) AccountData(_ context.Context, _ domain.Network, accountID string) (*domain.AccountData, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.accountErr != nil {
		return nil, w.accountErr
	}
	return &domain.AccountData{ID: accountID, Sequence: "1"}, nil
}

func (w *fakeWorker) Status(context.Context) (*worker.Status, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return nil, w.err
	}
	return &worker.Status{Paused: len(w.signals) > 0 && w.signals[len(w.signals)-1] == "pause"}, nil
}

func (w *fakeWorker) Pause() {
	w.mu.Lock()
	w.signals = append(w.signals, "pause")
	w.mu.Unlock()
}

func (w *fakeWorker) Resume() {
	w.mu.Lock()
	w.signals = append(w.signals, "resume")
	w.mu.Unlock()
}

type fixture struct {
	notifier *fakeNotifier
	worker   *fakeWorker
	accounts *memory.AccountStore
	trades   *memory.TradeStore
	cursors  *memory.CursorStore
	tracker  *errtrack.Tracker
	handler  http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		notifier: newFakeNotifier(),
		worker:   &fakeWorker{},
		accounts: memory.NewAccountStore(),
		trades:   memory.NewTradeStore(),
		cursors:  memory.NewCursorStore(),
		tracker:  errtrack.New(log.New(&bytes.Buffer{}, "", 0)),
	}
	f.handler = New(Deps{
		Notifier: f.notifier,
		Worker:   f.worker,
		Accounts: f.accounts,
		Trades:   f.trades,
		Cursors:  f.cursors,
		Errors:   f.tracker,
		Logger:   log.New(&bytes.Buffer{}, "", 0),
		Clock:    func() time.Time { return time.UnixMilli(1700000000000) },
	}).Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetrics(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAddAccount(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/accounts", map[string]any{"public_key": testKey, "name": "Savings"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got AccountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "mainnet:"+testKey, got.ID)
	assert.Equal(t, "Savings", got.Name)
	assert.Equal(t, int64(1700000000000), got.CreatedAt)

	stored, err := f.accounts.Get(context.Background(), got.ID)
	require.NoError(t, err)
	assert.Equal(t, testKey, stored.PublicKey)
	assert.Contains(t, f.notifier.tracked, got.ID)

	rec = f.do(t, http.MethodGet, "/accounts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []AccountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, got.ID, list[0].ID)
}

func TestAddAccount_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"bad checksum", map[string]any{"public_key": "GA7QYNF7SOWQ3GLR2BGMZEHXAVIRZA4KVWLTJJFC7MGXUA74P7UJVSGA"}},
		{"empty", map[string]any{"name": "x"}},
		{"not json", "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			rec := f.do(t, http.MethodPost, "/accounts", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, f.notifier.tracked)
		})
	}
}

func TestAddAccount_TrackFailure(t *testing.T) {
	f := newFixture()
	f.notifier.trackErr = errors.New("no effect source")

	rec := f.do(t, http.MethodPost, "/accounts", map[string]any{"public_key": testKey, "testnet": true})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAddAccount_Unfunded(t *testing.T) {
	f := newFixture()
	f.worker.accountErr = &worker.RemoteError{Method: worker.MethodAccountData, Message: "horizon 404 Resource Missing", Status: http.StatusNotFound}

	rec := f.do(t, http.MethodPost, "/accounts", map[string]any{"public_key": testKey})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "not funded on mainnet")
	assert.Empty(t, f.notifier.tracked)

	list, err := f.accounts.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAddAccount_HorizonUnavailable(t *testing.T) {
	f := newFixture()
	f.worker.accountErr = &worker.RemoteError{Method: worker.MethodAccountData, Message: "horizon 503", Status: http.StatusServiceUnavailable}

	rec := f.do(t, http.MethodPost, "/accounts", map[string]any{"public_key": testKey})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Empty(t, f.notifier.tracked)
}

func TestDeleteAccount(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id := domain.AccountID(testKey, false)
	require.NoError(t, f.accounts.Upsert(ctx, &domain.Account{ID: id, PublicKey: testKey}))
	require.NoError(t, f.notifier.Track(domain.Account{ID: id, PublicKey: testKey}))
	require.NoError(t, f.cursors.SetCursor(ctx, id, "0001-1"))

	rec := f.do(t, http.MethodDelete, "/accounts/"+id, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, err := f.accounts.Get(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = f.cursors.GetCursor(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, []string{id}, f.notifier.untracked)

	rec = f.do(t, http.MethodDelete, "/accounts/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActivity(t *testing.T) {
	f := newFixture()
	id := domain.AccountID(testKey, false)

	rec := f.do(t, http.MethodGet, "/accounts/"+id+"/activity", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, f.notifier.Track(domain.Account{ID: id}))
	rec = f.do(t, http.MethodGet, "/accounts/"+id+"/activity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	f.notifier.activity[id] = []domain.Effect{{ID: "0001-2", Type: "trade"}}
	rec = f.do(t, http.MethodGet, "/accounts/"+id+"/activity", nil)
	var feed []domain.Effect
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feed))
	require.Len(t, feed, 1)
	assert.Equal(t, "0001-2", feed[0].ID)
}

func insertTrade(t *testing.T, f *fixture, id string, occurredAt int64, selling, buying domain.Asset) {
	t.Helper()
	require.NoError(t, f.trades.Insert(context.Background(), &domain.CompletedTrade{
		TradeID:      id,
		AccountID:    domain.AccountID(testKey, false),
		OfferID:      "42",
		EffectID:     id,
		Selling:      selling,
		Buying:       buying,
		SoldAmount:   decimal.RequireFromString("100"),
		BoughtAmount: decimal.RequireFromString("25"),
		Price:        decimal.RequireFromString("0.25"),
		OccurredAt:   occurredAt,
	}))
}

func TestTrades(t *testing.T) {
	f := newFixture()
	id := domain.AccountID(testKey, false)
	usd := domain.NewAsset("USD", usdIssuer)
	eur := domain.NewAsset("EUR", usdIssuer)
	insertTrade(t, f, "t1", 1000, domain.NativeAsset(), usd)
	insertTrade(t, f, "t2", 2000, eur, usd)

	rec := f.do(t, http.MethodGet, "/accounts/"+id+"/trades", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []TradeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 2)
	assert.Equal(t, "Sold 100 XLM for 25 USD at 0.25 USD/XLM", all[0].Details)

	rec = f.do(t, http.MethodGet, "/accounts/"+id+"/trades?asset="+eur.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var filtered []TradeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &filtered))
	require.Len(t, filtered, 1)
	assert.Equal(t, "t2", filtered[0].TradeID)

	rec = f.do(t, http.MethodGet, "/accounts/"+id+"/trades?asset=native", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &filtered))
	require.Len(t, filtered, 1)
	assert.Equal(t, "t1", filtered[0].TradeID)

	rec = f.do(t, http.MethodGet, "/accounts/"+id+"/trades?asset=BTC:"+usdIssuer, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), domain.ErrUnmatchedSelection.Error())
}

func TestLifecycle(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/lifecycle/pause", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"signal":"app:pause"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.NotNil(t, st.Worker)
	assert.True(t, st.Worker.Paused)

	rec = f.do(t, http.MethodPost, "/lifecycle/resume", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(t, http.MethodPost, "/lifecycle/reboot", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, []string{"pause", "resume"}, f.worker.signals)
}

func TestStatus(t *testing.T) {
	f := newFixture()
	f.worker.err = errors.New("construction failed")
	require.NoError(t, f.notifier.Track(domain.Account{ID: "mainnet:" + testKey, Name: "Savings"}))
	f.tracker.Track(context.Background(), "offer_lookup", errors.New("timeout"), nil)

	rec := f.do(t, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Nil(t, st.Worker)
	assert.Equal(t, "construction failed", st.WorkerError)
	require.Len(t, st.Accounts, 1)
	assert.Equal(t, "Savings", st.Accounts[0].Name)
	require.Len(t, st.RecentErrors, 1)
	assert.Equal(t, "offer_lookup", st.RecentErrors[0].Source)
}
