package horizon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"wallet-notifier/internal/domain"
)

const testAccount = "GA7QYNF7SOWQ3GLR2BGMZEHXAVIRZA4KVWLTJJFC7MGXUA74P7UJVSGZ"

func newTestClient(url string, opts ...ClientOption) *Client {
	opts = append([]ClientOption{
		WithRetry(2, time.Millisecond, 5*time.Millisecond),
		WithReconnectDelay(5*time.Millisecond, 20*time.Millisecond),
	}, opts...)
	return NewClient(domain.NetworkTestnet, url, opts...)
}

func TestClient_Offers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/"+testAccount+"/offers" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/hal+json")
		fmt.Fprint(w, `{"_embedded":{"records":[
			{"id":"42","paging_token":"42","seller":"`+testAccount+`",
			 "selling":{"asset_type":"native"},
			 "buying":{"asset_type":"credit_alphanum4","asset_code":"USD","asset_issuer":"GISSUER"},
			 "amount":"10.0000000","price":"0.2500000","last_modified_ledger":7},
			{"id":43,"paging_token":"43","selling":{"asset_type":"native"},"buying":{"asset_type":"native"}}
		]}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	defer client.Close()

	offers, err := client.Offers(context.Background(), testAccount)
	if err != nil {
		t.Fatalf("Offers: %v", err)
	}
	if len(offers) != 2 {
		t.Fatalf("expected 2 offers, got %d", len(offers))
	}
	if offers[0].ID != "42" || offers[1].ID != "43" {
		t.Errorf("unexpected offer ids %q %q", offers[0].ID, offers[1].ID)
	}
	if !offers[0].Selling.IsNative() {
		t.Errorf("expected native selling asset, got %s", offers[0].Selling)
	}
	if offers[0].Buying.String() != "USD:GISSUER" {
		t.Errorf("unexpected buying asset %s", offers[0].Buying)
	}
	if offers[0].LastModifiedLedger != 7 {
		t.Errorf("expected ledger 7, got %d", offers[0].LastModifiedLedger)
	}
}

func TestClient_OffersPagination(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/hal+json")
		if r.URL.Query().Get("limit") != "2" {
			t.Errorf("expected limit 2, got %s", r.URL.Query().Get("limit"))
		}
		switch r.URL.Query().Get("cursor") {
		case "":
			fmt.Fprint(w, `{"_embedded":{"records":[{"id":"1","paging_token":"1"},{"id":"2","paging_token":"2"}]}}`)
		case "2":
			fmt.Fprint(w, `{"_embedded":{"records":[{"id":"3","paging_token":"3"}]}}`)
		default:
			t.Errorf("unexpected cursor %s", r.URL.Query().Get("cursor"))
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, WithPageLimit(2))
	offers, err := client.Offers(context.Background(), testAccount)
	if err != nil {
		t.Fatalf("Offers: %v", err)
	}
	if len(offers) != 3 {
		t.Fatalf("expected 3 offers, got %d", len(offers))
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 page requests, got %d", calls.Load())
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/hal+json")
		fmt.Fprint(w, `{"history_latest_ledger":100,"core_latest_ledger":101,"network_passphrase":"Test SDF Network ; September 2015"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	info, err := client.LatestLedger(context.Background())
	if err != nil {
		t.Fatalf("LatestLedger: %v", err)
	}
	if info.Sequence != 100 || info.CoreSequence != 101 {
		t.Errorf("unexpected ledger %+v", info)
	}
	if info.Network != domain.NetworkTestnet {
		t.Errorf("expected testnet, got %s", info.Network)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestClient_ProblemResponse(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"type":"https://stellar.org/horizon-errors/not_found","title":"Resource Missing","status":404,"detail":"account not found"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Account(context.Background(), testAccount)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	var herr *Error
	if !errors.As(err, &herr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if herr.Retryable() {
		t.Error("404 must not be retryable")
	}
	if herr.Detail != "account not found" {
		t.Errorf("unexpected detail %q", herr.Detail)
	}
	if calls.Load() != 1 {
		t.Errorf("404 must not be retried, got %d calls", calls.Load())
	}
}

func TestClient_Account(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":             testAccount,
			"sequence":       "12345",
			"subentry_count": 2,
			"balances": []map[string]any{
				{"asset_type": "credit_alphanum4", "asset_code": "USD", "asset_issuer": "GISSUER", "balance": "5.0000000"},
				{"asset_type": "native", "balance": "100.0000000"},
			},
			"signers": []map[string]any{{"key": testAccount, "weight": 1, "type": "ed25519_public_key"}},
		})
	}))
	defer server.Close()

	data, err := newTestClient(server.URL).Account(context.Background(), testAccount)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if data.Sequence != "12345" || len(data.Balances) != 2 || len(data.Signers) != 1 {
		t.Fatalf("unexpected account %+v", data)
	}
	if !data.Balances[1].Asset.IsNative() {
		t.Error("expected second balance to be native")
	}
	if data.Signers[0].Weight != 1 {
		t.Errorf("unexpected signer weight %d", data.Signers[0].Weight)
	}
}

func TestError_Retryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{400, false},
		{404, false},
		{408, true},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		if got := newError(tt.status, nil).Retryable(); got != tt.want {
			t.Errorf("status %d: Retryable() = %v, want %v", tt.status, got, tt.want)
		}
	}

	e := newError(502, []byte("not json"))
	if e.Status != 502 || e.Title != "Bad Gateway" {
		t.Errorf("unexpected fallback error %+v", e)
	}
	if !strings.Contains(e.Error(), "502") {
		t.Errorf("error string missing status: %s", e.Error())
	}
}
