// Package notify delivers desktop notifications and routes their clicks.
package notify

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

// Kind classifies a notification.
type Kind string

const (
	KindTrade            Kind = "trade"
	KindSignatureRequest Kind = "signature_request"
)

// RouteAllAccounts is the all-accounts view.
const RouteAllAccounts = "/accounts"

// AccountRoute returns the view of one account.
func AccountRoute(accountID string) string {
	return "/account/" + url.PathEscape(accountID)
}

// Notification is one desktop notification. Route is the view opened when
// the user clicks it.
type Notification struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Route     string    `json:"route"`
	CreatedAt time.Time `json:"created_at"`
}

// New builds a notification with a fresh id.
func New(kind Kind, title, body, route string) Notification {
	return Notification{
		ID:        NewID(),
		Kind:      kind,
		Title:     title,
		Body:      body,
		Route:     route,
		CreatedAt: time.Now().UTC(),
	}
}

// NewID returns a random notification id: a base58 encoded UUIDv4.
func NewID() string {
	id := uuid.New()
	return base58.Encode(id[:])
}

// Dispatcher shows notifications.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// Navigator opens a view of the desktop shell.
type Navigator interface {
	Navigate(ctx context.Context, route string) error
}

// Nop drops notifications. It stands in on platforms without a
// notification surface.
type Nop struct{}

// Dispatch does nothing.
func (Nop) Dispatch(context.Context, Notification) error { return nil }

// Navigate does nothing.
func (Nop) Navigate(context.Context, string) error { return nil }

var (
	_ Dispatcher = Nop{}
	_ Navigator  = Nop{}
)
