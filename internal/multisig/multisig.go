// Package multisig streams co-signing requests from a multi-signature
// coordination service.
package multisig

import (
	"context"

	"wallet-notifier/internal/domain"
)

// Source defines the signature request subscription interface.
type Source interface {
	// SubscribeSignatureRequests delivers every new signature request
	// concerning the watched accounts until ctx is done.
	SubscribeSignatureRequests(ctx context.Context) (<-chan domain.SignatureRequest, error)

	// SetAccounts replaces the set of watched accounts.
	SetAccounts(ctx context.Context, accountIDs []string) error
}

// Event names pushed by the service.
const (
	EventTransactionAdded     = "transaction:added"
	EventTransactionUpdated   = "transaction:updated"
	EventTransactionSubmitted = "transaction:submitted"
)
