package stub

import (
	"context"
	"sync"

	"wallet-notifier/internal/domain"
	"wallet-notifier/internal/multisig"
)

// Source implements multisig.Source for testing.
type Source struct {
	mu       sync.Mutex
	subs     []*sub
	accounts []string
	// SubscribeErr, when set, is returned by SubscribeSignatureRequests.
	SubscribeErr error
}

type sub struct {
	ch   chan domain.SignatureRequest
	done <-chan struct{}
}

// NewSource creates a new stub source.
func NewSource() *Source {
	return &Source{}
}

// SubscribeSignatureRequests registers a subscriber.
func (s *Source) SubscribeSignatureRequests(ctx context.Context) (<-chan domain.SignatureRequest, error) {
	if s.SubscribeErr != nil {
		return nil, s.SubscribeErr
	}
	ch := make(chan domain.SignatureRequest, 16)
	s.mu.Lock()
	s.subs = append(s.subs, &sub{ch: ch, done: ctx.Done()})
	s.mu.Unlock()
	return ch, nil
}

// SetAccounts records the watched accounts.
func (s *Source) SetAccounts(_ context.Context, accountIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = append([]string(nil), accountIDs...)
	return nil
}

// Accounts returns the last watched set.
func (s *Source) Accounts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.accounts...)
}

// Subscribers returns the number of live subscribers.
func (s *Source) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sb := range s.subs {
		select {
		case <-sb.done:
		default:
			n++
		}
	}
	return n
}

// Publish delivers req to every live subscriber and returns how many
// received it.
func (s *Source) Publish(req domain.SignatureRequest) int {
	s.mu.Lock()
	subs := append([]*sub(nil), s.subs...)
	s.mu.Unlock()

	n := 0
	for _, sb := range subs {
		select {
		case sb.ch <- req:
			n++
		case <-sb.done:
		}
	}
	return n
}

var _ multisig.Source = (*Source)(nil)
