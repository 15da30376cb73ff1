package horizon

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"wallet-notifier/internal/domain"
)

// Limiter throttles requests per network. Mainnet and testnet are served by
// different Horizon nodes with independent quotas.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[domain.Network]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewLimiter returns a limiter allowing rps requests per second per network.
// rps <= 0 disables limiting.
func NewLimiter(rps float64, burst int) *Limiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[domain.Network]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (l *Limiter) get(network domain.Network) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limiters[network]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[network]; ok {
		return lim
	}
	lim = rate.NewLimiter(l.limit, l.burst)
	l.limiters[network] = lim
	return lim
}

// Wait blocks until a request to network is permitted or ctx is done.
func (l *Limiter) Wait(ctx context.Context, network domain.Network) error {
	if l == nil {
		return nil
	}
	return l.get(network).Wait(ctx)
}

// Allow reports whether a request to network may happen now.
func (l *Limiter) Allow(network domain.Network) bool {
	if l == nil {
		return true
	}
	return l.get(network).Allow()
}
