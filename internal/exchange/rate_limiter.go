package exchange

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter tracks a per-exchange token bucket budget. Callers acquire a
// token before issuing a request, per spec.md §5 ("Exchange rate-limit
// budgets are tracked per-exchange with a token bucket").
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewRateLimiter builds a limiter allowing rps requests/second per venue,
// with the given burst capacity.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{limiters: make(map[string]*rate.Limiter), rps: rps, burst: burst}
}

func (r *RateLimiter) limiterFor(venue string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[venue]
	if !ok {
		l = rate.NewLimiter(rate.Limit(r.rps), r.burst)
		r.limiters[venue] = l
	}
	return l
}

// Acquire blocks until a token is available for venue or ctx is done.
func (r *RateLimiter) Acquire(ctx context.Context, venue string) error {
	return r.limiterFor(venue).Wait(ctx)
}

// SetLimit overrides the rps/burst for a venue, e.g. after the venue signals
// a tighter budget via a RateLimit error's retryAfter hint.
func (r *RateLimiter) SetLimit(venue string, rps float64, burst int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[venue] = rate.NewLimiter(rate.Limit(rps), burst)
}
