package api

import (
	"time"

	domainerrors "github.com/beaconapp/beacon-server/internal/errors"
	"github.com/beaconapp/beacon-server/internal/ratelimit"
)

// RateLimiter wraps KeyedRateLimiter for API use.
type RateLimiter = ratelimit.KeyedRateLimiter

// Rate is "Requests per Interval" with a burst allowance.
type Rate struct {
	Requests int
	Interval time.Duration
	Burst    int
}

// NewRateLimiter creates a keyed limiter for r. A zero Rate disables limiting.
func NewRateLimiter(r Rate) *RateLimiter {
	if r.Requests <= 0 || r.Interval <= 0 {
		return nil
	}
	burst := r.Burst
	if burst <= 0 {
		burst = r.Requests
	}
	return ratelimit.New(ratelimit.Per(r.Requests, r.Interval), burst)
}

// allow spends one token from key's bucket or returns a RATE_LIMITED error.
func (s *Server) allow(limiter *RateLimiter, key string) error {
	if limiter == nil || key == "" {
		return nil
	}
	if limiter.Allow(key) {
		return nil
	}
	s.logger.Warn("Rate limit exceeded", "key", key)
	return domainerrors.RateLimited("Too many requests. Please try again later.").
		WithDetails(map[string]any{"retry_after_seconds": int(limiter.RetryAfter(key).Round(time.Second) / time.Second)})
}
