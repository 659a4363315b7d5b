// Package server implements a token bucket rate limiter for per-connection
// throttling that protects the gateway from abuse.
package server

import (
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter throttles inbound events on one connection: a full bucket of
// capacity events, refilled at capacity per interval.
type rateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(capacity int, interval time.Duration) *rateLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	every := rate.Every(interval / time.Duration(capacity))
	return &rateLimiter{limiter: rate.NewLimiter(every, capacity)}
}

func (rl *rateLimiter) allow() bool {
	return rl.limiter.Allow()
}
