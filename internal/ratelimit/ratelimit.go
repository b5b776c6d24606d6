// Package ratelimit provides the token-bucket limiter shared by outbound
// processor calls and inbound processing triggers.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter wraps a token bucket. It is safe for concurrent use because the
// underlying rate.Limiter is goroutine-safe. A nil *Limiter never limits.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing ratePerSecond sustained events with the
// given burst. A non-positive rate yields an unlimited limiter.
func New(ratePerSecond float64, burst int) *Limiter {
	if ratePerSecond <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Wait blocks until an event is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	return l.limiter.Wait(ctx)
}

// Allow reports whether an event may happen now, consuming a token if so.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.limiter.Allow()
}

// SetRate updates the sustained rate while keeping the burst size.
func (l *Limiter) SetRate(ratePerSecond float64) {
	if l == nil {
		return
	}
	if ratePerSecond <= 0 {
		l.limiter.SetLimit(rate.Inf)
		return
	}
	l.limiter.SetLimit(rate.Limit(ratePerSecond))
}

// Tokens returns the number of tokens currently available.
func (l *Limiter) Tokens() float64 {
	if l == nil {
		return 0
	}
	return l.limiter.Tokens()
}
