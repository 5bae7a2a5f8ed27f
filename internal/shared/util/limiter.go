package util

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket; watch mode uses one per network to bound reruns.
type Limiter struct {
	inner *rate.Limiter
}

// NewLimiter creates a limiter refilling r tokens per second up to burst b.
func NewLimiter(r float64, b int) *Limiter {
	return &Limiter{
		inner: rate.NewLimiter(rate.Limit(r), b),
	}
}

// EveryLimiter refills one token per interval.
func EveryLimiter(interval time.Duration, b int) *Limiter {
	return &Limiter{inner: rate.NewLimiter(rate.Every(interval), b)}
}

// Allow reports whether n tokens are available now, consuming them if so.
func (l *Limiter) Allow(n int) bool {
	return l.inner.AllowN(time.Now(), n)
}

// Wait blocks until n tokens are available.
func (l *Limiter) Wait(ctx context.Context, n int) error {
	return l.inner.WaitN(ctx, n)
}

// Tokens reports the tokens currently available.
func (l *Limiter) Tokens() float64 {
	return l.inner.Tokens()
}
