// Package ratelimit throttles outbound calls per destination.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per destination key. The burst of each
// bucket equals its per-second rate, and buckets start full.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a new rate limiter.
func New() *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether key may proceed now, consuming a token if so.
// A perSecond of 0 means unlimited (always returns true).
func (l *Limiter) Allow(key string, perSecond int) bool {
	if perSecond <= 0 {
		return true
	}
	return l.get(key, perSecond).Allow()
}

// Wait blocks until key may proceed or ctx is done.
// A perSecond of 0 means unlimited (returns immediately).
func (l *Limiter) Wait(ctx context.Context, key string, perSecond int) error {
	if perSecond <= 0 {
		return nil
	}
	return l.get(key, perSecond).Wait(ctx)
}

// Reset clears the state for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, key)
}

func (l *Limiter) get(key string, perSecond int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(perSecond), perSecond)
		l.limiters[key] = lim
		return lim
	}
	if lim.Burst() != perSecond {
		lim.SetLimit(rate.Limit(perSecond))
		lim.SetBurst(perSecond)
	}
	return lim
}
