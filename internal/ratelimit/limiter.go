// Package ratelimit provides the in-process token bucket that paces
// outbound requests to a single exchange.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quantfold/obagg/internal/domain"
)

// Limiter is a token bucket admitting at most limit acquisitions per
// interval. The bucket starts full and refills continuously. Blocked
// waiters reserve permits in arrival order, so admission is FIFO. The zero
// value is not usable; call New.
type Limiter struct {
	mu       sync.Mutex
	capacity float64
	tokens   float64
	rate     float64 // tokens per second
	last     time.Time
}

var _ domain.Limiter = (*Limiter)(nil)

// New builds a limiter admitting limit requests per interval. Non-positive
// configuration is rejected here so a misconfigured exchange fails at
// startup, not mid-cycle.
func New(limit int, interval time.Duration) (*Limiter, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("ratelimit: limit must be positive, got %d", limit)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("ratelimit: interval must be positive, got %s", interval)
	}
	return &Limiter{
		capacity: float64(limit),
		tokens:   float64(limit),
		rate:     float64(limit) / interval.Seconds(),
		last:     time.Now(),
	}, nil
}

// refill credits tokens accrued since the last accounting. Callers must
// hold mu. Reserved (negative) balances refill toward zero first.
func (l *Limiter) refill(now time.Time) {
	elapsed := now.Sub(l.last).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed * l.rate
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.last = now
}

// Allow consumes a permit when one is immediately available.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(time.Now())
	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}

// Wait reserves the next permit and sleeps until it matures, or until ctx
// ends. A cancelled wait returns its permit to the bucket.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	l.refill(time.Now())
	l.tokens--
	var delay time.Duration
	if l.tokens < 0 {
		delay = time.Duration(-l.tokens / l.rate * float64(time.Second))
	}
	l.mu.Unlock()

	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		l.mu.Lock()
		l.tokens++
		l.mu.Unlock()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
