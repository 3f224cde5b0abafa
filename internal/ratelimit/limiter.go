// Package ratelimit paces outbound requests for a single upstream service.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter grants request slots no closer together than 1/rate, across every
// goroutine sharing the instance. A server-requested pause (Retry-After) can
// push the next slot further out with SetWaitUntil.
//
// Waiters hold the mutex while sleeping so slots are handed out strictly one
// at a time.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
	now      func() time.Time
}

// New returns a limiter allowing rate requests per second. A non-positive
// rate disables pacing; SetWaitUntil is still honoured.
func New(rate float64) *Limiter {
	var interval time.Duration
	if rate > 0 {
		interval = time.Duration(float64(time.Second) / rate)
	}
	return &Limiter{interval: interval, now: time.Now}
}

// Interval returns the minimum spacing between granted slots.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until the caller may issue its request. It returns ctx.Err()
// if the context ends first; in that case no slot is consumed.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if d := l.next.Sub(l.now()); d > 0 {
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	l.next = l.now().Add(l.interval)
	return nil
}

// SetWaitUntil defers the next slot to now+d. The deadline only ever moves
// later; a shorter pause than the one already pending is ignored.
func (l *Limiter) SetWaitUntil(d time.Duration) {
	// Blocks until any waiter sleeping on the current deadline wakes, which
	// may be as long as an earlier Retry-After pause.
	l.mu.Lock()
	defer l.mu.Unlock()

	if until := l.now().Add(d); until.After(l.next) {
		l.next = until
	}
}
