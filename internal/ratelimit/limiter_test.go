package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterPacesSequentialCalls(t *testing.T) {
	l := New(50) // 20ms interval
	start := time.Now()
	for range 5 {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.GreaterOrEqual(t, time.Since(start), 4*l.Interval())
}

func TestLimiterPacesConcurrentCalls(t *testing.T) {
	l := New(50)
	var (
		mu     sync.Mutex
		grants []time.Time
		wg     sync.WaitGroup
	)
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Wait(context.Background()))
			mu.Lock()
			grants = append(grants, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, grants, 6)
	first, last := grants[0], grants[0]
	for _, g := range grants {
		if g.Before(first) {
			first = g
		}
		if g.After(last) {
			last = g
		}
	}
	// Allow a little scheduler slack below the theoretical 5 intervals.
	assert.GreaterOrEqual(t, last.Sub(first), 5*l.Interval()-5*time.Millisecond)
}

func TestLimiterZeroRateDoesNotPace(t *testing.T) {
	l := New(0)
	start := time.Now()
	for range 100 {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestSetWaitUntilDefersNextSlot(t *testing.T) {
	l := New(1000)
	l.SetWaitUntil(60 * time.Millisecond)

	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestSetWaitUntilOnlyExtends(t *testing.T) {
	l := New(0)
	l.SetWaitUntil(time.Hour)
	l.mu.Lock()
	long := l.next
	l.mu.Unlock()

	l.SetWaitUntil(time.Millisecond)
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Equal(t, long, l.next)
}

func TestWaitHonoursContext(t *testing.T) {
	l := New(0)
	l.SetWaitUntil(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
