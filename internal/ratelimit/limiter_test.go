package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestCheckCountsMonotonicallyWithinWindow(t *testing.T) {
	clock := newClock()
	l := New(WithClock(clock.Now))

	for i := 1; i <= 30; i++ {
		res := l.Check("10.0.0.1", 30, time.Minute)
		require.Equal(t, i, res.Count)
		require.False(t, res.Limited, "request %d should pass", i)
		require.Equal(t, 30-i, res.Remaining)
		clock.Advance(time.Second)
	}

	res := l.Check("10.0.0.1", 30, time.Minute)
	assert.True(t, res.Limited)
	assert.Equal(t, 31, res.Count)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 30*time.Second, res.ResetIn)
}

func TestCheckResetsAfterWindow(t *testing.T) {
	clock := newClock()
	l := New(WithClock(clock.Now))

	l.Check("c", 2, time.Minute)
	l.Check("c", 2, time.Minute)
	require.True(t, l.Check("c", 2, time.Minute).Limited)

	// at the boundary instant the window is still open
	clock.Advance(time.Minute)
	require.True(t, l.Check("c", 2, time.Minute).Limited)

	clock.Advance(time.Millisecond)
	res := l.Check("c", 2, time.Minute)
	assert.False(t, res.Limited)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, time.Minute, res.ResetIn)
}

func TestClientsAreIndependent(t *testing.T) {
	l := New()
	for i := 0; i < 3; i++ {
		l.Check("a", 2, time.Minute)
	}
	assert.True(t, l.Check("a", 2, time.Minute).Limited)
	assert.False(t, l.Check("b", 2, time.Minute).Limited)
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	clock := newClock()
	l := New(WithClock(clock.Now))
	l.Check("old", 5, time.Second)
	l.Check("new", 5, time.Hour)
	require.Equal(t, 2, l.Len())

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, l.Sweep(clock.Now()))
	assert.Equal(t, 1, l.Len())
}

func TestStartSweepsInBackground(t *testing.T) {
	clock := newClock()
	l := New(WithClock(clock.Now))
	l.Check("x", 5, time.Millisecond)
	clock.Advance(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx, 5*time.Millisecond)

	require.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestConcurrentChecksAreCounted(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Check("shared", 100, time.Minute)
		}()
	}
	wg.Wait()
	assert.Equal(t, 51, l.Check("shared", 100, time.Minute).Count)
}

func TestSweepHookReportsTracked(t *testing.T) {
	clock := newClock()
	var tracked atomic.Int64
	tracked.Store(-1)
	l := New(WithClock(clock.Now), WithSweepHook(func(n int) { tracked.Store(int64(n)) }))
	l.Check("a", 5, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx, 5*time.Millisecond)

	require.Eventually(t, func() bool { return tracked.Load() == 1 }, time.Second, 5*time.Millisecond)
}
