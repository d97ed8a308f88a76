// Package ratelimit implements the per-client fixed-window request counter that guards the
// chat endpoint.
//
// The window is fixed, not sliding: a client can get up to twice the limit through in a short
// burst that straddles a window boundary. That is acceptable for abuse deterrence.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultMaxRequests   = 30
	DefaultWindow        = time.Minute
	DefaultSweepInterval = time.Minute
)

// ErrRateLimited marks a request rejected by the limiter.
var ErrRateLimited = errors.New("rate limit exceeded")

// Entry is the counter state of one client in its current window.
type Entry struct {
	Count         int
	WindowResetAt time.Time
}

// Result describes the outcome of one Check.
type Result struct {
	Limited   bool
	Count     int
	Remaining int
	ResetIn   time.Duration
}

type Limiter struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time
	logger  zerolog.Logger
	onSweep func(tracked int)
}

type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithSweepHook is called after every background sweep with the number of clients still
// tracked.
func WithSweepHook(fn func(tracked int)) Option {
	return func(l *Limiter) { l.onSweep = fn }
}

func New(opts ...Option) *Limiter {
	l := &Limiter{
		entries: make(map[string]*Entry),
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts one request for clientID and reports whether it exceeds maxRequests
// within the current window.
func (l *Limiter) Check(clientID string, maxRequests int, window time.Duration) Result {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[clientID]
	if !ok || now.After(e.WindowResetAt) {
		e = &Entry{Count: 1, WindowResetAt: now.Add(window)}
		l.entries[clientID] = e
	} else {
		e.Count++
	}

	remaining := maxRequests - e.Count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Limited:   e.Count > maxRequests,
		Count:     e.Count,
		Remaining: remaining,
		ResetIn:   e.WindowResetAt.Sub(now),
	}
}

// Sweep drops entries whose window has expired at now and returns how many were removed.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, e := range l.entries {
		if now.After(e.WindowResetAt) {
			delete(l.entries, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Start runs Sweep every interval until ctx is cancelled.
func (l *Limiter) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go l.sweepLoop(ctx, interval)
}

func (l *Limiter) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(l.now()); n > 0 {
				l.logger.Debug().Int("removed", n).Msg("rate limit sweep")
			}
			if l.onSweep != nil {
				l.onSweep(l.Len())
			}
		}
	}
}
