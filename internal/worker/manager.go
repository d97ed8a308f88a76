// Package worker runs tasks for the same key strictly one after another on a dedicated
// goroutine, while different keys proceed in parallel.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	queueLen           = 16
	defaultIdleTimeout = time.Minute
)

var (
	ErrQueueFull = errors.New("task queue full")
	ErrStopped   = errors.New("worker manager stopped")
)

// Task is one unit of work executed on a key's worker.
type Task func(ctx context.Context) error

type Manager struct {
	mu      sync.Mutex
	workers map[string]*workerState
	idle    time.Duration
	logger  zerolog.Logger
	closed  bool
}

// NewManager returns a manager whose per-key workers exit after idle without work.
func NewManager(idle time.Duration, logger zerolog.Logger) *Manager {
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	return &Manager{
		workers: make(map[string]*workerState),
		idle:    idle,
		logger:  logger.With().Str("component", "worker").Logger(),
	}
}

// Do runs fn on the worker of key after every task queued before it has finished, and
// returns fn's error. If ctx ends first Do returns ctx.Err() and the task is skipped
// when its turn comes.
func (m *Manager) Do(ctx context.Context, key string, fn Task) error {
	t := task{ctx: ctx, fn: fn, resultCh: make(chan error, 1)}
	if err := m.enqueue(key, t); err != nil {
		return err
	}
	select {
	case err := <-t.resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) enqueue(key string, t task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStopped
	}
	state, ok := m.workers[key]
	if !ok {
		state = newWorkerState()
		m.workers[key] = state
		go m.runWorker(key, state)
	}
	select {
	case state.taskCh <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len reports the number of live workers.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}

// Close stops every worker. Queued tasks fail with ErrStopped.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for key, state := range m.workers {
		close(state.stopCh)
		delete(m.workers, key)
	}
}

func (m *Manager) runWorker(key string, state *workerState) {
	timer := time.NewTimer(m.idle)
	defer timer.Stop()

	for {
		select {
		case <-state.stopCh:
			state.drain(ErrStopped)
			return
		case t := <-state.taskCh:
			m.handle(key, t)
			timer.Reset(m.idle)
		case <-timer.C:
			if m.retire(key, state) {
				m.logger.Debug().Str("key", key).Msg("worker retired after idle")
				return
			}
			timer.Reset(m.idle)
		}
	}
}

// retire removes an idle worker unless work arrived in the meantime.
func (m *Manager) retire(key string, state *workerState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(state.taskCh) > 0 {
		return false
	}
	if m.workers[key] == state {
		delete(m.workers, key)
	}
	return true
}

func (m *Manager) handle(key string, t task) {
	if err := t.ctx.Err(); err != nil {
		t.resultCh <- err
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Str("key", key).Interface("panic", r).Msg("task panicked")
			t.resultCh <- fmt.Errorf("task panicked: %v", r)
		}
	}()
	t.resultCh <- t.fn(t.ctx)
}
