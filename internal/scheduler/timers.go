package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Timers is a registry of keyed one-shot callbacks. Callbacks must be
// idempotent: a cancel that loses the race with the timer still lets the
// callback run, so every callback re-checks persisted state first.
type Timers struct {
	ctx    context.Context
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*timerEntry
	closed  bool
	wg      sync.WaitGroup
}

type timerEntry struct {
	timer *time.Timer
}

func NewTimers(ctx context.Context, logger *slog.Logger) *Timers {
	return &Timers{
		ctx:     ctx,
		logger:  logger.With("component", "timers"),
		pending: make(map[string]*timerEntry),
	}
}

// Schedule runs fn after delay under key, replacing any timer already
// registered for that key.
func (t *Timers) Schedule(key string, delay time.Duration, fn func(ctx context.Context) error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		t.logger.Warn("Timer scheduled after shutdown, dropping", "key", key)
		return
	}

	if prev, ok := t.pending[key]; ok {
		if prev.timer.Stop() {
			t.wg.Done()
		}
	}

	entry := &timerEntry{}
	t.wg.Add(1)
	entry.timer = time.AfterFunc(max(delay, 0), func() {
		defer t.wg.Done()

		t.mu.Lock()
		if t.pending[key] == entry {
			delete(t.pending, key)
		}
		t.mu.Unlock()

		if t.ctx.Err() != nil {
			return
		}
		if err := t.fire(key, fn); err != nil {
			t.logger.Error("Timer callback failed", "key", key, "error", err)
		}
	})
	t.pending[key] = entry
	t.logger.Debug("Timer scheduled", "key", key, "delay", delay.String())
}

func (t *Timers) fire(key string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in timer %s: %v\n%s", key, r, debug.Stack())
		}
	}()
	return fn(t.ctx)
}

// Cancel stops the timer for key. It reports whether a pending timer was
// stopped before firing.
func (t *Timers) Cancel(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.pending[key]
	if !ok {
		return false
	}
	delete(t.pending, key)
	if entry.timer.Stop() {
		t.wg.Done()
		return true
	}
	return false
}

func (t *Timers) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Stop cancels every pending timer and waits for running callbacks.
func (t *Timers) Stop() {
	t.mu.Lock()
	t.closed = true
	for key, entry := range t.pending {
		if entry.timer.Stop() {
			t.wg.Done()
		}
		delete(t.pending, key)
	}
	t.mu.Unlock()

	t.wg.Wait()
}
