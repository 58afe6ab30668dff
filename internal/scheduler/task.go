// Package scheduler holds the background-loop primitives shared by the
// simulation: periodic tasks, one-shot timers and the runner that owns them.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// Task is a periodic loop body. Run is invoked once per Interval after the
// host signals readiness; an error or panic is logged and the loop continues
// on the next tick.
type Task struct {
	Name           string
	Interval       time.Duration
	HeartbeatEvery int
	Run            func(ctx context.Context) error
}

// Loop blocks until ctx is cancelled.
func (t Task) Loop(ctx context.Context, ready <-chan struct{}, logger *slog.Logger) {
	logger = logger.With("component", "scheduler", "task", t.Name)

	if ready != nil {
		select {
		case <-ready:
		case <-ctx.Done():
			return
		}
	}

	logger.Info("Background task started", "interval", t.Interval.String())

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	var iteration int
	for {
		select {
		case <-ctx.Done():
			logger.Info("Background task stopped", "iterations", iteration)
			return
		case <-ticker.C:
			iteration++
			start := time.Now()
			if err := t.runOnce(ctx); err != nil {
				logger.Error("Background task iteration failed", "iteration", iteration, "error", err)
			}
			if t.HeartbeatEvery > 0 && iteration%t.HeartbeatEvery == 0 {
				logger.Info("Background task heartbeat", "iteration", iteration, "last_duration", time.Since(start).String())
			}
		}
	}
}

func (t Task) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v\n%s", t.Name, r, debug.Stack())
		}
	}()
	return t.Run(ctx)
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
