package scheduler

import (
	"context"
	"log/slog"
	"sync"
)

// Runner owns the long-lived background goroutines of the process. Tasks
// wait for MarkReady before their first iteration.
type Runner struct {
	base   *slog.Logger
	logger *slog.Logger

	mu      sync.Mutex
	tasks   []Task
	workers []worker
	ready   chan struct{}
	once    sync.Once
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type worker struct {
	name string
	run  func(ctx context.Context)
}

func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{
		base:   logger,
		logger: logger.With("component", "scheduler_runner"),
		ready:  make(chan struct{}),
	}
}

func (r *Runner) Add(tasks ...Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, tasks...)
}

// Go registers a free-form worker, such as a director or a hub loop.
func (r *Runner) Go(name string, run func(ctx context.Context)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers = append(r.workers, worker{name: name, run: run})
}

// Ready is closed once MarkReady has been called.
func (r *Runner) Ready() <-chan struct{} {
	return r.ready
}

func (r *Runner) MarkReady() {
	r.once.Do(func() { close(r.ready) })
}

func (r *Runner) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancel = cancel

	for _, task := range r.tasks {
		r.wg.Add(1)
		go func(task Task) {
			defer r.wg.Done()
			task.Loop(ctx, r.ready, r.base)
		}(task)
	}
	for _, w := range r.workers {
		r.wg.Add(1)
		go func(w worker) {
			defer r.wg.Done()
			r.logger.Debug("Worker started", "worker", w.name)
			w.run(ctx)
			r.logger.Debug("Worker exited", "worker", w.name)
		}(w)
	}

	r.logger.Info("Background tasks launched", "tasks", len(r.tasks), "workers", len(r.workers))
}

// Stop cancels every task and waits for them to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	r.logger.Info("Background tasks stopped")
}
