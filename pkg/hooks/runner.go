// Package hooks runs best-effort side effects after the primary write has committed.
package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/logger"
)

// Task is a side effect. Its error is logged, never returned to the caller.
type Task func(ctx context.Context) error

// Runner executes tasks inline or on background goroutines.
type Runner struct {
	log     logger.Logger
	async   bool
	timeout time.Duration
	onError func(name string, err error)

	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout bounds each task.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithErrorHandler observes task failures, e.g. for metrics.
func WithErrorHandler(fn func(name string, err error)) Option {
	return func(r *Runner) { r.onError = fn }
}

// NewRunner creates a runner. With async=false tasks run before Go returns.
func NewRunner(log logger.Logger, async bool, opts ...Option) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	r := &Runner{log: log, async: async, timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Go schedules task. ctx values are kept but its cancellation is not.
// Once Drain has started, tasks run inline on the caller's goroutine.
func (r *Runner) Go(ctx context.Context, name string, task Task) {
	ctx = context.WithoutCancel(ctx)
	if !r.async {
		r.run(ctx, name, task)
		return
	}

	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		r.log.Warn("side effect scheduled during shutdown, running inline", "hook", name)
		r.run(ctx, name, task)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.run(ctx, name, task)
	}()
}

// Drain stops background scheduling and waits for in-flight tasks or until ctx is done.
func (r *Runner) Drain(ctx context.Context) error {
	r.mu.Lock()
	r.draining = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("hooks: drain: %w", ctx.Err())
	}
}

func (r *Runner) run(ctx context.Context, name string, task Task) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			r.fail(name, fmt.Errorf("panic: %v", p))
		}
	}()

	if err := task(ctx); err != nil {
		r.fail(name, err)
	}
}

func (r *Runner) fail(name string, err error) {
	r.log.Error("side effect failed", "hook", name, "error", err)
	if r.onError != nil {
		r.onError(name, err)
	}
}
