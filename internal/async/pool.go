// Package async runs fire-and-forget side effects (analytics, usage metering)
// off the request path with a hard bound on concurrent work.
package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rafaeljc/pawmatch/internal/logger"
	"github.com/rafaeljc/pawmatch/internal/observability"
	"github.com/rafaeljc/pawmatch/internal/ruleengine"
	"github.com/rafaeljc/pawmatch/internal/validation"
)

const (
	statusSuccess = "success"
	statusFail    = "fail"
	statusDropped = "dropped"
)

var _ ruleengine.Dispatcher = (*Pool)(nil)

// Task is a unit of background work.
type Task func(ctx context.Context) error

// ErrPoolClosed is reported (via logs and metrics) for tasks dispatched after Wait.
var ErrPoolClosed = errors.New("async: pool closed")

// Pool runs tasks in goroutines bounded by a weighted semaphore.
//
// Dispatch never blocks: when the pool is saturated or closed the task is
// dropped, logged and counted. Tasks are not retried, so a task runs at most
// once.
type Pool struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a pool allowing maxInFlight concurrent tasks, each bounded by
// timeout. If logger is nil, it defaults to slog.Default().
func NewPool(logger *slog.Logger, maxInFlight int, timeout time.Duration) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	validation.AssertPositive(maxInFlight, "async pool size")
	validation.AssertPositive(timeout, "async task timeout")
	return &Pool{
		sem:     semaphore.NewWeighted(int64(maxInFlight)),
		timeout: timeout,
		logger:  logger,
	}
}

// Dispatch schedules task under name.
//
// The task context is detached from ctx's cancellation (the request may finish
// first) but keeps its values, so request-scoped loggers still apply.
func (p *Pool) Dispatch(ctx context.Context, name string, task func(context.Context) error) {
	log := logger.FromContextOr(ctx, p.logger).With(slog.String("task", name))

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.drop(log, name, ErrPoolClosed)
		return
	}
	if !p.sem.TryAcquire(1) {
		p.mu.Unlock()
		p.drop(log, name, errors.New("async: pool saturated"))
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	observability.SideEffectsInFlight.Inc()

	go func() {
		defer func() {
			observability.SideEffectsInFlight.Dec()
			p.sem.Release(1)
			p.wg.Done()
		}()

		taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()

		start := time.Now()
		if err := run(taskCtx, task); err != nil {
			observability.SideEffectsTotal.WithLabelValues(name, statusFail).Inc()
			log.Error("background task failed",
				slog.String("error", err.Error()),
				slog.Duration("elapsed", time.Since(start)),
			)
			return
		}
		observability.SideEffectsTotal.WithLabelValues(name, statusSuccess).Inc()
	}()
}

// Wait stops accepting tasks and blocks until in-flight tasks finish or ctx ends.
func (p *Pool) Wait(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("async: waiting for in-flight tasks: %w", ctx.Err())
	}
}

func (p *Pool) drop(log *slog.Logger, name string, reason error) {
	observability.SideEffectsTotal.WithLabelValues(name, statusDropped).Inc()
	log.Warn("background task dropped", slog.String("reason", reason.Error()))
}

// run converts a panicking task into an error.
func run(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task(ctx)
}
