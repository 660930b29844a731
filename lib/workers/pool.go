// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

// Package workers provides the goroutine-per-task executor that runs
// query connections.
//
// Every accepted connection becomes one task. A [Pool] optionally caps
// how many tasks may run at once (golang.org/x/sync/semaphore); when
// the cap is reached, Execute refuses immediately with [ErrCapacity]
// rather than queueing, so the listener can close the connection and
// keep accepting. [Pool.Shutdown] cancels every task's context and
// waits up to a grace period for them to return.
package workers

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/queryd-project/queryd/lib/clock"
)

var (
	// ErrShutdown is returned by Execute after Shutdown has begun.
	ErrShutdown = errors.New("workers: pool is shut down")

	// ErrCapacity is returned by Execute when MaxTasks tasks are
	// already running.
	ErrCapacity = errors.New("workers: pool at capacity")
)

// Config configures a Pool.
type Config struct {
	// MaxTasks caps concurrently running tasks. Zero or negative means
	// unlimited.
	MaxTasks int64

	// Clock bounds the Shutdown grace period. Defaults to clock.Real().
	Clock clock.Clock

	// Logger is required.
	Logger *slog.Logger
}

// Pool runs each task on its own goroutine.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	limit  *semaphore.Weighted
	max    int64
	clock  clock.Clock
	logger *slog.Logger

	// mu orders Execute's wg.Add against Shutdown's wg.Wait.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	active atomic.Int64
	total  atomic.Uint64
}

// New creates a Pool ready to accept tasks.
func New(config Config) *Pool {
	if config.Logger == nil {
		panic("workers: Logger is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	ctx, cancel := context.WithCancel(context.Background())
	pool := &Pool{
		ctx:    ctx,
		cancel: cancel,
		max:    config.MaxTasks,
		clock:  config.Clock,
		logger: config.Logger,
	}
	if config.MaxTasks > 0 {
		pool.limit = semaphore.NewWeighted(config.MaxTasks)
	}
	return pool
}

// Execute starts task on a new goroutine. The context passed to task
// is cancelled when Shutdown begins. A panicking task is logged and
// does not affect other tasks.
func (p *Pool) Execute(task func(ctx context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrShutdown
	}
	if p.limit != nil && !p.limit.TryAcquire(1) {
		return ErrCapacity
	}

	p.wg.Add(1)
	p.active.Add(1)
	p.total.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.active.Add(-1)
		if p.limit != nil {
			defer p.limit.Release(1)
		}
		defer func() {
			if recovered := recover(); recovered != nil {
				p.logger.Error("worker task panicked",
					"panic", recovered,
					"stack", string(debug.Stack()),
				)
			}
		}()
		task(p.ctx)
	}()
	return nil
}

// Shutdown stops accepting tasks, cancels running ones, and waits up to
// grace for them to return. It returns the number of tasks still
// running when the grace period expired. Later calls return the current
// number of running tasks without waiting again.
func (p *Pool) Shutdown(grace time.Duration) int {
	p.mu.Lock()
	already := p.closed
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	if already {
		return int(p.active.Load())
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return 0
	case <-p.clock.After(grace):
		remaining := int(p.active.Load())
		if remaining == 0 {
			return 0
		}
		p.logger.Warn("some connections are not closed yet",
			"remaining", remaining,
			"grace", grace,
		)
		return remaining
	}
}

// Active returns the number of running tasks.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Total returns how many tasks have been started since New.
func (p *Pool) Total() uint64 {
	return p.total.Load()
}

// Limit returns the configured task cap, or 0 when unlimited.
func (p *Pool) Limit() int64 {
	if p.max <= 0 {
		return 0
	}
	return p.max
}
