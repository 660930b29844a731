// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package hostloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/queryd-project/queryd/lib/clock"
)

var (
	// ErrStopped completes submissions made to a loop that is stopping
	// or has stopped.
	ErrStopped = errors.New("hostloop: loop stopped")

	// ErrTaskPanic wraps the value recovered from a panicking task.
	ErrTaskPanic = errors.New("hostloop: task panicked")

	// ErrAlreadyRunning is returned by a second concurrent Run.
	ErrAlreadyRunning = errors.New("hostloop: loop already running")
)

// Config configures a Loop.
type Config struct {
	// MailboxSize bounds how many submissions can wait before Submit
	// blocks. Defaults to 64.
	MailboxSize int

	// TickInterval, when positive, calls OnTick on the loop goroutine
	// at that period, interleaved with submitted tasks.
	TickInterval time.Duration
	OnTick       func(now time.Time)

	// Clock drives the tick. Defaults to clock.Real().
	Clock clock.Clock

	// Logger is required.
	Logger *slog.Logger
}

// Loop executes submitted tasks sequentially on the goroutine that
// calls Run.
type Loop struct {
	mailbox      chan submission
	tickInterval time.Duration
	onTick       func(time.Time)
	clock        clock.Clock
	logger       *slog.Logger

	running atomic.Bool

	// quit is closed when the loop is asked to stop; done when it has
	// stopped and every pending submission has been answered.
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}

	// closed flips under mu once Run has stopped reading the mailbox.
	// Submit holds the read lock while enqueueing so no submission can
	// slip into the mailbox after the final drain.
	mu     sync.RWMutex
	closed bool

	executed atomic.Uint64
}

type submission struct {
	task   func() error
	result chan error
}

// New creates a Loop. Call Run on the goroutine that should own the
// host state.
func New(config Config) *Loop {
	if config.Logger == nil {
		panic("hostloop: Logger is required")
	}
	if config.MailboxSize <= 0 {
		config.MailboxSize = 64
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	return &Loop{
		mailbox:      make(chan submission, config.MailboxSize),
		tickInterval: config.TickInterval,
		onTick:       config.OnTick,
		clock:        config.Clock,
		logger:       config.Logger,
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Submit queues task for execution on the loop goroutine and returns a
// channel that receives exactly one value: the task's error (nil on
// success), an ErrTaskPanic wrap, or ErrStopped.
func (l *Loop) Submit(task func() error) <-chan error {
	return l.SubmitContext(context.Background(), task)
}

// SubmitContext is Submit, except that while the mailbox is full it
// also gives up when ctx is done, delivering ctx.Err(). Once queued,
// the task is no longer tied to ctx.
func (l *Loop) SubmitContext(ctx context.Context, task func() error) <-chan error {
	result := make(chan error, 1)

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		result <- ErrStopped
		return result
	}
	select {
	case l.mailbox <- submission{task: task, result: result}:
	case <-l.quit:
		result <- ErrStopped
	case <-ctx.Done():
		result <- ctx.Err()
	}
	return result
}

// Run executes tasks until ctx is cancelled or Stop is called. It must
// be called once; the calling goroutine becomes the host goroutine.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.shutdown()

	var ticks <-chan time.Time
	if l.tickInterval > 0 && l.onTick != nil {
		ticker := l.clock.NewTicker(l.tickInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	l.logger.Debug("host loop started")
	for {
		// select picks randomly among ready cases; a stop must win over
		// a queued task.
		if l.stopping(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-l.quit:
			return nil
		case sub := <-l.mailbox:
			if l.stopping(ctx) {
				sub.result <- ErrStopped
				return nil
			}
			sub.result <- l.execute(sub.task)
		case now := <-ticks:
			if err := l.execute(func() error { l.onTick(now); return nil }); err != nil {
				l.logger.Error("host tick failed", "error", err)
			}
		}
	}
}

func (l *Loop) stopping(ctx context.Context) bool {
	select {
	case <-l.quit:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Stop asks Run to return. Tasks already queued complete with
// ErrStopped. Stop does not wait; use Done for that.
func (l *Loop) Stop() {
	l.quitOnce.Do(func() { close(l.quit) })
}

// Done is closed after Run has returned and all pending submissions
// have been answered.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Executed returns how many tasks and ticks have run.
func (l *Loop) Executed() uint64 {
	return l.executed.Load()
}

func (l *Loop) execute(task func() error) (err error) {
	defer func() {
		l.executed.Add(1)
		if recovered := recover(); recovered != nil {
			l.logger.Error("host task panicked",
				"panic", recovered,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: %v", ErrTaskPanic, recovered)
		}
	}()
	return task()
}

func (l *Loop) shutdown() {
	l.Stop()

	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	drained := 0
	for {
		select {
		case sub := <-l.mailbox:
			sub.result <- ErrStopped
			drained++
		default:
			if drained > 0 {
				l.logger.Warn("host loop stopped with queued tasks", "dropped", drained)
			}
			l.logger.Debug("host loop stopped")
			close(l.done)
			return
		}
	}
}
