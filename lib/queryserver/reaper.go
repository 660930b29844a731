// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package queryserver

import (
	"container/heap"
	"log/slog"
	"sync"
	"time"

	"github.com/queryd-project/queryd/lib/clock"
)

// idleToken is an immutable snapshot of a session's read counter and
// the time by which the counter must have moved.
type idleToken struct {
	session  *session
	count    uint64
	deadline time.Time
}

// tokenQueue is a min-heap of tokens ordered by deadline.
type tokenQueue []idleToken

func (q tokenQueue) Len() int           { return len(q) }
func (q tokenQueue) Less(i, j int) bool { return q[i].deadline.Before(q[j].deadline) }
func (q tokenQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *tokenQueue) Push(x any)        { *q = append(*q, x.(idleToken)) }
func (q *tokenQueue) Pop() any {
	old := *q
	n := len(old)
	token := old[n-1]
	old[n-1] = idleToken{}
	*q = old[:n-1]
	return token
}

// reaper closes sessions whose read counter has not moved for the idle
// timeout. It holds at most one token per session: a session re-arms
// before every read, and the reaper swaps a stale token for the
// session's latest one instead of queueing both.
type reaper struct {
	clock    clock.Clock
	timeout  time.Duration
	poll     time.Duration
	logger   *slog.Logger
	observer Observer

	mu       sync.Mutex
	queue    tokenQueue
	sessions map[*session]struct{}

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newReaper(c clock.Clock, timeout, poll time.Duration, logger *slog.Logger, observer Observer) *reaper {
	return &reaper{
		clock:    c,
		timeout:  timeout,
		poll:     poll,
		logger:   logger,
		observer: observer,
		sessions: make(map[*session]struct{}),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// track registers a session so that shutdown can close it.
func (r *reaper) track(s *session) {
	r.mu.Lock()
	r.sessions[s] = struct{}{}
	r.mu.Unlock()
}

// forget drops a closed session. Its queued token, if any, is
// discarded when it reaches the head of the queue.
func (r *reaper) forget(s *session) {
	r.mu.Lock()
	delete(r.sessions, s)
	r.mu.Unlock()
}

// snapshot returns the tracked sessions.
func (r *reaper) snapshot() []*session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := make([]*session, 0, len(r.sessions))
	for s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// arm captures a fresh token for s. Called by the session before each
// read.
func (r *reaper) arm(s *session) {
	token := &idleToken{
		session:  s,
		count:    s.reads.Load(),
		deadline: r.clock.Now().Add(r.timeout),
	}
	s.armed.Store(token)
	if s.queued.CompareAndSwap(false, true) {
		r.push(*token)
	}
}

func (r *reaper) push(token idleToken) {
	r.mu.Lock()
	heap.Push(&r.queue, token)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// requeue replaces a consumed token with the session's latest one, if
// that one is still current. Otherwise the session's next arm pushes.
func (r *reaper) requeue(s *session) {
	if r.pushLatest(s) {
		return
	}
	s.queued.Store(false)
	// An arm that ran before the flag cleared could not push; check
	// again so its token is not lost.
	latest := s.armed.Load()
	if latest == nil || s.closed.Load() || latest.count != s.reads.Load() {
		return
	}
	if s.queued.CompareAndSwap(false, true) {
		r.push(*latest)
	}
}

func (r *reaper) pushLatest(s *session) bool {
	latest := s.armed.Load()
	if latest == nil || s.closed.Load() || latest.count != s.reads.Load() {
		return false
	}
	r.push(*latest)
	return true
}

func (r *reaper) run() {
	defer close(r.done)
	for {
		token, ok := r.next()
		if !ok {
			r.closeAll()
			return
		}
		if !r.inspect(token) {
			r.closeAll()
			return
		}
	}
}

// next blocks until a token is available or the reaper is stopped.
func (r *reaper) next() (idleToken, bool) {
	for {
		r.mu.Lock()
		if r.queue.Len() > 0 {
			token := heap.Pop(&r.queue).(idleToken)
			r.mu.Unlock()
			return token, true
		}
		r.mu.Unlock()

		select {
		case <-r.stop:
			return idleToken{}, false
		case <-r.wake:
		case <-r.clock.After(r.poll):
		}
	}
}

// inspect waits out token's deadline and closes its session if it is
// still idle. Returns false if the reaper was stopped while waiting.
func (r *reaper) inspect(token idleToken) bool {
	s := token.session
	if s.closed.Load() {
		return true
	}
	if s.reads.Load() != token.count {
		r.requeue(s)
		return true
	}

	if wait := token.deadline.Sub(r.clock.Now()); wait > 0 {
		select {
		case <-r.stop:
			return false
		case <-r.clock.After(wait):
		}
	}

	if s.closeIfIdle(token.count) {
		s.logger.Info("closed idle connection", "idle_timeout", r.timeout)
		r.observer.SessionReaped()
		return true
	}
	if !s.closed.Load() {
		r.requeue(s)
	}
	return true
}

// closeAll drops every queued token and closes every tracked session.
// Sessions finish any in-flight reply before closing, so the closes
// run on their own goroutines.
func (r *reaper) closeAll() {
	r.mu.Lock()
	r.queue = nil
	sessions := make([]*session, 0, len(r.sessions))
	for s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	if len(sessions) > 0 {
		r.logger.Info("closing open connections", "count", len(sessions))
	}
	for _, s := range sessions {
		go s.forceClose()
	}
}

// shutdown stops the reaper and waits up to timeout for it to finish
// closing sessions. Returns false on timeout.
func (r *reaper) shutdown(timeout time.Duration) bool {
	r.stopOnce.Do(func() { close(r.stop) })
	select {
	case <-r.done:
		return true
	case <-r.clock.After(timeout):
		return false
	}
}
