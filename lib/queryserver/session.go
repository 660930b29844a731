// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package queryserver

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/queryd-project/queryd/lib/netutil"
)

// exitMessage is the body of the reply to the reserved exit query.
const exitMessage = "Close Connection"

// SessionInfo is a snapshot of one open connection.
type SessionInfo struct {
	ID         uint64
	RemoteAddr string
	OpenedAt   time.Time
	LastActive time.Time
	Requests   uint64
}

// session serves one connection: read a line, dispatch, reply, repeat.
type session struct {
	id       uint64
	conn     net.Conn
	server   *Server
	logger   *slog.Logger
	openedAt time.Time

	// reads counts line-read attempts, EOF included. An idle token is
	// stale once reads has moved past the value it captured.
	reads      atomic.Uint64
	served     atomic.Uint64
	lastActive atomic.Int64

	// armed is the most recently captured idle token. queued is true
	// while the reaper holds a token for this session; only the party
	// that flips it false to true may push.
	armed  atomic.Pointer[idleToken]
	queued atomic.Bool

	// mu is held while a request is dispatched and its reply written,
	// so a forced close never cuts a reply short.
	mu        sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

func newSession(server *Server, id uint64, conn net.Conn) *session {
	now := server.clock.Now()
	s := &session{
		id:       id,
		conn:     conn,
		server:   server,
		openedAt: now,
		logger: server.logger.With(
			"session", id,
			"remote", conn.RemoteAddr().String(),
		),
	}
	s.lastActive.Store(now.UnixNano())
	return s
}

// serve runs the read/dispatch loop until the client leaves, sends
// exit, the connection fails, or ctx is cancelled.
func (s *session) serve(ctx context.Context) {
	observer := s.server.observer
	observer.SessionOpened()
	s.logger.Debug("connection opened")
	defer func() {
		s.close()
		s.server.reaper.forget(s)
		observer.SessionClosed()
		s.logger.Debug("connection closed", "requests", s.served.Load())
	}()

	// Cancellation unblocks the pending read by closing the socket.
	stop := context.AfterFunc(ctx, s.forceClose)
	defer stop()

	maxLine := s.server.config.MaxLineLength
	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, min(4096, maxLine)), maxLine)
	writer := bufio.NewWriter(s.conn)

	for ctx.Err() == nil {
		s.server.reaper.arm(s)

		ok := scanner.Scan()
		s.reads.Add(1)
		if !ok {
			s.logReadEnd(scanner.Err())
			return
		}
		s.lastActive.Store(s.server.clock.Now().UnixNano())

		if !s.handle(ctx, ParseRequest(scanner.Text()), writer) {
			return
		}
	}
}

// handle dispatches one request and writes its reply. It returns false
// when the session should end.
func (s *session) handle(ctx context.Context, request *Request, writer *bufio.Writer) bool {
	if request.Name() == "login" {
		s.logger.Debug("ignoring reserved login query")
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return false
	}

	if request.Name() == "exit" {
		response := newResponse()
		response.Print(exitMessage)
		s.served.Add(1)
		if err := s.send(response, writer); err != nil {
			s.logWriteError(err)
		}
		return false
	}

	started := s.server.clock.Now()
	response := newResponse()
	label := request.Name()

	ctx, span := s.server.tracer.Start(ctx, "query.dispatch", trace.WithAttributes(
		attribute.String("query.name", request.Name()),
		attribute.Int("query.args", request.NumArgs()),
		attribute.Int64("session.id", int64(s.id)),
	))

	handler, found := s.server.registry.Lookup(request.Name())
	if !found {
		label = UnknownQuery
		response.SetStatus(StatusNotFound)
	} else if err := handler(ctx, request, response); err != nil {
		s.logger.Error("query handler failed",
			"query", request.String(),
			"error", err,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		s.server.observer.HandlerFailed(label)
		response.Reset()
		response.SetStatus(StatusInternalServerError)
	}
	span.SetAttributes(attribute.Int("query.status", response.Status().Code))
	span.End()

	s.served.Add(1)
	s.server.observer.RequestServed(label, response.Status(), s.server.clock.Now().Sub(started))
	if err := s.send(response, writer); err != nil {
		s.logWriteError(err)
		return false
	}
	return true
}

func (s *session) send(response *Response, writer *bufio.Writer) error {
	if timeout := s.server.config.WriteTimeout; timeout > 0 {
		// Socket deadlines are wall-clock.
		s.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return response.send(writer)
}

// forceClose closes the connection once any in-flight request has been
// answered.
func (s *session) forceClose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.close()
}

// closeIfIdle closes the connection only if no read has completed
// since the token with count was captured. It never waits: a session
// holding mu is dispatching and therefore not idle.
func (s *session) closeIfIdle(count uint64) bool {
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()

	if s.closed.Load() || s.reads.Load() != count {
		return false
	}
	s.close()
	return true
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if err := s.conn.Close(); err != nil && !netutil.IsExpectedCloseError(err) {
			s.logger.Debug("closing connection failed", "error", err)
		}
	})
}

func (s *session) logReadEnd(err error) {
	switch {
	case err == nil:
		s.logger.Debug("client disconnected")
	case errors.Is(err, bufio.ErrTooLong):
		s.logger.Warn("request line too long, closing connection",
			"limit", s.server.config.MaxLineLength,
		)
	case netutil.IsExpectedCloseError(err):
		s.logger.Debug("connection ended", "error", err)
	default:
		s.logger.Warn("reading request failed", "error", err)
	}
}

func (s *session) logWriteError(err error) {
	if netutil.IsExpectedCloseError(err) {
		s.logger.Debug("connection ended while replying", "error", err)
		return
	}
	s.logger.Warn("writing reply failed", "error", err)
}

func (s *session) info() SessionInfo {
	return SessionInfo{
		ID:         s.id,
		RemoteAddr: s.conn.RemoteAddr().String(),
		OpenedAt:   s.openedAt,
		LastActive: time.Unix(0, s.lastActive.Load()),
		Requests:   s.served.Load(),
	}
}
