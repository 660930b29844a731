// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package queryserver

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/queryd-project/queryd/lib/netutil"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// listener accepts connections and hands each to the executor as a
// new session.
type listener struct {
	server *Server
	ln     *net.TCPListener
	done   chan struct{}
}

func newListener(server *Server, ln *net.TCPListener) *listener {
	return &listener{
		server: server,
		ln:     ln,
		done:   make(chan struct{}),
	}
}

// run accepts until ctx is cancelled or the socket is closed. The
// accept deadline bounds how long a cancellation can go unnoticed when
// nothing closes the socket.
func (l *listener) run(ctx context.Context) {
	defer close(l.done)
	defer l.ln.Close()

	server := l.server
	logger := server.logger
	logger.Info("query server listening", "address", l.ln.Addr().String())

	var backoff time.Duration
	for ctx.Err() == nil {
		if timeout := server.config.AcceptTimeout; timeout > 0 {
			l.ln.SetDeadline(time.Now().Add(timeout))
		}

		conn, err := l.ln.Accept()
		if err != nil {
			if netutil.IsTimeout(err) {
				continue
			}
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				logger.Error("listener closed unexpectedly", "error", err)
				return
			}

			backoff = nextBackoff(backoff)
			server.observer.AcceptFailed()
			logger.Warn("accepting connection failed",
				"error", err,
				"retry_in", backoff,
			)
			select {
			case <-ctx.Done():
			case <-server.clock.After(backoff):
			}
			continue
		}
		backoff = 0
		server.startSession(conn)
	}
	logger.Info("query server stopped listening")
}

func nextBackoff(current time.Duration) time.Duration {
	if current < minAcceptBackoff {
		return minAcceptBackoff
	}
	current *= 2
	if current > maxAcceptBackoff {
		return maxAcceptBackoff
	}
	return current
}

// close unblocks a pending Accept.
func (l *listener) close() {
	l.ln.Close()
}
