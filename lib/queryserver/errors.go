// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package queryserver

import "errors"

var (
	// ErrResponseFinished is returned by every Response mutation after
	// the response has been sent, and by a second send.
	ErrResponseFinished = errors.New("queryserver: response already sent")

	// ErrNotRunning is returned by Stop on a server that was never
	// started.
	ErrNotRunning = errors.New("queryserver: server not running")

	// ErrServerStopped is returned by Start on a stopped server.
	ErrServerStopped = errors.New("queryserver: server stopped")

	// ErrNoExecutor is returned by Start when no Executor is set.
	ErrNoExecutor = errors.New("queryserver: no executor configured")

	// ErrBind wraps the listen failure returned by Start.
	ErrBind = errors.New("queryserver: bind failed")

	// ErrHandlerPanic wraps the value recovered from a panicking
	// handler.
	ErrHandlerPanic = errors.New("queryserver: handler panicked")
)
