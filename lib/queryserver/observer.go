// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package queryserver

import "time"

// Observer receives server events for metrics. Methods are called from
// connection, listener and reaper goroutines and must not block.
type Observer interface {
	SessionOpened()
	SessionClosed()
	SessionReaped()

	// RequestServed is called once a reply is ready to be written;
	// elapsed covers dispatch only. query is UnknownQuery when no
	// handler matched.
	RequestServed(query string, status Status, elapsed time.Duration)

	HandlerFailed(query string)
	AcceptFailed()
	ConnectionRejected()
}

// UnknownQuery is the query label reported for requests that matched no
// handler, keeping observer label sets bounded.
const UnknownQuery = "(unknown)"

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) SessionOpened()                              {}
func (NopObserver) SessionClosed()                              {}
func (NopObserver) SessionReaped()                              {}
func (NopObserver) RequestServed(string, Status, time.Duration) {}
func (NopObserver) HandlerFailed(string)                        {}
func (NopObserver) AcceptFailed()                               {}
func (NopObserver) ConnectionRejected()                         {}
