// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"fmt"
	"net"
)

// DefaultBacklog is used when a caller passes a non-positive backlog.
// It matches the historical default of most socket APIs.
const DefaultBacklog = 50

// Listen binds a TCP listener on address ("host:port", host may be
// empty for all interfaces) with the given accept backlog.
func Listen(address string, backlog int) (*net.TCPListener, error) {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	tcpAddress, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", address, err)
	}
	return listenTCP(tcpAddress, backlog)
}

// listenPortable is the fallback used where the backlog cannot be
// passed through; the kernel default applies.
func listenPortable(address *net.TCPAddr) (*net.TCPListener, error) {
	listener, err := net.ListenTCP("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", address, err)
	}
	return listener, nil
}
