// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package netutil

import "net"

func listenTCP(address *net.TCPAddr, _ int) (*net.TCPListener, error) {
	return listenPortable(address)
}
