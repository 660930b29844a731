// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package netutil

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

func listenTCP(address *net.TCPAddr, backlog int) (*net.TCPListener, error) {
	ip4 := address.IP.To4()
	switch {
	case ip4 != nil:
		sockaddr := &unix.SockaddrInet4{Port: address.Port}
		copy(sockaddr.Addr[:], ip4)
		return bindAndListen(unix.AF_INET, sockaddr, false, address, backlog)
	case address.IP == nil:
		// Unspecified host: prefer a dual-stack IPv6 socket, falling
		// back to IPv4 on hosts with IPv6 disabled.
		listener, err := bindAndListen(unix.AF_INET6, &unix.SockaddrInet6{Port: address.Port}, true, address, backlog)
		if err == nil {
			return listener, nil
		}
		return bindAndListen(unix.AF_INET, &unix.SockaddrInet4{Port: address.Port}, false, address, backlog)
	default:
		sockaddr := &unix.SockaddrInet6{Port: address.Port}
		copy(sockaddr.Addr[:], address.IP.To16())
		return bindAndListen(unix.AF_INET6, sockaddr, false, address, backlog)
	}
}

func bindAndListen(family int, sockaddr unix.Sockaddr, dualStack bool, address *net.TCPAddr, backlog int) (*net.TCPListener, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("creating socket for %s: %w", address, err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setting SO_REUSEADDR on %s: %w", address, err)
	}
	if dualStack {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("clearing IPV6_V6ONLY on %s: %w", address, err)
		}
	}
	if err := unix.Bind(fd, sockaddr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("binding %s: %w", address, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listening on %s (backlog %d): %w", address, backlog, err)
	}

	// FileListener duplicates the descriptor, so the os.File is closed
	// either way.
	file := os.NewFile(uintptr(fd), "tcp:"+address.String())
	defer file.Close()

	listener, err := net.FileListener(file)
	if err != nil {
		return nil, fmt.Errorf("wrapping listener for %s: %w", address, err)
	}
	tcpListener, ok := listener.(*net.TCPListener)
	if !ok {
		listener.Close()
		return nil, fmt.Errorf("listener for %s is %T, not TCP", address, listener)
	}
	return tcpListener, nil
}
