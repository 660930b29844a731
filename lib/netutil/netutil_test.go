// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
	"time"
)

func TestIsExpectedCloseError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"eof", io.EOF, true},
		{"wrapped eof", fmt.Errorf("reading: %w", io.EOF), true},
		{"closed", net.ErrClosed, true},
		{"broken pipe", &net.OpError{Op: "write", Err: syscall.EPIPE}, true},
		{"reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, true},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, false},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExpectedCloseError(tt.err); got != tt.want {
				t.Fatalf("IsExpectedCloseError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestListenAcceptsConnections(t *testing.T) {
	listener, err := Listen("127.0.0.1:0", 8)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()

	accepted := make(chan error, 1)
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			conn.Close()
		}
		accepted <- err
	}()

	conn, err := net.DialTimeout("tcp", listener.Addr().String(), 5*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	conn.Close()

	select {
	case err := <-accepted:
		if err != nil {
			t.Fatalf("Accept: %v", err)
		}
	case <-time.After(5 * time.Second): //nolint:realclock test hang prevention
		t.Fatal("Accept did not return")
	}
}

func TestListenDeadlineTimesOut(t *testing.T) {
	listener, err := Listen("127.0.0.1:0", 0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()

	listener.SetDeadline(time.Now().Add(10 * time.Millisecond))
	_, err = listener.Accept()
	if !IsTimeout(err) {
		t.Fatalf("Accept error = %v, want timeout", err)
	}
}

func TestListenAddressInUse(t *testing.T) {
	first, err := Listen("127.0.0.1:0", 0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer first.Close()

	second, err := Listen(first.Addr().String(), 0)
	if err == nil {
		second.Close()
		t.Fatal("second Listen on the same address succeeded")
	}
}

func TestListenRejectsBadAddress(t *testing.T) {
	if _, err := Listen("not an address", 0); err == nil {
		t.Fatal("Listen accepted a malformed address")
	}
}
