// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package queryclient

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/queryd-project/queryd/lib/testutil"
)

func TestReadReply(t *testing.T) {
	raw := "200 OK\n\rLength: 12\n\r\n\rAlice\n\rBob\n\r\n\r"
	reply, err := ReadReply(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatalf("ReadReply: %v", err)
	}
	if reply.Code != 200 || reply.Text != "OK" || !reply.OK() {
		t.Errorf("status = %q, want 200 OK", reply.Status())
	}
	if reply.Body != "Alice\n\rBob\n\r" {
		t.Errorf("body = %q", reply.Body)
	}
	if lines := reply.Lines(); len(lines) != 2 || lines[0] != "Alice" || lines[1] != "Bob" {
		t.Errorf("Lines() = %q", lines)
	}
}

func TestReadReplyMultiByteBody(t *testing.T) {
	// Length counts bytes, not characters.
	raw := "404 Not Found\n\rLength: 6\n\r\n\rgrüß\n\r"
	reply, err := ReadReply(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatalf("ReadReply: %v", err)
	}
	if reply.Code != 404 || reply.Text != "Not Found" || reply.Body != "grüß" {
		t.Errorf("reply = %+v", reply)
	}
}

func TestReadReplyErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"clean eof", "", io.EOF},
		{"truncated status", "200 OK", io.ErrUnexpectedEOF},
		{"truncated body", "200 OK\n\rLength: 10\n\r\n\rabc", io.ErrUnexpectedEOF},
		{"bad code", "abc OK\n\rLength: 0\n\r\n\r\n\r", ErrMalformedReply},
		{"missing length", "200 OK\n\rSize: 0\n\r\n\r\n\r", ErrMalformedReply},
		{"wrong terminator", "200 OK\r\nLength: 0\r\n\r\n\r\n", ErrMalformedReply},
		{"missing blank line", "200 OK\n\rLength: 0\n\rx\n\r\n\r", ErrMalformedReply},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := ReadReply(bufio.NewReader(strings.NewReader(test.raw)))
			if !errors.Is(err, test.want) {
				t.Fatalf("ReadReply error = %v, want %v", err, test.want)
			}
		})
	}
}

// stubServer answers each line with a reply echoing the line as body.
func stubServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				scanner := bufio.NewScanner(conn)
				for scanner.Scan() {
					line := scanner.Text()
					if line == "hang" {
						continue
					}
					body := line
					io.WriteString(conn, "200 OK\n\rLength: "+strconv.Itoa(len(body))+"\n\r\n\r"+body+"\n\r")
					if line == "exit" {
						return
					}
				}
			}()
		}
	}()
	return ln.Addr().String()
}

func TestDoRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, stubServer(t))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	reply, err := client.Do(ctx, "echo", "Hello", "World")
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if reply.Body != "echo Hello World" {
		t.Fatalf("body = %q, want the sent line", reply.Body)
	}

	reply, err = client.Exit(ctx)
	if err != nil {
		t.Fatalf("Exit: %v", err)
	}
	if reply.Body != "exit" {
		t.Fatalf("exit body = %q", reply.Body)
	}
	if _, err := client.Do(ctx, "ping"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Do after Exit returned %v, want ErrClosed", err)
	}
}

func TestDoRejectsLineBreaks(t *testing.T) {
	client := New(nopConn{})
	if _, err := client.Do(context.Background(), "echo", "a\nb"); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("Do returned %v, want ErrInvalidQuery", err)
	}
	if _, err := client.Do(context.Background(), "  "); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("Do with blank query returned %v, want ErrInvalidQuery", err)
	}
}

func TestDoHonorsContext(t *testing.T) {
	client, err := Dial(context.Background(), stubServer(t))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := client.Do(ctx, "hang")
		result <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	err = testutil.RequireReceive(t, result, 5*time.Second, "Do did not return after cancel")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do returned %v, want context.Canceled", err)
	}
}

type nopConn struct{ net.Conn }
