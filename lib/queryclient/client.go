// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

// Package queryclient is a client for the queryd line protocol.
//
//	client, err := queryclient.Dial(ctx, "localhost:25566")
//	if err != nil { ... }
//	defer client.Close()
//	reply, err := client.Do(ctx, "players", "all")
//
// A Client carries one connection and is safe for concurrent use;
// requests are serialized because the protocol answers strictly in
// order.
package queryclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// lineEnd terminates every reply line.
const lineEnd = "\n\r"

var (
	// ErrMalformedReply is returned when the server's reply does not
	// follow the framing.
	ErrMalformedReply = errors.New("queryclient: malformed reply")

	// ErrInvalidQuery is returned for a query or argument that would
	// break the line framing.
	ErrInvalidQuery = errors.New("queryclient: invalid query")

	// ErrClosed is returned after Close or Exit.
	ErrClosed = errors.New("queryclient: client closed")
)

// Reply is one framed server reply.
type Reply struct {
	Code int
	Text string
	Body string
}

// OK reports whether the reply status is 200.
func (r Reply) OK() bool { return r.Code == 200 }

// Status renders "<code> <text>".
func (r Reply) Status() string { return strconv.Itoa(r.Code) + " " + r.Text }

// Lines splits the body on the protocol line terminator, dropping a
// trailing empty element.
func (r Reply) Lines() []string {
	if r.Body == "" {
		return nil
	}
	lines := strings.Split(r.Body, lineEnd)
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Client is a connection to a query server.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	closed bool
}

// Dial connects to address.
func Dial(ctx context.Context, address string) (*Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", address, err)
	}
	return New(conn), nil
}

// New wraps an established connection.
func New(conn net.Conn) *Client {
	return &Client{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
	}
}

// Do sends one query and reads its reply. The context's deadline and
// cancellation apply to the whole exchange; a cancelled exchange
// leaves the connection unusable.
func (c *Client) Do(ctx context.Context, query string, args ...string) (Reply, error) {
	line, err := formatLine(query, args)
	if err != nil {
		return Reply{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Reply{}, ErrClosed
	}
	release := c.bind(ctx)
	defer release()

	if err := c.writeLine(line); err != nil {
		return Reply{}, contextError(ctx, err)
	}
	reply, err := ReadReply(c.reader)
	if err != nil {
		return Reply{}, contextError(ctx, err)
	}
	return reply, nil
}

// Send writes a line without waiting for a reply. Use it for queries
// the server does not answer, such as login.
func (c *Client) Send(ctx context.Context, query string, args ...string) error {
	line, err := formatLine(query, args)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	release := c.bind(ctx)
	defer release()
	return contextError(ctx, c.writeLine(line))
}

// Exit sends the exit query, reads the farewell reply and closes the
// connection.
func (c *Client) Exit(ctx context.Context) (Reply, error) {
	reply, err := c.Do(ctx, "exit")
	closeErr := c.Close()
	if err != nil {
		return Reply{}, err
	}
	return reply, closeErr
}

// Close closes the connection without saying goodbye.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// RemoteAddr returns the server address.
func (c *Client) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// bind applies ctx's deadline to the connection and interrupts I/O on
// cancellation. The returned function undoes both.
func (c *Client) bind(ctx context.Context) func() {
	deadline, _ := ctx.Deadline()
	c.conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Unix(1, 0))
	})
	return func() {
		stop()
		c.conn.SetDeadline(time.Time{})
	}
}

func (c *Client) writeLine(line string) error {
	c.writer.WriteString(line)
	c.writer.WriteByte('\n')
	return c.writer.Flush()
}

func formatLine(query string, args []string) (string, error) {
	parts := append([]string{query}, args...)
	for _, part := range parts {
		if strings.ContainsAny(part, "\r\n") {
			return "", fmt.Errorf("%w: %q contains a line break", ErrInvalidQuery, part)
		}
	}
	line := strings.Join(parts, " ")
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("%w: empty query name", ErrInvalidQuery)
	}
	return line, nil
}

func contextError(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return err
}

// ReadReply reads one framed reply from r. It returns io.EOF if the
// connection ended cleanly before the reply began.
func ReadReply(r *bufio.Reader) (Reply, error) {
	statusLine, err := readLine(r)
	if err != nil {
		return Reply{}, err
	}
	codeText, text, found := strings.Cut(statusLine, " ")
	if !found {
		return Reply{}, fmt.Errorf("%w: status line %q", ErrMalformedReply, statusLine)
	}
	code, err := strconv.Atoi(codeText)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: status code %q", ErrMalformedReply, codeText)
	}

	lengthLine, err := readLine(r)
	if err != nil {
		return Reply{}, unexpectedEOF(err)
	}
	lengthText, ok := strings.CutPrefix(lengthLine, "Length: ")
	if !ok {
		return Reply{}, fmt.Errorf("%w: length line %q", ErrMalformedReply, lengthLine)
	}
	length, err := strconv.Atoi(lengthText)
	if err != nil || length < 0 {
		return Reply{}, fmt.Errorf("%w: length %q", ErrMalformedReply, lengthText)
	}

	blank, err := readLine(r)
	if err != nil {
		return Reply{}, unexpectedEOF(err)
	}
	if blank != "" {
		return Reply{}, fmt.Errorf("%w: expected blank line, got %q", ErrMalformedReply, blank)
	}

	body := make([]byte, length+len(lineEnd))
	if _, err := io.ReadFull(r, body); err != nil {
		return Reply{}, unexpectedEOF(err)
	}
	if string(body[length:]) != lineEnd {
		return Reply{}, fmt.Errorf("%w: body not terminated", ErrMalformedReply)
	}
	return Reply{Code: code, Text: text, Body: string(body[:length])}, nil
}

// readLine reads up to and including the "\n\r" terminator.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line == "" {
			return "", io.EOF
		}
		return "", unexpectedEOF(err)
	}
	next, err := r.ReadByte()
	if err != nil {
		return "", unexpectedEOF(err)
	}
	if next != '\r' {
		return "", fmt.Errorf("%w: line %q not terminated by LF CR", ErrMalformedReply, line)
	}
	return strings.TrimSuffix(line, "\n"), nil
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
