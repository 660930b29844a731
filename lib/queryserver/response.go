// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package queryserver

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// lineEnd terminates every line of a reply. The order (LF then CR) is
// part of the wire format that existing clients parse.
const lineEnd = "\n\r"

// Response accumulates a reply. Handlers write the body and may change
// the status; the session sends it once the handler returns. After
// that every mutation fails with ErrResponseFinished.
//
// A Response belongs to one request and is not safe for concurrent
// use. Handlers marshaled onto the host goroutine may use it there: the
// session does not touch it until the handler has returned.
type Response struct {
	status   Status
	body     strings.Builder
	finished bool
}

func newResponse() *Response {
	return &Response{status: StatusOK}
}

// Write appends p to the body, so a Response can be used with
// fmt.Fprintf and friends.
func (r *Response) Write(p []byte) (int, error) {
	if r.finished {
		return 0, ErrResponseFinished
	}
	return r.body.Write(p)
}

// Print appends s to the body.
func (r *Response) Print(s string) error {
	if r.finished {
		return ErrResponseFinished
	}
	r.body.WriteString(s)
	return nil
}

// Printf appends formatted text to the body.
func (r *Response) Printf(format string, args ...any) error {
	return r.Print(fmt.Sprintf(format, args...))
}

// PrintLine appends s followed by the protocol line terminator.
func (r *Response) PrintLine(s string) error {
	return r.Print(s + lineEnd)
}

// Status returns the current status.
func (r *Response) Status() Status { return r.status }

// SetStatus replaces the status.
func (r *Response) SetStatus(status Status) error {
	if r.finished {
		return ErrResponseFinished
	}
	r.status = status
	return nil
}

// Reset empties the body and restores StatusOK.
func (r *Response) Reset() error {
	if r.finished {
		return ErrResponseFinished
	}
	r.body.Reset()
	r.status = StatusOK
	return nil
}

// Body returns the body written so far.
func (r *Response) Body() string { return r.body.String() }

// Finished reports whether the response has been sent.
func (r *Response) Finished() bool { return r.finished }

// send writes the framed reply and flushes. The response is finished
// even when the write fails.
func (r *Response) send(w *bufio.Writer) error {
	if r.finished {
		return ErrResponseFinished
	}
	r.finished = true

	body := r.body.String()
	w.WriteString(r.status.String())
	w.WriteString(lineEnd)
	w.WriteString("Length: ")
	w.WriteString(strconv.Itoa(len(body)))
	w.WriteString(lineEnd)
	w.WriteString(lineEnd)
	w.WriteString(body)
	w.WriteString(lineEnd)
	return w.Flush()
}
