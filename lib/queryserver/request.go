// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package queryserver

import "strings"

// Request is one parsed command line. It is immutable.
type Request struct {
	name string
	args []string
}

// ParseRequest splits line on whitespace. The first token, lowercased,
// is the query name; the rest are arguments with their case preserved.
// There is no quoting. A blank line yields an empty name, which no
// handler can be registered under.
func ParseRequest(line string) *Request {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return &Request{}
	}
	return &Request{
		name: strings.ToLower(fields[0]),
		args: fields[1:],
	}
}

// Name returns the lowercased query name.
func (r *Request) Name() string { return r.name }

// Args returns a copy of the arguments.
func (r *Request) Args() []string {
	if len(r.args) == 0 {
		return nil
	}
	return append([]string(nil), r.args...)
}

// NumArgs returns the number of arguments.
func (r *Request) NumArgs() int { return len(r.args) }

// Arg returns the i'th argument, or "" and false when out of range.
func (r *Request) Arg(i int) (string, bool) {
	if i < 0 || i >= len(r.args) {
		return "", false
	}
	return r.args[i], true
}

// String renders the canonical command line: the name followed by each
// argument, single-space separated.
func (r *Request) String() string {
	if len(r.args) == 0 {
		return r.name
	}
	return r.name + " " + strings.Join(r.args, " ")
}
