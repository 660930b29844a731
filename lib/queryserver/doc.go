// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

// Package queryserver implements a line-oriented TCP query server.
//
// A client sends one command per line: a query name followed by
// whitespace-separated arguments. The server looks the name up in a
// [Registry], runs the registered [HandlerFunc], and writes one framed
// reply:
//
//	<code> <status-text>\n\r
//	Length: <body-bytes>\n\r
//	\n\r
//	<body>\n\r
//
// Length counts the UTF-8 bytes of the body, not characters, so a body
// with non-ASCII text reports more than its character count.
//
// Query names are case-insensitive; arguments keep their case. Two
// names are reserved and never reach the registry: "exit" replies
// "200 OK" with body "Close Connection" and closes the connection, and
// "login" is accepted silently with no reply.
//
// Each connection runs on its own goroutine supplied by an [Executor].
// Handlers registered with [HostThread] affinity are marshaled onto the
// host application's goroutine through a [HostExecutor] and therefore
// run one at a time; [Direct] handlers run on the connection goroutine
// and may run in parallel across connections.
//
// Connections that send nothing for the configured idle timeout are
// closed by a single reaper goroutine. Each connection keeps at most
// one pending deadline in the reaper, so reaper memory is bounded by
// the number of live connections.
//
// A [Server] moves through three states: created, running and stopped.
// Stopped is terminal; to serve again, build a new Server. Passing the
// same Registry to the new Server keeps existing registrations.
package queryserver
