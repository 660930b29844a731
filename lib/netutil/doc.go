// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds small TCP helpers shared by the query server
// and its tools.
//
// [Listen] binds a TCP listener honoring an explicit accept backlog.
// The standard library always passes the kernel's somaxconn to
// listen(2); on Linux this package creates the socket itself so the
// configured backlog reaches the kernel, and elsewhere it falls back to
// net.Listen.
//
// [IsExpectedCloseError] classifies the errors a connection produces
// when it is torn down on purpose (peer hang-up, local Close from
// another goroutine) so callers can keep them out of error logs.
package netutil
