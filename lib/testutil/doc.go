// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by queryd tests.
//
// [RequireReceive], [RequireSend] and [RequireClosed] wrap the
// select-with-timeout pattern so tests never block forever on a
// channel; they are the only place tests use real wall-clock timeouts.
// [SocketDir] returns a short temporary directory for Unix sockets,
// whose paths are limited to 108 bytes. [Logger] routes slog output
// through t.Log so it only shows up for failing tests.
//
// Helpers fail the test with t.Fatalf instead of returning errors.
package testutil
