// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

// Queryd serves the line-oriented query protocol on TCP.
//
// The daemon wires the query server to a host loop (the single
// goroutine that owns host state such as the player roster), a worker
// pool for connections, a Prometheus endpoint, optional OTLP trace
// export, and a local CBOR admin socket. Two handler owners are
// registered at startup: "builtin" (ping, echo, time, queries) and
// "players" (players, ticks). The players owner can be switched off and
// on at runtime through the admin socket, which unregisters and
// re-registers its queries.
//
// Usage:
//
//	queryd [--config FILE] [--bind ADDR] [--port N] [--log-level LEVEL]
//
// On SIGINT or SIGTERM the query server stops accepting and closes its
// connections, the worker pool gets shutdown.executor_timeout to drain,
// and finally the host loop stops.
package main
