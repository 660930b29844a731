// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

// Package control implements queryd's local admin socket.
//
// The admin socket is a unix socket speaking one CBOR request and one
// CBOR response per connection. A request is a map with an "action"
// key plus action-specific fields; the response is [Response]:
//
//	{ok: true, data: <action result>}
//	{ok: false, error: "unknown action \"x\""}
//
// [Server] routes actions to [ActionFunc]s registered with Handle;
// [InstallQueryActions] adds the built-in status, handlers and
// sessions actions for a query server. [Call] is the client side, used
// by queryctl.
package control
