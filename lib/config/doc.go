// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads queryd configuration.
//
// Configuration comes from at most one file, named by the --config flag
// (via [LoadFile]) or the QUERYD_CONFIG environment variable (via
// [Load]). There is no discovery: without either, the built-in
// [Default] values are used. Files are YAML; a file ending in .json or
// .jsonc is read as JSON with comments and trailing commas allowed.
//
// After the file, QUERYD_-prefixed environment variables override
// individual keys: socket.port is QUERYD_SOCKET_PORT, idle.timeout is
// QUERYD_IDLE_TIMEOUT, and so on. Durations use Go syntax ("30m",
// "4s") in both places.
//
// ${VAR} and ${VAR:-default} are expanded in path-valued keys.
//
// Callers should run [Config.Validate] before use.
package config
