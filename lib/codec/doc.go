// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the CBOR encoding used by the queryd control
// socket. Encoding is deterministic (RFC 8949 core deterministic
// encoding) and decoding ignores unknown fields so the daemon and
// older clients can evolve independently.
//
// Callers import this package rather than fxamacker/cbor directly so
// the encoder options live in one place.
package codec
