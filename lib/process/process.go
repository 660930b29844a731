// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds entrypoint helpers for queryd binaries: the
// places where writing straight to stderr is correct because the
// structured logger is not available yet.
package process

import (
	"fmt"
	"os"
)

// Fatal writes "error: err" to stderr and exits with status 1. Use it
// in main() for errors returned before the logger exists.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
