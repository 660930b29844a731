// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for queryd binaries.
// Values are injected with -ldflags:
//
//	go build -ldflags "-X github.com/queryd-project/queryd/lib/version.GitCommit=$(git rev-parse --short HEAD)" ./cmd/queryd
package version

import (
	"fmt"
	"io"
	"runtime"
)

var (
	// Version is the release version.
	Version = "0.1.0-dev"

	// GitCommit is the short commit hash of the build.
	GitCommit = "unknown"

	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// Info returns "version (commit, build time)".
func Info() string {
	return fmt.Sprintf("%s (%s, %s)", Version, GitCommit, BuildTime)
}

// Print writes the --version output for binary to w.
func Print(w io.Writer, binary string) {
	fmt.Fprintf(w, "%s %s\n  Go: %s\n  Platform: %s/%s\n",
		binary, Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
