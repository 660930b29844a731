// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintIncludesBinaryAndVersion(t *testing.T) {
	var buffer bytes.Buffer
	Print(&buffer, "queryd")
	output := buffer.String()
	if !strings.HasPrefix(output, "queryd "+Version) {
		t.Fatalf("output %q does not start with binary and version", output)
	}
	if !strings.Contains(output, "Platform:") {
		t.Fatalf("output %q lacks platform line", output)
	}
}
