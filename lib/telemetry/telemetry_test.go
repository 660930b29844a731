// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSetupDisabledWithoutEndpoint(t *testing.T) {
	provider, shutdown, err := Setup(context.Background(), Config{ServiceName: "queryd"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if provider != otel.GetTracerProvider() {
		t.Fatal("disabled Setup did not return the global provider")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupWithEndpoint(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	// The exporter connects lazily, so an unreachable endpoint is fine
	// until spans are flushed.
	provider, shutdown, err := Setup(context.Background(), Config{
		Endpoint:    "127.0.0.1:1",
		ServiceName: "queryd-test",
		SampleRatio: 1,
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if _, ok := provider.(*sdktrace.TracerProvider); !ok {
		t.Fatalf("provider is %T, want *sdktrace.TracerProvider", provider)
	}
	if otel.GetTracerProvider() != provider {
		t.Fatal("provider not installed globally")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Nothing was recorded, so shutdown has nothing to flush.
	if err := shutdown(ctx); err != nil && !strings.Contains(err.Error(), "context canceled") {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSampler(t *testing.T) {
	if got := sampler(1).Description(); got != "AlwaysOnSampler" {
		t.Errorf("sampler(1) = %s", got)
	}
	if got := sampler(0.25).Description(); !strings.Contains(got, "TraceIDRatioBased{0.25}") {
		t.Errorf("sampler(0.25) = %s", got)
	}
}
