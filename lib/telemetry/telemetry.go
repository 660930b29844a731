// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry installs OpenTelemetry tracing for queryd.
//
// Tracing is opt-in: with no endpoint configured, [Setup] returns the
// current global (no-op by default) provider and a shutdown that does
// nothing. With an endpoint, spans are batched to an OTLP/HTTP
// collector and the provider is installed globally.
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures trace export.
type Config struct {
	// Endpoint is the collector as host:port (plain HTTP) or a full
	// URL. Empty disables export.
	Endpoint string

	// ServiceName and ServiceVersion describe this process.
	ServiceName    string
	ServiceVersion string

	// SampleRatio is the fraction of root spans kept; 1 keeps all.
	SampleRatio float64
}

// Shutdown flushes pending spans.
type Shutdown func(context.Context) error

// Setup returns the tracer provider to hand to instrumented
// components, and a Shutdown to defer.
func Setup(ctx context.Context, config Config) (trace.TracerProvider, Shutdown, error) {
	noop := func(context.Context) error { return nil }
	if config.Endpoint == "" {
		return otel.GetTracerProvider(), noop, nil
	}

	var endpointOption otlptracehttp.Option
	if strings.Contains(config.Endpoint, "://") {
		endpointOption = otlptracehttp.WithEndpointURL(config.Endpoint)
	} else {
		endpointOption = otlptracehttp.WithEndpoint(config.Endpoint)
	}
	options := []otlptracehttp.Option{endpointOption}
	if !strings.HasPrefix(config.Endpoint, "https://") {
		options = append(options, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, options...)
	if err != nil {
		return nil, noop, fmt.Errorf("creating OTLP exporter for %s: %w", config.Endpoint, err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, noop, fmt.Errorf("building trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(config.SampleRatio)),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return provider, provider.Shutdown, nil
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}
