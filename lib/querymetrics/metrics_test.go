// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package querymetrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/queryd-project/queryd/lib/queryserver"
)

func newMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	return New(Config{Registerer: registry}), registry
}

func TestSessionGauges(t *testing.T) {
	metrics, _ := newMetrics(t)

	metrics.SessionOpened()
	metrics.SessionOpened()
	metrics.SessionClosed()
	metrics.SessionReaped()

	if got := testutil.ToFloat64(metrics.sessionsActive); got != 1 {
		t.Errorf("sessions_active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.sessionsTotal); got != 2 {
		t.Errorf("sessions_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.sessionsReaped); got != 1 {
		t.Errorf("sessions_reaped_total = %v, want 1", got)
	}
}

func TestRequestsByQueryAndCode(t *testing.T) {
	metrics, registry := newMetrics(t)

	metrics.RequestServed("players", queryserver.StatusOK, 3*time.Millisecond)
	metrics.RequestServed("players", queryserver.StatusOK, time.Millisecond)
	metrics.RequestServed(queryserver.UnknownQuery, queryserver.StatusNotFound, 0)
	metrics.HandlerFailed("players")

	expected := `
# HELP queryd_requests_total Queries answered, by query name and status code
# TYPE queryd_requests_total counter
queryd_requests_total{code="200",query="players"} 2
queryd_requests_total{code="404",query="(unknown)"} 1
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "queryd_requests_total"); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(metrics.handlerFailures.WithLabelValues("players")); got != 1 {
		t.Errorf("handler_failures_total{query=players} = %v, want 1", got)
	}
	if count := testutil.CollectAndCount(metrics.requestDuration); count != 2 {
		t.Errorf("request_duration_seconds has %d series, want 2", count)
	}
}

func TestNamespaceAndConstLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := New(Config{
		Namespace:   "lobby",
		ConstLabels: prometheus.Labels{"instance": "a"},
		Registerer:  registry,
	})
	metrics.AcceptFailed()
	metrics.ConnectionRejected()

	expected := `
# HELP lobby_accept_errors_total Failed accepts on the query listener
# TYPE lobby_accept_errors_total counter
lobby_accept_errors_total{instance="a"} 1
# HELP lobby_connections_rejected_total Connections refused because the executor was full or shut down
# TYPE lobby_connections_rejected_total counter
lobby_connections_rejected_total{instance="a"} 1
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"lobby_accept_errors_total", "lobby_connections_rejected_total"); err != nil {
		t.Fatal(err)
	}
}
