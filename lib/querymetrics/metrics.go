// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

// Package querymetrics exports query server events as Prometheus
// metrics.
//
// [Metrics] implements queryserver.Observer; pass it as
// queryserver.Config.Observer and serve its registry over HTTP (see
// lib/httpserver). Metrics collected, with the default namespace:
//
//   - queryd_sessions_active: gauge of open connections
//   - queryd_sessions_total: connections accepted
//   - queryd_sessions_reaped_total: connections closed for idleness
//   - queryd_connections_rejected_total: connections refused by the executor
//   - queryd_requests_total: requests by query and status code
//   - queryd_request_duration_seconds: dispatch latency by query
//   - queryd_handler_failures_total: handler errors and panics by query
//   - queryd_accept_errors_total: failed accepts
package querymetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/queryd-project/queryd/lib/queryserver"
)

// Config configures the collectors.
type Config struct {
	// Namespace prefixes metric names. Default: "queryd"
	Namespace string

	// ConstLabels are added to every metric.
	ConstLabels prometheus.Labels

	// Buckets are the request duration histogram buckets.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registerer receives the collectors. Default:
	// prometheus.DefaultRegisterer
	Registerer prometheus.Registerer
}

// Metrics records server events into Prometheus collectors.
type Metrics struct {
	sessionsActive      prometheus.Gauge
	sessionsTotal       prometheus.Counter
	sessionsReaped      prometheus.Counter
	connectionsRejected prometheus.Counter
	requests            *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	handlerFailures     *prometheus.CounterVec
	acceptErrors        prometheus.Counter
}

var _ queryserver.Observer = (*Metrics)(nil)

// New creates and registers the collectors. It panics if they are
// already registered with config.Registerer.
func New(config Config) *Metrics {
	if config.Namespace == "" {
		config.Namespace = "queryd"
	}
	if config.Buckets == nil {
		config.Buckets = prometheus.DefBuckets
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(config.Registerer)

	return &Metrics{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "sessions_active",
			Help:        "Number of open query connections",
			ConstLabels: config.ConstLabels,
		}),
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "sessions_total",
			Help:        "Total query connections served",
			ConstLabels: config.ConstLabels,
		}),
		sessionsReaped: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "sessions_reaped_total",
			Help:        "Query connections closed after the idle timeout",
			ConstLabels: config.ConstLabels,
		}),
		connectionsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "connections_rejected_total",
			Help:        "Connections refused because the executor was full or shut down",
			ConstLabels: config.ConstLabels,
		}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "requests_total",
			Help:        "Queries answered, by query name and status code",
			ConstLabels: config.ConstLabels,
		}, []string{"query", "code"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "request_duration_seconds",
			Help:        "Query dispatch duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"query"}),
		handlerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "handler_failures_total",
			Help:        "Query handlers that returned an error or panicked",
			ConstLabels: config.ConstLabels,
		}, []string{"query"}),
		acceptErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "accept_errors_total",
			Help:        "Failed accepts on the query listener",
			ConstLabels: config.ConstLabels,
		}),
	}
}

func (m *Metrics) SessionOpened() {
	m.sessionsActive.Inc()
	m.sessionsTotal.Inc()
}

func (m *Metrics) SessionClosed() { m.sessionsActive.Dec() }

func (m *Metrics) SessionReaped() { m.sessionsReaped.Inc() }

func (m *Metrics) RequestServed(query string, status queryserver.Status, elapsed time.Duration) {
	m.requests.WithLabelValues(query, strconv.Itoa(status.Code)).Inc()
	m.requestDuration.WithLabelValues(query).Observe(elapsed.Seconds())
}

func (m *Metrics) HandlerFailed(query string) {
	m.handlerFailures.WithLabelValues(query).Inc()
}

func (m *Metrics) AcceptFailed() { m.acceptErrors.Inc() }

func (m *Metrics) ConnectionRejected() { m.connectionsRejected.Inc() }
