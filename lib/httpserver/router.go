// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package httpserver

import (
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig configures the HTTP routes.
type RouterConfig struct {
	// Gatherer is exposed on /metrics. Defaults to
	// prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Health reports readiness on /healthz; a non-nil error answers
	// 503 with the error text. Nil means always healthy.
	Health func() error

	// Logger is required.
	Logger *slog.Logger
}

// NewRouter returns the metrics and health routes.
func NewRouter(config RouterConfig) http.Handler {
	if config.Logger == nil {
		panic("httpserver: RouterConfig.Logger is required")
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(recoverer(config.Logger))

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(config.Logger.Handler(), slog.LevelError),
	}))
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if config.Health != nil {
			if err := config.Health(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				io.WriteString(w, err.Error()+"\n")
				return
			}
		}
		io.WriteString(w, "ok\n")
	})
	return r
}

// recoverer converts handler panics into 500 responses and logs them.
func recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			defer func() {
				if recovered := recover(); recovered != nil {
					if recovered == http.ErrAbortHandler {
						panic(recovered)
					}
					logger.Error("http handler panicked",
						"path", req.URL.Path,
						"panic", recovered,
						"stack", string(debug.Stack()),
					)
					w.WriteHeader(http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, req)
		})
	}
}
