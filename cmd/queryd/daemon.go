// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/queryd-project/queryd/lib/clock"
	"github.com/queryd-project/queryd/lib/config"
	"github.com/queryd-project/queryd/lib/control"
	"github.com/queryd-project/queryd/lib/hostloop"
	"github.com/queryd-project/queryd/lib/httpserver"
	"github.com/queryd-project/queryd/lib/querymetrics"
	"github.com/queryd-project/queryd/lib/queryserver"
	"github.com/queryd-project/queryd/lib/telemetry"
	"github.com/queryd-project/queryd/lib/version"
	"github.com/queryd-project/queryd/lib/workers"
)

// telemetryFlushTimeout bounds the final span export.
const telemetryFlushTimeout = 5 * time.Second

type daemonOptions struct {
	Logger *slog.Logger

	// Clock defaults to clock.Real().
	Clock clock.Clock
}

// daemon holds every long-lived component of the process.
type daemon struct {
	config *config.Config
	logger *slog.Logger

	host    *hostloop.Loop
	pool    *workers.Pool
	server  *queryserver.Server
	players *playersModule

	http    *httpserver.Server
	control *control.Server

	shutdownTelemetry telemetry.Shutdown

	// started is closed once the query server is accepting.
	started chan struct{}
}

func newDaemon(ctx context.Context, cfg *config.Config, options daemonOptions) (*daemon, error) {
	logger := options.Logger
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}

	tracerProvider, shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version.Version,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("setting up telemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := querymetrics.New(querymetrics.Config{Registerer: registry})

	roster := newRoster(cfg.Host.Players)
	host := hostloop.New(hostloop.Config{
		TickInterval: cfg.Host.TickInterval,
		OnTick:       roster.tick,
		Clock:        clk,
		Logger:       logger.With("component", "host"),
	})
	pool := workers.New(workers.Config{
		MaxTasks: cfg.Workers.MaxConnections,
		Clock:    clk,
		Logger:   logger.With("component", "workers"),
	})

	server := queryserver.New(queryserver.Config{
		Address:             cfg.Address(),
		Backlog:             cfg.Socket.Backlog,
		IdleTimeout:         cfg.Idle.Timeout,
		ReaperPollInterval:  cfg.Idle.PollInterval,
		AcceptTimeout:       cfg.Socket.AcceptTimeout,
		WriteTimeout:        cfg.Socket.WriteTimeout,
		ListenerStopTimeout: cfg.Shutdown.ListenerTimeout,
		Host:                host,
		Executor:            pool,
		Observer:            metrics,
		TracerProvider:      tracerProvider,
		Clock:               clk,
		Logger:              logger.With("component", "queryserver"),
	})
	registerBuiltins(server, clk)
	players := newPlayersModule(server, host, roster, logger)
	players.enable()

	d := &daemon{
		config:            cfg,
		logger:            logger,
		host:              host,
		pool:              pool,
		server:            server,
		players:           players,
		shutdownTelemetry: shutdownTelemetry,
		started:           make(chan struct{}),
	}

	if cfg.Metrics.Address != "" {
		d.http = httpserver.New(httpserver.Config{
			Address: cfg.Metrics.Address,
			Handler: httpserver.NewRouter(httpserver.RouterConfig{
				Gatherer: registry,
				Health:   d.health,
				Logger:   logger,
			}),
			Logger: logger.With("component", "http"),
		})
	}

	if cfg.Control.SocketPath != "" {
		d.control = control.NewServer(cfg.Control.SocketPath, logger.With("component", "control"))
		control.InstallQueryActions(d.control, control.QuerySource{
			Server:      server,
			Version:     version.Info(),
			ActiveTasks: pool.Active,
			HostTasks:   host.Executed,
		})
		players.installActions(d.control)
	}

	return d, nil
}

// health reports whether the query server is accepting.
func (d *daemon) health() error {
	if !d.server.IsRunning() {
		return fmt.Errorf("query server is %s", d.server.State())
	}
	return nil
}

// run starts every component, blocks until ctx is cancelled or an
// auxiliary server fails, then shuts down.
func (d *daemon) run(ctx context.Context) error {
	// The host loop outlives ctx: it must keep serving HostThread
	// handlers until the query server has stopped.
	go d.host.Run(context.Background())

	if err := d.server.Start(); err != nil {
		d.host.Stop()
		<-d.host.Done()
		d.flushTelemetry()
		return err
	}
	close(d.started)
	d.logger.Info("queryd started",
		"version", version.Info(),
		"address", d.server.Addr().String(),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	if d.http != nil {
		group.Go(func() error { return d.http.Serve(groupCtx) })
	}
	if d.control != nil {
		group.Go(func() error { return d.control.Serve(groupCtx) })
	}
	group.Go(func() error {
		<-groupCtx.Done()
		return nil
	})
	err := group.Wait()
	if err != nil {
		d.logger.Error("auxiliary server failed", "error", err)
	}

	d.shutdown()
	return err
}

// shutdown stops the query server, drains connections within the
// executor timeout, then stops the host loop.
func (d *daemon) shutdown() {
	d.logger.Info("shutting down")

	if err := d.server.Stop(); err != nil && !errors.Is(err, queryserver.ErrNotRunning) {
		d.logger.Warn("stopping query server", "error", err)
	}

	if remaining := d.pool.Shutdown(d.config.Shutdown.ExecutorTimeout); remaining > 0 {
		d.logger.Warn("abandoned connections at shutdown", "count", remaining)
	}

	d.host.Stop()
	<-d.host.Done()

	d.flushTelemetry()
	d.logger.Info("queryd stopped")
}

func (d *daemon) flushTelemetry() {
	ctx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
	defer cancel()
	if err := d.shutdownTelemetry(ctx); err != nil {
		d.logger.Warn("flushing traces", "error", err)
	}
}
