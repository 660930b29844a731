// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/queryd-project/queryd/lib/config"
	"github.com/queryd-project/queryd/lib/process"
	"github.com/queryd-project/queryd/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("queryd", pflag.ContinueOnError)
	var (
		configPath  string
		bind        string
		port        int
		logLevel    string
		showVersion bool
	)
	flags.StringVar(&configPath, "config", os.Getenv(config.EnvPrefix+"CONFIG"), "configuration file (YAML, or JSON with comments)")
	flags.StringVar(&bind, "bind", "", "interface address to listen on (overrides socket.bind)")
	flags.IntVar(&port, "port", 0, "TCP port to listen on (overrides socket.port)")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides log.level)")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		version.Print(os.Stdout, "queryd")
		return nil
	}

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	if flags.Changed("bind") {
		cfg.Socket.Bind = bind
	}
	if flags.Changed("port") {
		cfg.Socket.Port = port
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(os.Stderr, cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(ctx, cfg, daemonOptions{Logger: logger})
	if err != nil {
		return err
	}
	return d.run(ctx)
}

// newLogger builds the daemon logger. Format "auto" is text on a
// terminal and JSON otherwise.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	options := &slog.HandlerOptions{Level: cfg.SlogLevel()}

	format := cfg.Log.Format
	if format == "auto" {
		format = "json"
		if file, ok := w.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
			format = "text"
		}
	}

	if format == "text" {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}
