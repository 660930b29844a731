// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Socket.Port != 25566 {
		t.Errorf("expected socket.port=25566, got %d", cfg.Socket.Port)
	}
	if cfg.Socket.Backlog != 50 {
		t.Errorf("expected socket.backlog=50, got %d", cfg.Socket.Backlog)
	}
	if cfg.Idle.Timeout != 30*time.Minute || cfg.Idle.PollInterval != 4*time.Second {
		t.Errorf("unexpected idle defaults: %+v", cfg.Idle)
	}
	if cfg.Shutdown.ListenerTimeout != 20*time.Second || cfg.Shutdown.ExecutorTimeout != 10*time.Second {
		t.Errorf("unexpected shutdown defaults: %+v", cfg.Shutdown)
	}
	if cfg.Address() != ":25566" {
		t.Errorf("expected address :25566, got %s", cfg.Address())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadFileYAML(t *testing.T) {
	path := writeFile(t, "queryd.yaml", `
socket:
  bind: 127.0.0.1
  port: 4000
idle:
  timeout: 90s
host:
  players:
    - name: Alice
      online: true
    - name: Bob
log:
  level: debug
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}

	if cfg.Address() != "127.0.0.1:4000" {
		t.Errorf("expected address 127.0.0.1:4000, got %s", cfg.Address())
	}
	if cfg.Idle.Timeout != 90*time.Second {
		t.Errorf("expected idle.timeout=90s, got %s", cfg.Idle.Timeout)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Idle.PollInterval != 4*time.Second {
		t.Errorf("expected idle.poll_interval default, got %s", cfg.Idle.PollInterval)
	}
	if len(cfg.Host.Players) != 2 || !cfg.Host.Players[0].Online || cfg.Host.Players[1].Online {
		t.Errorf("unexpected players: %+v", cfg.Host.Players)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.SlogLevel())
	}
}

func TestLoadFileJSONC(t *testing.T) {
	path := writeFile(t, "queryd.jsonc", `{
  // comments and trailing commas are allowed
  "socket": {"port": 4100, "backlog": 8,},
  "metrics": {"address": "127.0.0.1:9100"},
}`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Socket.Port != 4100 || cfg.Socket.Backlog != 8 {
		t.Errorf("unexpected socket config: %+v", cfg.Socket)
	}
	if cfg.Metrics.Address != "127.0.0.1:9100" {
		t.Errorf("expected metrics.address, got %q", cfg.Metrics.Address)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "queryd.yaml", "socket:\n  port: 4000\n")
	t.Setenv("QUERYD_SOCKET_PORT", "4200")
	t.Setenv("QUERYD_IDLE_TIMEOUT", "5m")
	t.Setenv("QUERYD_WORKERS_MAX_CONNECTIONS", "32")
	t.Setenv("QUERYD_LOG_FORMAT", "json")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Socket.Port != 4200 {
		t.Errorf("expected env to override socket.port, got %d", cfg.Socket.Port)
	}
	if cfg.Idle.Timeout != 5*time.Minute {
		t.Errorf("expected idle.timeout=5m, got %s", cfg.Idle.Timeout)
	}
	if cfg.Workers.MaxConnections != 32 {
		t.Errorf("expected workers.max_connections=32, got %d", cfg.Workers.MaxConnections)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected log.format=json, got %s", cfg.Log.Format)
	}
}

func TestEnvironmentOverrideRejectsGarbage(t *testing.T) {
	t.Setenv("QUERYD_SOCKET_PORT", "not-a-number")
	if _, err := LoadFile(""); err == nil {
		t.Fatal("expected error for unparseable QUERYD_SOCKET_PORT")
	}
}

func TestLoadUsesQuerydConfig(t *testing.T) {
	path := writeFile(t, "queryd.yaml", "socket:\n  port: 4300\n")
	t.Setenv("QUERYD_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Socket.Port != 4300 {
		t.Errorf("expected socket.port from QUERYD_CONFIG file, got %d", cfg.Socket.Port)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv("QUERYD_CONFIG", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Socket.Port != 25566 {
		t.Errorf("expected default port, got %d", cfg.Socket.Port)
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestExpandVariables(t *testing.T) {
	t.Setenv("QUERYD_RUNTIME", "/run/test")
	path := writeFile(t, "queryd.yaml", `
control:
  socket_path: ${QUERYD_RUNTIME}/control.sock
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Control.SocketPath != "/run/test/control.sock" {
		t.Errorf("expected expanded socket path, got %s", cfg.Control.SocketPath)
	}

	if got := expandVars("${QUERYD_UNSET_FOR_TEST:-/tmp/fallback}/x"); got != "/tmp/fallback/x" {
		t.Errorf("expected default expansion, got %s", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port range", func(c *Config) { c.Socket.Port = 70000 }, "socket.port"},
		{"backlog", func(c *Config) { c.Socket.Backlog = 0 }, "socket.backlog"},
		{"idle timeout", func(c *Config) { c.Idle.Timeout = 0 }, "idle.timeout"},
		{"poll interval", func(c *Config) { c.Idle.PollInterval = -time.Second }, "idle.poll_interval"},
		{"listener timeout", func(c *Config) { c.Shutdown.ListenerTimeout = 0 }, "shutdown.listener_timeout"},
		{"max connections", func(c *Config) { c.Workers.MaxConnections = -1 }, "workers.max_connections"},
		{"log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 2 }, "telemetry.sample_ratio"},
		{"player name", func(c *Config) { c.Host.Players = []PlayerConfig{{}} }, "host.players[0].name"},
		{"duplicate player", func(c *Config) {
			c.Host.Players = []PlayerConfig{{Name: "Alice"}, {Name: "alice"}}
		}, "duplicate player"},
		{"service name", func(c *Config) {
			c.Telemetry.OTLPEndpoint = "localhost:4318"
			c.Telemetry.ServiceName = ""
		}, "telemetry.service_name"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("expected error mentioning %q, got %v", test.want, err)
			}
		})
	}
}
