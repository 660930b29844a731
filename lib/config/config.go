// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "QUERYD_"

// Config is the daemon configuration.
type Config struct {
	// Socket configures the query listener.
	Socket SocketConfig `yaml:"socket" envPrefix:"SOCKET_"`

	// Idle configures reaping of silent connections.
	Idle IdleConfig `yaml:"idle" envPrefix:"IDLE_"`

	// Shutdown bounds how long stopping may take.
	Shutdown ShutdownConfig `yaml:"shutdown" envPrefix:"SHUTDOWN_"`

	// Workers configures the connection executor.
	Workers WorkersConfig `yaml:"workers" envPrefix:"WORKERS_"`

	// Host configures the host loop and its sample state.
	Host HostConfig `yaml:"host" envPrefix:"HOST_"`

	// Log configures the daemon logger.
	Log LogConfig `yaml:"log" envPrefix:"LOG_"`

	// Control configures the local admin socket.
	Control ControlConfig `yaml:"control" envPrefix:"CONTROL_"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`

	// Telemetry configures trace export.
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

// SocketConfig configures the TCP listener.
type SocketConfig struct {
	// Bind is the interface address. Empty binds all interfaces.
	Bind string `yaml:"bind" env:"BIND"`

	// Port is the TCP port. Default: 25566
	Port int `yaml:"port" env:"PORT"`

	// Backlog is the listen queue length. Default: 50
	Backlog int `yaml:"backlog" env:"BACKLOG"`

	// AcceptTimeout bounds each accept wait. Default: 4s
	AcceptTimeout time.Duration `yaml:"accept_timeout" env:"ACCEPT_TIMEOUT"`

	// WriteTimeout bounds each reply write. Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

// IdleConfig configures the idle reaper.
type IdleConfig struct {
	// Timeout closes connections silent for this long. Default: 30m
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`

	// PollInterval is the reaper's wake-up period. Default: 4s
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
}

// ShutdownConfig bounds the stop sequence.
type ShutdownConfig struct {
	// ListenerTimeout bounds the wait for the listener. Default: 20s
	ListenerTimeout time.Duration `yaml:"listener_timeout" env:"LISTENER_TIMEOUT"`

	// ExecutorTimeout bounds the wait for open connections. Default: 10s
	ExecutorTimeout time.Duration `yaml:"executor_timeout" env:"EXECUTOR_TIMEOUT"`
}

// WorkersConfig configures the connection executor.
type WorkersConfig struct {
	// MaxConnections caps concurrent connections. 0 is unlimited.
	MaxConnections int64 `yaml:"max_connections" env:"MAX_CONNECTIONS"`
}

// HostConfig configures the host loop.
type HostConfig struct {
	// TickInterval runs the host's periodic tick. 0 disables it.
	// Default: 1s
	TickInterval time.Duration `yaml:"tick_interval" env:"TICK_INTERVAL"`

	// Players seeds the sample roster.
	Players []PlayerConfig `yaml:"players"`
}

// PlayerConfig is one roster entry.
type PlayerConfig struct {
	Name   string `yaml:"name"`
	Online bool   `yaml:"online"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error. Default: info
	Level string `yaml:"level" env:"LEVEL"`

	// Format is text, json or auto. auto picks text on a terminal and
	// json otherwise. Default: auto
	Format string `yaml:"format" env:"FORMAT"`
}

// ControlConfig configures the admin socket.
type ControlConfig struct {
	// SocketPath is the unix socket path. Empty disables the socket.
	SocketPath string `yaml:"socket_path" env:"SOCKET_PATH"`
}

// MetricsConfig configures the HTTP metrics endpoint.
type MetricsConfig struct {
	// Address is the HTTP listen address. Empty disables the endpoint.
	Address string `yaml:"address" env:"ADDRESS"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	// OTLPEndpoint is the OTLP/HTTP collector (host:port or URL).
	// Empty disables export.
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`

	// ServiceName is reported as service.name. Default: queryd
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`

	// SampleRatio is the fraction of traces kept. Default: 1
	SampleRatio float64 `yaml:"sample_ratio" env:"SAMPLE_RATIO"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Socket: SocketConfig{
			Port:          25566,
			Backlog:       50,
			AcceptTimeout: 4 * time.Second,
			WriteTimeout:  30 * time.Second,
		},
		Idle: IdleConfig{
			Timeout:      30 * time.Minute,
			PollInterval: 4 * time.Second,
		},
		Shutdown: ShutdownConfig{
			ListenerTimeout: 20 * time.Second,
			ExecutorTimeout: 10 * time.Second,
		},
		Host: HostConfig{
			TickInterval: time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "queryd",
			SampleRatio: 1,
		},
	}
}

// Load loads the file named by QUERYD_CONFIG, or only the defaults and
// environment overrides when it is unset.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(EnvPrefix + "CONFIG"))
}

// LoadFile loads configuration from path over the defaults, then
// applies environment overrides. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("applying %s environment overrides: %w", EnvPrefix, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// loadFile merges a single file into c.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML once comments and trailing commas
		// are gone.
		data = jsonc.ToJSON(data)
	}

	return yaml.Unmarshal(data, c)
}

// expandVariables expands ${VAR} and ${VAR:-default} in path keys.
func (c *Config) expandVariables() {
	c.Control.SocketPath = expandVars(c.Control.SocketPath)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json", "auto"}
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Socket.Port < 0 || c.Socket.Port > 65535 {
		errs = append(errs, fmt.Errorf("socket.port must be between 0 and 65535, got %d", c.Socket.Port))
	}
	if c.Socket.Backlog <= 0 {
		errs = append(errs, fmt.Errorf("socket.backlog must be positive, got %d", c.Socket.Backlog))
	}

	positive := map[string]time.Duration{
		"socket.accept_timeout":     c.Socket.AcceptTimeout,
		"idle.timeout":              c.Idle.Timeout,
		"idle.poll_interval":        c.Idle.PollInterval,
		"shutdown.listener_timeout": c.Shutdown.ListenerTimeout,
		"shutdown.executor_timeout": c.Shutdown.ExecutorTimeout,
	}
	for _, key := range sortedKeys(positive) {
		if positive[key] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", key, positive[key]))
		}
	}
	if c.Socket.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("socket.write_timeout must not be negative, got %s", c.Socket.WriteTimeout))
	}
	if c.Host.TickInterval < 0 {
		errs = append(errs, fmt.Errorf("host.tick_interval must not be negative, got %s", c.Host.TickInterval))
	}
	if c.Workers.MaxConnections < 0 {
		errs = append(errs, fmt.Errorf("workers.max_connections must not be negative, got %d", c.Workers.MaxConnections))
	}

	seen := make(map[string]bool)
	for i, player := range c.Host.Players {
		name := strings.ToLower(player.Name)
		switch {
		case player.Name == "":
			errs = append(errs, fmt.Errorf("host.players[%d].name is required", i))
		case seen[name]:
			errs = append(errs, fmt.Errorf("host.players[%d]: duplicate player %q", i, player.Name))
		}
		seen[name] = true
	}

	if !slices.Contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", logLevels))
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", logFormats))
	}

	if c.Telemetry.OTLPEndpoint != "" && c.Telemetry.ServiceName == "" {
		errs = append(errs, errors.New("telemetry.service_name is required when telemetry.otlp_endpoint is set"))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_ratio must be between 0 and 1, got %v", c.Telemetry.SampleRatio))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Address returns the listener address as host:port.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Socket.Bind, strconv.Itoa(c.Socket.Port))
}

// SlogLevel converts Log.Level. Validate guarantees it parses.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func sortedKeys(m map[string]time.Duration) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
