// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package queryserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/queryd-project/queryd/lib/clock"
	"github.com/queryd-project/queryd/lib/netutil"
)

// Defaults applied by New to zero Config fields.
const (
	DefaultPort                = 25566
	DefaultIdleTimeout         = 30 * time.Minute
	DefaultReaperPollInterval  = 4 * time.Second
	DefaultAcceptTimeout       = 4 * time.Second
	DefaultWriteTimeout        = 30 * time.Second
	DefaultListenerStopTimeout = 20 * time.Second
	DefaultMaxLineLength       = 1 << 20
)

// tracerName identifies spans created by this package.
const tracerName = "github.com/queryd-project/queryd/lib/queryserver"

// Executor runs one task per accepted connection. Execute must not
// block; returning an error refuses the connection. The context passed
// to the task is cancelled when the executor shuts down.
type Executor interface {
	Execute(task func(ctx context.Context)) error
}

// State is a server lifecycle state.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config configures a Server.
type Config struct {
	// Address is the host:port to bind. An empty host binds every
	// interface. Defaults to ":25566".
	Address string

	// Backlog is the pending-connection queue length passed to listen.
	Backlog int

	// IdleTimeout closes connections that send nothing for this long.
	IdleTimeout time.Duration

	// ReaperPollInterval bounds how long the reaper sleeps when no
	// connection is armed.
	ReaperPollInterval time.Duration

	// AcceptTimeout is the accept deadline, bounding how quickly the
	// listener notices cancellation.
	AcceptTimeout time.Duration

	// WriteTimeout bounds each reply write. Negative disables it.
	WriteTimeout time.Duration

	// ListenerStopTimeout bounds how long Stop waits for the listener
	// goroutine.
	ListenerStopTimeout time.Duration

	// MaxLineLength caps a request line in bytes.
	MaxLineLength int

	// Registry holds the handlers. When nil, New creates one using
	// Host. Sharing a Registry between servers keeps registrations
	// across a restart.
	Registry *Registry

	// Host runs HostThread handlers. Only used when Registry is nil.
	Host HostExecutor

	// Executor runs connections. It may also be set later with
	// SetExecutor, but must be present before Start.
	Executor Executor

	Observer       Observer
	TracerProvider trace.TracerProvider
	Clock          clock.Clock

	// Logger is required.
	Logger *slog.Logger
}

// Server accepts query connections and dispatches their requests.
type Server struct {
	config   Config
	registry *Registry
	observer Observer
	tracer   trace.Tracer
	clock    clock.Clock
	logger   *slog.Logger

	nextSessionID atomic.Uint64

	mu        sync.Mutex
	state     State
	executor  Executor
	listener  *listener
	reaper    *reaper
	cancel    context.CancelFunc
	startedAt time.Time
}

// New creates a server in the created state.
func New(config Config) *Server {
	if config.Logger == nil {
		panic("queryserver: Config.Logger is required")
	}
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.Backlog <= 0 {
		config.Backlog = netutil.DefaultBacklog
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.ReaperPollInterval <= 0 {
		config.ReaperPollInterval = DefaultReaperPollInterval
	}
	if config.AcceptTimeout <= 0 {
		config.AcceptTimeout = DefaultAcceptTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.ListenerStopTimeout <= 0 {
		config.ListenerStopTimeout = DefaultListenerStopTimeout
	}
	if config.MaxLineLength <= 0 {
		config.MaxLineLength = DefaultMaxLineLength
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Observer == nil {
		config.Observer = NopObserver{}
	}
	if config.TracerProvider == nil {
		config.TracerProvider = otel.GetTracerProvider()
	}

	registry := config.Registry
	if registry == nil {
		registry = NewRegistry(config.Host, config.Logger)
	}

	return &Server{
		config:   config,
		registry: registry,
		observer: config.Observer,
		tracer:   config.TracerProvider.Tracer(tracerName),
		clock:    config.Clock,
		logger:   config.Logger,
		executor: config.Executor,
	}
}

// SetExecutor replaces the connection executor. It fails once the
// server has started.
func (s *Server) SetExecutor(executor Executor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCreated {
		return fmt.Errorf("queryserver: cannot change executor of a %s server", s.state)
	}
	s.executor = executor
	return nil
}

// Start binds the socket and starts the listener and reaper. Calling
// Start on a running server does nothing.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateRunning:
		return nil
	case StateStopped:
		return ErrServerStopped
	}
	if s.executor == nil {
		return ErrNoExecutor
	}

	ln, err := netutil.Listen(s.config.Address, s.config.Backlog)
	if err != nil {
		s.logger.Error("binding query server failed",
			"address", s.config.Address,
			"error", err,
		)
		return fmt.Errorf("%w: %s: %w", ErrBind, s.config.Address, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.reaper = newReaper(s.clock, s.config.IdleTimeout, s.config.ReaperPollInterval, s.logger, s.observer)
	s.listener = newListener(s, ln)
	s.state = StateRunning
	s.startedAt = s.clock.Now()

	go s.reaper.run()
	go s.listener.run(ctx)
	return nil
}

// Stop closes the listening socket, waits up to ListenerStopTimeout for
// the listener to exit, and closes every open connection. In-flight
// replies are completed first. Stop does not wait for connection
// goroutines; that is the executor's shutdown.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateCreated:
		return ErrNotRunning
	case StateStopped:
		return nil
	}
	s.state = StateStopped

	s.cancel()
	s.listener.close()
	select {
	case <-s.listener.done:
	case <-s.clock.After(s.config.ListenerStopTimeout):
		s.logger.Warn("query listener did not stop in time",
			"timeout", s.config.ListenerStopTimeout,
		)
	}

	if !s.reaper.shutdown(s.config.ListenerStopTimeout) {
		s.logger.Warn("idle reaper did not stop in time",
			"timeout", s.config.ListenerStopTimeout,
		)
	}
	s.logger.Info("query server stopped")
	return nil
}

// startSession hands conn to the executor. Called by the listener.
func (s *Server) startSession(conn net.Conn) {
	sess := newSession(s, s.nextSessionID.Add(1), conn)
	s.reaper.track(sess)

	if err := s.executor.Execute(sess.serve); err != nil {
		s.reaper.forget(sess)
		s.observer.ConnectionRejected()
		sess.logger.Warn("rejecting connection", "error", err)
		sess.close()
	}
}

// State returns the lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRunning reports whether the server is running and its listener is
// still accepting.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return false
	}
	select {
	case <-s.listener.done:
		return false
	default:
		return true
	}
}

// Addr returns the bound address, or nil if the server is not running.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return nil
	}
	return s.listener.ln.Addr()
}

// StartedAt returns when Start succeeded, or the zero time.
func (s *Server) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Sessions returns a snapshot of open connections ordered by ID.
func (s *Server) Sessions() []SessionInfo {
	s.mu.Lock()
	reaper := s.reaper
	s.mu.Unlock()
	if reaper == nil {
		return nil
	}

	var infos []SessionInfo
	for _, sess := range reaper.snapshot() {
		if !sess.closed.Load() {
			infos = append(infos, sess.info())
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Registry returns the server's handler registry.
func (s *Server) Registry() *Registry { return s.registry }

// Register adds a handler; see Registry.Register.
func (s *Server) Register(name string, handler HandlerFunc, affinity Affinity, owner Owner) bool {
	return s.registry.Register(name, handler, affinity, owner)
}

// Unregister removes a handler; see Registry.Unregister.
func (s *Server) Unregister(name string) bool {
	return s.registry.Unregister(name)
}

// UnregisterAll removes an owner's handlers; see Registry.UnregisterAll.
func (s *Server) UnregisterAll(owner Owner) int {
	return s.registry.UnregisterAll(owner)
}

// Exists reports whether a handler is registered under name.
func (s *Server) Exists(name string) bool {
	return s.registry.Exists(name)
}
