// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package queryserver

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// HandlerFunc answers one request by writing to response. Returning an
// error (or panicking) discards whatever was written and replies 500.
type HandlerFunc func(ctx context.Context, request *Request, response *Response) error

// Affinity selects where a handler runs.
type Affinity int

const (
	// Direct handlers run on the connection's goroutine.
	Direct Affinity = iota

	// HostThread handlers run on the host goroutine via the registry's
	// HostExecutor, one at a time.
	HostThread
)

func (a Affinity) String() string {
	switch a {
	case Direct:
		return "direct"
	case HostThread:
		return "host"
	default:
		return fmt.Sprintf("affinity(%d)", int(a))
	}
}

// Owner identifies who registered a handler, so all of an owner's
// handlers can be removed together when it shuts down.
type Owner string

// HostExecutor runs tasks on the host goroutine. Submit must deliver
// exactly one value on the returned channel: the task's result, or an
// error if the task could not run.
type HostExecutor interface {
	Submit(task func() error) <-chan error
}

// Entry describes one registration.
type Entry struct {
	Name     string
	Affinity Affinity
	Owner    Owner
}

type registration struct {
	entry   Entry
	handler HandlerFunc
}

// reservedNames are intercepted by the session before lookup.
var reservedNames = map[string]bool{
	"exit":  true,
	"login": true,
}

// Registry maps query names to handlers. Names are case-insensitive.
// It is safe for concurrent use and may be shared by several Servers.
type Registry struct {
	host   HostExecutor
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]registration
}

// NewRegistry creates an empty registry. host may be nil if no handler
// will be registered with HostThread affinity.
func NewRegistry(host HostExecutor, logger *slog.Logger) *Registry {
	if logger == nil {
		panic("queryserver: NewRegistry requires a logger")
	}
	return &Registry{
		host:    host,
		logger:  logger,
		entries: make(map[string]registration),
	}
}

func normalizeName(name string) string {
	return strings.ToLower(name)
}

// Register adds handler under name. A name that is already taken (in
// any case) or reserved is rejected with a warning and Register returns
// false; the existing registration is untouched.
//
// Panics if name is empty or contains whitespace, if handler is nil,
// or if affinity is HostThread and the registry has no HostExecutor.
func (r *Registry) Register(name string, handler HandlerFunc, affinity Affinity, owner Owner) bool {
	if name == "" || strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		panic(fmt.Sprintf("queryserver: invalid query name %q", name))
	}
	if handler == nil {
		panic(fmt.Sprintf("queryserver: nil handler for query %q", name))
	}
	if affinity == HostThread && r.host == nil {
		panic(fmt.Sprintf("queryserver: query %q needs host affinity but the registry has no host executor", name))
	}

	key := normalizeName(name)
	if reservedNames[key] {
		r.logger.Warn("query name is reserved", "query", key, "owner", owner)
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[key]; ok {
		r.logger.Warn("query already registered",
			"query", key,
			"owner", owner,
			"registered_by", existing.entry.Owner,
		)
		return false
	}
	r.entries[key] = registration{
		entry:   Entry{Name: key, Affinity: affinity, Owner: owner},
		handler: handler,
	}
	r.logger.Debug("query registered", "query", key, "affinity", affinity, "owner", owner)
	return true
}

// Unregister removes the handler for name and reports whether one was
// registered.
func (r *Registry) Unregister(name string) bool {
	key := normalizeName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[key]; !ok {
		return false
	}
	delete(r.entries, key)
	return true
}

// UnregisterAll removes every handler registered by owner and returns
// how many were removed.
func (r *Registry) UnregisterAll(owner Owner) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, reg := range r.entries {
		if reg.entry.Owner == owner {
			delete(r.entries, key)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Debug("queries unregistered", "owner", owner, "count", removed)
	}
	return removed
}

// Exists reports whether a handler is registered under name.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[normalizeName(name)]
	return ok
}

// Lookup returns the handler for name wrapped for its affinity: the
// returned function runs the handler where it belongs, recovers its
// panics, and waits for it to complete.
func (r *Registry) Lookup(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	reg, ok := r.entries[normalizeName(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	switch reg.entry.Affinity {
	case HostThread:
		return r.onHost(reg.handler), true
	default:
		return func(ctx context.Context, request *Request, response *Response) error {
			return r.invoke(ctx, reg.handler, request, response)
		}, true
	}
}

// Entries returns every registration sorted by name.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	entries := make([]Entry, 0, len(r.entries))
	for _, reg := range r.entries {
		entries = append(entries, reg.entry)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// onHost submits the handler to the host executor and waits for it.
// Cancellation of ctx does not abandon the submission: the handler has
// already been queued and will run, so the caller keeps waiting for it
// to finish rather than racing it over the response.
func (r *Registry) onHost(handler HandlerFunc) HandlerFunc {
	return func(ctx context.Context, request *Request, response *Response) error {
		result := r.host.Submit(func() error {
			return r.invoke(ctx, handler, request, response)
		})

		done := ctx.Done()
		for {
			select {
			case err := <-result:
				return err
			case <-done:
				r.logger.Debug("interrupted while waiting for host handler", "query", request.Name())
				done = nil
			}
		}
	}
}

// invoke calls handler, converting a panic into an ErrHandlerPanic
// error.
func (r *Registry) invoke(ctx context.Context, handler HandlerFunc, request *Request, response *Response) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Debug("query handler panicked",
				"query", request.Name(),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, recovered)
		}
	}()
	return handler(ctx, request, response)
}
