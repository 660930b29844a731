// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package queryserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/queryd-project/queryd/lib/testutil"
)

const waitTimeout = 5 * time.Second

func okHandler(body string) HandlerFunc {
	return func(ctx context.Context, request *Request, response *Response) error {
		return response.Print(body)
	}
}

// queuedHost is a HostExecutor whose tasks run only when the test
// pulls them from the tasks channel.
type queuedHost struct {
	tasks chan hostTask
}

type hostTask struct {
	run    func() error
	result chan error
}

func newQueuedHost() *queuedHost {
	return &queuedHost{tasks: make(chan hostTask, 16)}
}

func (h *queuedHost) Submit(task func() error) <-chan error {
	result := make(chan error, 1)
	h.tasks <- hostTask{run: task, result: result}
	return result
}

func (h *queuedHost) runNext(t *testing.T) {
	t.Helper()
	task := testutil.RequireReceive(t, h.tasks, waitTimeout, "no task submitted to host")
	task.result <- task.run()
}

func TestRegisterRejectsDuplicatesCaseInsensitively(t *testing.T) {
	registry := NewRegistry(nil, testutil.Logger(t))

	if !registry.Register("Players", okHandler("first"), Direct, "alpha") {
		t.Fatal("first registration rejected")
	}
	if registry.Register("PLAYERS", okHandler("second"), Direct, "beta") {
		t.Fatal("duplicate registration accepted")
	}
	if !registry.Exists("players") || !registry.Exists("pLaYeRs") {
		t.Fatal("Exists is not case-insensitive")
	}

	handler, ok := registry.Lookup("players")
	if !ok {
		t.Fatal("Lookup found nothing")
	}
	response := newResponse()
	if err := handler(context.Background(), ParseRequest("players"), response); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if response.Body() != "first" {
		t.Fatalf("original registration was replaced: body %q", response.Body())
	}

	entries := registry.Entries()
	if len(entries) != 1 || entries[0].Owner != "alpha" || entries[0].Name != "players" {
		t.Fatalf("Entries() = %+v", entries)
	}
}

func TestRegisterRejectsReservedNames(t *testing.T) {
	registry := NewRegistry(nil, testutil.Logger(t))
	for _, name := range []string{"exit", "LOGIN"} {
		if registry.Register(name, okHandler(""), Direct, "alpha") {
			t.Errorf("reserved name %q accepted", name)
		}
	}
	if registry.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", registry.Len())
	}
}

func TestRegisterPanicsOnProgrammerErrors(t *testing.T) {
	registry := NewRegistry(nil, testutil.Logger(t))
	cases := map[string]func(){
		"empty name":       func() { registry.Register("", okHandler(""), Direct, "o") },
		"name with space":  func() { registry.Register("two words", okHandler(""), Direct, "o") },
		"nil handler":      func() { registry.Register("x", nil, Direct, "o") },
		"host without exe": func() { registry.Register("x", okHandler(""), HostThread, "o") },
	}
	for name, register := range cases {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic")
				}
			}()
			register()
		})
	}
}

func TestUnregisterAllRemovesOnlyOwner(t *testing.T) {
	registry := NewRegistry(nil, testutil.Logger(t))
	registry.Register("a", okHandler(""), Direct, "alpha")
	registry.Register("b", okHandler(""), Direct, "alpha")
	registry.Register("c", okHandler(""), Direct, "beta")

	if removed := registry.UnregisterAll("alpha"); removed != 2 {
		t.Fatalf("UnregisterAll removed %d, want 2", removed)
	}
	if registry.Exists("a") || registry.Exists("b") || !registry.Exists("c") {
		t.Fatalf("unexpected registry contents: %+v", registry.Entries())
	}
	if registry.Unregister("C") != true || registry.Unregister("c") != false {
		t.Fatal("Unregister did not report removal correctly")
	}
}

func TestEntriesSorted(t *testing.T) {
	registry := NewRegistry(nil, testutil.Logger(t))
	for _, name := range []string{"time", "echo", "ping"} {
		registry.Register(name, okHandler(""), Direct, "builtin")
	}
	entries := registry.Entries()
	names := []string{entries[0].Name, entries[1].Name, entries[2].Name}
	if names[0] != "echo" || names[1] != "ping" || names[2] != "time" {
		t.Fatalf("Entries() order = %v", names)
	}
}

func TestLookupRecoversPanics(t *testing.T) {
	registry := NewRegistry(nil, testutil.Logger(t))
	registry.Register("boom", func(ctx context.Context, request *Request, response *Response) error {
		panic("kaboom")
	}, Direct, "test")

	handler, _ := registry.Lookup("boom")
	err := handler(context.Background(), ParseRequest("boom"), newResponse())
	if !errors.Is(err, ErrHandlerPanic) {
		t.Fatalf("handler returned %v, want ErrHandlerPanic", err)
	}
}

func TestHostHandlerRunsOnHost(t *testing.T) {
	host := newQueuedHost()
	registry := NewRegistry(host, testutil.Logger(t))
	registry.Register("players", okHandler("Alice"), HostThread, "test")

	handler, _ := registry.Lookup("players")
	response := newResponse()
	result := make(chan error, 1)
	go func() { result <- handler(context.Background(), ParseRequest("players"), response) }()

	testutil.RequireBlocked(t, result, 20*time.Millisecond, "handler returned before the host ran it")
	host.runNext(t)

	if err := testutil.RequireReceive(t, result, waitTimeout); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if response.Body() != "Alice" {
		t.Fatalf("body = %q", response.Body())
	}
}

func TestHostHandlerPropagatesFailure(t *testing.T) {
	host := newQueuedHost()
	registry := NewRegistry(host, testutil.Logger(t))
	failure := errors.New("roster locked")
	registry.Register("fail", func(context.Context, *Request, *Response) error { return failure }, HostThread, "test")
	registry.Register("panic", func(context.Context, *Request, *Response) error { panic("x") }, HostThread, "test")

	for name, want := range map[string]error{"fail": failure, "panic": ErrHandlerPanic} {
		handler, _ := registry.Lookup(name)
		result := make(chan error, 1)
		go func() { result <- handler(context.Background(), ParseRequest(name), newResponse()) }()
		host.runNext(t)
		if err := testutil.RequireReceive(t, result, waitTimeout); !errors.Is(err, want) {
			t.Errorf("%s: handler returned %v, want %v", name, err, want)
		}
	}
}

func TestHostHandlerWaitsThroughCancellation(t *testing.T) {
	host := newQueuedHost()
	registry := NewRegistry(host, testutil.Logger(t))

	runs := 0
	registry.Register("slow", func(ctx context.Context, request *Request, response *Response) error {
		runs++
		return response.Print("done")
	}, HostThread, "test")

	handler, _ := registry.Lookup("slow")
	ctx, cancel := context.WithCancel(context.Background())
	response := newResponse()
	result := make(chan error, 1)
	go func() { result <- handler(ctx, ParseRequest("slow"), response) }()

	task := testutil.RequireReceive(t, host.tasks, waitTimeout, "no task submitted")
	cancel()
	testutil.RequireBlocked(t, result, 20*time.Millisecond, "caller abandoned the submitted task")

	task.result <- task.run()
	if err := testutil.RequireReceive(t, result, waitTimeout); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if runs != 1 {
		t.Fatalf("handler ran %d times, want exactly once", runs)
	}
	if response.Body() != "done" {
		t.Fatalf("body = %q", response.Body())
	}
	select {
	case <-host.tasks:
		t.Fatal("task resubmitted after cancellation")
	default:
	}
}
