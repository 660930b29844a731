// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

// Package hostloop runs work on one dedicated goroutine owned by the
// host application.
//
// Some query handlers touch host state that is not safe for concurrent
// use (a simulation, a game world, an in-memory roster). Instead of
// locking that state, the host runs a [Loop] on its own goroutine and
// every such handler is marshaled onto it with [Loop.Submit]. Tasks run
// one at a time in submission order, so host-affinity handlers are
// serialized with each other and with the host's own periodic tick.
//
//	loop := hostloop.New(hostloop.Config{Logger: logger})
//	go loop.Run(ctx)
//	err := <-loop.Submit(func() error { return world.Save() })
//
// Submit never blocks forever: once the loop is stopping, pending and
// new submissions complete with [ErrStopped]. A task that panics
// completes with an error wrapping [ErrTaskPanic]; the loop keeps
// running.
package hostloop
