// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"strings"
	"time"

	"github.com/queryd-project/queryd/lib/clock"
	"github.com/queryd-project/queryd/lib/queryserver"
)

const builtinOwner queryserver.Owner = "builtin"

// registerBuiltins adds the direct handlers that need no host state.
func registerBuiltins(server *queryserver.Server, clk clock.Clock) {
	server.Register("ping", func(ctx context.Context, request *queryserver.Request, response *queryserver.Response) error {
		return response.Print("pong")
	}, queryserver.Direct, builtinOwner)

	server.Register("echo", func(ctx context.Context, request *queryserver.Request, response *queryserver.Response) error {
		return response.Print(strings.Join(request.Args(), " "))
	}, queryserver.Direct, builtinOwner)

	server.Register("time", func(ctx context.Context, request *queryserver.Request, response *queryserver.Response) error {
		return response.Print(clk.Now().UTC().Format(time.RFC3339))
	}, queryserver.Direct, builtinOwner)

	// queries lists registered names, one per line.
	server.Register("queries", func(ctx context.Context, request *queryserver.Request, response *queryserver.Response) error {
		for _, entry := range server.Registry().Entries() {
			if err := response.PrintLine(entry.Name); err != nil {
				return err
			}
		}
		return nil
	}, queryserver.Direct, builtinOwner)
}
