// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/queryd-project/queryd/lib/control"
)

func (o *options) call(ctx context.Context, action string, fields map[string]any, result any) error {
	if o.socketPath == "" {
		return errors.New("no admin socket: pass --socket or set QUERYD_CONTROL_SOCKET_PATH")
	}
	ctx, cancel := o.requestContext(ctx)
	defer cancel()
	return control.Call(ctx, o.socketPath, action, fields, result)
}

func statusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var status control.Status
			if err := opts.call(cmd.Context(), control.ActionStatus, nil, &status); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "version:\t%s\n", status.Version)
			fmt.Fprintf(w, "state:\t%s\n", status.State)
			if status.Address != "" {
				fmt.Fprintf(w, "address:\t%s\n", status.Address)
			}
			if status.StartedAt != 0 {
				fmt.Fprintf(w, "started:\t%s\n", time.Unix(status.StartedAt, 0).UTC().Format(time.RFC3339))
			}
			fmt.Fprintf(w, "sessions:\t%d\n", status.Sessions)
			fmt.Fprintf(w, "handlers:\t%d\n", status.Handlers)
			fmt.Fprintf(w, "active tasks:\t%d\n", status.ActiveTasks)
			fmt.Fprintf(w, "host tasks:\t%d\n", status.HostTasks)
			return w.Flush()
		},
	}
}

func handlersCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "handlers",
		Short: "List registered queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var handlers []control.Handler
			if err := opts.call(cmd.Context(), control.ActionHandlers, nil, &handlers); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tAFFINITY\tOWNER")
			for _, handler := range handlers {
				fmt.Fprintf(w, "%s\t%s\t%s\n", handler.Name, handler.Affinity, handler.Owner)
			}
			return w.Flush()
		},
	}
}

func sessionsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List open connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var sessions []control.Session
			if err := opts.call(cmd.Context(), control.ActionSessions, nil, &sessions); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tREMOTE\tREQUESTS\tIDLE")
			now := time.Now()
			for _, session := range sessions {
				idle := now.Sub(time.Unix(session.LastActive, 0)).Truncate(time.Second)
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", session.ID, session.RemoteAddr, session.Requests, max(idle, 0))
			}
			return w.Flush()
		},
	}
}

// ownerCommand toggles a handler owner. queryd exposes this for the
// "players" owner as players-enable and players-disable.
func ownerCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "owner",
		Short: "Enable or disable a handler owner",
	}
	for _, verb := range []string{"enable", "disable"} {
		cmd.AddCommand(&cobra.Command{
			Use:   verb + " OWNER",
			Short: fmt.Sprintf("%s every query of OWNER", verb),
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var state struct {
					Owner   string `cbor:"owner"`
					Enabled bool   `cbor:"enabled"`
					Changed bool   `cbor:"changed"`
				}
				if err := opts.call(cmd.Context(), args[0]+"-"+verb, nil, &state); err != nil {
					return err
				}
				word := "disabled"
				if state.Enabled {
					word = "enabled"
				}
				if !state.Changed {
					word = "already " + word
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", state.Owner, word)
				return nil
			},
		})
	}
	return cmd
}
