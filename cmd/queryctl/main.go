// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

// Queryctl talks to a queryd daemon: it sends queries over the line
// protocol and reads state from the admin socket.
package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/queryd-project/queryd/lib/process"
	"github.com/queryd-project/queryd/lib/version"
)

// options are the flags shared by every command.
type options struct {
	address    string
	socketPath string
	timeout    time.Duration
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		process.Fatal(err)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "queryctl",
		Short: "Query a queryd server",
		Long: `Queryctl sends queries to a queryd server and inspects it.

Queries go over TCP to --address. The status, handlers, sessions and
owner commands use the daemon's admin socket at --socket.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.address, "address", "a", "127.0.0.1:25566", "query server address")
	flags.StringVarP(&opts.socketPath, "socket", "s", os.Getenv("QUERYD_CONTROL_SOCKET_PATH"), "admin socket path")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "per-request timeout")

	root.AddCommand(
		queryCommand(opts),
		shellCommand(opts),
		statusCommand(opts),
		handlersCommand(opts),
		sessionsCommand(opts),
		ownerCommand(opts),
		versionCommand(),
	)
	return root
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			version.Print(cmd.OutOrStdout(), "queryctl")
		},
	}
}

// requestContext bounds one exchange by --timeout.
func (o *options) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, o.timeout)
}
