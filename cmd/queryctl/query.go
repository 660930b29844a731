// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/queryd-project/queryd/lib/queryclient"
)

// errQueryFailed marks a non-200 reply to a one-shot query.
var errQueryFailed = errors.New("query failed")

func queryCommand(opts *options) *cobra.Command {
	var showStatus bool

	cmd := &cobra.Command{
		Use:   "query NAME [ARG...]",
		Short: "Send one query and print the reply body",
		Long: `Send one query and print the reply body.

A reply other than 200 prints the body and exits non-zero.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.requestContext(cmd.Context())
			defer cancel()

			client, err := queryclient.Dial(ctx, opts.address)
			if err != nil {
				return err
			}
			defer client.Close()

			reply, err := client.Do(ctx, args[0], args[1:]...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if showStatus {
				fmt.Fprintln(out, reply.Status())
			}
			printBody(out, reply)
			if !reply.OK() {
				return fmt.Errorf("%w: %s", errQueryFailed, reply.Status())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showStatus, "status", false, "print the status line before the body")
	return cmd
}

func shellCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Send queries read from standard input",
		Long: `Send one query per input line over a single connection and print
each reply. A prompt is shown when standard input is a terminal.
"exit" ends the session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dialCtx, cancel := opts.requestContext(ctx)
			client, err := queryclient.Dial(dialCtx, opts.address)
			cancel()
			if err != nil {
				return err
			}
			defer client.Close()

			in := cmd.InOrStdin()
			prompt := ""
			if file, ok := in.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
				prompt = "queryd> "
			}
			return runShell(ctx, opts, client, in, cmd.OutOrStdout(), prompt)
		},
	}
}

func runShell(ctx context.Context, opts *options, client *queryclient.Client, in io.Reader, out io.Writer, prompt string) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			if prompt != "" {
				fmt.Fprintln(out)
			}
			return scanner.Err()
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		done, err := shellExchange(ctx, opts, client, fields, out)
		if err != nil || done {
			return err
		}
	}
}

// shellExchange runs one shell line. It reports true once the
// connection has ended.
func shellExchange(ctx context.Context, opts *options, client *queryclient.Client, fields []string, out io.Writer) (bool, error) {
	ctx, cancel := opts.requestContext(ctx)
	defer cancel()

	switch strings.ToLower(fields[0]) {
	case "login":
		// The server never answers login.
		return false, client.Send(ctx, fields[0], fields[1:]...)
	case "exit":
		reply, err := client.Exit(ctx)
		if err != nil {
			return true, err
		}
		fmt.Fprintln(out, reply.Status())
		printBody(out, reply)
		return true, nil
	}

	reply, err := client.Do(ctx, fields[0], fields[1:]...)
	if errors.Is(err, io.EOF) {
		fmt.Fprintln(out, "connection closed by server")
		return true, nil
	}
	if err != nil {
		return true, err
	}
	fmt.Fprintln(out, reply.Status())
	printBody(out, reply)
	return false, nil
}

// printBody writes the reply body with local line endings.
func printBody(out io.Writer, reply queryclient.Reply) {
	lines := reply.Lines()
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
}
