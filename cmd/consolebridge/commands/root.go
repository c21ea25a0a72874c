// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the consolebridge command tree.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bureau-foundation/consolebridge/cmd/consolebridge/cli"
	"github.com/bureau-foundation/consolebridge/lib/version"
)

// Standard streams, replaced in tests.
var (
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
)

// Root builds and returns the complete command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "consolebridge",
		Description: `consolebridge: drive an interactive console from chat.

Runs a console process (a game server, a REPL, an admin shell), exposes
the commands from its help listing as chat commands, and sends each
command's output back to the room it came from.`,
		Subcommands: []*cli.Command{
			runCommand(),
			compileHelpCommand(),
			transcriptCommand(),
			keygenCommand(),
			sealTokenCommand(),
			hashTokenCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Args:    cli.NoArgs,
				Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
					fmt.Fprintf(stdout, "consolebridge %s\n", version.Full())
					return nil
				},
			},
		},
	}
}
