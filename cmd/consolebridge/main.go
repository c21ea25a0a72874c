// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Consolebridge runs an interactive console process and bridges it to
// Matrix rooms and a local HTTP control API. See "consolebridge --help".
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/consolebridge/cmd/consolebridge/cli"
	"github.com/bureau-foundation/consolebridge/cmd/consolebridge/commands"
	"github.com/bureau-foundation/consolebridge/lib/process"
)

func main() {
	if err := run(); err != nil {
		var usageErr *cli.UsageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(2)
		}
		// Commands that print their own report (transcript digest
		// failures) return a bare exit status.
		var exitErr *process.ExitError
		if errors.As(err, &exitErr) && exitErr.Err == nil {
			os.Exit(exitErr.Code)
		}
		process.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := cli.NewCommandLogger(slog.LevelInfo)
	slog.SetDefault(logger)
	return commands.Root().Execute(ctx, os.Args[1:], logger)
}
