// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/consolebridge/cmd/consolebridge/cli"
	"github.com/bureau-foundation/consolebridge/lib/config"
	"github.com/bureau-foundation/consolebridge/lib/version"
)

func runCommand() *cli.Command {
	var (
		configPath string
		logLevel   string
	)
	return &cli.Command{
		Name:    "run",
		Summary: "Run the bridge",
		Description: `Start the console process and bridge it until it exits or the bridge
receives SIGINT or SIGTERM.

The configuration file comes from --config, or from the
CONSOLEBRIDGE_CONFIG environment variable when the flag is not given.
When the console exits with a non-zero status, the bridge exits with
the same status.`,
		Usage: "consolebridge run [--config <file>] [flags]",
		Examples: []cli.Example{
			{
				Description: "Bridge a server described by a YAML file",
				Command:     "consolebridge run --config /etc/consolebridge/server.yaml",
			},
			{
				Description: "Use the production overrides from the same file",
				Command:     "CONSOLEBRIDGE_ENV=production consolebridge run --config server.yaml",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flagSet.StringVarP(&configPath, "config", "c", "", "configuration file (default $CONSOLEBRIDGE_CONFIG)")
			flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
			return flagSet
		},
		Args: cli.NoArgs,
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			level, err := cli.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			if level != slog.LevelInfo {
				logger = cli.NewCommandLogger(level)
			}

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runBridge(ctx, cfg, logger)
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

func runBridge(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("consolebridge starting",
		"version", version.Info(),
		"environment", cfg.Environment,
		"matrix", cfg.MatrixEnabled(),
		"control", cfg.ControlEnabled(),
	)
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}
	b, err := newBridge(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return b.run(ctx)
}
