// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/consolebridge/cmd/consolebridge/cli"
	"github.com/bureau-foundation/consolebridge/controlapi"
	"github.com/bureau-foundation/consolebridge/lib/sealed"
	"github.com/bureau-foundation/consolebridge/lib/secret"
)

// readSecret reads a secret value from stdin into protected memory.
func readSecret() (*secret.Buffer, error) {
	raw, err := readInput("-")
	if err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		clear(raw)
		return nil, fmt.Errorf("no value on stdin")
	}
	buffer, err := secret.New(trimmed)
	clear(raw)
	return buffer, err
}

// writeFileExclusive creates path with mode 0600, refusing to replace
// an existing file.
func writeFileExclusive(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func keygenCommand() *cli.Command {
	var output string
	return &cli.Command{
		Name:    "keygen",
		Summary: "Create an age identity for sealing the access token",
		Description: `Write a new age identity file and print its recipient. Seal the access
token to the recipient with seal-token, and point matrix.identity_file
at the identity.`,
		Usage: "consolebridge keygen --output <file>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
			flagSet.StringVarP(&output, "output", "o", "", "identity file to create (required)")
			return flagSet
		},
		Args: cli.NoArgs,
		Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
			if output == "" {
				return fmt.Errorf("--output is required")
			}
			identity, recipient, err := sealed.GenerateIdentity()
			if err != nil {
				return err
			}
			if err := writeFileExclusive(output, []byte(identity)); err != nil {
				return err
			}
			fmt.Fprintln(stdout, recipient)
			return nil
		},
	}
}

func sealTokenCommand() *cli.Command {
	var (
		recipients []string
		output     string
	)
	return &cli.Command{
		Name:    "seal-token",
		Summary: "Encrypt an access token read from stdin",
		Usage:   "consolebridge seal-token --recipient <age1...> [--output <file>] < token",
		Examples: []cli.Example{
			{
				Command: "consolebridge seal-token -r age1... -o token.age < token.txt",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("seal-token", pflag.ContinueOnError)
			flagSet.StringSliceVarP(&recipients, "recipient", "r", nil, "age recipient (repeatable, required)")
			flagSet.StringVarP(&output, "output", "o", "", "file to create (default stdout)")
			return flagSet
		},
		Args: cli.NoArgs,
		Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
			if len(recipients) == 0 {
				return fmt.Errorf("at least one --recipient is required")
			}
			token, err := readSecret()
			if err != nil {
				return err
			}
			defer token.Close()

			plaintext := []byte(token.String())
			ciphertext, err := sealed.Seal(plaintext, recipients)
			clear(plaintext)
			if err != nil {
				return err
			}
			if output == "" {
				_, err = stdout.Write(ciphertext)
				return err
			}
			return writeFileExclusive(output, ciphertext)
		},
	}
}

func hashTokenCommand() *cli.Command {
	return &cli.Command{
		Name:    "hash-token",
		Summary: "Hash a control API token read from stdin",
		Description: `Print the bcrypt hash of a bearer token for control.token_hash. Clients
send the token itself as "Authorization: Bearer <token>".`,
		Usage: "consolebridge hash-token < token",
		Args: cli.NoArgs,
		Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
			token, err := readSecret()
			if err != nil {
				return err
			}
			defer token.Close()
			hash, err := controlapi.HashToken(token.String())
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, hash)
			return nil
		},
	}
}
