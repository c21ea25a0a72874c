// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/consolebridge/cmd/consolebridge/cli"
	"github.com/bureau-foundation/consolebridge/console"
	"github.com/bureau-foundation/consolebridge/lib/process"
	"github.com/bureau-foundation/consolebridge/lib/transcript"
)

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func compileHelpCommand() *cli.Command {
	var (
		deny       []string
		jsonOutput bool
	)
	return &cli.Command{
		Name:    "compile-help",
		Summary: "Show the command table a help listing produces",
		Description: `Compile a console help listing the way the bridge does at startup and
print the resulting command table. Use it to check a console's help
format and the effect of a denylist before deploying.`,
		Usage: "consolebridge compile-help [flags] [file]",
		Examples: []cli.Example{
			{
				Description: "Compile a saved listing, hiding the stop command",
				Command:     "consolebridge compile-help --deny stop help.txt",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("compile-help", pflag.ContinueOnError)
			flagSet.StringSliceVar(&deny, "deny", nil, "console command to hide (repeatable)")
			flagSet.BoolVar(&jsonOutput, "json", false, "print JSON instead of a table")
			return flagSet
		},
		Args: cli.MaxArgs(1),
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			data, err := readInput(path)
			if err != nil {
				return err
			}

			table := console.NewRegistry(nil, deny).Refresh(string(data))
			if jsonOutput {
				type entry struct {
					Name        string `json:"name"`
					ConsoleName string `json:"console_name"`
					Description string `json:"description,omitempty"`
				}
				entries := make([]entry, 0, table.Len())
				for _, e := range table.Entries() {
					entries = append(entries, entry{e.Name, e.ConsoleName, e.Description})
				}
				encoder := json.NewEncoder(stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(entries)
			}

			writer := tabwriter.NewWriter(stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(writer, "COMMAND\tCONSOLE\tDESCRIPTION")
			for _, entry := range table.Entries() {
				fmt.Fprintf(writer, "%s\t%s\t%s\n", entry.Name, entry.ConsoleName, entry.Description)
			}
			return writer.Flush()
		},
	}
}

func transcriptCommand() *cli.Command {
	var (
		jsonOutput  bool
		allSegments bool
	)
	return &cli.Command{
		Name:    "transcript",
		Summary: "Print a recorded transcript",
		Description: `Print the frames recorded in a transcript file. Compression is detected
from the file. Every record's digest is checked; the command exits with
status 2 if any record fails the check.

With --segments, the numbered segments created by later runs
(file.1, file.2, ...) are printed after the file itself.`,
		Usage: "consolebridge transcript [flags] <file>...",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("transcript", pflag.ContinueOnError)
			flagSet.BoolVar(&jsonOutput, "json", false, "print one JSON object per record")
			flagSet.BoolVar(&allSegments, "segments", false, "include numbered segments of each file")
			return flagSet
		},
		Args: cli.MinArgs(1),
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			var paths []string
			for _, path := range args {
				if !allSegments {
					paths = append(paths, path)
					continue
				}
				segments, err := transcript.Segments(path)
				if err != nil {
					return err
				}
				if len(segments) == 0 {
					return fmt.Errorf("%s: no transcript files", path)
				}
				paths = append(paths, segments...)
			}

			mismatches := 0
			for _, path := range paths {
				count, err := dumpTranscript(path, jsonOutput)
				mismatches += count
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
			}
			if mismatches > 0 {
				fmt.Fprintf(os.Stderr, "%d record(s) failed the digest check\n", mismatches)
				return &process.ExitError{Code: 2}
			}
			return nil
		},
	}
}

type jsonRecord struct {
	FrameID string    `json:"frame_id"`
	Time    time.Time `json:"time"`
	Origin  string    `json:"origin,omitempty"`
	Command string    `json:"command,omitempty"`
	Help    bool      `json:"help,omitempty"`
	Lines   []string  `json:"lines"`
	Valid   bool      `json:"valid"`
}

// dumpTranscript prints one file and returns how many records failed
// their digest check.
func dumpTranscript(path string, jsonOutput bool) (int, error) {
	reader, err := transcript.OpenFile(path)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	encoder := json.NewEncoder(stdout)
	mismatches := 0
	for {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return mismatches, nil
		}
		valid := true
		if errors.Is(err, transcript.ErrDigestMismatch) {
			valid = false
			mismatches++
		} else if err != nil {
			return mismatches, err
		}

		if jsonOutput {
			if err := encoder.Encode(jsonRecord{
				FrameID: record.FrameID,
				Time:    record.Time,
				Origin:  record.Origin,
				Command: record.Command,
				Help:    record.Help,
				Lines:   record.Lines,
				Valid:   valid,
			}); err != nil {
				return mismatches, err
			}
			continue
		}

		origin := record.Origin
		if origin == "" {
			origin = "(unsolicited)"
		}
		header := fmt.Sprintf("%s %s", record.Time.Format(time.RFC3339), origin)
		if record.Command != "" {
			header += " > " + record.Command
		}
		if !valid {
			header += " [DIGEST MISMATCH]"
		}
		fmt.Fprintln(stdout, header)
		for _, line := range record.Lines {
			fmt.Fprintf(stdout, "  %s\n", strings.TrimRight(line, " "))
		}
	}
}
