// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bureau-foundation/consolebridge/lib/process"
	"github.com/bureau-foundation/consolebridge/lib/sealed"
	"github.com/bureau-foundation/consolebridge/lib/transcript"
)

// execute runs the root command with the given stdin and returns what
// it wrote to stdout.
func execute(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	var output bytes.Buffer
	savedIn, savedOut := stdin, stdout
	stdin, stdout = strings.NewReader(input), &output
	t.Cleanup(func() { stdin, stdout = savedIn, savedOut })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := Root().Execute(context.Background(), args, logger)
	return output.String(), err
}

const helpListing = `Commands:
status Show status.
ban-player - Bans a player.
stop Stops the server.
`

func TestCompileHelpTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "help.txt")
	if err := os.WriteFile(path, []byte(helpListing), 0644); err != nil {
		t.Fatal(err)
	}

	output, err := execute(t, "", "compile-help", "--deny", "stop", path)
	if err != nil {
		t.Fatalf("compile-help: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header and 2 entries:\n%s", len(lines), output)
	}
	if !strings.HasPrefix(lines[0], "COMMAND") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(output, "/ban_player") || !strings.Contains(output, "ban-player") {
		t.Errorf("missing ban_player entry:\n%s", output)
	}
	if strings.Contains(output, "/stop") {
		t.Errorf("denied command listed:\n%s", output)
	}
}

func TestCompileHelpJSONFromStdin(t *testing.T) {
	output, err := execute(t, helpListing, "compile-help", "--json")
	if err != nil {
		t.Fatalf("compile-help: %v", err)
	}
	var entries []struct {
		Name        string `json:"name"`
		ConsoleName string `json:"console_name"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal([]byte(output), &entries); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, output)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3: %+v", len(entries), entries)
	}
	for _, entry := range entries {
		if entry.Name == "/ban_player" && entry.Description != "Bans a player" {
			t.Errorf("ban_player description = %q", entry.Description)
		}
	}
}

func writeTranscript(t *testing.T, path string, records ...transcript.Record) {
	t.Helper()
	writer, err := transcript.Open(path, transcript.CompressionZstd)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, record := range records {
		if err := writer.Append(record); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestTranscriptDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.cbor")
	writeTranscript(t, path,
		transcript.Record{
			FrameID: "f1",
			Time:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Origin:  "http",
			Command: "status",
			Lines:   []string{"players: 3"},
		},
		transcript.Record{
			FrameID: "f2",
			Time:    time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC),
			Lines:   []string{"server tick"},
		},
	)

	output, err := execute(t, "", "transcript", path)
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	for _, want := range []string{"http > status", "  players: 3", "(unsolicited)", "  server tick"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}

	output, err = execute(t, "", "transcript", "--json", path)
	if err != nil {
		t.Fatalf("transcript --json: %v", err)
	}
	if count := strings.Count(output, "\n"); count != 2 {
		t.Errorf("got %d JSON lines, want 2:\n%s", count, output)
	}
	if !strings.Contains(output, `"valid":true`) {
		t.Errorf("records not marked valid:\n%s", output)
	}
}

func TestTranscriptSegments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.cbor")
	writeTranscript(t, path, transcript.Record{FrameID: "a", Time: time.Now(), Lines: []string{"first run"}})
	writeTranscript(t, path, transcript.Record{FrameID: "b", Time: time.Now(), Lines: []string{"second run"}})

	output, err := execute(t, "", "transcript", "--segments", path)
	if err != nil {
		t.Fatalf("transcript --segments: %v", err)
	}
	first := strings.Index(output, "first run")
	second := strings.Index(output, "second run")
	if first < 0 || second < first {
		t.Errorf("segments out of order or missing:\n%s", output)
	}
}

func TestTranscriptMissingFile(t *testing.T) {
	_, err := execute(t, "", "transcript", filepath.Join(t.TempDir(), "absent"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
	var exitErr *process.ExitError
	if errors.As(err, &exitErr) {
		t.Errorf("missing file reported as digest failure: %v", err)
	}
}

func TestKeygenAndSealToken(t *testing.T) {
	directory := t.TempDir()
	identityPath := filepath.Join(directory, "identity.txt")

	output, err := execute(t, "", "keygen", "--output", identityPath)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	recipient := strings.TrimSpace(output)
	if !strings.HasPrefix(recipient, "age1") {
		t.Fatalf("recipient = %q", recipient)
	}
	info, err := os.Stat(identityPath)
	if err != nil {
		t.Fatal(err)
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		t.Errorf("identity mode = %o, want 600", mode)
	}

	if _, err := execute(t, "", "keygen", "--output", identityPath); err == nil {
		t.Error("keygen replaced an existing identity")
	}

	tokenPath := filepath.Join(directory, "token.age")
	if _, err := execute(t, "syt_secret_token\n", "seal-token", "-r", recipient, "-o", tokenPath); err != nil {
		t.Fatalf("seal-token: %v", err)
	}
	token, err := sealed.OpenFile(tokenPath, identityPath)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer token.Close()
	if token.String() != "syt_secret_token" {
		t.Errorf("token = %q", token.String())
	}
}

func TestSealTokenRequiresInput(t *testing.T) {
	if _, err := execute(t, "  \n", "seal-token", "-r", "age1xyz"); err == nil {
		t.Error("expected an error for empty stdin")
	}
	if _, err := execute(t, "token", "seal-token"); err == nil {
		t.Error("expected an error without a recipient")
	}
}

func TestHashToken(t *testing.T) {
	output, err := execute(t, "hunter2\n", "hash-token")
	if err != nil {
		t.Fatalf("hash-token: %v", err)
	}
	hash := strings.TrimSpace(output)
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")); err != nil {
		t.Errorf("hash does not match token: %v", err)
	}
}

func TestVersion(t *testing.T) {
	output, err := execute(t, "", "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(output, "consolebridge ") {
		t.Errorf("version output = %q", output)
	}
}
