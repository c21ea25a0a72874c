// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// DefaultMarker is written twice after every command. Consoles reject it
// as an unknown command, and the rejection line is what the decoder
// watches for.
const DefaultMarker = "END_CMD"

var (
	// ErrConsoleUnreachable wraps failures writing to the console's
	// input. The console is assumed dead; callers must not retry.
	ErrConsoleUnreachable = errors.New("console: input unreachable")

	// ErrMultilineCommand rejects command text containing a line break.
	// The console would run the second line as a separate command
	// outside the marker framing.
	ErrMultilineCommand = errors.New("console: command contains a line break")
)

// Injector writes commands followed by the doubled sentinel marker.
// It is owned by a single writer goroutine.
type Injector struct {
	writer  io.Writer
	trailer []byte
}

// NewInjector returns an Injector writing to w. An empty marker selects
// DefaultMarker.
func NewInjector(w io.Writer, marker string) *Injector {
	if marker == "" {
		marker = DefaultMarker
	}
	return &Injector{
		writer:  w,
		trailer: []byte(marker + "\n" + marker + "\n"),
	}
}

// Inject writes "{line}\n{marker}\n{marker}\n" in a single write. A
// failed or short write is reported as ErrConsoleUnreachable.
func (i *Injector) Inject(line string) error {
	if strings.ContainsAny(line, "\r\n") {
		return fmt.Errorf("%w: %q", ErrMultilineCommand, line)
	}

	payload := make([]byte, 0, len(line)+1+len(i.trailer))
	payload = append(payload, line...)
	payload = append(payload, '\n')
	payload = append(payload, i.trailer...)

	written, err := i.writer.Write(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConsoleUnreachable, err)
	}
	if written != len(payload) {
		return fmt.Errorf("%w: short write (%d of %d bytes)", ErrConsoleUnreachable, written, len(payload))
	}
	return nil
}
