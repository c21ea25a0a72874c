// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"strings"

	"github.com/google/uuid"
)

// Origin identifies where a command came from: a Matrix room ID,
// "http", "schedule:<name>". The core never interprets it; it is
// carried through to the output of the command.
type Origin string

// Origins used by the bridge itself.
const (
	// OriginBridge marks requests the coordinator issues on its own
	// behalf, such as the startup help listing.
	OriginBridge Origin = "bridge"

	// OriginUnsolicited marks frames that completed while no command
	// was in flight.
	OriginUnsolicited Origin = ""
)

// RequestKind distinguishes ordinary commands from help refreshes,
// whose output is compiled instead of delivered.
type RequestKind int

const (
	RequestCommand RequestKind = iota
	RequestHelp
)

func (k RequestKind) String() string {
	switch k {
	case RequestCommand:
		return "command"
	case RequestHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Request is one line of console input and where it came from.
type Request struct {
	Line   string
	Origin Origin
	Kind   RequestKind
}

// Frame is the complete output of one command, with marker lines
// removed. Frames are immutable once emitted.
type Frame struct {
	ID    string
	Lines []string

	// ByteLength is len(Text()), maintained incrementally by the
	// decoder so the chunker can skip packing small frames.
	ByteLength int

	// Request is the command this frame answers. It is zero for
	// unsolicited frames.
	Request Request
}

// NewFrame builds a frame with a fresh ID and its byte length computed.
func NewFrame(lines []string) Frame {
	return Frame{
		ID:         uuid.NewString(),
		Lines:      lines,
		ByteLength: joinedLength(lines),
	}
}

// Text returns the lines joined with "\n".
func (f Frame) Text() string {
	return strings.Join(f.Lines, "\n")
}

// Empty reports whether the command produced no output.
func (f Frame) Empty() bool {
	return len(f.Lines) == 0
}

// Chunk is one size-bounded piece of a frame. Chunks of a frame must be
// delivered in Sequence order; they are never merged again.
type Chunk struct {
	Text     string
	Sequence int
	FrameID  string
}

func joinedLength(lines []string) int {
	if len(lines) == 0 {
		return 0
	}
	total := len(lines) - 1
	for _, line := range lines {
		total += len(line)
	}
	return total
}
