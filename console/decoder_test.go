// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"strings"
	"testing"
)

const testMarker = "END_CMD"

func newTestDecoder(t *testing.T, banners ...string) *Decoder {
	t.Helper()
	return NewDecoder(DecoderOptions{
		Detector: &RepeatedMarker{Line: testMarker},
		Banners:  banners,
	})
}

// feedAll feeds raw lines and returns every completed frame.
func feedAll(decoder *Decoder, raw ...string) []Frame {
	var frames []Frame
	for _, line := range raw {
		if frame, ok := decoder.Feed(line); ok {
			frames = append(frames, frame)
		}
	}
	return frames
}

func TestDecoderScenarioWelcome(t *testing.T) {
	t.Parallel()

	frames := feedAll(newTestDecoder(t), "Welcome\n", testMarker+"\n", testMarker+"\n")
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if !slices.Equal(frames[0].Lines, []string{"Welcome"}) {
		t.Errorf("Lines = %q, want [Welcome]", frames[0].Lines)
	}
	if frames[0].ByteLength != len("Welcome") {
		t.Errorf("ByteLength = %d, want %d", frames[0].ByteLength, len("Welcome"))
	}
	if frames[0].ID == "" {
		t.Error("frame has no ID")
	}
}

func TestDecoderFrameRoundTrip(t *testing.T) {
	t.Parallel()

	outputs := [][]string{
		{"one"},
		{"first line", "second line", "third line"},
		{"", "blank lines survive", ""},
		{testMarker + " but not alone", "x"},
		{"a single marker line is output:", testMarker, "and the frame continues"},
		{strings.Repeat("long ", 2000)},
	}
	for _, lines := range outputs {
		decoder := newTestDecoder(t)
		raw := make([]string, 0, len(lines)+2)
		for _, line := range lines {
			raw = append(raw, line+"\n")
		}
		raw = append(raw, testMarker+"\n", testMarker+"\n")

		frames := feedAll(decoder, raw...)
		if len(frames) != 1 {
			t.Fatalf("lines %q: got %d frames, want 1", lines, len(frames))
		}
		if !slices.Equal(frames[0].Lines, lines) {
			t.Errorf("Lines = %q, want %q", frames[0].Lines, lines)
		}
		if frames[0].ByteLength != len(frames[0].Text()) {
			t.Errorf("ByteLength = %d, want %d", frames[0].ByteLength, len(frames[0].Text()))
		}
		if decoder.Pending() != 0 {
			t.Errorf("decoder kept %d lines after the frame", decoder.Pending())
		}
	}
}

func TestDecoderEmptyFrame(t *testing.T) {
	t.Parallel()

	frames := feedAll(newTestDecoder(t), testMarker+"\n", testMarker+"\n")
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if !frames[0].Empty() || frames[0].ByteLength != 0 {
		t.Errorf("frame = %+v, want empty", frames[0])
	}
}

func TestDecoderConsecutiveFrames(t *testing.T) {
	t.Parallel()

	frames := feedAll(newTestDecoder(t),
		"a\n", testMarker+"\n", testMarker+"\n",
		"b\n", "c\n", testMarker+"\n", testMarker+"\n",
	)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if !slices.Equal(frames[0].Lines, []string{"a"}) || !slices.Equal(frames[1].Lines, []string{"b", "c"}) {
		t.Errorf("frames = %q, %q", frames[0].Lines, frames[1].Lines)
	}
	if frames[0].ID == frames[1].ID {
		t.Error("frames share an ID")
	}
}

func TestDecoderDropsBanner(t *testing.T) {
	t.Parallel()

	banner := "Server loaded. Type 'help' for help."
	frames := feedAll(newTestDecoder(t, banner),
		banner+"\n", "status ok\n", testMarker+"\n", banner+"\n", testMarker+"\n",
	)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	// The banner between the markers neither accumulates nor breaks
	// the "previous line" comparison.
	if !slices.Equal(frames[0].Lines, []string{"status ok"}) {
		t.Errorf("Lines = %q", frames[0].Lines)
	}
}

func TestDecoderStripsTerminalFormatting(t *testing.T) {
	t.Parallel()

	frames := feedAll(newTestDecoder(t),
		"\x1b[32mgreen\x1b[0m text\r\n",
		"\x1b[1;31m" + testMarker + "\x1b[0m\n",
		testMarker + "\r\n",
	)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if !slices.Equal(frames[0].Lines, []string{"green text"}) {
		t.Errorf("Lines = %q", frames[0].Lines)
	}
}

func TestDecoderRepairsInvalidUTF8(t *testing.T) {
	t.Parallel()

	decoder := newTestDecoder(t)
	frames := feedAll(decoder, "bad \xff\xfe byte\n", "bell\a\n", testMarker+"\n", testMarker+"\n")
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	want := []string{"bad � byte", "bell"}
	if !slices.Equal(frames[0].Lines, want) {
		t.Errorf("Lines = %q, want %q", frames[0].Lines, want)
	}
	if decoder.Anomalies() != 1 {
		t.Errorf("Anomalies = %d, want 1", decoder.Anomalies())
	}
}

// A console that stamps every line with a timestamp and level, prints a
// startup banner, and answers the unknown marker command with an error
// line. This is the shape of a typical game server console.
func TestDecoderTimestampedConsole(t *testing.T) {
	t.Parallel()

	endLine := "Invalid command. Type 'help' for help."
	decoder := NewDecoder(DecoderOptions{
		Detector:   &RepeatedMarker{Line: endLine},
		Banners:    []string{"Server loaded. Type 'help' for help."},
		LinePrefix: regexp.MustCompile(`^\[\d{2}-\d{2}-\d{4} \d{2}:\d{2}:\d{2}\] \[[A-Z]\] `),
	})

	raw := []string{
		"[10-19-2026 12:00:00] [I] Server loaded. Type 'help' for help.\n",
		"[10-19-2026 12:00:01] [I] \x1b[33mCommands:\x1b[0m\n",
		"[10-19-2026 12:00:01] [I]   ban <type-id/name/ip> - Ban a person.\n",
		"[10-19-2026 12:00:01] [E] " + endLine + "\n",
		"[10-19-2026 12:00:01] [E] " + endLine + "\n",
	}
	frames := feedAll(decoder, raw...)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	want := []string{"Commands:", "  ban <type-id/name/ip> - Ban a person."}
	if !slices.Equal(frames[0].Lines, want) {
		t.Errorf("Lines = %q, want %q", frames[0].Lines, want)
	}
}

func TestDecoderSingleMarkerDetector(t *testing.T) {
	t.Parallel()

	decoder := NewDecoder(DecoderOptions{Detector: &SingleMarker{Line: "--done--"}})
	frames := feedAll(decoder, "x\n", "--done--\n", "--done--\n")
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if !slices.Equal(frames[0].Lines, []string{"x"}) || !frames[1].Empty() {
		t.Errorf("frames = %q, %q", frames[0].Lines, frames[1].Lines)
	}
}

func TestDecoderRunDiscardsPartialFrame(t *testing.T) {
	t.Parallel()

	input := "a\n" + testMarker + "\n" + testMarker + "\n" + "partial\nno newline at end"
	var frames []Frame
	err := newTestDecoder(t).Run(context.Background(), strings.NewReader(input), func(frame Frame) error {
		frames = append(frames, frame)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(frames) != 1 || !slices.Equal(frames[0].Lines, []string{"a"}) {
		t.Errorf("frames = %+v, want exactly [a]", frames)
	}
}

func TestDecoderRunFinalMarkerWithoutNewline(t *testing.T) {
	t.Parallel()

	input := "a\n" + testMarker + "\n" + testMarker
	count := 0
	err := newTestDecoder(t).Run(context.Background(), strings.NewReader(input), func(Frame) error {
		count++
		return nil
	})
	if err != nil || count != 1 {
		t.Errorf("Run = %v with %d frames, want nil with 1", err, count)
	}
}

func TestDecoderRunPropagatesEmitError(t *testing.T) {
	t.Parallel()

	stop := errors.New("stop")
	input := strings.Repeat("a\n"+testMarker+"\n"+testMarker+"\n", 3)
	calls := 0
	err := newTestDecoder(t).Run(context.Background(), strings.NewReader(input), func(Frame) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("Run = %v after %d calls, want stop after 1", err, calls)
	}
}

func TestNewBoundaryDetector(t *testing.T) {
	t.Parallel()

	detector, err := NewBoundaryDetector("", "M")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := detector.(*RepeatedMarker); !ok {
		t.Errorf("default detector = %T, want *RepeatedMarker", detector)
	}
	detector, err = NewBoundaryDetector(BoundarySingleMarker, "M")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := detector.(*SingleMarker); !ok {
		t.Errorf("detector = %T, want *SingleMarker", detector)
	}
	if _, err := NewBoundaryDetector("regex", "M"); err == nil {
		t.Error("expected error for unknown detector")
	}
	if _, err := NewBoundaryDetector(BoundaryRepeatedMarker, ""); err == nil {
		t.Error("expected error for empty marker line")
	}
}
