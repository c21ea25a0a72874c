// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
	"github.com/google/uuid"
)

// DecoderOptions configures a Decoder.
type DecoderOptions struct {
	// Detector decides where frames end. Required.
	Detector BoundaryDetector

	// Banners are exact lines to drop wherever they appear, such as a
	// startup "server loaded" message. Keep this list minimal: a
	// command whose output coincidentally equals a banner loses that
	// line.
	Banners []string

	// LinePrefix, if set, is removed from the start of every line
	// before banner and boundary matching. Consoles that stamp each
	// line with a timestamp and level need this so marker lines
	// compare equal.
	LinePrefix *regexp.Regexp

	// Logger receives decode anomalies and discarded partial frames at
	// Debug level. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Decoder accumulates console output lines into frames. It is owned by
// the reader goroutine and is not safe for concurrent use.
type Decoder struct {
	detector BoundaryDetector
	banners  map[string]struct{}
	prefix   *regexp.Regexp
	logger   *slog.Logger

	lines      []string
	byteLength int
	anomalies  atomic.Int64
}

// NewDecoder returns a Decoder in the accumulating state.
func NewDecoder(options DecoderOptions) *Decoder {
	if options.Detector == nil {
		panic("console: DecoderOptions.Detector is required")
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	banners := make(map[string]struct{}, len(options.Banners))
	for _, banner := range options.Banners {
		banners[banner] = struct{}{}
	}
	return &Decoder{
		detector: options.Detector,
		banners:  banners,
		prefix:   options.LinePrefix,
		logger:   logger,
	}
}

// Feed processes one raw output line (with or without its trailing
// newline). It returns a completed frame and true when the line closed
// one.
func (d *Decoder) Feed(raw string) (Frame, bool) {
	line := d.clean(raw)
	if d.prefix != nil {
		if location := d.prefix.FindStringIndex(line); location != nil && location[0] == 0 {
			line = line[location[1]:]
		}
	}
	if _, banner := d.banners[line]; banner {
		return Frame{}, false
	}

	boundary := d.detector.Observe(line)
	if !boundary.End {
		if len(d.lines) > 0 {
			d.byteLength++
		}
		d.lines = append(d.lines, line)
		d.byteLength += len(line)
		return Frame{}, false
	}

	trim := min(boundary.Trim, len(d.lines))
	for _, dropped := range d.lines[len(d.lines)-trim:] {
		d.byteLength -= len(dropped)
	}
	kept := d.lines[:len(d.lines)-trim]
	if trim > 0 && len(kept) > 0 {
		d.byteLength -= trim
	}

	frame := Frame{ID: uuid.NewString(), ByteLength: d.byteLength}
	if len(kept) > 0 {
		frame.Lines = kept
	} else {
		frame.ByteLength = 0
	}
	d.reset()
	return frame, true
}

// Run reads lines from r until EOF, calling emit for every completed
// frame. EOF ends the stream normally: Run returns nil and any partial
// frame is dropped, because it has no completion guarantee. An error
// from emit stops Run and is returned as-is.
func (d *Decoder) Run(ctx context.Context, r io.Reader, emit func(Frame) error) error {
	reader := bufio.NewReaderSize(r, 64*1024)
	for {
		raw, readErr := reader.ReadString('\n')
		if raw != "" {
			if frame, ok := d.Feed(raw); ok {
				if err := emit(frame); err != nil {
					return err
				}
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				if len(d.lines) > 0 {
					d.logger.Debug("discarding partial frame at end of output",
						"lines", len(d.lines),
						"bytes", d.byteLength,
					)
				}
				d.reset()
				return nil
			}
			return fmt.Errorf("console: reading output: %w", readErr)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Anomalies returns how many lines needed repair (invalid UTF-8). It
// may be called from any goroutine.
func (d *Decoder) Anomalies() int {
	return int(d.anomalies.Load())
}

// Pending returns the number of lines accumulated toward the current
// frame.
func (d *Decoder) Pending() int {
	return len(d.lines)
}

func (d *Decoder) reset() {
	// Emitted frames keep the old backing array.
	d.lines = nil
	d.byteLength = 0
	d.detector.Reset()
}

// clean strips the line terminator, repairs invalid UTF-8, removes ANSI
// escape sequences and drops leftover control characters. It never
// fails: damaged input degrades to U+FFFD.
func (d *Decoder) clean(raw string) string {
	line := strings.TrimSuffix(raw, "\n")
	line = strings.TrimSuffix(line, "\r")

	if !utf8.ValidString(line) {
		d.anomalies.Add(1)
		d.logger.Debug("repairing invalid UTF-8 in console output", "bytes", len(line))
		line = strings.ToValidUTF8(line, "\uFFFD")
	}

	line = ansi.Strip(line)
	if strings.IndexFunc(line, strayControl) >= 0 {
		line = strings.Map(func(r rune) rune {
			if strayControl(r) {
				return -1
			}
			return r
		}, line)
	}
	return line
}

func strayControl(r rune) bool {
	return r != '\t' && unicode.IsControl(r)
}
