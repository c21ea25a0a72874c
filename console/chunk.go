// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import "strings"

// DefaultMaxChunkSize is the chunk limit in bytes when none is
// configured. It matches the message size limit of common chat APIs.
const DefaultMaxChunkSize = 4096

// Split packs a frame's lines, in order, into chunks of at most max
// bytes. Each line is packed together with the "\n" that follows it
// (the last line has none), so concatenating the chunk texts yields
// frame.Text() exactly.
//
// Packing is greedy: a chunk is closed when the next line would push it
// past max. A line of exactly max bytes fills a chunk and its separator
// starts the next one. A line that exceeds max on its own becomes a
// chunk by itself and is not split. A frame without text produces no chunks.
func Split(frame Frame, max int) []Chunk {
	if max <= 0 {
		panic("console: chunk size must be positive")
	}
	if len(frame.Lines) == 0 {
		return nil
	}

	size := frame.ByteLength
	if size == 0 {
		size = joinedLength(frame.Lines)
	}
	if size == 0 {
		// A single blank line: nothing to deliver.
		return nil
	}
	if size <= max {
		return []Chunk{{Text: frame.Text(), Sequence: 0, FrameID: frame.ID}}
	}

	var (
		chunks  []Chunk
		pending strings.Builder
	)
	flush := func() {
		if pending.Len() == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Text:     pending.String(),
			Sequence: len(chunks),
			FrameID:  frame.ID,
		})
		pending.Reset()
	}

	last := len(frame.Lines) - 1
	for index, line := range frame.Lines {
		separated := index < last
		unit := len(line)
		if separated {
			unit++
		}
		if pending.Len() > 0 && pending.Len()+unit > max {
			flush()
		}
		pending.WriteString(line)
		switch {
		case !separated:
		case unit <= max:
			pending.WriteByte('\n')
		case len(line) > max:
			// Oversized on its own: the chunk keeps its separator.
			pending.WriteByte('\n')
			flush()
		default:
			// The line fills a chunk exactly; its separator opens the
			// next one.
			flush()
			pending.WriteByte('\n')
		}
	}
	flush()
	return chunks
}
