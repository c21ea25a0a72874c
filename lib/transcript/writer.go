// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transcript

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bureau-foundation/consolebridge/lib/codec"
)

// maxSegments bounds the search for a free segment name.
const maxSegments = 10000

// Writer appends records to one transcript file. It is safe for
// concurrent use.
type Writer struct {
	path        string
	compression Compression

	mu      sync.Mutex
	file    *os.File
	stream  flushWriter
	encoder *codec.Encoder
	records int
	closed  bool
}

// Open creates a new transcript file at path, or at the first free
// segment name if path exists.
func Open(path string, compression Compression) (*Writer, error) {
	if _, err := ParseCompression(string(compression)); err != nil {
		return nil, err
	}

	var file *os.File
	var err error
	segment := path
	for index := 1; ; index++ {
		file, err = os.OpenFile(segment, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("transcript: creating %s: %w", segment, err)
		}
		if index > maxSegments {
			return nil, fmt.Errorf("transcript: no free segment after %s.%d", path, maxSegments)
		}
		segment = path + "." + strconv.Itoa(index)
	}

	stream, err := newCompressor(file, compression)
	if err != nil {
		file.Close()
		os.Remove(segment)
		return nil, err
	}
	return &Writer{
		path:        segment,
		compression: compression,
		file:        file,
		stream:      stream,
		encoder:     codec.NewEncoder(stream),
	}, nil
}

// Path returns the file being written, which may be a segment of the
// path given to Open.
func (w *Writer) Path() string { return w.path }

// Records returns how many records have been appended.
func (w *Writer) Records() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records
}

// Append stores record with its digest computed from Lines. The record
// is flushed through the compressor before Append returns.
func (w *Writer) Append(record Record) error {
	record.Digest = Digest(record.Lines)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("transcript: append to closed writer")
	}
	if err := w.encoder.Encode(record); err != nil {
		return fmt.Errorf("transcript: encoding frame %s: %w", record.FrameID, err)
	}
	if err := w.stream.Flush(); err != nil {
		return fmt.Errorf("transcript: flushing frame %s: %w", record.FrameID, err)
	}
	w.records++
	return nil
}

// Close finishes the compressed stream and syncs the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if err := w.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("transcript: closing stream: %w", err))
	}
	if err := w.file.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("transcript: sync: %w", err))
	}
	if err := w.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("transcript: close: %w", err))
	}
	return errors.Join(errs...)
}

// Segments returns path and its numbered segments that exist, in
// segment order.
func Segments(path string) ([]string, error) {
	matches, err := filepath.Glob(globEscape(path) + ".*")
	if err != nil {
		return nil, err
	}
	type numbered struct {
		path  string
		index int
	}
	var found []numbered
	if _, err := os.Stat(path); err == nil {
		found = append(found, numbered{path, 0})
	}
	for _, match := range matches {
		index, err := strconv.Atoi(strings.TrimPrefix(match, path+"."))
		if err != nil || index < 1 {
			continue
		}
		found = append(found, numbered{match, index})
	}
	sort.Slice(found, func(a, b int) bool { return found[a].index < found[b].index })

	segments := make([]string, len(found))
	for i, f := range found {
		segments[i] = f.path
	}
	return segments, nil
}

var globReplacer = strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `\`, `\\`)

func globEscape(path string) string {
	return globReplacer.Replace(path)
}
