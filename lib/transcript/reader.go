// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transcript

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bureau-foundation/consolebridge/lib/codec"
)

// Reader reads records from one transcript stream.
type Reader struct {
	decoder *codec.Decoder
	release func()
	closer  io.Closer
}

// NewReader decompresses r with compression and decodes records.
func NewReader(r io.Reader, compression Compression) (*Reader, error) {
	stream, release, err := newDecompressor(r, compression)
	if err != nil {
		return nil, err
	}
	return &Reader{decoder: codec.NewDecoder(stream), release: release}, nil
}

// OpenFile opens a transcript file, detecting its compression.
func OpenFile(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	buffered := bufio.NewReader(file)
	header, err := buffered.Peek(4)
	if err != nil && !errors.Is(err, io.EOF) {
		file.Close()
		return nil, fmt.Errorf("transcript: reading %s: %w", path, err)
	}
	reader, err := NewReader(buffered, Detect(header))
	if err != nil {
		file.Close()
		return nil, err
	}
	reader.closer = file
	return reader, nil
}

// Next returns the next record, or io.EOF after the last one. A record
// that fails its digest check is returned together with an error
// wrapping ErrDigestMismatch, and reading may continue.
func (r *Reader) Next() (Record, error) {
	var record Record
	if err := r.decoder.Decode(&record); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("transcript: decoding record: %w", err)
	}
	if err := record.Verify(); err != nil {
		return record, err
	}
	return record, nil
}

// Close releases the decompressor and any file opened by OpenFile.
func (r *Reader) Close() error {
	r.release()
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
