// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transcript

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/bureau-foundation/consolebridge/lib/codec"
)

func sampleRecords() []Record {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []Record{
		{FrameID: "f1", Time: start, Origin: "bridge", Command: "help", Help: true,
			Lines: []string{"Commands:", "status Show status."}},
		{FrameID: "f2", Time: start.Add(time.Second), Origin: "!ops:example.org", Command: "status",
			Lines: []string{"Players: 3", "Map: Ancient Caldera"}},
		{FrameID: "f3", Time: start.Add(2 * time.Second), Lines: []string{"Player joined."}},
		{FrameID: "f4", Time: start.Add(3 * time.Second), Command: "save"},
	}
}

func readAll(t *testing.T, reader *Reader) []Record {
	t.Helper()
	var records []Record
	for {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return records
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		records = append(records, record)
	}
}

func TestRoundTripEachCompression(t *testing.T) {
	for _, compression := range []Compression{CompressionZstd, CompressionLZ4, CompressionNone} {
		t.Run(string(compression), func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "transcript.cbor")
			writer, err := Open(path, compression)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			for _, record := range sampleRecords() {
				if err := writer.Append(record); err != nil {
					t.Fatalf("Append: %v", err)
				}
			}
			if writer.Records() != 4 {
				t.Errorf("Records() = %d", writer.Records())
			}
			if err := writer.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			reader, err := OpenFile(path)
			if err != nil {
				t.Fatalf("OpenFile: %v", err)
			}
			defer reader.Close()
			records := readAll(t, reader)

			want := sampleRecords()
			if len(records) != len(want) {
				t.Fatalf("read %d records, want %d", len(records), len(want))
			}
			for i, record := range records {
				if record.FrameID != want[i].FrameID || record.Origin != want[i].Origin ||
					record.Command != want[i].Command || record.Help != want[i].Help ||
					!record.Time.Equal(want[i].Time) || !slices.Equal(record.Lines, want[i].Lines) {
					t.Errorf("record %d = %+v, want %+v", i, record, want[i])
				}
				if record.Digest != Digest(want[i].Lines) {
					t.Errorf("record %d digest not computed on append", i)
				}
			}
		})
	}
}

func TestDetect(t *testing.T) {
	var buffer bytes.Buffer
	for _, compression := range []Compression{CompressionZstd, CompressionLZ4} {
		buffer.Reset()
		stream, err := newCompressor(&buffer, compression)
		if err != nil {
			t.Fatal(err)
		}
		stream.Write([]byte("x"))
		stream.Close()
		if got := Detect(buffer.Bytes()); got != compression {
			t.Errorf("Detect(%s stream) = %s", compression, got)
		}
	}
	if got := Detect([]byte{0xa7}); got != CompressionNone {
		t.Errorf("Detect(CBOR) = %s", got)
	}
}

func TestDigestMismatch(t *testing.T) {
	record := sampleRecords()[1]
	record.Digest = Digest(record.Lines)
	record.Lines[0] = "Players: 300"

	data, err := codec.Marshal(record)
	if err != nil {
		t.Fatal(err)
	}
	good := sampleRecords()[2]
	good.Digest = Digest(good.Lines)
	more, err := codec.Marshal(good)
	if err != nil {
		t.Fatal(err)
	}

	reader, err := NewReader(bytes.NewReader(append(data, more...)), CompressionNone)
	if err != nil {
		t.Fatal(err)
	}
	tampered, err := reader.Next()
	if !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("Next = %v, want ErrDigestMismatch", err)
	}
	if tampered.FrameID != "f2" {
		t.Errorf("tampered record not returned: %+v", tampered)
	}
	next, err := reader.Next()
	if err != nil || next.FrameID != "f3" {
		t.Errorf("reading after a mismatch = %+v, %v", next, err)
	}
}

func TestOpenCreatesSegments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.cbor")

	var written []string
	for i := range 3 {
		writer, err := Open(path, CompressionZstd)
		if err != nil {
			t.Fatalf("Open #%d: %v", i, err)
		}
		if err := writer.Append(Record{FrameID: writer.Path(), Lines: []string{"run"}}); err != nil {
			t.Fatal(err)
		}
		written = append(written, writer.Path())
		if err := writer.Close(); err != nil {
			t.Fatal(err)
		}
	}

	want := []string{path, path + ".1", path + ".2"}
	if !slices.Equal(written, want) {
		t.Errorf("segment paths = %v, want %v", written, want)
	}

	// Unrelated files next to the transcript are not segments.
	os.WriteFile(path+".bak", nil, 0600)
	segments, err := Segments(path)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(segments, want) {
		t.Errorf("Segments = %v, want %v", segments, want)
	}

	for _, segment := range segments {
		reader, err := OpenFile(segment)
		if err != nil {
			t.Fatal(err)
		}
		records := readAll(t, reader)
		reader.Close()
		if len(records) != 1 || records[0].FrameID != segment {
			t.Errorf("%s holds %+v", segment, records)
		}
	}
}

func TestAppendAfterClose(t *testing.T) {
	writer, err := Open(filepath.Join(t.TempDir(), "t.cbor"), CompressionNone)
	if err != nil {
		t.Fatal(err)
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	if err := writer.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if err := writer.Append(Record{FrameID: "late"}); err == nil {
		t.Error("Append after Close succeeded")
	}
}

func TestParseCompression(t *testing.T) {
	if _, err := ParseCompression("gzip"); err == nil {
		t.Error("ParseCompression accepted gzip")
	}
	if _, err := Open(filepath.Join(t.TempDir(), "t"), "gzip"); err == nil {
		t.Error("Open accepted gzip")
	}
	if got, err := ParseCompression("lz4"); err != nil || got != CompressionLZ4 {
		t.Errorf("ParseCompression(lz4) = %s, %v", got, err)
	}
}
