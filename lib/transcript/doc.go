// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transcript records every console frame to a compressed file.
//
// A transcript file is one compressed stream (zstd or LZ4 frame format,
// or uncompressed) of concatenated CBOR [Record] items. Each record
// carries a BLAKE3-256 digest of its text, checked by [Reader.Next].
//
// [Open] never appends to an existing file. If the path is taken, the
// writer creates the next free segment (path.1, path.2, ...), so every
// file is a complete stream from its first byte. [Segments] lists a
// transcript's files in order.
package transcript
