// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transcript

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// ErrDigestMismatch is returned by Reader.Next for a record whose text
// does not hash to its stored digest.
var ErrDigestMismatch = errors.New("transcript: record digest mismatch")

// Record is one console frame.
type Record struct {
	FrameID string    `cbor:"frame_id"`
	Time    time.Time `cbor:"time"`

	// Origin is who issued Command. Empty for unsolicited output.
	Origin  string `cbor:"origin,omitempty"`
	Command string `cbor:"command,omitempty"`

	// Help marks a frame compiled into the command table.
	Help bool `cbor:"help,omitempty"`

	Lines  []string `cbor:"lines"`
	Digest [32]byte `cbor:"digest"`
}

// Text returns the frame text the digest covers.
func (r Record) Text() string {
	return strings.Join(r.Lines, "\n")
}

// Digest hashes lines joined with "\n".
func Digest(lines []string) [32]byte {
	return blake3.Sum256([]byte(strings.Join(lines, "\n")))
}

// Verify checks the stored digest.
func (r Record) Verify() error {
	if Digest(r.Lines) != r.Digest {
		return fmt.Errorf("%w: frame %s", ErrDigestMismatch, r.FrameID)
	}
	return nil
}
