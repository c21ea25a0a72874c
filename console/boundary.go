// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import "fmt"

// Boundary detector names accepted by NewBoundaryDetector.
const (
	BoundaryRepeatedMarker = "repeated-marker"
	BoundarySingleMarker   = "single-marker"
)

// Boundary is a detector's verdict on one line.
type Boundary struct {
	// End reports that the current frame is complete. The observed
	// line is not part of the frame.
	End bool

	// Trim is the number of already-accumulated trailing lines that
	// belong to the end marker and must be dropped from the frame.
	Trim int
}

// BoundaryDetector decides where frames end. The decoder offers it
// every line that survives banner filtering, in order, and calls Reset
// after each completed frame. Implementations are used by a single
// goroutine.
type BoundaryDetector interface {
	Observe(line string) Boundary
	Reset()
}

// RepeatedMarker ends a frame when Line appears twice in a row. A
// single occurrence is ordinary output.
type RepeatedMarker struct {
	Line string

	previous    string
	hasPrevious bool
}

// Observe implements BoundaryDetector.
func (m *RepeatedMarker) Observe(line string) Boundary {
	if line == m.Line && m.hasPrevious && m.previous == m.Line {
		return Boundary{End: true, Trim: 1}
	}
	m.previous = line
	m.hasPrevious = true
	return Boundary{}
}

// Reset implements BoundaryDetector.
func (m *RepeatedMarker) Reset() {
	m.previous = ""
	m.hasPrevious = false
}

// SingleMarker ends a frame on the first occurrence of Line. Use it
// for consoles that swallow repeated identical input.
type SingleMarker struct {
	Line string
}

// Observe implements BoundaryDetector.
func (m *SingleMarker) Observe(line string) Boundary {
	return Boundary{End: line == m.Line}
}

// Reset implements BoundaryDetector.
func (m *SingleMarker) Reset() {}

// NewBoundaryDetector builds the named detector matching line. An empty
// name selects the repeated-marker heuristic.
func NewBoundaryDetector(name, line string) (BoundaryDetector, error) {
	if line == "" {
		return nil, fmt.Errorf("console: boundary %q needs a non-empty end marker line", name)
	}
	switch name {
	case "", BoundaryRepeatedMarker:
		return &RepeatedMarker{Line: line}, nil
	case BoundarySingleMarker:
		return &SingleMarker{Line: line}, nil
	default:
		return nil, fmt.Errorf("console: unknown boundary detector %q (want %q or %q)",
			name, BoundaryRepeatedMarker, BoundarySingleMarker)
	}
}
