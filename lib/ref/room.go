// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// RoomID is a validated Matrix room ID such as "!abc123:example.org".
// Room IDs are assigned by the homeserver; the bridge only ever parses
// them from sync responses, join responses and configuration.
//
// The zero value is not a valid ID; use IsZero to check.
type RoomID struct {
	id string
}

// ParseRoomID validates a raw room ID.
func ParseRoomID(raw string) (RoomID, error) {
	if _, _, err := splitSigilID(raw, '!', "room ID"); err != nil {
		return RoomID{}, err
	}
	return RoomID{id: raw}, nil
}

// MustParseRoomID is ParseRoomID for known-valid input. It panics on
// error.
func MustParseRoomID(raw string) RoomID {
	id, err := ParseRoomID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseRoomID(%q): %v", raw, err))
	}
	return id
}

func (r RoomID) String() string { return r.id }

// IsZero reports whether r is unset.
func (r RoomID) IsZero() bool { return r.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (r RoomID) MarshalText() ([]byte, error) { return []byte(r.id), nil }

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields
// the zero value.
func (r *RoomID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*r = RoomID{}
		return nil
	}
	parsed, err := ParseRoomID(string(data))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RoomAlias is a validated Matrix room alias such as
// "#console:example.org". Aliases resolve to a RoomID on join.
type RoomAlias struct {
	alias string
}

// ParseRoomAlias validates a raw room alias.
func ParseRoomAlias(raw string) (RoomAlias, error) {
	if _, _, err := splitSigilID(raw, '#', "room alias"); err != nil {
		return RoomAlias{}, err
	}
	return RoomAlias{alias: raw}, nil
}

func (a RoomAlias) String() string { return a.alias }

// IsZero reports whether a is unset.
func (a RoomAlias) IsZero() bool { return a.alias == "" }

// RoomRef names a room either by ID or by alias, which is how rooms are
// written in configuration. Exactly one of the two is set on a valid
// value.
type RoomRef struct {
	ID    RoomID
	Alias RoomAlias
}

// ParseRoomRef accepts a room ID ("!...") or a room alias ("#...").
func ParseRoomRef(raw string) (RoomRef, error) {
	if raw != "" && raw[0] == '#' {
		alias, err := ParseRoomAlias(raw)
		if err != nil {
			return RoomRef{}, err
		}
		return RoomRef{Alias: alias}, nil
	}
	id, err := ParseRoomID(raw)
	if err != nil {
		return RoomRef{}, fmt.Errorf("room must be a room ID or an alias: %w", err)
	}
	return RoomRef{ID: id}, nil
}

// String returns the ID or alias as written.
func (r RoomRef) String() string {
	if !r.Alias.IsZero() {
		return r.Alias.String()
	}
	return r.ID.String()
}

// IsZero reports whether r is unset.
func (r RoomRef) IsZero() bool { return r.ID.IsZero() && r.Alias.IsZero() }

// MarshalText implements encoding.TextMarshaler.
func (r RoomRef) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RoomRef) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*r = RoomRef{}
		return nil
	}
	parsed, err := ParseRoomRef(string(data))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
