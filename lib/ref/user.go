// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// UserID is a validated Matrix user ID such as "@bridge:example.org".
//
// The zero value is not a valid ID; use IsZero to check.
type UserID struct {
	id string
}

// ParseUserID validates a raw user ID.
func ParseUserID(raw string) (UserID, error) {
	if _, _, err := splitSigilID(raw, '@', "user ID"); err != nil {
		return UserID{}, err
	}
	return UserID{id: raw}, nil
}

// MustParseUserID is ParseUserID for known-valid input. It panics on
// error.
func MustParseUserID(raw string) UserID {
	id, err := ParseUserID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseUserID(%q): %v", raw, err))
	}
	return id
}

func (u UserID) String() string { return u.id }

// IsZero reports whether u is unset.
func (u UserID) IsZero() bool { return u.id == "" }

// Localpart returns the part between '@' and ':'. It panics on the zero
// value.
func (u UserID) Localpart() string {
	localpart, _ := u.split()
	return localpart
}

// Server returns the part after the first ':'. It panics on the zero
// value.
func (u UserID) Server() string {
	_, server := u.split()
	return server
}

func (u UserID) split() (string, string) {
	if u.id == "" {
		panic("ref: UserID used before it was set")
	}
	localpart, server, err := splitSigilID(u.id, '@', "user ID")
	if err != nil {
		panic(fmt.Sprintf("ref: UserID %q no longer parses: %v", u.id, err))
	}
	return localpart, server
}

// MarshalText implements encoding.TextMarshaler.
func (u UserID) MarshalText() ([]byte, error) { return []byte(u.id), nil }

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields
// the zero value.
func (u *UserID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*u = UserID{}
		return nil
	}
	parsed, err := ParseUserID(string(data))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
