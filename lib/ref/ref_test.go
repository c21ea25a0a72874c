// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"encoding/json"
	"testing"
)

func TestParseIdentifiers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		parse func(string) error
		raw   string
		valid bool
	}{
		{"room", wrap(ParseRoomID), "!abc:example.org", true},
		{"room with port", wrap(ParseRoomID), "!abc:example.org:8448", true},
		{"room missing sigil", wrap(ParseRoomID), "abc:example.org", false},
		{"room missing server", wrap(ParseRoomID), "!abc", false},
		{"room empty local", wrap(ParseRoomID), "!:example.org", false},
		{"room empty server", wrap(ParseRoomID), "!abc:", false},
		{"user", wrap(ParseUserID), "@bridge:example.org", true},
		{"user bad server", wrap(ParseUserID), "@bridge:exa mple", false},
		{"user wrong sigil", wrap(ParseUserID), "#bridge:example.org", false},
		{"alias", wrap(ParseRoomAlias), "#console:example.org", true},
		{"alias as user", wrap(ParseRoomAlias), "@console:example.org", false},
		{"event", wrap(ParseEventID), "$Rqnc-F-dvnEYJTyHq_iKxU2bZ1CI92-kuZq3a5lr5Zg", true},
		{"event bare sigil", wrap(ParseEventID), "$", false},
		{"empty", wrap(ParseUserID), "", false},
	}
	for _, test := range tests {
		err := test.parse(test.raw)
		if (err == nil) != test.valid {
			t.Errorf("%s: parse(%q) error = %v, valid = %v", test.name, test.raw, err, test.valid)
		}
	}
}

func wrap[T any](parse func(string) (T, error)) func(string) error {
	return func(raw string) error {
		_, err := parse(raw)
		return err
	}
}

func TestUserIDParts(t *testing.T) {
	t.Parallel()

	user := MustParseUserID("@bridge:matrix.example.org:8448")
	if user.Localpart() != "bridge" || user.Server() != "matrix.example.org:8448" {
		t.Errorf("Localpart=%q Server=%q", user.Localpart(), user.Server())
	}
}

func TestRoomRef(t *testing.T) {
	t.Parallel()

	byAlias, err := ParseRoomRef("#console:example.org")
	if err != nil || byAlias.Alias.IsZero() || !byAlias.ID.IsZero() {
		t.Fatalf("ParseRoomRef(alias) = %+v, %v", byAlias, err)
	}
	byID, err := ParseRoomRef("!abc:example.org")
	if err != nil || byID.ID.IsZero() || !byID.Alias.IsZero() {
		t.Fatalf("ParseRoomRef(id) = %+v, %v", byID, err)
	}
	if _, err := ParseRoomRef("console"); err == nil {
		t.Error("ParseRoomRef accepted a bare name")
	}
}

func TestTextRoundTripThroughJSON(t *testing.T) {
	t.Parallel()

	type document struct {
		Room  RoomRef `json:"room"`
		User  UserID  `json:"user"`
		Empty RoomID  `json:"empty"`
	}
	in := document{
		Room: RoomRef{Alias: RoomAlias{alias: "#console:example.org"}},
		User: MustParseUserID("@bridge:example.org"),
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out document
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}

	if err := json.Unmarshal([]byte(`{"user":"not-a-user"}`), &out); err == nil {
		t.Error("invalid user ID accepted")
	}
}
