// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package suggest

import (
	"slices"
	"testing"
)

func TestLevenshtein(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"kick", "kick", 0},
		{"kick", "kcik", 2},
		{"status", "stauts", 2},
		{"kitten", "sitting", 3},
		{"/ban_player", "/ban_playr", 1},
	}
	for _, test := range tests {
		if got := Levenshtein(test.a, test.b); got != test.want {
			t.Errorf("Levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
		if got := Levenshtein(test.b, test.a); got != test.want {
			t.Errorf("Levenshtein(%q, %q) = %d, want %d (symmetry)", test.b, test.a, got, test.want)
		}
	}
}

func TestClosest(t *testing.T) {
	t.Parallel()

	candidates := []string{"run", "compile-help", "transcript", "version"}
	if got := Closest("trnascript", candidates); got != "transcript" {
		t.Errorf("Closest(trnascript) = %q", got)
	}
	if got := Closest("zzzzzzzz", candidates); got != "" {
		t.Errorf("Closest(zzzzzzzz) = %q, want no suggestion", got)
	}
}

func TestRanked(t *testing.T) {
	t.Parallel()

	candidates := []string{"/ban_player", "/kick", "/help", "/status", "/bans"}
	got := Ranked("/ban", candidates, MaxDistance, 3)
	want := []string{"/ban_player", "/bans"}
	if !slices.Equal(got, want) {
		t.Errorf("Ranked(/ban) = %v, want %v", got, want)
	}

	got = Ranked("/hlep", candidates, MaxDistance, 1)
	if !slices.Equal(got, []string{"/help"}) {
		t.Errorf("Ranked(/hlep) = %v", got)
	}
}
