// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package suggest finds near matches for mistyped names. It backs the
// "did you mean" hints of both the CLI and the chat command router.
package suggest

import (
	"sort"
	"strings"
)

// MaxDistance is the default edit distance threshold. Three edits
// catches transpositions and a dropped or doubled character in short
// command names without suggesting unrelated ones.
const MaxDistance = 3

// Closest returns the candidate nearest to unknown within MaxDistance,
// or "" if none qualifies. Ties resolve to the earlier candidate.
func Closest(unknown string, candidates []string) string {
	best := ""
	bestDistance := MaxDistance + 1
	for _, candidate := range candidates {
		if distance := Levenshtein(unknown, candidate); distance < bestDistance {
			bestDistance = distance
			best = candidate
		}
	}
	return best
}

// Ranked returns up to limit candidates within maxDistance of unknown,
// nearest first. Candidates sharing unknown as a prefix are treated as
// distance 1 so "/ban" suggests "/ban_player".
func Ranked(unknown string, candidates []string, maxDistance, limit int) []string {
	type scored struct {
		name     string
		distance int
	}
	var matches []scored
	for _, candidate := range candidates {
		distance := Levenshtein(unknown, candidate)
		if unknown != "" && strings.HasPrefix(candidate, unknown) && distance > 1 {
			distance = 1
		}
		if distance <= maxDistance {
			matches = append(matches, scored{candidate, distance})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].distance != matches[j].distance {
			return matches[i].distance < matches[j].distance
		}
		return matches[i].name < matches[j].name
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	names := make([]string, len(matches))
	for index, match := range matches {
		names[index] = match.name
	}
	return names
}

// Levenshtein computes the edit distance between a and b in bytes.
func Levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	if len(a) > len(b) {
		a, b = b, a
	}

	previous := make([]int, len(a)+1)
	current := make([]int, len(a)+1)
	for i := range previous {
		previous[i] = i
	}
	for j := 1; j <= len(b); j++ {
		current[0] = j
		for i := 1; i <= len(a); i++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			current[i] = min(previous[i]+1, current[i-1]+1, previous[i-1]+cost)
		}
		previous, current = current, previous
	}
	return previous[len(a)]
}
