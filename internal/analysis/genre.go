/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package analysis

import (
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// NormalizeGenre folds case, separators and spacing so "Hip-Hop" and
// "hip hop" name the same genre.
func NormalizeGenre(genre string) string {
	g := strings.ToLower(genre)
	g = strings.NewReplacer("-", " ", "_", " ", "/", " ").Replace(g)
	return strings.Join(strings.Fields(g), " ")
}

// GenreSimilarity scores two genre labels with Jaro-Winkler after
// normalizing them. Two empty labels are identical; one empty label matches
// nothing. It is informational; GenreShift does not use it.
func GenreSimilarity(a, b string) float64 {
	a, b = NormalizeGenre(a), NormalizeGenre(b)
	switch {
	case a == b:
		return 1
	case a == "" || b == "":
		return 0
	}
	return strutil.Similarity(a, b, metrics.NewJaroWinkler())
}

// GenreShift reports whether moving from a to b changes genre: any two
// labels that differ after normalizing, sub-genres included.
func GenreShift(a, b string) bool {
	return NormalizeGenre(a) != NormalizeGenre(b)
}

// IsPercussive reports beat-driven genres that suit tempo-locked pulses.
func IsPercussive(genre string) bool {
	g := strings.ToLower(genre)
	return strings.Contains(g, "techno") || strings.Contains(g, "electronic")
}

// IsGlitchy reports genres that suit hard strobe cuts.
func IsGlitchy(genre string) bool {
	g := strings.ToLower(genre)
	return strings.Contains(g, "electro") || strings.Contains(g, "trap")
}
