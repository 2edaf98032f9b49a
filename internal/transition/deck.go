/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package transition

import "fmt"

// Deck identifies one of the two mixer decks.
type Deck string

const (
	DeckA Deck = "a"
	DeckB Deck = "b"
)

// ParseDeck validates a deck id.
func ParseDeck(s string) (Deck, error) {
	switch d := Deck(s); d {
	case DeckA, DeckB:
		return d, nil
	}
	return "", fmt.Errorf("unknown deck %q", s)
}

// Valid reports whether d is a known deck.
func (d Deck) Valid() bool {
	return d == DeckA || d == DeckB
}

// Other returns the opposite deck.
func (d Deck) Other() Deck {
	if d == DeckA {
		return DeckB
	}
	return DeckA
}

// Position is the crossfader value that fully favors d.
func (d Deck) Position() float64 {
	if d == DeckB {
		return 1
	}
	return 0
}

// crossfaderValue blends from toward to by weight.
func crossfaderValue(from, to Deck, weight float64) float64 {
	a, b := from.Position(), to.Position()
	return a + (b-a)*clamp01(weight)
}
