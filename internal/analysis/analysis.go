/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package analysis holds the track analysis model and the pure compatibility
// rules the autopilot uses to judge a pair of tracks.
package analysis

import (
	"errors"
	"fmt"
)

// Level is a coarse energy tier.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Tier maps an energy value to its level.
func Tier(energy float64) Level {
	switch {
	case energy > 0.7:
		return LevelHigh
	case energy > 0.4:
		return LevelMedium
	default:
		return LevelLow
	}
}

// BPM is a tempo estimate.
type BPM struct {
	Value      float64 `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Key is a musical key estimate such as "8A".
type Key struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Genre is a genre label estimate.
type Genre struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Energy is a 0..1 intensity estimate.
type Energy struct {
	Value float64 `json:"value"`
	Level Level   `json:"level"`
}

// TrackAnalysis is produced by the audio bridge for a loaded deck.
type TrackAnalysis struct {
	BPM    BPM    `json:"bpm"`
	Key    Key    `json:"key"`
	Genre  Genre  `json:"genre"`
	Energy Energy `json:"energy"`
}

// ErrInvalidAnalysis is returned by Validate.
var ErrInvalidAnalysis = errors.New("invalid track analysis")

// Validate checks the ranges the evaluator relies on.
func (a TrackAnalysis) Validate() error {
	if a.BPM.Value <= 0 {
		return fmt.Errorf("%w: bpm %.2f", ErrInvalidAnalysis, a.BPM.Value)
	}
	if a.Energy.Value < 0 || a.Energy.Value > 1 {
		return fmt.Errorf("%w: energy %.2f outside 0..1", ErrInvalidAnalysis, a.Energy.Value)
	}
	return nil
}

// WithLevel fills Energy.Level from Energy.Value when the producer omitted it.
func (a TrackAnalysis) WithLevel() TrackAnalysis {
	if a.Energy.Level == "" {
		a.Energy.Level = Tier(a.Energy.Value)
	}
	return a
}
