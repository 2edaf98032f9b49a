/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package analysis

import (
	"fmt"
	"math"
)

// FlowStrategy describes how energy should move between tracks.
type FlowStrategy string

const (
	FlowAdaptive FlowStrategy = "adaptive"
	FlowBuild    FlowStrategy = "build"
	FlowPlateau  FlowStrategy = "plateau"
	FlowDecline  FlowStrategy = "decline"
)

// ParseFlowStrategy validates a strategy name.
func ParseFlowStrategy(s string) (FlowStrategy, error) {
	switch fs := FlowStrategy(s); fs {
	case FlowAdaptive, FlowBuild, FlowPlateau, FlowDecline:
		return fs, nil
	}
	return "", fmt.Errorf("unknown energy flow strategy %q", s)
}

// Strategy carries the settings the evaluator reads.
type Strategy struct {
	BPMTolerance             float64
	KeyCompatibilityRequired bool
	EnergyFlow               FlowStrategy
	SessionAvgEnergy         float64
}

// Compatibility is the verdict for a current/next pair.
type Compatibility struct {
	Compatible    bool    `json:"compatible"`
	BPMDiff       float64 `json:"bpm_diff"`
	EnergyDiff    float64 `json:"energy_diff"`
	KeyMatch      bool    `json:"key_match"`
	BPMCompatible bool    `json:"bpm_compatible"`
	KeyCompatible bool    `json:"key_compatible"`
	EnergyFlowOK  bool    `json:"energy_flow_ok"`
}

// ScoreCompatibility judges whether next can follow current. It only reads
// its arguments.
func ScoreCompatibility(current, next TrackAnalysis, s Strategy) Compatibility {
	c := Compatibility{
		BPMDiff:    math.Abs(current.BPM.Value - next.BPM.Value),
		EnergyDiff: next.Energy.Value - current.Energy.Value,
		KeyMatch:   current.Key.Value == next.Key.Value,
	}
	c.BPMCompatible = c.BPMDiff <= s.BPMTolerance
	c.KeyCompatible = !s.KeyCompatibilityRequired || c.KeyMatch
	c.EnergyFlowOK = EnergyFlowOK(c.EnergyDiff, s.EnergyFlow, s.SessionAvgEnergy)
	c.Compatible = c.BPMCompatible && c.KeyCompatible && c.EnergyFlowOK
	return c
}

// EnergyFlowOK applies the strategy to diff = next - current. Unknown
// strategies behave as adaptive.
func EnergyFlowOK(diff float64, strategy FlowStrategy, sessionAvg float64) bool {
	switch strategy {
	case FlowBuild:
		return diff >= -0.1
	case FlowDecline:
		return diff <= 0.1
	case FlowPlateau:
		return math.Abs(diff) < 0.2
	}
	switch {
	case sessionAvg < 0.5:
		return diff >= -0.15
	case sessionAvg > 0.7:
		return diff >= -0.3
	default:
		return math.Abs(diff) < 0.25
	}
}
