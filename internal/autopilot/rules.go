/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package autopilot

import (
	"math"
	"time"

	"github.com/friendsincode/grimnir_autopilot/internal/analysis"
	"github.com/friendsincode/grimnir_autopilot/internal/transition"
)

// Session phases used by the cascade.
const (
	earlySession = 15 * time.Minute
	lateSession  = 60 * time.Minute
)

// Decision is the cascade's pick: a style or a ritual preset.
type Decision struct {
	Style  string `json:"style,omitempty"`
	Ritual string `json:"ritual,omitempty"`
	Rule   string `json:"rule"`
}

// IsRitual reports whether the decision names a ritual preset.
func (d Decision) IsRitual() bool { return d.Ritual != "" }

// Choice returns the style or the ritual key.
func (d Decision) Choice() string {
	if d.IsRitual() {
		return d.Ritual
	}
	return d.Style
}

// RuleInput is everything the cascade looks at.
type RuleInput struct {
	Current   analysis.TrackAnalysis
	Next      analysis.TrackAnalysis
	Elapsed   time.Duration
	AvgEnergy float64
	// Chance returns a value in [0, 1) for the random gates.
	Chance func() float64
}

type facts struct {
	RuleInput
	bpmDiff    float64
	energyDiff float64
	genreShift bool
	early      bool
	late       bool
}

func (f facts) cur() float64  { return f.Current.Energy.Value }
func (f facts) next() float64 { return f.Next.Energy.Value }

// roll evaluates a random gate; it is only called once the rule's other
// conditions hold.
func (f facts) roll(threshold float64) bool {
	return f.Chance != nil && f.Chance() > threshold
}

type rule struct {
	name     string
	match    func(f facts) bool
	decision Decision
}

func styleRule(name, style string, match func(f facts) bool) rule {
	return rule{name: name, match: match, decision: Decision{Style: style, Rule: name}}
}

func ritualRule(name, ritual string, match func(f facts) bool) rule {
	return rule{name: name, match: match, decision: Decision{Ritual: ritual, Rule: name}}
}

// cascade is evaluated top to bottom; the first match wins.
var cascade = []rule{
	styleRule("percussive_peak", transition.StylePulseSync, func(f facts) bool {
		return f.cur() > 0.7 && f.next() > 0.7 && f.bpmDiff < 3 && analysis.IsPercussive(f.Current.Genre.Value)
	}),
	styleRule("low_energy", transition.StyleGhostFade, func(f facts) bool {
		return f.cur() < 0.3 || f.next() < 0.3
	}),
	styleRule("genre_jump", transition.StyleGenreWarp, func(f facts) bool {
		return f.genreShift && math.Abs(f.energyDiff) > 0.3
	}),
	styleRule("drop", transition.StyleDropEcho, func(f facts) bool {
		return f.next() > 0.8 && f.energyDiff > 0.3
	}),
	styleRule("dramatic_fall", transition.StyleReverseSurge, func(f facts) bool {
		return f.energyDiff < -0.4 || (f.late && f.roll(0.7))
	}),
	styleRule("glitch", transition.StyleStrobeCut, func(f facts) bool {
		return analysis.IsGlitchy(f.Current.Genre.Value) && f.bpmDiff < 5 && f.roll(0.6)
	}),
	styleRule("climax", transition.StyleEnergySpiral, func(f facts) bool {
		return f.energyDiff > 0.4 && f.next() > 0.75
	}),
	styleRule("opening_silence", transition.StyleSilenceRitual, func(f facts) bool {
		return f.early && f.roll(0.95)
	}),
	styleRule("descent", transition.StyleBassTunnel, func(f facts) bool {
		return f.cur() > 0.5 && f.next() < 0.4
	}),
	styleRule("harmonic", transition.StyleMelodyMerge, func(f facts) bool {
		return f.Current.Key.Value == f.Next.Key.Value && math.Abs(f.energyDiff) < 0.2 && f.bpmDiff < 5
	}),
	ritualRule("opening", transition.RitualInvocation, func(f facts) bool {
		return f.early && f.cur() < 0.4
	}),
	ritualRule("peak_jump", transition.RitualRevelation, func(f facts) bool {
		return f.next() > 0.85 && f.energyDiff > 0.35
	}),
	ritualRule("transformation", transition.RitualTransmutation, func(f facts) bool {
		return f.genreShift && f.bpmDiff > 15
	}),
	ritualRule("ascent", transition.RitualAscension, func(f facts) bool {
		return f.energyDiff > 0.3 && f.AvgEnergy < 0.6
	}),
	ritualRule("cool_down", transition.RitualMeditation, func(f facts) bool {
		return f.late && f.energyDiff < -0.3
	}),
	styleRule("matched", transition.StyleCrossfade, func(f facts) bool {
		return f.bpmDiff < 5 && math.Abs(f.energyDiff) < 0.2
	}),
	styleRule("rise", transition.StyleEnergyBuild, func(f facts) bool {
		return f.energyDiff > 0.3
	}),
	styleRule("fall", transition.StyleFilterSweep, func(f facts) bool {
		return f.energyDiff < -0.3
	}),
	styleRule("tempo_gap", transition.StyleEchoOut, func(f facts) bool {
		return f.bpmDiff > 10
	}),
	styleRule("default", transition.StyleBassSwap, func(facts) bool {
		return true
	}),
}

// SelectTransition runs the cascade.
func SelectTransition(in RuleInput) Decision {
	f := facts{
		RuleInput:  in,
		bpmDiff:    math.Abs(in.Current.BPM.Value - in.Next.BPM.Value),
		energyDiff: in.Next.Energy.Value - in.Current.Energy.Value,
		genreShift: analysis.GenreShift(in.Current.Genre.Value, in.Next.Genre.Value),
		early:      in.Elapsed < earlySession,
		late:       in.Elapsed > lateSession,
	}
	for _, r := range cascade {
		if r.match(f) {
			return r.decision
		}
	}
	return Decision{Style: transition.StyleCrossfade, Rule: "none"}
}
