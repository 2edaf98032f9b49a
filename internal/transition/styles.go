/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package transition

import (
	"math"
	"sort"
	"time"

	"github.com/friendsincode/grimnir_autopilot/internal/events"
)

// Style names
const (
	StyleCrossfade     = "crossfade"
	StyleCut           = "cut"
	StyleFilterSweep   = "filter_sweep"
	StyleBassSwap      = "bass_swap"
	StyleEchoOut       = "echo_out"
	StyleEnergyBuild   = "energy_build"
	StylePulseSync     = "pulse_sync"
	StyleGhostFade     = "ghost_fade"
	StyleGenreWarp     = "genre_warp"
	StyleDropEcho      = "drop_echo"
	StyleReverseSurge  = "reverse_surge"
	StyleStrobeCut     = "strobe_cut"
	StyleEnergySpiral  = "energy_spiral"
	StyleSilenceRitual = "silence_ritual"
	StyleBassTunnel    = "bass_tunnel"
	StyleMelodyMerge   = "melody_merge"
)

// Frame is the input a style sees for one step.
type Frame struct {
	Step     int
	Steps    int
	Progress float64
	// Prev is the progress of the previously emitted frame, -1 on the first.
	Prev     float64
	From     Deck
	To       Deck
	Duration time.Duration
}

// crossed reports whether this frame is the first at or past t.
func (f Frame) crossed(t float64) bool {
	return f.Progress >= t && f.Prev < t
}

// incoming reports whether the frame targets a different deck. Same-deck
// passes skip commands aimed at the incoming deck when they would fight the
// outgoing ones on the same frame.
func (f Frame) incoming() bool {
	return f.From != f.To
}

// Style is a deterministic automation of mixer and effect parameters.
type Style struct {
	Name        string
	Description string
	// Steps is the number of intervals; zero means a single instant frame.
	Steps int
	// Weight maps progress to the crossfader blend toward the target deck.
	// It must be non-decreasing.
	Weight func(p float64) float64
	// Effects returns the transient effect commands for a frame.
	Effects func(f Frame) []Command
	// Reset returns neutral values for every effect the style touches.
	Reset func(from, to Deck) []Command
}

// StyleInfo describes a style for listings.
type StyleInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Steps       int    `json:"steps"`
}

func uniqueDecks(from, to Deck) []Deck {
	if from == to {
		return []Deck{from}
	}
	return []Deck{from, to}
}

func curveWeight(c Curve) func(float64) float64 {
	return c.Apply
}

func ms(d time.Duration) int64 {
	return d.Milliseconds()
}

var catalogue = map[string]Style{
	StyleCrossfade: {
		Name:        StyleCrossfade,
		Description: "Smooth S-curve crossfade",
		Steps:       100,
		Weight:      curveWeight(CurveSmooth),
	},
	StyleCut: {
		Name:        StyleCut,
		Description: "Instant cut to the target deck",
		Steps:       0,
		Weight:      func(float64) float64 { return 1 },
	},
	StyleFilterSweep: {
		Name:        StyleFilterSweep,
		Description: "Low-pass the outgoing deck, then high-pass the incoming deck",
		Steps:       100,
		Weight:      curveWeight(CurveSmooth),
		Effects: func(f Frame) []Command {
			var cmds []Command
			if f.Progress <= 0.5 {
				q := phase(f.Progress, 0, 0.5)
				cmds = append(cmds, filterCmd(f.From, FilterLowpass, 20000-19000*q, 1))
			}
			if f.Progress >= 0.5 && f.incoming() {
				q := phase(f.Progress, 0.5, 1)
				cmds = append(cmds, filterCmd(f.To, FilterHighpass, 1000-800*q, 1))
			}
			return cmds
		},
		Reset: func(from, to Deck) []Command {
			var cmds []Command
			for _, d := range uniqueDecks(from, to) {
				cmds = append(cmds, filterReset(d))
			}
			return cmds
		},
	},
	StyleBassSwap: {
		Name:        StyleBassSwap,
		Description: "Swap low frequencies ahead of mids and highs",
		Steps:       100,
		Weight:      curveWeight(CurveExponential),
		Effects: func(f Frame) []Command {
			p := f.Progress
			bass := math.Min(1, p*1.5)
			high := clamp01((p - 0.33) * 1.5)
			cmds := []Command{eqCmd(f.From, 1-bass, 1-p, 1-high)}
			if f.incoming() {
				cmds = append(cmds, eqCmd(f.To, bass, p, high))
			}
			return cmds
		},
		Reset: func(from, to Deck) []Command {
			var cmds []Command
			for _, d := range uniqueDecks(from, to) {
				cmds = append(cmds, eqCmd(d, 1, 1, 1))
			}
			return cmds
		},
	},
	StyleEchoOut: {
		Name:        StyleEchoOut,
		Description: "Growing echo on the outgoing deck",
		Steps:       100,
		Weight:      curveWeight(CurveExponential),
		Effects: func(f Frame) []Command {
			if f.Progress >= 0.7 {
				return nil
			}
			return []Command{echoCmd(f.From, 0.7, 0.5, 0.5+f.Progress*0.5)}
		},
		Reset: func(from, _ Deck) []Command {
			return []Command{echoCmd(from, 0, 0, 0)}
		},
	},
	StyleEnergyBuild: {
		Name:        StyleEnergyBuild,
		Description: "High-pass build with a fast late crossfade",
		Steps:       100,
		Weight: func(p float64) float64 {
			return CurveExponential.Apply(phase(p, 0.7, 1))
		},
		Effects: func(f Frame) []Command {
			p := f.Progress
			return []Command{filterCmd(f.From, FilterHighpass, 20+p*1980, 2+p*3)}
		},
		Reset: func(from, _ Deck) []Command {
			return []Command{filterReset(from)}
		},
	},
	StylePulseSync: {
		Name:        StylePulseSync,
		Description: "Eight tempo pulses stepping toward the target with stutter",
		Steps:       64,
		Weight:      func(p float64) float64 { return staircase(p, 8) },
		Effects: func(f Frame) []Command {
			const pulses = 8
			if f.Progress >= 1 {
				return nil
			}
			pulse := math.Floor(f.Progress * pulses)
			if f.Prev >= 0 && math.Floor(f.Prev*pulses) == pulse {
				return nil
			}
			return []Command{{
				Topic: events.TopicEffectStutter,
				Payload: StutterCommand{
					Deck:       f.From,
					Intensity:  math.Sin(pulse / pulses * math.Pi),
					DurationMS: ms(f.Duration / pulses / 4),
				},
			}}
		},
		Reset: func(from, _ Deck) []Command {
			return []Command{{Topic: events.TopicEffectStutter, Payload: StutterCommand{Deck: from}}}
		},
	},
	StyleGhostFade: {
		Name:        StyleGhostFade,
		Description: "Very soft fade under a swelling reverb",
		Steps:       150,
		Weight: func(p float64) float64 {
			c := CurveSmooth.Apply(p)
			return c * c
		},
		Effects: func(f Frame) []Command {
			p := f.Progress
			return []Command{reverbCmd(f.From, math.Sin(p*math.Pi)*0.8, 3+p*2)}
		},
		Reset: func(from, _ Deck) []Command {
			return []Command{reverbCmd(from, 0, 0)}
		},
	},
	StyleGenreWarp: {
		Name:        StyleGenreWarp,
		Description: "Pitch the outgoing deck down an octave, bring the target up from below",
		Steps:       100,
		Weight: func(p float64) float64 {
			return phase(p, 0.5, 1)
		},
		Effects: func(f Frame) []Command {
			if f.Progress <= 0.5 {
				w := phase(f.Progress, 0, 0.5)
				return []Command{
					pitchCmd(f.From, -12*w),
					filterCmd(f.From, FilterNotch, 1000*(1-w), 0),
				}
			}
			e := phase(f.Progress, 0.5, 1)
			return []Command{pitchCmd(f.To, -12*(1-e))}
		},
		Reset: func(from, to Deck) []Command {
			var cmds []Command
			for _, d := range uniqueDecks(from, to) {
				cmds = append(cmds, pitchCmd(d, 0))
			}
			return append(cmds, filterReset(from))
		},
	},
	StyleDropEcho: {
		Name:        StyleDropEcho,
		Description: "Echo build, a beat of silence, then a hard drop",
		Steps:       100,
		Weight: func(p float64) float64 {
			if p >= 0.8 {
				return 1
			}
			return 0
		},
		Effects: func(f Frame) []Command {
			switch {
			case f.Progress <= 0.7:
				q := phase(f.Progress, 0, 0.7)
				return []Command{echoCmd(f.From, q*q*0.9, 0.25*(1-q*0.5), q*q)}
			case f.crossed(0.8):
				return []Command{{Topic: events.TopicEffectImpact, Payload: ImpactCommand{Deck: f.To, Intensity: 1}}}
			}
			return nil
		},
		Reset: func(from, _ Deck) []Command {
			return []Command{echoCmd(from, 0, 0, 0)}
		},
	},
	StyleReverseSurge: {
		Name:        StyleReverseSurge,
		Description: "Reverse the outgoing deck, then surge across",
		Steps:       100,
		Weight: func(p float64) float64 {
			return CurveExponential.Apply(phase(p, 0.4, 1))
		},
		Effects: func(f Frame) []Command {
			if f.Prev < 0 {
				return []Command{reverseCmd(f.From, true)}
			}
			return nil
		},
		Reset: func(from, _ Deck) []Command {
			return []Command{reverseCmd(from, false)}
		},
	},
	StyleStrobeCut: {
		Name:        StyleStrobeCut,
		Description: "Sixteen strobe-lit cuts stepping toward the target",
		Steps:       64,
		Weight:      func(p float64) float64 { return staircase(p, 16) },
		Effects: func(f Frame) []Command {
			const cuts = 16
			if f.Progress >= 1 {
				return nil
			}
			cut := math.Floor(f.Progress * cuts)
			if f.Prev >= 0 && math.Floor(f.Prev*cuts) == cut {
				return nil
			}
			return []Command{{
				Topic:   events.TopicVisualStrobe,
				Payload: StrobeCommand{Intensity: 1 - cut/cuts, DurationMS: ms(f.Duration / cuts)},
			}}
		},
		Reset: func(Deck, Deck) []Command {
			return []Command{{Topic: events.TopicVisualStrobe, Payload: StrobeCommand{}}}
		},
	},
	StyleEnergySpiral: {
		Name:        StyleEnergySpiral,
		Description: "Rising pitch, spiraling high-pass and compression",
		Steps:       100,
		Weight:      curveWeight(CurveExponential),
		Effects: func(f Frame) []Command {
			p := f.Progress
			spiral := math.Sin(p*math.Pi*4) * (1 - p)
			return []Command{
				pitchCmd(f.From, p*7),
				filterCmd(f.From, FilterHighpass, 100+spiral*500+p*3000, 0),
				compressCmd(f.From, 1+p*8, -20+p*15),
			}
		},
		Reset: func(from, _ Deck) []Command {
			return []Command{pitchCmd(from, 0), filterReset(from), compressCmd(from, 1, 0)}
		},
	},
	StyleSilenceRitual: {
		Name:        StyleSilenceRitual,
		Description: "Fade into reverb, hold silence, fade the target in",
		Steps:       100,
		Weight: func(p float64) float64 {
			if p >= 0.5 {
				return 1
			}
			return 0
		},
		Effects: func(f Frame) []Command {
			p := f.Progress
			switch {
			case p <= 0.3:
				q := phase(p, 0, 0.3)
				return []Command{reverbCmd(f.From, q*0.9, 5), volumeCmd(f.From, 1-q)}
			case p < 0.5:
				if f.Prev <= 0.3 {
					return []Command{
						volumeCmd(f.From, 0),
						{Topic: events.TopicVisualBlackout, Payload: BlackoutCommand{DurationMS: ms(f.Duration / 5)}},
					}
				}
				return nil
			default:
				return []Command{volumeCmd(f.To, CurveSmooth.Apply(phase(p, 0.5, 1)))}
			}
		},
		Reset: func(from, to Deck) []Command {
			cmds := []Command{reverbCmd(from, 0, 0)}
			for _, d := range uniqueDecks(from, to) {
				cmds = append(cmds, volumeCmd(d, 1))
			}
			return cmds
		},
	},
	StyleBassTunnel: {
		Name:        StyleBassTunnel,
		Description: "Dive into a low-pass tunnel and surface on the target",
		Steps:       100,
		Weight: func(p float64) float64 {
			return phase(p, 0.5, 1)
		},
		Effects: func(f Frame) []Command {
			if f.Progress <= 0.5 {
				d := phase(f.Progress, 0, 0.5)
				return []Command{
					filterCmd(f.From, FilterLowpass, math.Max(80, 20000*(1-d*d)), 5+d*10),
					eqCmd(f.From, 1+d*2, 1, 1),
				}
			}
			e := phase(f.Progress, 0.5, 1)
			return []Command{filterCmd(f.To, FilterLowpass, 80+e*e*19920, 15*(1-e))}
		},
		Reset: func(from, to Deck) []Command {
			var cmds []Command
			for _, d := range uniqueDecks(from, to) {
				cmds = append(cmds, filterReset(d))
			}
			return append(cmds, eqCmd(from, 1, 1, 1))
		},
	},
	StyleMelodyMerge: {
		Name:        StyleMelodyMerge,
		Description: "Blend melody and drum stems with a gentle pitch bend",
		Steps:       120,
		Weight:      curveWeight(CurveSmooth),
		Effects: func(f Frame) []Command {
			c := CurveSmooth.Apply(f.Progress)
			cmds := []Command{
				stemCmd(f.From, "melody", 1-c),
				stemCmd(f.From, "drums", 1-c),
				pitchCmd(f.From, math.Sin(f.Progress*math.Pi)*2),
			}
			if f.incoming() {
				cmds = append(cmds, stemCmd(f.To, "melody", c), stemCmd(f.To, "drums", c))
			}
			return cmds
		},
		Reset: func(from, to Deck) []Command {
			cmds := []Command{pitchCmd(from, 0)}
			for _, d := range uniqueDecks(from, to) {
				cmds = append(cmds, stemCmd(d, "melody", 1), stemCmd(d, "drums", 1))
			}
			return cmds
		},
	},
}

// LookupStyle returns the named style.
func LookupStyle(name string) (Style, bool) {
	s, ok := catalogue[name]
	return s, ok
}

// StyleNames lists every style, sorted.
func StyleNames() []string {
	names := make([]string, 0, len(catalogue))
	for name := range catalogue {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Styles describes every style, sorted by name.
func Styles() []StyleInfo {
	names := StyleNames()
	out := make([]StyleInfo, 0, len(names))
	for _, name := range names {
		s := catalogue[name]
		out = append(out, StyleInfo{Name: s.Name, Description: s.Description, Steps: s.Steps})
	}
	return out
}
