/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package transition

import "github.com/friendsincode/grimnir_autopilot/internal/events"

// SourceTransition tags mixer commands issued by the engine.
const SourceTransition = "ai_transition"

// Command is one mixer or effect instruction produced for a frame.
type Command struct {
	Topic   events.Topic
	Payload any
}

// Filter types
const (
	FilterLowpass  = "lowpass"
	FilterHighpass = "highpass"
	FilterNotch    = "notch"
	FilterReset    = "reset"
)

type CrossfaderCommand struct {
	Value  float64 `json:"value"`
	Source string  `json:"source"`
}

type VolumeCommand struct {
	Deck  Deck    `json:"deck"`
	Value float64 `json:"value"`
}

type StemVolumeCommand struct {
	Deck  Deck    `json:"deck"`
	Stem  string  `json:"stem"`
	Value float64 `json:"value"`
}

type FilterCommand struct {
	Deck      Deck    `json:"deck"`
	Type      string  `json:"type"`
	Frequency float64 `json:"frequency,omitempty"`
	Resonance float64 `json:"resonance,omitempty"`
}

type PitchCommand struct {
	Deck  Deck    `json:"deck"`
	Shift float64 `json:"shift"`
}

type ReverbCommand struct {
	Deck      Deck    `json:"deck"`
	Intensity float64 `json:"intensity"`
	Decay     float64 `json:"decay,omitempty"`
}

type EchoCommand struct {
	Deck     Deck    `json:"deck"`
	Feedback float64 `json:"feedback"`
	Delay    float64 `json:"delay,omitempty"`
	Mix      float64 `json:"mix"`
}

type StutterCommand struct {
	Deck       Deck    `json:"deck"`
	Intensity  float64 `json:"intensity"`
	DurationMS int64   `json:"duration_ms"`
}

type CompressCommand struct {
	Deck      Deck    `json:"deck"`
	Ratio     float64 `json:"ratio"`
	Threshold float64 `json:"threshold"`
}

// EQCommand gains are linear multipliers; 1 is neutral.
type EQCommand struct {
	Deck Deck    `json:"deck"`
	Low  float64 `json:"low"`
	Mid  float64 `json:"mid"`
	High float64 `json:"high"`
}

type ImpactCommand struct {
	Deck      Deck    `json:"deck"`
	Intensity float64 `json:"intensity"`
}

type ReverseCommand struct {
	Deck   Deck `json:"deck"`
	Active bool `json:"active"`
}

type StrobeCommand struct {
	Intensity  float64 `json:"intensity"`
	DurationMS int64   `json:"duration_ms"`
}

type BlackoutCommand struct {
	DurationMS int64 `json:"duration_ms"`
}

func filterCmd(deck Deck, typ string, freq, resonance float64) Command {
	return Command{Topic: events.TopicEffectFilter, Payload: FilterCommand{Deck: deck, Type: typ, Frequency: freq, Resonance: resonance}}
}

func filterReset(deck Deck) Command {
	return Command{Topic: events.TopicEffectFilter, Payload: FilterCommand{Deck: deck, Type: FilterReset}}
}

func pitchCmd(deck Deck, shift float64) Command {
	return Command{Topic: events.TopicEffectPitch, Payload: PitchCommand{Deck: deck, Shift: shift}}
}

func reverbCmd(deck Deck, intensity, decay float64) Command {
	return Command{Topic: events.TopicEffectReverb, Payload: ReverbCommand{Deck: deck, Intensity: intensity, Decay: decay}}
}

func echoCmd(deck Deck, feedback, delay, mix float64) Command {
	return Command{Topic: events.TopicEffectEcho, Payload: EchoCommand{Deck: deck, Feedback: feedback, Delay: delay, Mix: mix}}
}

func eqCmd(deck Deck, low, mid, high float64) Command {
	return Command{Topic: events.TopicEffectEQ, Payload: EQCommand{Deck: deck, Low: low, Mid: mid, High: high}}
}

func volumeCmd(deck Deck, value float64) Command {
	return Command{Topic: events.TopicMixerVolume, Payload: VolumeCommand{Deck: deck, Value: value}}
}

func stemCmd(deck Deck, stem string, value float64) Command {
	return Command{Topic: events.TopicMixerStemVolume, Payload: StemVolumeCommand{Deck: deck, Stem: stem, Value: value}}
}

func compressCmd(deck Deck, ratio, threshold float64) Command {
	return Command{Topic: events.TopicEffectCompress, Payload: CompressCommand{Deck: deck, Ratio: ratio, Threshold: threshold}}
}

func reverseCmd(deck Deck, active bool) Command {
	return Command{Topic: events.TopicEffectReverse, Payload: ReverseCommand{Deck: deck, Active: active}}
}
