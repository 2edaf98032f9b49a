/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package transition

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/grimnir_autopilot/internal/events"
	"github.com/friendsincode/grimnir_autopilot/internal/telemetry"
)

// ErrUnknownRitual is returned when a ritual key has no preset.
var ErrUnknownRitual = errors.New("unknown ritual")

// ErrInvalidPreset is returned by ValidatePresets.
var ErrInvalidPreset = errors.New("invalid ritual preset")

// Ritual keys
const (
	RitualInvocation    = "INVOCATION"
	RitualRevelation    = "REVELATION"
	RitualTransmutation = "TRANSMUTATION"
	RitualAscension     = "ASCENSION"
	RitualMeditation    = "MEDITATION"
)

// RitualPreset is a named sequence of styles run as one transition.
type RitualPreset struct {
	Key         string   `json:"key" yaml:"key"`
	Name        string   `json:"name" yaml:"name"`
	Styles      []string `json:"styles" yaml:"styles"`
	Description string   `json:"description" yaml:"description"`
	Symbol      string   `json:"symbol,omitempty" yaml:"symbol"`
}

// DefaultPresets returns the built-in rituals in ballot order.
func DefaultPresets() []RitualPreset {
	return []RitualPreset{
		{
			Key:         RitualInvocation,
			Name:        "Invocation",
			Styles:      []string{StyleGhostFade, StyleMelodyMerge},
			Description: "Soft apparition followed by a harmonic merge",
			Symbol:      "🌙",
		},
		{
			Key:         RitualRevelation,
			Name:        "Revelation",
			Styles:      []string{StyleDropEcho, StyleEnergySpiral},
			Description: "Dramatic drop and a climbing spiral",
			Symbol:      "⚡",
		},
		{
			Key:         RitualTransmutation,
			Name:        "Transmutation",
			Styles:      []string{StyleGenreWarp, StyleReverseSurge},
			Description: "Genre shift and time reversal",
			Symbol:      "🔮",
		},
		{
			Key:         RitualAscension,
			Name:        "Ascension",
			Styles:      []string{StyleEnergySpiral, StyleBassTunnel},
			Description: "Climb to the peak and pass through the low end",
			Symbol:      "🌟",
		},
		{
			Key:         RitualMeditation,
			Name:        "Meditation",
			Styles:      []string{StyleSilenceRitual, StyleGhostFade},
			Description: "Contemplative pause and a gentle return",
			Symbol:      "🧘",
		},
	}
}

type presetFile struct {
	Rituals []RitualPreset `yaml:"rituals"`
}

// LoadPresets reads and validates a YAML preset file of the form
//
//	rituals:
//	  - key: INVOCATION
//	    name: Invocation
//	    styles: [ghost_fade, melody_merge]
func LoadPresets(path string) ([]RitualPreset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ritual presets: %w", err)
	}
	var f presetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse ritual presets: %w", err)
	}
	for i := range f.Rituals {
		f.Rituals[i].Key = strings.ToUpper(strings.TrimSpace(f.Rituals[i].Key))
	}
	if err := ValidatePresets(f.Rituals); err != nil {
		return nil, err
	}
	return f.Rituals, nil
}

// ValidatePresets checks keys are unique and every preset names at least two
// known styles.
func ValidatePresets(presets []RitualPreset) error {
	if len(presets) == 0 {
		return fmt.Errorf("%w: no presets", ErrInvalidPreset)
	}
	seen := make(map[string]bool, len(presets))
	for _, p := range presets {
		if p.Key == "" {
			return fmt.Errorf("%w: empty key", ErrInvalidPreset)
		}
		if seen[p.Key] {
			return fmt.Errorf("%w: duplicate key %s", ErrInvalidPreset, p.Key)
		}
		seen[p.Key] = true
		if len(p.Styles) < 2 {
			return fmt.Errorf("%w: %s needs at least two styles", ErrInvalidPreset, p.Key)
		}
		for _, s := range p.Styles {
			if _, ok := LookupStyle(s); !ok {
				return fmt.Errorf("%w: %s uses unknown style %q", ErrInvalidPreset, p.Key, s)
			}
		}
	}
	return nil
}

// Presets returns the configured presets in order.
func (e *Engine) Presets() []RitualPreset {
	e.presetMu.RLock()
	defer e.presetMu.RUnlock()
	out := make([]RitualPreset, len(e.presets))
	for i, p := range e.presets {
		p.Styles = append([]string(nil), p.Styles...)
		out[i] = p
	}
	return out
}

// SetPresets replaces the presets after validating them.
func (e *Engine) SetPresets(presets []RitualPreset) error {
	if err := ValidatePresets(presets); err != nil {
		return err
	}
	e.presetMu.Lock()
	e.presets = append([]RitualPreset(nil), presets...)
	e.presetMu.Unlock()
	return nil
}

// Preset looks up a ritual by key, case-insensitively.
func (e *Engine) Preset(key string) (RitualPreset, error) {
	key = strings.ToUpper(strings.TrimSpace(key))
	for _, p := range e.Presets() {
		if p.Key == key {
			return p, nil
		}
	}
	return RitualPreset{}, fmt.Errorf("%w: %q", ErrUnknownRitual, key)
}

// RitualStartedEvent is published before the first style of a ritual.
type RitualStartedEvent struct {
	Ritual     string    `json:"ritual"`
	Name       string    `json:"name"`
	Symbol     string    `json:"symbol,omitempty"`
	Styles     []string  `json:"styles"`
	From       Deck      `json:"from_deck"`
	To         Deck      `json:"to_deck"`
	DurationMS int64     `json:"duration_ms"`
	StartedAt  time.Time `json:"started_at"`
}

// RitualCompletedEvent is published after the last style of a ritual.
type RitualCompletedEvent struct {
	RitualStartedEvent
	EndedAt time.Time `json:"ended_at"`
}

// RitualResult reports a finished ritual.
type RitualResult struct {
	Ritual   string
	Fallback bool
	Steps    []Result
}

// Duration is the sum of the executed slices.
func (r RitualResult) Duration() time.Duration {
	var total time.Duration
	for _, s := range r.Steps {
		total += s.Duration
	}
	return total
}

// splitDuration divides total into n slices; the last absorbs the remainder.
func splitDuration(total time.Duration, n int) []time.Duration {
	if n <= 0 {
		return nil
	}
	base := total / time.Duration(n)
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = base
	}
	out[n-1] = total - base*time.Duration(n-1)
	return out
}

// RunRitual runs the named preset as one logical transition holding the
// engine for the whole sequence. Every style but the last is a same-deck
// pass on from; the last crosses to to. An unknown name falls back to a
// crossfade over total.
func (e *Engine) RunRitual(ctx context.Context, name string, from, to Deck, total time.Duration) (RitualResult, error) {
	preset, err := e.Preset(name)
	if err != nil {
		e.logger.Warn().Str("ritual", name).Msg("unknown ritual, falling back to crossfade")
		res, runErr := e.Run(ctx, Request{Style: StyleCrossfade, From: from, To: to, Duration: total})
		if runErr != nil {
			return RitualResult{}, runErr
		}
		return RitualResult{Ritual: name, Fallback: true, Steps: []Result{res}}, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "transition", "transition.RunRitual")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{
		"ritual":    preset.Key,
		"from_deck": string(from),
		"to_deck":   string(to),
		"duration":  total,
	})

	if err := validateDecks(from, to); err != nil {
		telemetry.RecordError(span, err)
		return RitualResult{}, err
	}
	release, activeID, ok := e.acquire()
	if !ok {
		err := e.reject(RejectedEvent{
			Style:    preset.Styles[0],
			From:     from,
			To:       to,
			Ritual:   preset.Key,
			ActiveID: activeID,
		})
		telemetry.RecordError(span, err)
		return RitualResult{}, err
	}
	defer release()

	if total < 0 {
		total = 0
	}
	started := RitualStartedEvent{
		Ritual:     preset.Key,
		Name:       preset.Name,
		Symbol:     preset.Symbol,
		Styles:     preset.Styles,
		From:       from,
		To:         to,
		DurationMS: total.Milliseconds(),
		StartedAt:  e.now(),
	}
	e.logger.Info().
		Str("ritual", preset.Key).
		Strs("styles", preset.Styles).
		Dur("duration", total).
		Msg("ritual started")
	e.bus.Publish(events.TopicRitualStarted, started)

	slices := splitDuration(total, len(preset.Styles))
	result := RitualResult{Ritual: preset.Key}
	for i, style := range preset.Styles {
		target := from
		if i == len(preset.Styles)-1 {
			target = to
		}
		res := e.execute(ctx, Request{Style: style, From: from, To: target, Duration: slices[i]}, preset.Key)
		result.Steps = append(result.Steps, res)
	}

	e.bus.Publish(events.TopicRitualCompleted, RitualCompletedEvent{RitualStartedEvent: started, EndedAt: e.now()})
	telemetry.RitualsTotal.WithLabelValues(preset.Key, "completed").Inc()
	e.logger.Info().Str("ritual", preset.Key).Msg("ritual completed")
	return result, nil
}
