/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package autopilot

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/friendsincode/grimnir_autopilot/internal/analysis"
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("invalid autopilot config")

// Timing selects how the delay before the next transition is computed.
type Timing string

const (
	TimingSmart  Timing = "smart"
	TimingFixed  Timing = "fixed"
	TimingRandom Timing = "random"
)

// Config controls autopilot decisions. It is read at decision time.
type Config struct {
	AutoSwitchEnabled        bool
	TransitionTiming         Timing
	MinTrackDuration         time.Duration
	MaxTrackDuration         time.Duration
	TransitionPoint          float64
	EnergyFlowStrategy       analysis.FlowStrategy
	BPMTolerance             float64
	KeyCompatibilityRequired bool
	EnergySampleInterval     time.Duration
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		AutoSwitchEnabled:        true,
		TransitionTiming:         TimingSmart,
		MinTrackDuration:         120 * time.Second,
		MaxTrackDuration:         300 * time.Second,
		TransitionPoint:          0.75,
		EnergyFlowStrategy:       analysis.FlowAdaptive,
		BPMTolerance:             10,
		KeyCompatibilityRequired: false,
		EnergySampleInterval:     10 * time.Second,
	}
}

// Validate checks every field.
func (c Config) Validate() error {
	switch c.TransitionTiming {
	case TimingSmart, TimingFixed, TimingRandom:
	default:
		return fmt.Errorf("%w: transition timing %q", ErrInvalidConfig, c.TransitionTiming)
	}
	if c.MinTrackDuration <= 0 {
		return fmt.Errorf("%w: min track duration must be positive", ErrInvalidConfig)
	}
	if c.MaxTrackDuration < c.MinTrackDuration {
		return fmt.Errorf("%w: max track duration %s below min %s", ErrInvalidConfig, c.MaxTrackDuration, c.MinTrackDuration)
	}
	if c.TransitionPoint <= 0 || c.TransitionPoint > 1 {
		return fmt.Errorf("%w: transition point %.2f outside (0, 1]", ErrInvalidConfig, c.TransitionPoint)
	}
	if _, err := analysis.ParseFlowStrategy(string(c.EnergyFlowStrategy)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.BPMTolerance < 0 {
		return fmt.Errorf("%w: bpm tolerance must not be negative", ErrInvalidConfig)
	}
	if c.EnergySampleInterval <= 0 {
		return fmt.Errorf("%w: energy sample interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// strategy is the evaluator view of the config.
func (c Config) strategy(sessionAvg float64) analysis.Strategy {
	return analysis.Strategy{
		BPMTolerance:             c.BPMTolerance,
		KeyCompatibilityRequired: c.KeyCompatibilityRequired,
		EnergyFlow:               c.EnergyFlowStrategy,
		SessionAvgEnergy:         sessionAvg,
	}
}

type configJSON struct {
	AutoSwitchEnabled        bool                  `json:"auto_switch_enabled"`
	TransitionTiming         Timing                `json:"transition_timing"`
	MinTrackDurationMS       int64                 `json:"min_track_duration_ms"`
	MaxTrackDurationMS       int64                 `json:"max_track_duration_ms"`
	TransitionPoint          float64               `json:"transition_point"`
	EnergyFlowStrategy       analysis.FlowStrategy `json:"energy_flow_strategy"`
	BPMTolerance             float64               `json:"bpm_tolerance"`
	KeyCompatibilityRequired bool                  `json:"key_compatibility_required"`
	EnergySampleIntervalMS   int64                 `json:"energy_sample_interval_ms"`
}

// MarshalJSON writes durations as milliseconds.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(configJSON{
		AutoSwitchEnabled:        c.AutoSwitchEnabled,
		TransitionTiming:         c.TransitionTiming,
		MinTrackDurationMS:       c.MinTrackDuration.Milliseconds(),
		MaxTrackDurationMS:       c.MaxTrackDuration.Milliseconds(),
		TransitionPoint:          c.TransitionPoint,
		EnergyFlowStrategy:       c.EnergyFlowStrategy,
		BPMTolerance:             c.BPMTolerance,
		KeyCompatibilityRequired: c.KeyCompatibilityRequired,
		EnergySampleIntervalMS:   c.EnergySampleInterval.Milliseconds(),
	})
}

// UnmarshalJSON reads the MarshalJSON shape.
func (c *Config) UnmarshalJSON(data []byte) error {
	var v configJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = Config{
		AutoSwitchEnabled:        v.AutoSwitchEnabled,
		TransitionTiming:         v.TransitionTiming,
		MinTrackDuration:         time.Duration(v.MinTrackDurationMS) * time.Millisecond,
		MaxTrackDuration:         time.Duration(v.MaxTrackDurationMS) * time.Millisecond,
		TransitionPoint:          v.TransitionPoint,
		EnergyFlowStrategy:       v.EnergyFlowStrategy,
		BPMTolerance:             v.BPMTolerance,
		KeyCompatibilityRequired: v.KeyCompatibilityRequired,
		EnergySampleInterval:     time.Duration(v.EnergySampleIntervalMS) * time.Millisecond,
	}
	return nil
}

// ConfigPatch changes the fields that are set.
type ConfigPatch struct {
	AutoSwitchEnabled        *bool                  `json:"auto_switch_enabled,omitempty"`
	TransitionTiming         *Timing                `json:"transition_timing,omitempty"`
	MinTrackDurationMS       *int64                 `json:"min_track_duration_ms,omitempty"`
	MaxTrackDurationMS       *int64                 `json:"max_track_duration_ms,omitempty"`
	TransitionPoint          *float64               `json:"transition_point,omitempty"`
	EnergyFlowStrategy       *analysis.FlowStrategy `json:"energy_flow_strategy,omitempty"`
	BPMTolerance             *float64               `json:"bpm_tolerance,omitempty"`
	KeyCompatibilityRequired *bool                  `json:"key_compatibility_required,omitempty"`
	EnergySampleIntervalMS   *int64                 `json:"energy_sample_interval_ms,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ConfigPatch) Empty() bool {
	return p == ConfigPatch{}
}

// Apply returns c with the patch merged in. The result is not validated.
func (c Config) Apply(p ConfigPatch) Config {
	if p.AutoSwitchEnabled != nil {
		c.AutoSwitchEnabled = *p.AutoSwitchEnabled
	}
	if p.TransitionTiming != nil {
		c.TransitionTiming = *p.TransitionTiming
	}
	if p.MinTrackDurationMS != nil {
		c.MinTrackDuration = time.Duration(*p.MinTrackDurationMS) * time.Millisecond
	}
	if p.MaxTrackDurationMS != nil {
		c.MaxTrackDuration = time.Duration(*p.MaxTrackDurationMS) * time.Millisecond
	}
	if p.TransitionPoint != nil {
		c.TransitionPoint = *p.TransitionPoint
	}
	if p.EnergyFlowStrategy != nil {
		c.EnergyFlowStrategy = *p.EnergyFlowStrategy
	}
	if p.BPMTolerance != nil {
		c.BPMTolerance = *p.BPMTolerance
	}
	if p.KeyCompatibilityRequired != nil {
		c.KeyCompatibilityRequired = *p.KeyCompatibilityRequired
	}
	if p.EnergySampleIntervalMS != nil {
		c.EnergySampleInterval = time.Duration(*p.EnergySampleIntervalMS) * time.Millisecond
	}
	return c
}
