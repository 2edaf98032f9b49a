/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package autopilot

import (
	"math"
	"time"

	"github.com/friendsincode/grimnir_autopilot/internal/analysis"
)

// Transition lengths picked when the timer fires.
const (
	baseTransition  = 12 * time.Second
	longTransition  = 16 * time.Second
	shortTransition = 8 * time.Second
)

// transitionDelay is how long the current track plays before the next cross.
func transitionDelay(cfg Config, current analysis.TrackAnalysis, chance func() float64) time.Duration {
	switch cfg.TransitionTiming {
	case TimingFixed:
		return scale(cfg.MinTrackDuration, cfg.TransitionPoint)
	case TimingRandom:
		span := cfg.MaxTrackDuration - cfg.MinTrackDuration
		return cfg.MinTrackDuration + scale(span, chance())
	default:
		return smartDelay(cfg, current)
	}
}

// smartDelay plays energetic tracks shorter and slow tracks longer.
func smartDelay(cfg Config, current analysis.TrackAnalysis) time.Duration {
	var d float64
	switch energy := current.Energy.Value; {
	case energy > 0.7:
		d = float64(cfg.MinTrackDuration) * 1.2
	case energy > 0.4:
		d = float64(cfg.MinTrackDuration+cfg.MaxTrackDuration) / 2
	default:
		d = float64(cfg.MaxTrackDuration) * 0.8
	}
	switch bpm := current.BPM.Value; {
	case bpm > 130:
		d *= 0.9
	case bpm < 100:
		d *= 1.1
	}
	return time.Duration(math.Round(d * cfg.TransitionPoint))
}

func scale(d time.Duration, f float64) time.Duration {
	return time.Duration(math.Round(float64(d) * f))
}

// transitionLength stretches big energy changes and tightens small ones.
func transitionLength(current, next analysis.TrackAnalysis) time.Duration {
	diff := math.Abs(current.Energy.Value - next.Energy.Value)
	switch {
	case diff > 0.3:
		return longTransition
	case diff < 0.1:
		return shortTransition
	default:
		return baseTransition
	}
}

// ritualLength is 1.5 times the plain transition length.
func ritualLength(d time.Duration) time.Duration {
	return d * 3 / 2
}
