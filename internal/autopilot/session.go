/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package autopilot

import (
	"time"

	"github.com/friendsincode/grimnir_autopilot/internal/analysis"
	"github.com/friendsincode/grimnir_autopilot/internal/transition"
)

// HistoryEntry is one analyzed track. Entries are only ever appended; the
// played mark is the single field that changes afterwards.
type HistoryEntry struct {
	DeckID        transition.Deck        `json:"deck_id"`
	Analysis      analysis.TrackAnalysis `json:"analysis"`
	Timestamp     time.Time              `json:"timestamp"`
	Played        bool                   `json:"played"`
	PlayStartedAt *time.Time             `json:"play_started_at,omitempty"`
}

// Stats are cumulative per session.
type Stats struct {
	TracksAnalyzed    int     `json:"tracks_analyzed"`
	TracksPlayed      int     `json:"tracks_played"`
	TransitionsMade   int     `json:"transitions_made"`
	RitualsPerformed  int     `json:"rituals_performed"`
	AvgEnergyLevel    float64 `json:"avg_energy_level"`
	AvgBPM            float64 `json:"avg_bpm"`
	SessionDurationMS int64   `json:"session_duration_ms"`
}

// Session is the state of one autopilot run.
type Session struct {
	ID           string          `json:"id"`
	CurrentDeck  transition.Deck `json:"current_deck"`
	NextDeck     transition.Deck `json:"next_deck"`
	StartedAt    time.Time       `json:"started_at"`
	TrackHistory []HistoryEntry  `json:"track_history"`
	Stats        Stats           `json:"stats"`
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:          id,
		CurrentDeck: transition.DeckA,
		NextDeck:    transition.DeckB,
		StartedAt:   now,
	}
}

func (s *Session) addAnalysis(deck transition.Deck, a analysis.TrackAnalysis, now time.Time) {
	s.TrackHistory = append(s.TrackHistory, HistoryEntry{DeckID: deck, Analysis: a, Timestamp: now})
	s.Stats.TracksAnalyzed++
	n := float64(s.Stats.TracksAnalyzed)
	s.Stats.AvgEnergyLevel += (a.Energy.Value - s.Stats.AvgEnergyLevel) / n
	s.Stats.AvgBPM += (a.BPM.Value - s.Stats.AvgBPM) / n
}

// play makes deck current and marks its latest unplayed track played.
func (s *Session) play(deck transition.Deck, now time.Time) {
	s.CurrentDeck = deck
	s.NextDeck = deck.Other()
	for i := len(s.TrackHistory) - 1; i >= 0; i-- {
		e := &s.TrackHistory[i]
		if e.DeckID == deck && !e.Played {
			e.Played = true
			at := now
			e.PlayStartedAt = &at
			s.Stats.TracksPlayed++
			return
		}
	}
}

func (s *Session) swap() {
	s.CurrentDeck, s.NextDeck = s.NextDeck, s.CurrentDeck
}

// currentAnalysis is the latest played track on the current deck.
func (s *Session) currentAnalysis() (analysis.TrackAnalysis, bool) {
	return s.latest(s.CurrentDeck, true)
}

// nextAnalysis is the latest unplayed track staged on the next deck.
func (s *Session) nextAnalysis() (analysis.TrackAnalysis, bool) {
	return s.latest(s.NextDeck, false)
}

func (s *Session) latest(deck transition.Deck, played bool) (analysis.TrackAnalysis, bool) {
	for i := len(s.TrackHistory) - 1; i >= 0; i-- {
		e := s.TrackHistory[i]
		if e.DeckID == deck && e.Played == played {
			return e.Analysis, true
		}
	}
	return analysis.TrackAnalysis{}, false
}

func (s *Session) elapsed(now time.Time) time.Duration {
	return now.Sub(s.StartedAt)
}

func (s *Session) snapshot() Session {
	cp := *s
	cp.TrackHistory = make([]HistoryEntry, len(s.TrackHistory))
	copy(cp.TrackHistory, s.TrackHistory)
	return cp
}

// Trend labels the energy direction over recent tracks.
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// energyTrend compares the first and last of the last three analyses.
func energyTrend(history []HistoryEntry) Trend {
	if len(history) < 2 {
		return TrendStable
	}
	recent := history
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	first := recent[0].Analysis.Energy.Value
	last := recent[len(recent)-1].Analysis.Energy.Value
	change := (last - first) / float64(len(recent))
	switch {
	case change > 0.1:
		return TrendRising
	case change < -0.1:
		return TrendFalling
	default:
		return TrendStable
	}
}

// Suggestion describes the track the next deck should receive.
type Suggestion struct {
	BPMRange [2]float64     `json:"bpm_range"`
	Energy   analysis.Level `json:"energy"`
	Key      string         `json:"key"`
	Genre    string         `json:"genre,omitempty"`
}

func suggest(current analysis.TrackAnalysis, ok bool, cfg Config) Suggestion {
	if !ok {
		return Suggestion{BPMRange: [2]float64{120, 130}, Energy: analysis.LevelMedium, Key: "any"}
	}
	target := current.Energy.Value
	switch cfg.EnergyFlowStrategy {
	case analysis.FlowBuild:
		target += 0.1
	case analysis.FlowDecline:
		target -= 0.1
	}
	bpm := current.BPM.Value
	return Suggestion{
		BPMRange: [2]float64{bpm - cfg.BPMTolerance, bpm + cfg.BPMTolerance},
		Energy:   analysis.Tier(target),
		Key:      current.Key.Value,
		Genre:    current.Genre.Value,
	}
}
