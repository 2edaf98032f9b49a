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

// AnalysisPayload is the body of ai:analysis:complete.
type AnalysisPayload struct {
	DeckID   string                 `json:"deck_id"`
	Analysis analysis.TrackAnalysis `json:"analysis"`
}

// DeckPayload is the body of audio:deck:play and audio:deck:pause.
type DeckPayload struct {
	DeckID string `json:"deck_id"`
}

type StartedEvent struct {
	SessionID string    `json:"session_id"`
	Config    Config    `json:"config"`
	StartedAt time.Time `json:"started_at"`
}

type StoppedEvent struct {
	SessionID    string         `json:"session_id"`
	Stats        Stats          `json:"stats"`
	TrackHistory []HistoryEntry `json:"track_history"`
	DurationMS   int64          `json:"duration_ms"`
}

type ScheduledEvent struct {
	DelayMS     int64           `json:"delay_ms"`
	CurrentDeck transition.Deck `json:"current_deck"`
	NextDeck    transition.Deck `json:"next_deck"`
	Timing      Timing          `json:"timing"`
}

// SwitchEvent announces a plain transition chosen by the cascade.
type SwitchEvent struct {
	Style      string          `json:"style"`
	Rule       string          `json:"rule"`
	From       transition.Deck `json:"from_deck"`
	To         transition.Deck `json:"to_deck"`
	DurationMS int64           `json:"duration_ms"`
}

// RitualEvent announces a ritual chosen by the cascade.
type RitualEvent struct {
	Ritual     string          `json:"ritual"`
	Rule       string          `json:"rule"`
	From       transition.Deck `json:"from_deck"`
	To         transition.Deck `json:"to_deck"`
	DurationMS int64           `json:"duration_ms"`
}

type EnergyUpdate struct {
	Current float64 `json:"current"`
	Average float64 `json:"average"`
	Trend   Trend   `json:"trend"`
}

// Reasons carried by next-track-needed.
const (
	ReasonDeckFreed       = "deck_freed"
	ReasonMissingAnalysis = "missing_analysis"
)

type NextTrackNeeded struct {
	Deck       transition.Deck `json:"deck"`
	Suggestion Suggestion      `json:"suggestion"`
	Reason     string          `json:"reason"`
}

// State is the controller view served over HTTP.
type State struct {
	Active  bool     `json:"active"`
	Config  Config   `json:"config"`
	Session *Session `json:"session,omitempty"`
	// NextSwitchAt is set while a transition timer is pending.
	NextSwitchAt *time.Time `json:"next_switch_at,omitempty"`
}
