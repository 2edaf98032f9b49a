/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package journal

import (
	"time"

	"gorm.io/gorm"
)

// Transition outcomes.
const (
	OutcomeCompleted     = "completed"
	OutcomeFastForwarded = "fast_forwarded"
	OutcomeRejected      = "rejected"
)

// SessionRecord is one autopilot session.
type SessionRecord struct {
	ID               string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	StartedAt        time.Time  `gorm:"index" json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	DurationMS       int64      `json:"duration_ms"`
	TracksAnalyzed   int        `json:"tracks_analyzed"`
	TracksPlayed     int        `json:"tracks_played"`
	TransitionsMade  int        `json:"transitions_made"`
	RitualsPerformed int        `json:"rituals_performed"`
	AvgEnergyLevel   float64    `json:"avg_energy_level"`
	AvgBPM           float64    `json:"avg_bpm"`
	Config           string     `gorm:"type:text" json:"config"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName keeps the table name stable.
func (SessionRecord) TableName() string { return "autopilot_sessions" }

// TransitionRecord is one finished or rejected transition.
type TransitionRecord struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	SessionID  string    `gorm:"type:varchar(36);index" json:"session_id,omitempty"`
	Style      string    `gorm:"type:varchar(32)" json:"style"`
	Ritual     string    `gorm:"type:varchar(32)" json:"ritual,omitempty"`
	FromDeck   string    `gorm:"type:varchar(1)" json:"from_deck"`
	ToDeck     string    `gorm:"type:varchar(1)" json:"to_deck"`
	DurationMS int64     `json:"duration_ms"`
	Outcome    string    `gorm:"type:varchar(16);index" json:"outcome"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func (TransitionRecord) TableName() string { return "autopilot_transitions" }

// Migrate creates or updates the journal tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&SessionRecord{}, &TransitionRecord{})
}
