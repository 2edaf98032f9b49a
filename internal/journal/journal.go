/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package journal persists autopilot sessions and transitions from bus events.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_autopilot/internal/autopilot"
	"github.com/friendsincode/grimnir_autopilot/internal/events"
	"github.com/friendsincode/grimnir_autopilot/internal/transition"
)

// DefaultLimit caps list queries that pass no limit.
const DefaultLimit = 50

// Journal writes session and transition records. Database errors are
// returned to the bus, which logs and counts them.
type Journal struct {
	db     *gorm.DB
	logger zerolog.Logger

	mu        sync.Mutex
	sessionID string

	subs []events.Subscription
}

// New creates a journal on a migrated database.
func New(db *gorm.DB, logger zerolog.Logger) *Journal {
	return &Journal{
		db:     db,
		logger: logger.With().Str("component", "journal").Logger(),
	}
}

// Attach subscribes the journal to bus.
func (j *Journal) Attach(bus *events.Bus) {
	j.subs = append(j.subs,
		bus.Subscribe(events.TopicAutopilotStarted, j.onStarted),
		bus.Subscribe(events.TopicAutopilotStopped, j.onStopped),
		bus.Subscribe(events.TopicTransitionCompleted, j.onCompleted),
		bus.Subscribe(events.TopicTransitionRejected, j.onRejected),
	)
}

// Detach drops the journal's subscriptions.
func (j *Journal) Detach(bus *events.Bus) {
	for _, sub := range j.subs {
		bus.Unsubscribe(sub)
	}
	j.subs = nil
}

func (j *Journal) currentSession() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sessionID
}

func (j *Journal) onStarted(ev events.Event) error {
	started, err := events.Decode[autopilot.StartedEvent](ev.Payload)
	if err != nil {
		return err
	}
	cfg, err := json.Marshal(started.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	rec := SessionRecord{
		ID:        started.SessionID,
		StartedAt: started.StartedAt,
		Config:    string(cfg),
	}
	if err := j.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	j.mu.Lock()
	j.sessionID = started.SessionID
	j.mu.Unlock()
	return nil
}

func (j *Journal) onStopped(ev events.Event) error {
	stopped, err := events.Decode[autopilot.StoppedEvent](ev.Payload)
	if err != nil {
		return err
	}
	ended := ev.Timestamp
	updates := map[string]any{
		"ended_at":          ended,
		"duration_ms":       stopped.DurationMS,
		"tracks_analyzed":   stopped.Stats.TracksAnalyzed,
		"tracks_played":     stopped.Stats.TracksPlayed,
		"transitions_made":  stopped.Stats.TransitionsMade,
		"rituals_performed": stopped.Stats.RitualsPerformed,
		"avg_energy_level":  stopped.Stats.AvgEnergyLevel,
		"avg_bpm":           stopped.Stats.AvgBPM,
	}
	res := j.db.Model(&SessionRecord{}).Where("id = ?", stopped.SessionID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		j.logger.Warn().Str("session_id", stopped.SessionID).Msg("stopped session was never journaled")
	}

	j.mu.Lock()
	if j.sessionID == stopped.SessionID {
		j.sessionID = ""
	}
	j.mu.Unlock()
	return nil
}

func isRemote(payload any) bool {
	switch payload.(type) {
	case events.Remote, *events.Remote:
		return true
	}
	return false
}

func (j *Journal) onCompleted(ev events.Event) error {
	if isRemote(ev.Payload) {
		return nil
	}
	done, err := events.Decode[transition.CompletedEvent](ev.Payload)
	if err != nil {
		return err
	}
	outcome := OutcomeCompleted
	if done.FastForwarded {
		outcome = OutcomeFastForwarded
	}
	rec := TransitionRecord{
		ID:         done.ID,
		SessionID:  j.currentSession(),
		Style:      done.Style,
		Ritual:     done.Ritual,
		FromDeck:   string(done.From),
		ToDeck:     string(done.To),
		DurationMS: done.DurationMS,
		Outcome:    outcome,
		StartedAt:  done.StartedAt,
		EndedAt:    done.EndedAt,
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if err := j.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("create transition: %w", err)
	}
	return nil
}

func (j *Journal) onRejected(ev events.Event) error {
	if isRemote(ev.Payload) {
		return nil
	}
	rej, err := events.Decode[transition.RejectedEvent](ev.Payload)
	if err != nil {
		return err
	}
	rec := TransitionRecord{
		ID:        uuid.NewString(),
		SessionID: j.currentSession(),
		Style:     rej.Style,
		Ritual:    rej.Ritual,
		FromDeck:  string(rej.From),
		ToDeck:    string(rej.To),
		Outcome:   OutcomeRejected,
		StartedAt: ev.Timestamp,
		EndedAt:   ev.Timestamp,
	}
	if err := j.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("create rejected transition: %w", err)
	}
	return nil
}

// Sessions lists sessions, newest first.
func (j *Journal) Sessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var out []SessionRecord
	err := j.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// Session loads one session.
func (j *Journal) Session(ctx context.Context, id string) (SessionRecord, error) {
	var rec SessionRecord
	err := j.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	return rec, err
}

// Transitions lists a session's transitions in start order. An empty
// session id lists the most recent transitions across all sessions.
func (j *Journal) Transitions(ctx context.Context, sessionID string, limit int) ([]TransitionRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	q := j.db.WithContext(ctx).Limit(limit)
	if sessionID != "" {
		q = q.Where("session_id = ?", sessionID).Order("started_at ASC")
	} else {
		q = q.Order("started_at DESC")
	}
	var out []TransitionRecord
	err := q.Find(&out).Error
	return out, err
}

// Prune deletes sessions that ended before cutoff along with their transitions.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&SessionRecord{}).Where("ended_at IS NOT NULL AND ended_at < ?", cutoff).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("session_id IN ?", ids).Delete(&TransitionRecord{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&SessionRecord{})
		removed = res.RowsAffected
		return res.Error
	})
	return removed, err
}
