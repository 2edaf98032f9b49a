/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package transition

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_autopilot/internal/events"
	"github.com/friendsincode/grimnir_autopilot/internal/telemetry"
)

// VoteCount is one option of a tally.
type VoteCount struct {
	Ritual string `json:"ritual"`
	Votes  int    `json:"votes"`
}

// BallotResult is published when a ballot closes.
type BallotResult struct {
	Winner     string      `json:"winner"`
	Tally      []VoteCount `json:"tally"`
	TotalVotes int         `json:"total_votes"`
	ClosedAt   time.Time   `json:"closed_at"`
}

// Ballot collects crowd votes for the next ritual. Each voter holds one vote;
// voting again replaces it.
type Ballot struct {
	engine *Engine
	bus    *events.Bus
	logger zerolog.Logger

	mu    sync.Mutex
	votes map[string]string
}

// NewBallot opens an empty ballot over the engine's presets.
func NewBallot(engine *Engine, bus *events.Bus, logger zerolog.Logger) *Ballot {
	return &Ballot{
		engine: engine,
		bus:    bus,
		logger: logger.With().Str("component", "ballot").Logger(),
		votes:  make(map[string]string),
	}
}

// Cast records voter's choice.
func (b *Ballot) Cast(voter, ritual string) error {
	voter = strings.TrimSpace(voter)
	if voter == "" {
		return fmt.Errorf("cast vote: empty voter")
	}
	preset, err := b.engine.Preset(ritual)
	if err != nil {
		return fmt.Errorf("cast vote: %w", err)
	}
	b.mu.Lock()
	b.votes[voter] = preset.Key
	b.mu.Unlock()
	telemetry.BallotVotes.WithLabelValues(preset.Key).Inc()
	return nil
}

// Tally counts votes per preset in preset order.
func (b *Ballot) Tally() []VoteCount {
	presets := b.engine.Presets()
	counts := make(map[string]int, len(presets))
	b.mu.Lock()
	for _, choice := range b.votes {
		counts[choice]++
	}
	b.mu.Unlock()

	out := make([]VoteCount, 0, len(presets))
	for _, p := range presets {
		out = append(out, VoteCount{Ritual: p.Key, Votes: counts[p.Key]})
	}
	return out
}

// Winner picks the first option whose count beats every earlier one, so ties
// go to the earlier preset and an empty ballot selects the first preset.
func Winner(tally []VoteCount) string {
	if len(tally) == 0 {
		return ""
	}
	best := tally[0]
	for _, vc := range tally[1:] {
		if vc.Votes > best.Votes {
			best = vc
		}
	}
	return best.Ritual
}

// Finalize closes the ballot, clears the votes and triggers the winning ritual.
func (b *Ballot) Finalize(from, to Deck, duration time.Duration) BallotResult {
	tally := b.Tally()
	b.mu.Lock()
	total := len(b.votes)
	b.votes = make(map[string]string)
	b.mu.Unlock()

	res := BallotResult{
		Winner:     Winner(tally),
		Tally:      tally,
		TotalVotes: total,
		ClosedAt:   b.engine.now(),
	}
	b.logger.Info().Str("winner", res.Winner).Int("votes", total).Msg("ballot finalized")
	b.bus.Publish(events.TopicBallotFinalized, res)
	b.bus.Publish(events.TopicRitualTrigger, RitualTriggerPayload{
		Ritual:     res.Winner,
		FromDeck:   string(from),
		ToDeck:     string(to),
		DurationMS: duration.Milliseconds(),
	})
	return res
}
