/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package autopilot

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_autopilot/internal/analysis"
	"github.com/friendsincode/grimnir_autopilot/internal/events"
	"github.com/friendsincode/grimnir_autopilot/internal/telemetry"
	"github.com/friendsincode/grimnir_autopilot/internal/transition"
)

// ErrNotActive is returned by operations that need a running session.
var ErrNotActive = errors.New("autopilot not active")

// Runner executes transitions. *transition.Engine satisfies it.
type Runner interface {
	Run(ctx context.Context, req transition.Request) (transition.Result, error)
	RunRitual(ctx context.Context, name string, from, to transition.Deck, total time.Duration) (transition.RitualResult, error)
}

// Options tune a Controller. Zero values use the system clock, math/rand
// and DefaultConfig.
type Options struct {
	Clock  Clock
	Chance func() float64
	Config *Config
	// Context is handed to the runner. Stopping the controller never
	// cancels it, so a running transition always finishes.
	Context context.Context
}

type outbound struct {
	topic   events.Topic
	payload any
}

// Controller decides when and how the decks cross.
type Controller struct {
	bus    *events.Bus
	runner Runner
	logger zerolog.Logger
	clock  Clock
	chance func() float64
	ctx    context.Context

	mu        sync.Mutex
	cfg       Config
	active    bool
	session   *Session
	timer     Timer
	timerGen  uint64
	nextAt    *time.Time
	sampler   Timer
	samplerGn uint64
	draining  bool

	// inflight counts timer callbacks that are running.
	inflight sync.WaitGroup

	subs []events.Subscription
}

// NewController wires a controller to bus. It starts stopped.
func NewController(bus *events.Bus, runner Runner, logger zerolog.Logger, opts Options) (*Controller, error) {
	cfg := DefaultConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		bus:    bus,
		runner: runner,
		logger: logger.With().Str("component", "autopilot").Logger(),
		clock:  opts.Clock,
		chance: opts.Chance,
		ctx:    opts.Context,
		cfg:    cfg,
	}
	if c.clock == nil {
		c.clock = SystemClock{}
	}
	if c.chance == nil {
		c.chance = rand.Float64
	}
	if c.ctx == nil {
		c.ctx = context.Background()
	}

	c.subs = []events.Subscription{
		bus.Subscribe(events.TopicAnalysisComplete, c.onAnalysis),
		bus.Subscribe(events.TopicDeckPlay, c.onPlay),
		bus.Subscribe(events.TopicDeckPause, c.onPause),
		bus.Subscribe(events.TopicTransitionCompleted, c.onTransitionCompleted),
		bus.Subscribe(events.TopicRitualCompleted, c.onRitualCompleted),
	}
	return c, nil
}

// Close stops the controller, waits for running timer callbacks and drops
// its subscriptions.
func (c *Controller) Close() {
	c.Stop()
	c.Drain()
	for _, sub := range c.subs {
		c.bus.Unsubscribe(sub)
	}
	c.subs = nil
}

// Drain refuses further timer callbacks and waits for the running ones,
// including any transition they started, to return.
func (c *Controller) Drain() {
	c.mu.Lock()
	c.draining = true
	c.mu.Unlock()
	c.inflight.Wait()
}

// tracked wraps a timer callback so Drain can wait for it.
func (c *Controller) tracked(f func()) func() {
	return func() {
		c.mu.Lock()
		if c.draining {
			c.mu.Unlock()
			return
		}
		c.inflight.Add(1)
		c.mu.Unlock()
		defer c.inflight.Done()
		f()
	}
}

func (c *Controller) emit(out []outbound) {
	for _, o := range out {
		c.bus.Publish(o.topic, o.payload)
	}
}

// Start opens a new session. It reports false when already active.
func (c *Controller) Start() bool {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return false
	}
	now := c.clock.Now()
	c.session = newSession(uuid.NewString(), now)
	c.active = true
	c.startSamplerLocked()
	ev := StartedEvent{SessionID: c.session.ID, Config: c.cfg, StartedAt: now}
	c.mu.Unlock()

	telemetry.AutopilotActive.Set(1)
	c.logger.Info().Str("session_id", ev.SessionID).Msg("autopilot started")
	c.bus.Publish(events.TopicAutopilotStarted, ev)
	return true
}

// Stop ends the session. It reports false when not active.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return false
	}
	c.cancelTimerLocked()
	c.stopSamplerLocked()
	s := c.session
	s.Stats.SessionDurationMS = s.elapsed(c.clock.Now()).Milliseconds()
	snap := s.snapshot()
	c.session = nil
	c.active = false
	c.mu.Unlock()

	telemetry.AutopilotActive.Set(0)
	c.logger.Info().
		Str("session_id", snap.ID).
		Int("tracks_played", snap.Stats.TracksPlayed).
		Int("transitions", snap.Stats.TransitionsMade).
		Msg("autopilot stopped")
	c.bus.Publish(events.TopicAutopilotStopped, StoppedEvent{
		SessionID:    snap.ID,
		Stats:        snap.Stats,
		TrackHistory: snap.TrackHistory,
		DurationMS:   snap.Stats.SessionDurationMS,
	})
	return true
}

// Active reports whether a session is running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Config returns the current settings.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// UpdateConfig merges p, validates the result and applies it as a whole.
// A rejected patch leaves the config untouched.
func (c *Controller) UpdateConfig(p ConfigPatch) (Config, error) {
	c.mu.Lock()
	next := c.cfg.Apply(p)
	if err := next.Validate(); err != nil {
		cur := c.cfg
		c.mu.Unlock()
		return cur, err
	}
	resample := c.active && next.EnergySampleInterval != c.cfg.EnergySampleInterval
	c.cfg = next
	if resample {
		c.stopSamplerLocked()
		c.startSamplerLocked()
	}
	if !next.AutoSwitchEnabled {
		c.cancelTimerLocked()
	}
	c.mu.Unlock()

	c.logger.Info().Msg("autopilot config updated")
	c.bus.Publish(events.TopicConfigUpdated, next)
	return next, nil
}

// State returns a snapshot for callers outside the bus.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{Active: c.active, Config: c.cfg}
	if c.session != nil {
		snap := c.session.snapshot()
		snap.Stats.SessionDurationMS = c.session.elapsed(c.clock.Now()).Milliseconds()
		st.Session = &snap
	}
	if c.nextAt != nil {
		at := *c.nextAt
		st.NextSwitchAt = &at
	}
	return st
}

// SwitchNow runs the transition decision immediately instead of waiting
// for the timer.
func (c *Controller) SwitchNow() error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrNotActive
	}
	c.cancelTimerLocked()
	gen := c.timerGen
	c.mu.Unlock()
	c.fire(gen)
	return nil
}

func (c *Controller) onAnalysis(ev events.Event) error {
	p, err := events.Decode[AnalysisPayload](ev.Payload)
	if err != nil {
		return fmt.Errorf("decode analysis: %w", err)
	}
	deck, err := transition.ParseDeck(p.DeckID)
	if err != nil {
		return err
	}
	if err := p.Analysis.Validate(); err != nil {
		return err
	}
	a := p.Analysis.WithLevel()

	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil
	}
	s := c.session
	s.addAnalysis(deck, a, c.clock.Now())
	var (
		score    analysis.Compatibility
		genreSim float64
		scored   bool
	)
	if deck == s.NextDeck {
		if cur, ok := s.currentAnalysis(); ok {
			score = analysis.ScoreCompatibility(cur, a, c.cfg.strategy(s.Stats.AvgEnergyLevel))
			genreSim = analysis.GenreSimilarity(cur.Genre.Value, a.Genre.Value)
			scored = true
		}
	}
	c.mu.Unlock()

	c.logger.Debug().Str("deck", string(deck)).Float64("bpm", a.BPM.Value).Float64("energy", a.Energy.Value).Msg("track analyzed")
	if scored {
		c.logger.Info().
			Bool("compatible", score.Compatible).
			Float64("bpm_diff", score.BPMDiff).
			Float64("energy_diff", score.EnergyDiff).
			Bool("key_match", score.KeyMatch).
			Float64("genre_similarity", genreSim).
			Msg("next track compatibility")
	}
	return nil
}

func (c *Controller) onPlay(ev events.Event) error {
	p, err := events.Decode[DeckPayload](ev.Payload)
	if err != nil {
		return fmt.Errorf("decode deck play: %w", err)
	}
	deck, err := transition.ParseDeck(p.DeckID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil
	}
	c.session.play(deck, c.clock.Now())
	out := c.scheduleLocked()
	c.mu.Unlock()

	c.emit(out)
	return nil
}

func (c *Controller) onPause(ev events.Event) error {
	p, err := events.Decode[DeckPayload](ev.Payload)
	if err != nil {
		return fmt.Errorf("decode deck pause: %w", err)
	}
	deck, err := transition.ParseDeck(p.DeckID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active && deck == c.session.CurrentDeck {
		c.cancelTimerLocked()
		c.logger.Debug().Str("deck", string(deck)).Msg("current deck paused, transition timer cancelled")
	}
	return nil
}

// scheduleLocked replaces any pending timer with one for the current track.
func (c *Controller) scheduleLocked() []outbound {
	c.cancelTimerLocked()
	if !c.cfg.AutoSwitchEnabled {
		return nil
	}
	s := c.session
	cur, ok := s.currentAnalysis()
	if !ok {
		c.logger.Info().Str("deck", string(s.CurrentDeck)).Msg("no analysis for current track, transition not scheduled")
		return nil
	}

	delay := transitionDelay(c.cfg, cur, c.chance)
	gen := c.timerGen
	c.timer = c.clock.AfterFunc(delay, c.tracked(func() { c.fire(gen) }))
	at := c.clock.Now().Add(delay)
	c.nextAt = &at

	c.logger.Debug().Dur("delay", delay).Str("timing", string(c.cfg.TransitionTiming)).Msg("transition scheduled")
	return []outbound{{events.TopicTransitionScheduled, ScheduledEvent{
		DelayMS:     delay.Milliseconds(),
		CurrentDeck: s.CurrentDeck,
		NextDeck:    s.NextDeck,
		Timing:      c.cfg.TransitionTiming,
	}}}
}

// cancelTimerLocked stops the pending timer and invalidates its generation
// so a callback already in flight does nothing.
func (c *Controller) cancelTimerLocked() {
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.nextAt = nil
}

func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	if !c.active || gen != c.timerGen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.nextAt = nil
	s := c.session
	cfg := c.cfg
	from, to := s.CurrentDeck, s.NextDeck
	cur, haveCur := s.currentAnalysis()
	next, haveNext := s.nextAnalysis()
	elapsed := s.elapsed(c.clock.Now())
	avg := s.Stats.AvgEnergyLevel
	c.mu.Unlock()

	if !haveCur || !haveNext {
		deck := to
		if !haveCur {
			deck = from
		}
		telemetry.AutopilotSkippedCycles.WithLabelValues(ReasonMissingAnalysis).Inc()
		c.logger.Info().
			Bool("current_analysis", haveCur).
			Bool("next_analysis", haveNext).
			Msg("missing analysis, skipping transition")
		c.bus.Publish(events.TopicNextTrackNeeded, NextTrackNeeded{
			Deck:       deck,
			Suggestion: suggest(cur, haveCur, cfg),
			Reason:     ReasonMissingAnalysis,
		})
		return
	}

	d := SelectTransition(RuleInput{
		Current:   cur,
		Next:      next,
		Elapsed:   elapsed,
		AvgEnergy: avg,
		Chance:    c.chance,
	})
	length := transitionLength(cur, next)
	log := c.logger.With().Str("rule", d.Rule).Str("from", string(from)).Str("to", string(to)).Logger()

	var err error
	if d.IsRitual() {
		length = ritualLength(length)
		telemetry.AutopilotDecisions.WithLabelValues("ritual", d.Ritual).Inc()
		log.Info().Str("ritual", d.Ritual).Dur("duration", length).Msg("executing ritual")
		c.bus.Publish(events.TopicRitualExecuted, RitualEvent{
			Ritual:     d.Ritual,
			Rule:       d.Rule,
			From:       from,
			To:         to,
			DurationMS: length.Milliseconds(),
		})
		_, err = c.runner.RunRitual(c.ctx, d.Ritual, from, to, length)
	} else {
		telemetry.AutopilotDecisions.WithLabelValues("style", d.Style).Inc()
		log.Info().Str("style", d.Style).Dur("duration", length).Msg("executing switch")
		c.bus.Publish(events.TopicSwitchExecuted, SwitchEvent{
			Style:      d.Style,
			Rule:       d.Rule,
			From:       from,
			To:         to,
			DurationMS: length.Milliseconds(),
		})
		_, err = c.runner.Run(c.ctx, transition.Request{Style: d.Style, From: from, To: to, Duration: length})
	}

	switch {
	case err == nil:
	case errors.Is(err, transition.ErrTransitionInProgress):
		telemetry.AutopilotSkippedCycles.WithLabelValues("busy").Inc()
		log.Info().Msg("transition engine busy, cycle skipped")
	default:
		log.Warn().Err(err).Msg("transition failed")
	}
}

func (c *Controller) onTransitionCompleted(ev events.Event) error {
	if isRemote(ev.Payload) {
		return nil
	}
	done, err := events.Decode[transition.CompletedEvent](ev.Payload)
	if err != nil {
		return fmt.Errorf("decode transition completed: %w", err)
	}
	// Ritual passes report through ritual:completed.
	if done.Ritual != "" || done.From == done.To {
		return nil
	}
	c.completed(done.To, false)
	return nil
}

func (c *Controller) onRitualCompleted(ev events.Event) error {
	if isRemote(ev.Payload) {
		return nil
	}
	done, err := events.Decode[transition.RitualCompletedEvent](ev.Payload)
	if err != nil {
		return fmt.Errorf("decode ritual completed: %w", err)
	}
	c.completed(done.To, true)
	return nil
}

// completed records a transition that landed on another deck. The incoming
// deck may already have reported play, in which case the roles are already
// swapped and only the bookkeeping remains.
func (c *Controller) completed(to transition.Deck, ritual bool) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	s := c.session
	swapped := false
	switch to {
	case s.NextDeck:
		s.swap()
		swapped = true
	case s.CurrentDeck:
	default:
		c.mu.Unlock()
		return
	}
	s.Stats.TransitionsMade++
	if ritual {
		s.Stats.RitualsPerformed++
	}
	cur, ok := s.currentAnalysis()
	if !ok {
		// The deck just brought in may not be marked played yet.
		cur, ok = s.latest(s.CurrentDeck, false)
	}
	need := NextTrackNeeded{
		Deck:       s.NextDeck,
		Suggestion: suggest(cur, ok, c.cfg),
		Reason:     ReasonDeckFreed,
	}
	c.mu.Unlock()

	c.logger.Info().
		Str("current", string(to)).
		Str("next", string(need.Deck)).
		Bool("swapped", swapped).
		Msg("transition landed")
	c.bus.Publish(events.TopicNextTrackNeeded, need)
}

func isRemote(payload any) bool {
	switch payload.(type) {
	case events.Remote, *events.Remote:
		return true
	}
	return false
}

func (c *Controller) startSamplerLocked() {
	c.samplerGn++
	gen := c.samplerGn
	c.sampler = c.clock.AfterFunc(c.cfg.EnergySampleInterval, c.tracked(func() { c.sample(gen) }))
}

func (c *Controller) stopSamplerLocked() {
	c.samplerGn++
	if c.sampler != nil {
		c.sampler.Stop()
		c.sampler = nil
	}
}

func (c *Controller) sample(gen uint64) {
	c.mu.Lock()
	if !c.active || gen != c.samplerGn {
		c.mu.Unlock()
		return
	}
	s := c.session
	var current float64
	if a, ok := s.currentAnalysis(); ok {
		current = a.Energy.Value
	} else if n := len(s.TrackHistory); n > 0 {
		current = s.TrackHistory[n-1].Analysis.Energy.Value
	}
	update := EnergyUpdate{
		Current: current,
		Average: s.Stats.AvgEnergyLevel,
		Trend:   energyTrend(s.TrackHistory),
	}
	c.sampler = c.clock.AfterFunc(c.cfg.EnergySampleInterval, c.tracked(func() { c.sample(gen) }))
	c.mu.Unlock()

	telemetry.AutopilotSessionEnergy.Set(update.Average)
	c.bus.Publish(events.TopicEnergyUpdate, update)
}
