/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package transition executes crossfades and rituals as time-stepped
// automations published on the event bus.
package transition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_autopilot/internal/events"
	"github.com/friendsincode/grimnir_autopilot/internal/telemetry"
)

// ErrTransitionInProgress is returned when the engine already runs a transition.
var ErrTransitionInProgress = errors.New("transition in progress")

// ErrInvalidRequest is returned for requests with unknown decks.
var ErrInvalidRequest = errors.New("invalid transition request")

// DefaultDuration applies to triggers that omit a duration.
const DefaultDuration = 16 * time.Second

// Request asks for one transition.
type Request struct {
	Style       string
	From        Deck
	To          Deck
	Duration    time.Duration
	EffectHints []string
}

// ActiveTransition is the transition currently holding the engine.
type ActiveTransition struct {
	ID         string    `json:"id"`
	Style      string    `json:"style"`
	From       Deck      `json:"from_deck"`
	To         Deck      `json:"to_deck"`
	DurationMS int64     `json:"duration_ms"`
	StartedAt  time.Time `json:"started_at"`
	Progress   float64   `json:"progress"`
	Ritual     string    `json:"ritual,omitempty"`
	Effects    []string  `json:"effects,omitempty"`
}

// ProgressEvent is published after every frame.
type ProgressEvent struct {
	ID        string  `json:"id"`
	Style     string  `json:"style"`
	Progress  float64 `json:"progress"`
	ElapsedMS int64   `json:"elapsed_ms"`
	Ritual    string  `json:"ritual,omitempty"`
}

// CompletedEvent is published once the final frame and resets are out.
type CompletedEvent struct {
	ActiveTransition
	EndedAt       time.Time `json:"ended_at"`
	FastForwarded bool      `json:"fast_forwarded,omitempty"`
}

// RejectedEvent is published when a request finds the engine busy.
type RejectedEvent struct {
	Style    string `json:"style"`
	From     Deck   `json:"from_deck"`
	To       Deck   `json:"to_deck"`
	Ritual   string `json:"ritual,omitempty"`
	ActiveID string `json:"active_id,omitempty"`
	Reason   string `json:"reason"`
}

// Result reports a finished transition.
type Result struct {
	ID            string
	Style         string
	From          Deck
	To            Deck
	Duration      time.Duration
	StartedAt     time.Time
	EndedAt       time.Time
	Fallback      bool
	FastForwarded bool
}

// SleepFunc waits for d. It returns false when ctx ended first.
type SleepFunc func(ctx context.Context, d time.Duration) bool

// Options tune an Engine; zero values use real time and the built-in presets.
type Options struct {
	Sleep   SleepFunc
	Now     func() time.Time
	Presets []RitualPreset
}

// Engine runs at most one transition at a time.
type Engine struct {
	bus    *events.Bus
	logger zerolog.Logger
	sleep  SleepFunc
	now    func() time.Time

	presetMu sync.RWMutex
	presets  []RitualPreset

	mu     sync.Mutex
	busy   bool
	active *ActiveTransition

	listeners sync.WaitGroup
}

// NewEngine creates a transition engine publishing on bus.
func NewEngine(bus *events.Bus, logger zerolog.Logger, opts Options) *Engine {
	e := &Engine{
		bus:     bus,
		logger:  logger.With().Str("component", "transition").Logger(),
		sleep:   opts.Sleep,
		now:     opts.Now,
		presets: opts.Presets,
	}
	if e.sleep == nil {
		e.sleep = sleepContext
	}
	if e.now == nil {
		e.now = time.Now
	}
	if len(e.presets) == 0 {
		e.presets = DefaultPresets()
	}
	return e
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Active returns a snapshot of the running transition.
func (e *Engine) Active() (ActiveTransition, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return ActiveTransition{}, false
	}
	snap := *e.active
	snap.Effects = append([]string(nil), e.active.Effects...)
	return snap, true
}

// Busy reports whether a transition or ritual holds the engine.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

// acquire takes the transition slot. The returned release must be called once.
func (e *Engine) acquire() (release func(), activeID string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		if e.active != nil {
			activeID = e.active.ID
		}
		return nil, activeID, false
	}
	e.busy = true
	telemetry.TransitionActive.Set(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			e.busy = false
			e.active = nil
			e.mu.Unlock()
			telemetry.TransitionActive.Set(0)
		})
	}, "", true
}

func (e *Engine) reject(ev RejectedEvent) error {
	ev.Reason = ErrTransitionInProgress.Error()
	name := ev.Style
	if ev.Ritual != "" {
		name = ev.Ritual
		telemetry.RitualsTotal.WithLabelValues(ev.Ritual, "rejected").Inc()
	} else {
		telemetry.TransitionsTotal.WithLabelValues(ev.Style, "rejected").Inc()
	}
	e.logger.Warn().
		Str("style", ev.Style).
		Str("ritual", ev.Ritual).
		Str("active_id", ev.ActiveID).
		Msg("transition rejected, engine busy")
	e.bus.Publish(events.TopicTransitionRejected, ev)
	return fmt.Errorf("run %s: %w", name, ErrTransitionInProgress)
}

// resolveStyleName maps unknown names to the crossfade fallback.
func resolveStyleName(name string) string {
	if _, ok := LookupStyle(name); ok {
		return name
	}
	return StyleCrossfade
}

func validateDecks(from, to Deck) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("%w: decks %q -> %q", ErrInvalidRequest, from, to)
	}
	return nil
}

// Run executes req and returns when the transition completed. It fails with
// ErrTransitionInProgress when another transition holds the engine.
// Cancelling ctx skips the remaining waits; the final frame, resets and the
// completion event are still published.
func (e *Engine) Run(ctx context.Context, req Request) (Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "transition", "transition.Run")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{
		"style":     req.Style,
		"from_deck": string(req.From),
		"to_deck":   string(req.To),
		"duration":  req.Duration,
	})

	if err := validateDecks(req.From, req.To); err != nil {
		telemetry.RecordError(span, err)
		return Result{}, err
	}
	release, activeID, ok := e.acquire()
	if !ok {
		err := e.reject(RejectedEvent{
			Style:    resolveStyleName(req.Style),
			From:     req.From,
			To:       req.To,
			ActiveID: activeID,
		})
		telemetry.RecordError(span, err)
		return Result{}, err
	}
	defer release()

	return e.execute(ctx, req, ""), nil
}

// execute runs one style with the slot already held.
func (e *Engine) execute(ctx context.Context, req Request, ritual string) Result {
	style, ok := LookupStyle(req.Style)
	fallback := !ok
	if fallback {
		e.logger.Warn().Str("style", req.Style).Msg("unknown transition style, falling back to crossfade")
		style = catalogue[StyleCrossfade]
	}
	duration := req.Duration
	if duration < 0 {
		duration = 0
	}

	start := e.now()
	at := &ActiveTransition{
		ID:         uuid.NewString(),
		Style:      style.Name,
		From:       req.From,
		To:         req.To,
		DurationMS: duration.Milliseconds(),
		StartedAt:  start,
		Ritual:     ritual,
		Effects:    append([]string(nil), req.EffectHints...),
	}
	e.mu.Lock()
	e.active = at
	snapshot := *at
	e.mu.Unlock()

	e.logger.Info().
		Str("id", at.ID).
		Str("style", style.Name).
		Str("from", string(req.From)).
		Str("to", string(req.To)).
		Dur("duration", duration).
		Str("ritual", ritual).
		Msg("transition started")
	e.bus.Publish(events.TopicTransitionStarted, snapshot)

	steps := style.Steps
	var stepDelay time.Duration
	if steps > 0 {
		stepDelay = duration / time.Duration(steps)
	}

	fastForward := false
	prev := -1.0
	for step := 0; step <= steps; step++ {
		progress := 1.0
		if steps > 0 {
			progress = float64(step) / float64(steps)
		}
		e.emitFrame(style, Frame{
			Step:     step,
			Steps:    steps,
			Progress: progress,
			Prev:     prev,
			From:     req.From,
			To:       req.To,
			Duration: duration,
		}, at, start)
		prev = progress

		if step == steps {
			break
		}
		if !e.sleep(ctx, stepDelay) {
			// Jump so the next iteration emits the final frame.
			fastForward = true
			step = steps - 1
		}
	}

	if style.Reset != nil {
		for _, cmd := range style.Reset(req.From, req.To) {
			e.bus.Publish(cmd.Topic, cmd.Payload)
		}
	}
	e.bus.Publish(events.TopicMixerCrossfader, CrossfaderCommand{Value: req.To.Position(), Source: SourceTransition})

	end := e.now()
	e.mu.Lock()
	at.Progress = 1
	done := *at
	e.mu.Unlock()
	e.bus.Publish(events.TopicTransitionCompleted, CompletedEvent{
		ActiveTransition: done,
		EndedAt:          end,
		FastForwarded:    fastForward,
	})

	outcome := "completed"
	if fastForward {
		outcome = "fast_forwarded"
	}
	telemetry.TransitionsTotal.WithLabelValues(style.Name, outcome).Inc()
	telemetry.TransitionDuration.WithLabelValues(style.Name).Observe(end.Sub(start).Seconds())
	e.logger.Info().Str("id", at.ID).Str("style", style.Name).Bool("fast_forwarded", fastForward).Msg("transition completed")

	return Result{
		ID:            at.ID,
		Style:         style.Name,
		From:          req.From,
		To:            req.To,
		Duration:      duration,
		StartedAt:     start,
		EndedAt:       end,
		Fallback:      fallback,
		FastForwarded: fastForward,
	}
}

func (e *Engine) emitFrame(style Style, f Frame, at *ActiveTransition, start time.Time) {
	weight := f.Progress
	if style.Weight != nil {
		weight = style.Weight(f.Progress)
	}
	e.bus.Publish(events.TopicMixerCrossfader, CrossfaderCommand{
		Value:  crossfaderValue(f.From, f.To, weight),
		Source: SourceTransition,
	})
	if style.Effects != nil {
		for _, cmd := range style.Effects(f) {
			e.bus.Publish(cmd.Topic, cmd.Payload)
		}
	}

	e.mu.Lock()
	at.Progress = f.Progress
	e.mu.Unlock()
	e.bus.Publish(events.TopicTransitionProgress, ProgressEvent{
		ID:        at.ID,
		Style:     style.Name,
		Progress:  f.Progress,
		ElapsedMS: e.now().Sub(start).Milliseconds(),
		Ritual:    at.Ritual,
	})
}
