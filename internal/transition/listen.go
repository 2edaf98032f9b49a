/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package transition

import (
	"context"
	"errors"
	"time"

	"github.com/friendsincode/grimnir_autopilot/internal/events"
)

// TriggerPayload is the wire shape of transition:trigger.
type TriggerPayload struct {
	Style      string   `json:"style,omitempty"`
	FromDeck   string   `json:"from_deck,omitempty"`
	ToDeck     string   `json:"to_deck,omitempty"`
	DurationMS int64    `json:"duration_ms,omitempty"`
	Effects    []string `json:"effects,omitempty"`
}

// Request fills defaults: crossfade from a to b over DefaultDuration.
func (p TriggerPayload) Request() (Request, error) {
	from, to, err := triggerDecks(p.FromDeck, p.ToDeck)
	if err != nil {
		return Request{}, err
	}
	style := p.Style
	if style == "" {
		style = StyleCrossfade
	}
	return Request{
		Style:       style,
		From:        from,
		To:          to,
		Duration:    triggerDuration(p.DurationMS),
		EffectHints: p.Effects,
	}, nil
}

// RitualTriggerPayload is the wire shape of ritual:trigger.
type RitualTriggerPayload struct {
	Ritual     string `json:"ritual"`
	FromDeck   string `json:"from_deck,omitempty"`
	ToDeck     string `json:"to_deck,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

func triggerDecks(from, to string) (Deck, Deck, error) {
	if from == "" {
		from = string(DeckA)
	}
	if to == "" {
		to = string(DeckB)
	}
	f, err := ParseDeck(from)
	if err != nil {
		return "", "", err
	}
	t, err := ParseDeck(to)
	if err != nil {
		return "", "", err
	}
	return f, t, nil
}

func triggerDuration(ms int64) time.Duration {
	if ms <= 0 {
		return DefaultDuration
	}
	return time.Duration(ms) * time.Millisecond
}

// Listen runs manual triggers from the bus until the returned stop function
// is called. Each trigger runs on its own goroutine under ctx; a busy engine
// rejects it and the rejection is logged.
func (e *Engine) Listen(ctx context.Context) (stop func()) {
	transitionSub := e.bus.Subscribe(events.TopicTransitionTrigger, func(ev events.Event) error {
		p, err := events.Decode[TriggerPayload](ev.Payload)
		if err != nil {
			return err
		}
		req, err := p.Request()
		if err != nil {
			return err
		}
		e.spawn(func() {
			if _, err := e.Run(ctx, req); err != nil && !errors.Is(err, ErrTransitionInProgress) {
				e.logger.Error().Err(err).Msg("triggered transition failed")
			}
		})
		return nil
	})

	ritualSub := e.bus.Subscribe(events.TopicRitualTrigger, func(ev events.Event) error {
		p, err := events.Decode[RitualTriggerPayload](ev.Payload)
		if err != nil {
			return err
		}
		from, to, err := triggerDecks(p.FromDeck, p.ToDeck)
		if err != nil {
			return err
		}
		total := triggerDuration(p.DurationMS)
		e.spawn(func() {
			if _, err := e.RunRitual(ctx, p.Ritual, from, to, total); err != nil && !errors.Is(err, ErrTransitionInProgress) {
				e.logger.Error().Err(err).Str("ritual", p.Ritual).Msg("triggered ritual failed")
			}
		})
		return nil
	})

	return func() {
		e.bus.Unsubscribe(transitionSub)
		e.bus.Unsubscribe(ritualSub)
	}
}

func (e *Engine) spawn(fn func()) {
	e.listeners.Add(1)
	go func() {
		defer e.listeners.Done()
		fn()
	}()
}

// Wait blocks until every triggered transition has returned.
func (e *Engine) Wait() {
	e.listeners.Wait()
}
