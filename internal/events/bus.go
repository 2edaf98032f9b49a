/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package events is the synchronous in-process bus every autopilot component
// coordinates through.
package events

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_autopilot/internal/telemetry"
)

// DefaultHistorySize bounds the replay ring when no size is configured.
const DefaultHistorySize = 1000

// Wildcard is the pseudo-topic used by SubscribeAll.
const Wildcard Topic = "*"

// Event is one published message.
type Event struct {
	Topic     Topic     `json:"topic"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler receives events. A returned error is logged and does not stop
// delivery to later handlers.
type Handler func(Event) error

// Subscription identifies a registered handler.
type Subscription struct {
	topic Topic
	id    uint64
}

// Topic returns the topic the subscription listens on.
func (s Subscription) Topic() Topic { return s.topic }

type subscriber struct {
	id      uint64
	handler Handler
	once    bool
}

// Stats summarizes the bus for diagnostics.
type Stats struct {
	Topics      int           `json:"topics"`
	Subscribers int           `json:"subscribers"`
	HistorySize int           `json:"history_size"`
	PerTopic    map[Topic]int `json:"per_topic"`
}

// Option configures a Bus.
type Option func(*Bus)

// WithHistorySize sets the capacity of the history ring.
func WithHistorySize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.historySize = n
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		if now != nil {
			b.now = now
		}
	}
}

// Bus implements synchronous pub/sub with a bounded history.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Topic][]subscriber
	nextID uint64

	historySize int
	history     *ring
	now         func() time.Time
	logger      zerolog.Logger
}

// NewBus creates an event bus.
func NewBus(logger zerolog.Logger, opts ...Option) *Bus {
	b := &Bus{
		subs:        make(map[Topic][]subscriber),
		historySize: DefaultHistorySize,
		now:         time.Now,
		logger:      logger.With().Str("component", "events").Logger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.history = newRing(b.historySize)
	return b
}

// Subscribe registers handler for topic. Handlers run in subscription order.
func (b *Bus) Subscribe(topic Topic, handler Handler) Subscription {
	return b.add(topic, handler, false)
}

// SubscribeOnce registers a handler that is removed before its first call.
func (b *Bus) SubscribeOnce(topic Topic, handler Handler) Subscription {
	return b.add(topic, handler, true)
}

// SubscribeAll registers handler for every topic. Wildcard handlers run after
// the topic's own handlers.
func (b *Bus) SubscribeAll(handler Handler) Subscription {
	return b.add(Wildcard, handler, false)
}

func (b *Bus) add(topic Topic, handler Handler, once bool) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[topic] = append(b.subs[topic], subscriber{id: b.nextID, handler: handler, once: once})
	return Subscription{topic: topic, id: b.nextID}
}

// Unsubscribe removes the subscription. Removing an unknown subscription is a
// no-op.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(sub.topic, sub.id)
}

// remove reports whether the subscriber was still registered. Callers hold mu.
func (b *Bus) remove(topic Topic, id uint64) bool {
	subs := b.subs[topic]
	for i, candidate := range subs {
		if candidate.id != id {
			continue
		}
		rest := make([]subscriber, 0, len(subs)-1)
		rest = append(rest, subs[:i]...)
		rest = append(rest, subs[i+1:]...)
		if len(rest) == 0 {
			delete(b.subs, topic)
		} else {
			b.subs[topic] = rest
		}
		return true
	}
	return false
}

// Publish records the event in history and delivers it to the topic's
// subscribers, then to wildcard subscribers. Delivery happens on the calling
// goroutine; handlers may publish.
func (b *Bus) Publish(topic Topic, payload any) {
	if topic == "" || topic == Wildcard {
		b.logger.Warn().Str("topic", string(topic)).Msg("dropping event with invalid topic")
		return
	}
	ev := Event{Topic: topic, Payload: payload, Timestamp: b.now()}
	b.history.add(ev)
	telemetry.BusEventsPublished.WithLabelValues(string(topic)).Inc()

	b.mu.RLock()
	direct := append([]subscriber(nil), b.subs[topic]...)
	wildcard := append([]subscriber(nil), b.subs[Wildcard]...)
	b.mu.RUnlock()

	for _, s := range direct {
		b.deliver(topic, s, ev)
	}
	for _, s := range wildcard {
		b.deliver(Wildcard, s, ev)
	}
}

func (b *Bus) deliver(key Topic, s subscriber, ev Event) {
	if s.once {
		b.mu.Lock()
		claimed := b.remove(key, s.id)
		b.mu.Unlock()
		if !claimed {
			return
		}
	}

	defer func() {
		if r := recover(); r != nil {
			telemetry.BusHandlerFailures.WithLabelValues(string(ev.Topic), "panic").Inc()
			b.logger.Error().
				Str("topic", string(ev.Topic)).
				Uint64("subscription", s.id).
				Interface("panic", r).
				Msg("event handler panicked")
		}
	}()

	if err := s.handler(ev); err != nil {
		telemetry.BusHandlerFailures.WithLabelValues(string(ev.Topic), "error").Inc()
		b.logger.Warn().
			Err(err).
			Str("topic", string(ev.Topic)).
			Uint64("subscription", s.id).
			Msg("event handler failed")
	}
}

// History returns up to limit recorded events in chronological order. An
// empty topic matches every event and limit <= 0 returns all matches.
func (b *Bus) History(topic Topic, limit int) []Event {
	all := b.history.all()
	var out []Event
	for _, ev := range all {
		if topic == "" || ev.Topic == topic {
			out = append(out, ev)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// ClearHistory empties the history ring.
func (b *Bus) ClearHistory() {
	b.history.clear()
}

// Topics lists topics with at least one subscriber, sorted.
func (b *Bus) Topics() []Topic {
	b.mu.RLock()
	defer b.mu.RUnlock()
	topics := make([]Topic, 0, len(b.subs))
	for t := range b.subs {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i] < topics[j] })
	return topics
}

// Stats returns subscriber and history counts.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st := Stats{
		Topics:      len(b.subs),
		HistorySize: b.history.len(),
		PerTopic:    make(map[Topic]int, len(b.subs)),
	}
	for t, subs := range b.subs {
		st.PerTopic[t] = len(subs)
		st.Subscribers += len(subs)
	}
	return st
}
