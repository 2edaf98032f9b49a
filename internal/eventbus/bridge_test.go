/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_autopilot/internal/events"
)

// hub delivers every sent message to every attached relay, including the
// sender, the way a broker does.
type hub struct {
	mu     sync.Mutex
	relays []*relay
	sent   int
}

func (h *hub) attach(r *relay) {
	h.mu.Lock()
	h.relays = append(h.relays, r)
	h.mu.Unlock()
	r.start(h.send)
}

func (h *hub) send(_ events.Topic, data []byte) error {
	h.mu.Lock()
	h.sent++
	relays := append([]*relay(nil), h.relays...)
	h.mu.Unlock()
	for _, r := range relays {
		r.receive(data)
	}
	return nil
}

func collect(bus *events.Bus, topic events.Topic) *[]events.Event {
	var got []events.Event
	bus.Subscribe(topic, func(ev events.Event) error {
		got = append(got, ev)
		return nil
	})
	return &got
}

type deckPayload struct {
	DeckID string `json:"deck_id"`
}

func TestRelayForwardsBetweenNodes(t *testing.T) {
	busA := events.NewBus(zerolog.Nop())
	busB := events.NewBus(zerolog.Nop())
	h := &hub{}
	h.attach(newRelay(busA, "test", "node-a", nil, zerolog.Nop()))
	h.attach(newRelay(busB, "test", "node-b", nil, zerolog.Nop()))

	gotA := collect(busA, events.TopicDeckPlay)
	gotB := collect(busB, events.TopicDeckPlay)

	busA.Publish(events.TopicDeckPlay, deckPayload{DeckID: "b"})

	if len(*gotA) != 1 {
		t.Fatalf("node a saw %d events, want only its own", len(*gotA))
	}
	if len(*gotB) != 1 {
		t.Fatalf("node b saw %d events, want 1", len(*gotB))
	}
	remote, ok := (*gotB)[0].Payload.(events.Remote)
	if !ok {
		t.Fatalf("payload %T, want events.Remote", (*gotB)[0].Payload)
	}
	if remote.Origin != "node-a" {
		t.Fatalf("origin = %q", remote.Origin)
	}
	p, err := events.Decode[deckPayload](remote)
	if err != nil || p.DeckID != "b" {
		t.Fatalf("Decode = %+v, %v", p, err)
	}
	// The republished event on b must not travel back.
	if h.sent != 1 {
		t.Fatalf("broker messages = %d, want 1", h.sent)
	}
}

func TestRelayOnlyBridgesConfiguredTopics(t *testing.T) {
	busA := events.NewBus(zerolog.Nop())
	busB := events.NewBus(zerolog.Nop())
	h := &hub{}
	h.attach(newRelay(busA, "test", "node-a", []events.Topic{events.TopicDeckPlay}, zerolog.Nop()))
	h.attach(newRelay(busB, "test", "node-b", []events.Topic{events.TopicDeckPause}, zerolog.Nop()))

	gotB := collect(busB, events.TopicDeckPlay)
	busA.Publish(events.TopicDeckPlay, deckPayload{DeckID: "a"})
	busA.Publish(events.TopicDeckPause, deckPayload{DeckID: "a"})

	if h.sent != 1 {
		t.Fatalf("broker messages = %d, want 1", h.sent)
	}
	if len(*gotB) != 0 {
		t.Fatalf("node b accepted %d events on an unbridged topic", len(*gotB))
	}
}

func TestRelayDropsMalformed(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	r := newRelay(bus, "test", "node-a", nil, zerolog.Nop())
	r.receive([]byte("not json"))
	r.receive([]byte(`{"payload":{}}`))
	if s := bus.Stats(); s.HistorySize != 0 {
		t.Fatalf("history size = %d, want 0", s.HistorySize)
	}
}

func TestRelaySendFailureIsHandlerError(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	r := newRelay(bus, "test", "node-a", []events.Topic{events.TopicDeckPlay}, zerolog.Nop())
	boom := errors.New("broker down")
	r.start(func(events.Topic, []byte) error { return boom })

	err := r.forward(events.Event{Topic: events.TopicDeckPlay, Payload: deckPayload{DeckID: "a"}})
	if !errors.Is(err, boom) {
		t.Fatalf("forward err = %v, want broker error", err)
	}
}

func TestMessageEnvelope(t *testing.T) {
	at := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	data, err := marshalMessage(events.Event{Topic: events.TopicDeckPlay, Payload: deckPayload{DeckID: "a"}, Timestamp: at}, "node-a")
	if err != nil {
		t.Fatalf("marshalMessage: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"topic", "payload", "timestamp", "node_id"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("envelope %s missing %q", data, key)
		}
	}
	if string(raw["payload"]) != `{"deck_id":"a"}` {
		t.Fatalf("payload = %s", raw["payload"])
	}
}

func TestSubjectsAndChannels(t *testing.T) {
	tests := []struct {
		topic   events.Topic
		subject string
		channel string
	}{
		{events.TopicAnalysisComplete, "grimnir.events.ai.analysis.complete", "grimnir:events:ai:analysis:complete"},
		{events.TopicMixerCrossfader, "grimnir.events.mixer.set-crossfader", "grimnir:events:mixer:set-crossfader"},
	}
	for _, tt := range tests {
		t.Run(string(tt.topic), func(t *testing.T) {
			if got := natsSubject(tt.topic); got != tt.subject {
				t.Fatalf("natsSubject = %q, want %q", got, tt.subject)
			}
			if got := redisChannel(tt.topic); got != tt.channel {
				t.Fatalf("redisChannel = %q, want %q", got, tt.channel)
			}
		})
	}
}

func TestRedisUnreachableStaysLocal(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.DialTimeout = 200 * time.Millisecond

	bus := events.NewBus(zerolog.Nop())
	got := collect(bus, events.TopicDeckPlay)
	rb := NewRedisBridge(context.Background(), cfg, bus, "node-a", nil, zerolog.Nop())
	defer rb.Close()

	if !rb.LocalOnly() {
		t.Fatal("bridge to a closed port is not local-only")
	}
	bus.Publish(events.TopicDeckPlay, deckPayload{DeckID: "a"})
	if len(*got) != 1 {
		t.Fatalf("local delivery = %d, want 1", len(*got))
	}
}

func TestOpen(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	b, err := Open(context.Background(), Config{Backend: BackendMemory, NodeID: "n1"}, bus, zerolog.Nop())
	if err != nil || b.NodeID() != "n1" {
		t.Fatalf("Open memory = %v, %v", b, err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err = Open(context.Background(), Config{}, bus, zerolog.Nop())
	if err != nil || b.NodeID() == "" {
		t.Fatalf("Open default = %v, %v", b, err)
	}

	if _, err := Open(context.Background(), Config{Backend: "kafka"}, bus, zerolog.Nop()); err == nil {
		t.Fatal("unknown backend accepted")
	}

	natsCfg := DefaultNATSConfig()
	natsCfg.URL = "nats://127.0.0.1:1"
	natsCfg.Timeout = 200 * time.Millisecond
	if _, err := Open(context.Background(), Config{Backend: BackendNATS, NATS: natsCfg}, bus, zerolog.Nop()); err == nil {
		t.Fatal("NATS bridge to a closed port connected")
	}
}
