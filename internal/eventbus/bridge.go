/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_autopilot/internal/events"
	"github.com/friendsincode/grimnir_autopilot/internal/telemetry"
)

// Supported backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNATS   = "nats"
)

// Bridge links the local bus to a broker.
type Bridge interface {
	NodeID() string
	Close() error
}

// Config selects and configures a bridge.
type Config struct {
	Backend string
	NodeID  string
	// Topics are forwarded in both directions. Empty means every inbound
	// and outbound topic.
	Topics []events.Topic
	Redis  RedisConfig
	NATS   NATSConfig
}

// Open starts the configured bridge. The memory backend bridges nothing.
func Open(ctx context.Context, cfg Config, bus *events.Bus, logger zerolog.Logger) (Bridge, error) {
	if cfg.NodeID == "" {
		cfg.NodeID = uuid.NewString()
	}
	switch cfg.Backend {
	case "", BackendMemory:
		return localBridge{nodeID: cfg.NodeID}, nil
	case BackendRedis:
		return NewRedisBridge(ctx, cfg.Redis, bus, cfg.NodeID, cfg.Topics, logger), nil
	case BackendNATS:
		nb, err := NewNATSBridge(cfg.NATS, bus, cfg.NodeID, cfg.Topics, logger)
		if err != nil {
			return nil, err
		}
		return nb, nil
	default:
		return nil, fmt.Errorf("unknown event bus backend %q", cfg.Backend)
	}
}

type localBridge struct{ nodeID string }

func (b localBridge) NodeID() string { return b.nodeID }
func (localBridge) Close() error     { return nil }

// DefaultTopics is every topic the service consumes or emits.
func DefaultTopics() []events.Topic {
	out := make([]events.Topic, 0, len(events.Inbound)+len(events.Outbound))
	out = append(out, events.Inbound...)
	return append(out, events.Outbound...)
}

// Message is the broker envelope.
type Message struct {
	Topic     events.Topic    `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	NodeID    string          `json:"node_id"`
}

func marshalMessage(ev events.Event, nodeID string) ([]byte, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return json.Marshal(Message{
		Topic:     ev.Topic,
		Payload:   payload,
		Timestamp: ev.Timestamp,
		NodeID:    nodeID,
	})
}

func unmarshalMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("unmarshal bridge message: %w", err)
	}
	if msg.Topic == "" {
		return Message{}, fmt.Errorf("unmarshal bridge message: missing topic")
	}
	return msg, nil
}

// relay is the backend-independent half of a bridge.
type relay struct {
	bus     *events.Bus
	nodeID  string
	backend string
	topics  map[events.Topic]bool
	order   []events.Topic
	logger  zerolog.Logger
	send    func(topic events.Topic, data []byte) error
	subs    []events.Subscription
}

func newRelay(bus *events.Bus, backend, nodeID string, topics []events.Topic, logger zerolog.Logger) *relay {
	if len(topics) == 0 {
		topics = DefaultTopics()
	}
	r := &relay{
		bus:     bus,
		nodeID:  nodeID,
		backend: backend,
		topics:  make(map[events.Topic]bool, len(topics)),
		logger:  logger,
	}
	for _, t := range topics {
		if !r.topics[t] {
			r.topics[t] = true
			r.order = append(r.order, t)
		}
	}
	return r
}

func (r *relay) start(send func(topic events.Topic, data []byte) error) {
	r.send = send
	for _, t := range r.order {
		r.subs = append(r.subs, r.bus.Subscribe(t, r.forward))
	}
}

func (r *relay) stop() {
	for _, sub := range r.subs {
		r.bus.Unsubscribe(sub)
	}
	r.subs = nil
}

// forward sends a local event to the broker. Events that arrived from the
// broker are never sent back.
func (r *relay) forward(ev events.Event) error {
	switch ev.Payload.(type) {
	case events.Remote, *events.Remote:
		return nil
	}
	data, err := marshalMessage(ev, r.nodeID)
	if err != nil {
		return err
	}
	if err := r.send(ev.Topic, data); err != nil {
		return fmt.Errorf("%s publish %s: %w", r.backend, ev.Topic, err)
	}
	telemetry.BridgeMessages.WithLabelValues(r.backend, "out").Inc()
	return nil
}

// receive republishes a broker message locally.
func (r *relay) receive(data []byte) {
	msg, err := unmarshalMessage(data)
	if err != nil {
		r.logger.Warn().Err(err).Msg("dropping malformed bridge message")
		return
	}
	if msg.NodeID == r.nodeID {
		return
	}
	if !r.topics[msg.Topic] {
		r.logger.Debug().Str("topic", string(msg.Topic)).Msg("dropping bridge message on unbridged topic")
		return
	}
	telemetry.BridgeMessages.WithLabelValues(r.backend, "in").Inc()
	r.bus.Publish(msg.Topic, events.Remote{Origin: msg.NodeID, Data: msg.Payload})
}
