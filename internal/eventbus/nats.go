/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_autopilot/internal/events"
)

// NATSSubjectPrefix starts every bridge subject.
const NATSSubjectPrefix = "grimnir.events."

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL   string
	Token string

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1, // unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// natsSubject maps "ai:analysis:complete" to "grimnir.events.ai.analysis.complete".
func natsSubject(topic events.Topic) string {
	return NATSSubjectPrefix + strings.ReplaceAll(string(topic), ":", ".")
}

// NATSBridge mirrors bus topics over core NATS.
type NATSBridge struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	relay  *relay
	logger zerolog.Logger
}

// NewNATSBridge connects to NATS and subscribes to every bridge subject.
func NewNATSBridge(cfg NATSConfig, bus *events.Bus, nodeID string, topics []events.Topic, logger zerolog.Logger) (*NATSBridge, error) {
	logger = logger.With().Str("component", "eventbus").Str("backend", BackendNATS).Logger()

	opts := []nats.Option{
		nats.Name("grimnir-autopilot-" + nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}

	nb := &NATSBridge{
		conn:   conn,
		relay:  newRelay(bus, BackendNATS, nodeID, topics, logger),
		logger: logger,
	}
	nb.sub, err = conn.Subscribe(NATSSubjectPrefix+">", func(msg *nats.Msg) {
		nb.relay.receive(msg.Data)
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe nats: %w", err)
	}

	nb.relay.start(func(topic events.Topic, data []byte) error {
		return conn.Publish(natsSubject(topic), data)
	})
	logger.Info().Str("url", cfg.URL).Str("node_id", nodeID).Msg("NATS event bridge started")
	return nb, nil
}

// NodeID identifies this process on the broker.
func (nb *NATSBridge) NodeID() string { return nb.relay.nodeID }

// Close drains the subscription and closes the connection.
func (nb *NATSBridge) Close() error {
	nb.relay.stop()
	if err := nb.sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
		nb.logger.Warn().Err(err).Msg("NATS unsubscribe failed")
	}
	if err := nb.conn.Drain(); err != nil {
		nb.conn.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	nb.logger.Info().Msg("NATS event bridge closed")
	return nil
}
