/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_autopilot/internal/events"
)

// RedisChannelPrefix namespaces bridge channels; one channel per topic.
const RedisChannelPrefix = "grimnir:events:"

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxFailures consecutive publish errors switch the bridge to local-only.
	MaxFailures int
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxFailures:  5,
	}
}

// RedisBridge mirrors bus topics over Redis pub/sub.
type RedisBridge struct {
	client *redis.Client
	pubsub *redis.PubSub
	relay  *relay
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	localOnly bool
	failCount int
	maxFails  int
}

func redisChannel(topic events.Topic) string {
	return RedisChannelPrefix + string(topic)
}

// NewRedisBridge connects to Redis. An unreachable server leaves the
// bridge local-only with a warning; local delivery is unaffected.
func NewRedisBridge(ctx context.Context, cfg RedisConfig, bus *events.Bus, nodeID string, topics []events.Topic, logger zerolog.Logger) *RedisBridge {
	logger = logger.With().Str("component", "eventbus").Str("backend", BackendRedis).Logger()
	ctx, cancel := context.WithCancel(ctx)

	rb := &RedisBridge{
		relay:    newRelay(bus, BackendRedis, nodeID, topics, logger),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		maxFails: cfg.MaxFailures,
	}
	if rb.maxFails <= 0 {
		rb.maxFails = 1
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.DialTimeout+time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis unreachable, events stay local")
		_ = client.Close()
		rb.localOnly = true
		return rb
	}
	rb.client = client

	channels := make([]string, 0, len(rb.relay.order))
	for _, t := range rb.relay.order {
		channels = append(channels, redisChannel(t))
	}
	rb.pubsub = client.Subscribe(ctx, channels...)

	rb.wg.Add(1)
	go rb.receiveMessages()

	rb.relay.start(rb.publish)
	logger.Info().Str("addr", cfg.Addr).Str("node_id", nodeID).Int("channels", len(channels)).Msg("Redis event bridge started")
	return rb
}

// NodeID identifies this process on the broker.
func (rb *RedisBridge) NodeID() string { return rb.relay.nodeID }

// LocalOnly reports whether the bridge has stopped talking to Redis.
func (rb *RedisBridge) LocalOnly() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.localOnly
}

func (rb *RedisBridge) publish(topic events.Topic, data []byte) error {
	if rb.LocalOnly() {
		return nil
	}
	ctx, cancel := context.WithTimeout(rb.ctx, 2*time.Second)
	defer cancel()
	if err := rb.client.Publish(ctx, redisChannel(topic), data).Err(); err != nil {
		rb.handleFailure()
		return err
	}
	rb.mu.Lock()
	rb.failCount = 0
	rb.mu.Unlock()
	return nil
}

func (rb *RedisBridge) receiveMessages() {
	defer rb.wg.Done()
	ch := rb.pubsub.Channel()
	for {
		select {
		case <-rb.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				rb.logger.Warn().Msg("Redis subscription closed")
				return
			}
			if !strings.HasPrefix(msg.Channel, RedisChannelPrefix) {
				continue
			}
			rb.relay.receive([]byte(msg.Payload))
		}
	}
}

// handleFailure switches to local-only after repeated publish errors.
func (rb *RedisBridge) handleFailure() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.failCount++
	if rb.failCount >= rb.maxFails && !rb.localOnly {
		rb.logger.Warn().Int("fail_count", rb.failCount).Msg("Redis failure threshold reached, events stay local")
		rb.localOnly = true
	}
}

// Close stops forwarding and releases the connection.
func (rb *RedisBridge) Close() error {
	rb.relay.stop()
	rb.cancel()
	if rb.pubsub != nil {
		_ = rb.pubsub.Close()
	}
	rb.wg.Wait()
	if rb.client != nil {
		if err := rb.client.Close(); err != nil {
			rb.logger.Error().Err(err).Msg("failed to close Redis client")
			return err
		}
	}
	rb.logger.Info().Msg("Redis event bridge closed")
	return nil
}
