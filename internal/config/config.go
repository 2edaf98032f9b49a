/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/friendsincode/grimnir_autopilot/internal/analysis"
	"github.com/friendsincode/grimnir_autopilot/internal/autopilot"
)

// Event bus backends.
const (
	EventBusMemory = "memory"
	EventBusRedis  = "redis"
	EventBusNATS   = "nats"
)

// DatabaseBackend selects the journal's gorm dialector.
type DatabaseBackend string

// Supported journal databases.
const (
	DatabaseSQLite   DatabaseBackend = "sqlite"
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	LogLevel    string
	LogFile     string // JSON log sink rotated by size; empty disables

	// Journal database. An empty DSN disables the journal.
	DBBackend DatabaseBackend
	DBDSN     string

	// JWTSecret enables bearer auth on the control routes and the stream.
	JWTSecret string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Multi-instance configuration
	EventBusBackend string
	InstanceID      string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	NATSURL         string
	NATSToken       string

	// Transition engine
	RitualPresetsFile   string
	TransitionRateLimit float64 // manual triggers per second
	TransitionRateBurst int

	// Autopilot
	AutopilotAutoStart bool
	Autopilot          autopilot.Config

	// EnvFile is the dotenv file that was read, if any.
	EnvFile           string
	LegacyEnvWarnings []string
}

// env looks keys up in the process environment first, then in the dotenv
// file. The process environment is never modified.
type env struct {
	file map[string]string
}

func (e env) lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v, true
	}
	v, ok := e.file[key]
	return v, ok && v != ""
}

// Load reads environment variables and an optional .env file, applies
// defaults, and validates the result.
func Load() (*Config, error) {
	path := os.Getenv("GRIMNIR_ENV_FILE")
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	file, err := godotenv.Read(path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		path = ""
	default:
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	e := env{file: file}

	defaults := autopilot.DefaultConfig()
	cfg := &Config{
		Environment: e.getAny([]string{"GRIMNIR_ENV"}, "development"),
		HTTPBind:    e.getAny([]string{"GRIMNIR_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    e.getIntAny([]string{"GRIMNIR_HTTP_PORT", "PORT"}, 8080),
		LogLevel:    e.getAny([]string{"GRIMNIR_LOG_LEVEL"}, ""),
		LogFile:     e.getAny([]string{"GRIMNIR_LOG_FILE"}, ""),
		DBBackend:   DatabaseBackend(strings.ToLower(e.getAny([]string{"GRIMNIR_DB_BACKEND"}, string(DatabaseSQLite)))),
		DBDSN:       e.getAny([]string{"GRIMNIR_DB_DSN"}, "grimnir_autopilot.db"),
		JWTSecret:   e.getAny([]string{"GRIMNIR_JWT_SECRET"}, ""),

		TracingEnabled:    e.getBoolAny([]string{"GRIMNIR_TRACING_ENABLED"}, false),
		OTLPEndpoint:      e.getAny([]string{"GRIMNIR_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: e.getFloatAny([]string{"GRIMNIR_TRACING_SAMPLE_RATE"}, 1.0),

		EventBusBackend: strings.ToLower(e.getAny([]string{"GRIMNIR_EVENTBUS_BACKEND"}, EventBusMemory)),
		InstanceID:      e.getAny([]string{"GRIMNIR_INSTANCE_ID"}, ""),
		RedisAddr:       e.getAny([]string{"GRIMNIR_REDIS_ADDR", "REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:   e.getAny([]string{"GRIMNIR_REDIS_PASSWORD", "REDIS_PASSWORD"}, ""),
		RedisDB:         e.getIntAny([]string{"GRIMNIR_REDIS_DB"}, 0),
		NATSURL:         e.getAny([]string{"GRIMNIR_NATS_URL", "NATS_URL"}, "nats://localhost:4222"),
		NATSToken:       e.getAny([]string{"GRIMNIR_NATS_TOKEN"}, ""),

		RitualPresetsFile:   e.getAny([]string{"GRIMNIR_RITUAL_PRESETS"}, ""),
		TransitionRateLimit: e.getFloatAny([]string{"GRIMNIR_TRANSITION_RATE_LIMIT"}, 2),
		TransitionRateBurst: e.getIntAny([]string{"GRIMNIR_TRANSITION_RATE_BURST"}, 4),

		AutopilotAutoStart: e.getBoolAny([]string{"GRIMNIR_AUTOPILOT_AUTOSTART"}, false),
		Autopilot: autopilot.Config{
			AutoSwitchEnabled:        e.getBoolAny([]string{"GRIMNIR_AUTOPILOT_AUTO_SWITCH"}, defaults.AutoSwitchEnabled),
			TransitionTiming:         autopilot.Timing(strings.ToLower(e.getAny([]string{"GRIMNIR_AUTOPILOT_TIMING"}, string(defaults.TransitionTiming)))),
			MinTrackDuration:         e.getSecondsAny([]string{"GRIMNIR_AUTOPILOT_MIN_TRACK_SECONDS"}, defaults.MinTrackDuration),
			MaxTrackDuration:         e.getSecondsAny([]string{"GRIMNIR_AUTOPILOT_MAX_TRACK_SECONDS"}, defaults.MaxTrackDuration),
			TransitionPoint:          e.getFloatAny([]string{"GRIMNIR_AUTOPILOT_TRANSITION_POINT"}, defaults.TransitionPoint),
			EnergyFlowStrategy:       analysis.FlowStrategy(strings.ToLower(e.getAny([]string{"GRIMNIR_AUTOPILOT_ENERGY_STRATEGY"}, string(defaults.EnergyFlowStrategy)))),
			BPMTolerance:             e.getFloatAny([]string{"GRIMNIR_AUTOPILOT_BPM_TOLERANCE"}, defaults.BPMTolerance),
			KeyCompatibilityRequired: e.getBoolAny([]string{"GRIMNIR_AUTOPILOT_KEY_REQUIRED"}, defaults.KeyCompatibilityRequired),
			EnergySampleInterval:     e.getSecondsAny([]string{"GRIMNIR_AUTOPILOT_SAMPLE_SECONDS"}, defaults.EnergySampleInterval),
		},

		EnvFile: path,
	}

	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("GRIMNIR_HTTP_PORT %d out of range", cfg.HTTPPort)
	}

	switch cfg.DBBackend {
	case DatabaseSQLite, DatabasePostgres, DatabaseMySQL:
	default:
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	switch cfg.EventBusBackend {
	case EventBusMemory, EventBusRedis, EventBusNATS:
	default:
		return nil, fmt.Errorf("unsupported event bus backend %q", cfg.EventBusBackend)
	}

	if cfg.TracingSampleRate < 0 || cfg.TracingSampleRate > 1 {
		return nil, fmt.Errorf("GRIMNIR_TRACING_SAMPLE_RATE %.2f outside 0..1", cfg.TracingSampleRate)
	}

	if cfg.TransitionRateLimit <= 0 || cfg.TransitionRateBurst <= 0 {
		return nil, fmt.Errorf("GRIMNIR_TRANSITION_RATE_LIMIT and GRIMNIR_TRANSITION_RATE_BURST must be positive")
	}

	if err := cfg.Autopilot.Validate(); err != nil {
		return nil, fmt.Errorf("autopilot defaults: %w", err)
	}

	if strings.EqualFold(cfg.Environment, "production") && cfg.EventBusBackend != EventBusMemory && cfg.InstanceID == "" {
		return nil, fmt.Errorf("GRIMNIR_INSTANCE_ID must be set in production when the %s event bus is used", cfg.EventBusBackend)
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

// IsDevelopment reports whether debug defaults apply.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"AUTOPILOT_TIMING":     "use GRIMNIR_AUTOPILOT_TIMING",
		"EVENTBUS_BACKEND":     "use GRIMNIR_EVENTBUS_BACKEND",
		"TRACING_ENABLED":      "use GRIMNIR_TRACING_ENABLED",
		"RITUAL_PRESETS":       "use GRIMNIR_RITUAL_PRESETS",
		"LOG_FILE":             "use GRIMNIR_LOG_FILE",
		"TRANSITION_POINT":     "use GRIMNIR_AUTOPILOT_TRANSITION_POINT",
		"ENERGY_FLOW_STRATEGY": "use GRIMNIR_AUTOPILOT_ENERGY_STRATEGY",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getAny returns the first non-empty value from keys, or def if none set.
func (e env) getAny(keys []string, def string) string {
	for _, k := range keys {
		if v, ok := e.lookup(k); ok {
			return v
		}
	}
	return def
}

// getIntAny returns the first set integer value from keys, or def.
func (e env) getIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v, ok := e.lookup(k); ok {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getBoolAny returns the first set boolean value from keys, or def.
func (e env) getBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v, ok := e.lookup(k); ok {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getFloatAny returns the first set float value from keys, or def.
func (e env) getFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v, ok := e.lookup(k); ok {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getSecondsAny reads a whole or fractional number of seconds.
func (e env) getSecondsAny(keys []string, def time.Duration) time.Duration {
	secs := e.getFloatAny(keys, def.Seconds())
	return time.Duration(secs * float64(time.Second))
}
