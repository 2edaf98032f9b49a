/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "grimnir_autopilot"

// Event bus metrics
var (
	BusEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "events_published_total",
		Help:      "Events published on the local bus.",
	}, []string{"topic"})

	BusHandlerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "handler_failures_total",
		Help:      "Subscriber handlers that returned an error or panicked.",
	}, []string{"topic", "kind"})

	BridgeMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bridge",
		Name:      "messages_total",
		Help:      "Messages exchanged with the event broker.",
	}, []string{"backend", "direction"})
)

// Transition engine metrics
var (
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "transition",
		Name:      "total",
		Help:      "Transitions by style and outcome.",
	}, []string{"style", "outcome"})

	TransitionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "transition",
		Name:      "duration_seconds",
		Help:      "Wall time spent executing a transition.",
		Buckets:   []float64{0.1, 1, 4, 8, 12, 16, 24, 32, 60},
	}, []string{"style"})

	TransitionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "transition",
		Name:      "active",
		Help:      "1 while a transition or ritual holds the engine.",
	})

	RitualsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ritual",
		Name:      "total",
		Help:      "Rituals by preset and outcome.",
	}, []string{"ritual", "outcome"})

	BallotVotes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ritual",
		Name:      "ballot_votes_total",
		Help:      "Ballot votes cast per ritual option.",
	}, []string{"ritual"})
)

// Autopilot metrics
var (
	AutopilotActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "autopilot",
		Name:      "active",
		Help:      "1 while the autopilot session is running.",
	})

	AutopilotDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "autopilot",
		Name:      "decisions_total",
		Help:      "Styles and rituals chosen by the rule cascade.",
	}, []string{"kind", "choice"})

	AutopilotSkippedCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "autopilot",
		Name:      "skipped_cycles_total",
		Help:      "Timer fires or plays that were skipped.",
	}, []string{"reason"})

	AutopilotSessionEnergy = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "autopilot",
		Name:      "session_energy",
		Help:      "Running mean energy of analyzed tracks.",
	})
)

// HTTP API metrics
var (
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "HTTP requests served.",
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "active_connections",
		Help:      "In-flight HTTP requests.",
	})

	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "stream_clients",
		Help:      "Connected websocket stream clients.",
	})
)

// Journal database metrics
var (
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "query_duration_seconds",
		Help:      "Journal query latency by operation and table.",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "errors_total",
		Help:      "Journal query errors.",
	}, []string{"operation"})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
