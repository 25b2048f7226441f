package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luna_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "luna_http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "route"},
	)

	Turns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luna_turns_total",
			Help: "Chat turns sent to the model, by kind (opening, user)",
		},
		[]string{"kind"},
	)

	TransportFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luna_transport_failures_total",
			Help: "Failed chat transport calls, by operation (open, send, empty)",
		},
		[]string{"operation"},
	)

	TransportLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "luna_transport_latency_seconds",
			Help:    "Latency of single chat transport sends",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		},
	)

	RecognitionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luna_recognition_errors_total",
			Help: "Speech recognition failures, by error kind",
		},
		[]string{"kind"},
	)

	SynthesisErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "luna_synthesis_errors_total",
			Help: "Speech synthesis failures",
		},
	)

	PhaseTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "luna_phase_transitions_total",
			Help: "Coordinator phase transitions",
		},
		[]string{"from", "to"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "luna_active_sessions",
			Help: "Number of live journaling sessions",
		},
	)
)
