package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricHTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "securechannel",
			Subsystem: "server",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests handled by the secure channel server.",
		},
		[]string{"method", "route", "status"},
	)

	metricHTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "securechannel",
			Subsystem: "server",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	metricEnvelopes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "securechannel",
			Subsystem: "server",
			Name:      "envelopes_total",
			Help:      "Request envelopes by endpoint, data type and outcome.",
		},
		[]string{"endpoint", "type", "outcome"},
	)

	metricPendingSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "securechannel",
			Subsystem: "server",
			Name:      "pending_sessions",
			Help:      "Session keys held for requests that have not been answered.",
		},
	)
)
