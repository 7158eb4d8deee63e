// Package metrics holds the Prometheus collectors for the session and
// resource-contention core. Collectors are registered on the default
// registry and exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reservation outcomes.
const (
	OutcomeGranted     = "granted"
	OutcomeExhausted   = "exhausted"
	OutcomeUnavailable = "unavailable"
)

var (
	PoolReservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_pool_reservations_total",
			Help: "Connection reservation attempts by outcome",
		},
		[]string{"outcome"},
	)

	PoolConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_pool_connections_in_use",
			Help: "Connections currently leased from the gateway",
		},
	)

	PoolDoubleReleasesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_pool_double_releases_total",
			Help: "Release calls on reservations that were already released",
		},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_sessions_active",
			Help: "Registered application sessions",
		},
	)

	SessionEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_session_evictions_total",
			Help: "Sessions ended, by reason",
		},
		[]string{"reason"},
	)

	TasksRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_background_tasks_running",
			Help: "Background tasks currently supervised",
		},
	)

	TaskForcedStopsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_background_task_forced_stops_total",
			Help: "Tasks force-detached after the stop timeout elapsed",
		},
	)

	EventDeliveryFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_event_delivery_failures_total",
			Help: "Subscriber failures during event fan-out, by event kind",
		},
		[]string{"kind"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
