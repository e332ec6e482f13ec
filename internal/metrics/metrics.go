// Package metrics defines the Prometheus instrumentation for the hub,
// the per-connection writers, and the credential verifier.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Hub metrics
var (
	// HubConnectedClients tracks the number of live connections
	HubConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_connected_clients",
			Help: "Number of live WebSocket connections",
		},
	)

	// HubAuthenticatedClients tracks connections that completed authentication
	HubAuthenticatedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_authenticated_clients",
			Help: "Number of authenticated WebSocket connections",
		},
	)

	// HubActivePolls tracks polls with at least one subscriber
	HubActivePolls = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_active_polls",
			Help: "Number of polls with at least one subscriber",
		},
	)

	// HubSubscriptions tracks the total connection-to-poll subscription count
	HubSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_subscriptions",
			Help: "Total poll subscriptions across all connections",
		},
	)

	// HubFramesTotal counts inbound frames by type, including malformed ones
	HubFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_frames_total",
			Help: "Inbound frames by type",
		},
		[]string{"type"},
	)

	// HubPublishesTotal counts publish invocations
	HubPublishesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_publishes_total",
			Help: "Total publish invocations",
		},
	)

	// HubMessagesDelivered counts successful fan-out deliveries
	HubMessagesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_messages_delivered_total",
			Help: "Messages delivered to subscribers",
		},
	)

	// HubSendFailures counts failed sends that triggered self-healing eviction
	HubSendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_send_failures_total",
			Help: "Failed sends that evicted the target connection",
		},
	)

	// HubSweeperEvictions counts connections reaped by the liveness sweeper
	HubSweeperEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_sweeper_evictions_total",
			Help: "Connections evicted by the liveness sweeper",
		},
	)

	// HubRejectedConnections counts registrations refused at capacity
	HubRejectedConnections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_rejected_connections_total",
			Help: "Connection registrations rejected at capacity",
		},
	)

	// HubCommandChannelDepth tracks current command channel depth
	HubCommandChannelDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_command_channel_depth",
			Help: "Current hub command channel depth",
		},
	)

	// HubPanicsTotal tracks hub run-loop panic recoveries
	HubPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_panics_total",
			Help: "Total hub panic recoveries",
		},
	)

	// HubStopTimeoutsTotal tracks hub stops that exceeded the stop timeout
	HubStopTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_stop_timeouts_total",
			Help: "Hub stops that exceeded timeout",
		},
	)
)

// WebSocket writer metrics
var (
	// WebSocketMessageSendDuration tracks time spent writing a message to a client
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "WebSocket message send duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
	)

	// WebSocketPingFailures tracks keepalive pings that failed to write
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Keepalive pings that failed to write",
		},
	)
)

// Credential verification metrics
var (
	// AuthVerificationsTotal counts credential checks by outcome
	AuthVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_verifications_total",
			Help: "Credential verifications by status (ok/invalid/error)",
		},
		[]string{"status"},
	)

	// AuthVerificationDuration tracks credential check latency in seconds
	AuthVerificationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auth_verification_duration_seconds",
			Help:    "Credential verification duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2},
		},
	)

	// CircuitBreakerStateChanges tracks breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)
