package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection metrics
var (
	// ActiveConnections tracks currently registered websocket connections.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatrelay_active_connections",
			Help: "Number of currently registered connections",
		},
	)

	// ConnectionsTotal tracks accepted connections by outcome.
	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_connections_total",
			Help: "Total connection attempts by outcome (accepted/rejected)",
		},
		[]string{"outcome"},
	)
)

// Action metrics
var (
	// ActionsTotal tracks dispatched actions by type and status.
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_actions_total",
			Help: "Total dispatched actions by type and status (ok/error/malformed)",
		},
		[]string{"type", "status"},
	)

	// ActionDuration tracks action handling latency in seconds.
	ActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatrelay_action_duration_seconds",
			Help:    "Action handling duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"type"},
	)
)

// Broadcast metrics
var (
	// BroadcastsTotal tracks broadcast fan-outs.
	BroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_broadcasts_total",
			Help: "Total broadcast fan-outs",
		},
	)

	// BroadcastDeliveries tracks individual sends within broadcasts.
	BroadcastDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_broadcast_deliveries_total",
			Help: "Total per-connection broadcast deliveries",
		},
	)

	// BroadcastSendFailures tracks sends that failed and forced a connection close.
	BroadcastSendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_broadcast_send_failures_total",
			Help: "Total broadcast sends that failed and closed the connection",
		},
	)
)

// Keep-alive metrics
var (
	// KeepAlivePingsTotal tracks liveness probes sent.
	KeepAlivePingsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_keepalive_pings_total",
			Help: "Total keep-alive pings sent",
		},
	)

	// KeepAlivePingFailures tracks probes that failed and tore the connection down.
	KeepAlivePingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_keepalive_ping_failures_total",
			Help: "Total keep-alive pings that failed and closed the connection",
		},
	)
)

// Blob store metrics
var (
	// BlobPutsTotal tracks blob store writes by status (stored/duplicate/error).
	BlobPutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_blob_puts_total",
			Help: "Total blob store puts by status (stored/duplicate/error)",
		},
		[]string{"status"},
	)
)
