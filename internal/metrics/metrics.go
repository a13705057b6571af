package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesReceived counts decoded wire messages by discriminator.
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_messages_received_total",
			Help: "Total number of wire messages received from the live feed",
		},
		[]string{"type"},
	)

	// DecodeFailures counts inbound frames dropped as malformed.
	DecodeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_decode_failures_total",
			Help: "Total number of inbound frames dropped due to decode errors",
		},
	)

	// Reconnects counts scheduled feed reconnection attempts.
	Reconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_reconnects_total",
			Help: "Total number of feed reconnection attempts scheduled",
		},
	)

	// FeedConnected is 1 while the upstream feed connection is established.
	FeedConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feed_connected",
			Help: "Whether the upstream feed connection is currently established",
		},
	)

	// SeriesPoints counts telemetry points appended across all series.
	SeriesPoints = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telemetry_points_total",
			Help: "Total number of telemetry points appended to series",
		},
	)

	// ActiveDevices tracks devices currently marked online.
	ActiveDevices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_devices",
			Help: "Number of devices currently marked online",
		},
	)

	// HubClients tracks connected live-view websocket clients.
	HubClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_clients",
			Help: "Number of connected live-view websocket clients",
		},
	)

	// SnapshotOps counts persistence operations by backend and outcome.
	SnapshotOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_operations_total",
			Help: "Total number of snapshot save/load operations",
		},
		[]string{"operation", "status"},
	)

	// FaultAlerts counts machine-state fault notifications published.
	FaultAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fault_alerts_total",
			Help: "Total number of fault alerts published",
		},
		[]string{"device_id"},
	)
)
