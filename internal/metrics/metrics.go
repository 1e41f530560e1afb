package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lazywh/lazywh/internal/models"
)

// Drop reasons
const (
	DropMalformed = "malformed"
	DropNoType    = "no_type"
	DropStale     = "stale_scope"
)

var (
	// FramesReceived counts decoded frames by message type
	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazywh_frames_received_total",
			Help: "Realtime frames decoded, by message type",
		},
		[]string{"type"},
	)

	// FramesDropped counts frames discarded before reaching the store
	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazywh_frames_dropped_total",
			Help: "Realtime frames discarded, by reason",
		},
		[]string{"reason"},
	)

	// Reconnects counts scheduled reconnect attempts
	Reconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lazywh_reconnects_total",
			Help: "Reconnect attempts scheduled after abnormal closure",
		},
	)

	// ScopeSwitches counts warehouse switches
	ScopeSwitches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lazywh_scope_switches_total",
			Help: "Warehouse scope switches on the realtime channel",
		},
	)

	// ConnectionState is the current ready state (0 connecting, 1 open, 2 closing, 3 closed)
	ConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lazywh_connection_state",
			Help: "Realtime channel ready state: 0 connecting, 1 open, 2 closing, 3 closed",
		},
	)
)

// RecordFrame counts a decoded frame. Unhandled types share one label.
func RecordFrame(kind string, known bool) {
	if !known {
		kind = "unknown"
	}
	FramesReceived.WithLabelValues(kind).Inc()
}

// RecordDrop counts a discarded frame
func RecordDrop(reason string) {
	FramesDropped.WithLabelValues(reason).Inc()
}

// RecordReconnect counts a scheduled reconnect
func RecordReconnect() {
	Reconnects.Inc()
}

// RecordScopeSwitch counts a warehouse switch
func RecordScopeSwitch() {
	ScopeSwitches.Inc()
}

// SetConnectionState publishes the current ready state
func SetConnectionState(state models.ReadyState) {
	ConnectionState.Set(float64(state))
}
