// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Active connections and rooms
//   - Sample throughput and throttle coalescing
//   - Auth rejections by reason
//   - Dropped connections during broadcast
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all relay collectors, registered on a caller-owned registry
// so tests can create isolated instances. All methods are nil-safe: a nil
// *Metrics disables instrumentation.
type Metrics struct {
	ConnectionsActive  *prometheus.GaugeVec
	RoomsActive        prometheus.Gauge
	SamplesReceived    prometheus.Counter
	SamplesCoalesced   prometheus.Counter
	BroadcastsSent     prometheus.Counter
	AuthFailures       *prometheus.CounterVec
	DroppedConnections prometheus.Counter
}

// New creates and registers all collectors on the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relay_connections_active",
			Help: "Currently connected websocket clients by role.",
		}, []string{"role"}),
		RoomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_rooms_active",
			Help: "Rooms currently resident in memory.",
		}),
		SamplesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_samples_received_total",
			Help: "Publisher location samples accepted.",
		}),
		SamplesCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_samples_coalesced_total",
			Help: "Samples superseded inside a throttle window before broadcast.",
		}),
		BroadcastsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_broadcasts_total",
			Help: "Fan-out broadcasts performed.",
		}),
		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_auth_failures_total",
			Help: "Rejected upgrade attempts by reason.",
		}, []string{"reason"}),
		DroppedConnections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_dropped_connections_total",
			Help: "Connections removed after a failed or slow send.",
		}),
	}

	reg.MustRegister(
		m.ConnectionsActive,
		m.RoomsActive,
		m.SamplesReceived,
		m.SamplesCoalesced,
		m.BroadcastsSent,
		m.AuthFailures,
		m.DroppedConnections,
	)

	return m
}

// ConnOpened increments the active-connection gauge for a role.
func (m *Metrics) ConnOpened(role string) {
	if m == nil {
		return
	}
	m.ConnectionsActive.WithLabelValues(role).Inc()
}

// ConnClosed decrements the active-connection gauge for a role.
func (m *Metrics) ConnClosed(role string) {
	if m == nil {
		return
	}
	m.ConnectionsActive.WithLabelValues(role).Dec()
}

// RoomCreated increments the resident-room gauge.
func (m *Metrics) RoomCreated() {
	if m == nil {
		return
	}
	m.RoomsActive.Inc()
}

// RoomEvicted decrements the resident-room gauge.
func (m *Metrics) RoomEvicted() {
	if m == nil {
		return
	}
	m.RoomsActive.Dec()
}

// SampleReceived counts an accepted publisher sample.
func (m *Metrics) SampleReceived() {
	if m == nil {
		return
	}
	m.SamplesReceived.Inc()
}

// SampleCoalesced counts a sample superseded before broadcast.
func (m *Metrics) SampleCoalesced() {
	if m == nil {
		return
	}
	m.SamplesCoalesced.Inc()
}

// BroadcastSent counts one fan-out broadcast.
func (m *Metrics) BroadcastSent() {
	if m == nil {
		return
	}
	m.BroadcastsSent.Inc()
}

// AuthFailure counts a rejected upgrade by reason.
func (m *Metrics) AuthFailure(reason string) {
	if m == nil {
		return
	}
	m.AuthFailures.WithLabelValues(reason).Inc()
}

// ConnDropped counts a connection removed after a failed send.
func (m *Metrics) ConnDropped() {
	if m == nil {
		return
	}
	m.DroppedConnections.Inc()
}
