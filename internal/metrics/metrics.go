// Package metrics exposes Prometheus instruments for the collaboration server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "collabsync"

// Metrics groups every instrument the server records.
type Metrics struct {
	ActiveRooms        prometheus.Gauge
	ActiveParticipants prometheus.Gauge
	Connections        prometheus.Gauge
	Events             *prometheus.CounterVec
	EventDuration      *prometheus.HistogramVec
	DroppedClients     prometheus.Counter
	RoomEvictions      *prometheus.CounterVec
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Rooms currently held in memory.",
		}),
		ActiveParticipants: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_participants",
			Help:      "Sessions joined to a room, summed over rooms.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Open websocket connections.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound websocket events by name and result.",
		}, []string{"event", "result"}),
		EventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Time to handle an inbound websocket event.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),
		DroppedClients: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_clients_total",
			Help:      "Clients disconnected because their outbound queue was full.",
		}),
		RoomEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_evictions_total",
			Help:      "Rooms evicted after their grace period, by whether dirty state was flushed.",
		}, []string{"flushed"}),
	}

	reg.MustRegister(
		m.ActiveRooms,
		m.ActiveParticipants,
		m.Connections,
		m.Events,
		m.EventDuration,
		m.DroppedClients,
		m.RoomEvictions,
	)
	return m
}

// ObserveEvent records one handled event.
func (m *Metrics) ObserveEvent(event string, err error, started time.Time) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Events.WithLabelValues(event, result).Inc()
	m.EventDuration.WithLabelValues(event).Observe(time.Since(started).Seconds())
}
