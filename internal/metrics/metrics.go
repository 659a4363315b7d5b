// Package metrics exposes the gateway's Prometheus collectors. They are
// registered once on the default registry and served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatgate",
		Name:      "connections_open",
		Help:      "Open WebSocket connections on this process.",
	})

	OnlineActors = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatgate",
		Name:      "online_actors",
		Help:      "Actors with at least one open connection on this process.",
	})

	EventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatgate",
		Name:      "events_delivered_total",
		Help:      "Events queued to a connection, by fan-out scope.",
	}, []string{"scope"})

	DeliveriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatgate",
		Name:      "deliveries_dropped_total",
		Help:      "Events not queued because the recipient was closed or its buffer was full.",
	})

	LifecycleOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatgate",
		Name:      "lifecycle_ops_total",
		Help:      "Message lifecycle operations by operation and result code.",
	}, []string{"op", "code"})

	LastSeenWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatgate",
		Name:      "last_seen_write_failures_total",
		Help:      "Disconnects whose last-seen write failed.",
	})
)

// ObserveOp counts one lifecycle operation. An empty code means success.
func ObserveOp(op, code string) {
	if code == "" {
		code = "ok"
	}
	LifecycleOps.WithLabelValues(op, code).Inc()
}
