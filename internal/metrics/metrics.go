package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_connections_active",
		Help: "Number of currently active websocket connections.",
	})

	HandshakeRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_handshakes_rejected_total",
		Help: "Websocket handshakes rejected for missing or invalid sessions.",
	})

	MessagesPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_persisted_total",
		Help: "Messages written to the relational store.",
	})

	EventsBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_events_broadcast_total",
		Help: "Events fanned out to channels, by event type.",
	}, []string{"event"})

	SessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_sessions_created_total",
		Help: "Sessions created, by storage backend.",
	}, []string{"backend"})
)
