package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "drawsync_connected_clients",
		Help: "Number of currently connected collaboration sessions.",
	})

	metricMessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drawsync_messages_received_total",
		Help: "Inbound collaboration messages by type.",
	}, []string{"type"})

	metricParseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drawsync_parse_errors_total",
		Help: "Inbound messages dropped because the envelope failed to parse.",
	})

	metricBroadcastDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drawsync_broadcast_deliveries_total",
		Help: "Per-recipient broadcast deliveries that were accepted.",
	})

	metricBroadcastFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drawsync_broadcast_failures_total",
		Help: "Per-recipient broadcast deliveries that failed.",
	})
)
