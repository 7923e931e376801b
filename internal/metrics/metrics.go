// Package metrics holds the Prometheus instruments of the chat service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bappool_chat"

// Message outcomes for MessagesTotal.
const (
	ResultSent        = "sent"
	ResultRejected    = "rejected"
	ResultFailed      = "failed"
	ResultRateLimited = "rate_limited"
)

var (
	// WSConnections is the number of open websocket connections.
	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_connections",
		Help:      "Current number of open websocket connections",
	})

	// EventsTotal counts inbound websocket events by type.
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_events_total",
		Help:      "Inbound websocket events by type",
	}, []string{"type"})

	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_total",
		Help:      "send_message outcomes",
	}, []string{"result"})

	// PersistLatency is the duration of the persist-then-hydrate step.
	PersistLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "message_persist_seconds",
		Help:      "Latency of storing and hydrating one message",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	RelayTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_events_total",
		Help:      "Cross-instance relay events by direction",
	}, []string{"direction"}) // published|delivered|dropped
)

func init() {
	prometheus.MustRegister(
		WSConnections,
		EventsTotal,
		MessagesTotal,
		PersistLatency,
		RelayTotal,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
