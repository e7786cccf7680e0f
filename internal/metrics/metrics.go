package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "searchai"

var (
	// UpstreamCalls counts model calls by operation (listing, summary,
	// domain, chat) and result (ok, error).
	UpstreamCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_calls_total",
			Help:      "Total number of upstream model calls",
		},
		[]string{"op", "result"},
	)

	RelayConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_connections",
			Help:      "Number of open realtime connections",
		},
	)

	RelayEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_events_total",
			Help:      "Total number of inbound realtime events",
		},
		[]string{"event", "result"},
	)

	ChatSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chat_sessions",
			Help:      "Number of live chat conversations",
		},
	)
)

func init() {
	prometheus.MustRegister(UpstreamCalls)
	prometheus.MustRegister(RelayConnections)
	prometheus.MustRegister(RelayEvents)
	prometheus.MustRegister(ChatSessions)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
