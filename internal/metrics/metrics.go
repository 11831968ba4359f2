package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ConnectedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "snipchat_connected_clients",
			Help: "Number of websocket clients currently connected.",
		},
	)

	FeedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snipchat_feed_events_total",
			Help: "Total change-feed events published.",
		},
		[]string{"relation", "op"},
	)

	MessagesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snipchat_messages_sent_total",
			Help: "Total messages accepted for delivery.",
		},
	)

	CallsStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snipchat_calls_started_total",
			Help: "Total call creation attempts.",
		},
		[]string{"result"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snipchat_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
)

func MustRegister() {
	prometheus.MustRegister(
		ConnectedClients,
		FeedEventsTotal,
		MessagesSentTotal,
		CallsStartedTotal,
		HTTPRequestsTotal,
	)
}
