package signaling

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	clients   prometheus.Gauge
	forwarded *prometheus.CounterVec
	dropped   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relayd",
			Name:      "clients",
			Help:      "Endpoints currently connected to the broker.",
		}),
		forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relayd",
			Name:      "signals_forwarded_total",
			Help:      "Signaling messages routed to their target identity.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relayd",
			Name:      "signals_dropped_total",
			Help:      "Signaling messages that could not be routed.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.clients, m.forwarded, m.dropped)
	return m
}
