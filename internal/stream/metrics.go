package stream

import "github.com/prometheus/client_golang/prometheus"

var activeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "logwell_stream_connections",
	Help: "Live log stream connections currently open.",
})

// Collectors returns the metrics owned by this package for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{activeConnections}
}
