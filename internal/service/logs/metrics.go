package logs

import "github.com/prometheus/client_golang/prometheus"

var ingestedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "logwell_logs_ingested_total",
	Help: "Logs persisted through the ingest endpoints.",
}, []string{"level"})

// Collectors returns the metrics owned by this package for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{ingestedTotal}
}
