// Package metrics holds the Prometheus collectors of the key server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyserver_validations_total",
			Help: "License validations by outcome and denial reason.",
		},
		[]string{"outcome", "reason"},
	)

	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyserver_store_errors_total",
			Help: "Failed document store operations.",
		},
		[]string{"operation"},
	)

	MirrorFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyserver_mirror_failures_total",
			Help: "Mirror writes that failed in best-effort mode.",
		},
		[]string{"document"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MustRegister registers every collector with reg.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		ValidationsTotal,
		StoreErrorsTotal,
		MirrorFailuresTotal,
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
	)
}
