// Package metrics holds the Prometheus collectors of the docsync client and
// the docstore server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Client side.

	Operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docsync", Name: "operations_total", Help: "Controller operations by kind and outcome class."},
		[]string{"op", "outcome"},
	)
	Attempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "docsync", Name: "operation_attempts", Help: "Read-modify-write cycles used per operation.", Buckets: []float64{1, 2, 3, 4, 5, 8}},
		[]string{"op"},
	)
	Conflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docsync", Name: "write_conflicts_total", Help: "Writes rejected because the document changed."},
		[]string{"op"},
	)
	Requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docsync", Name: "store_requests_total", Help: "HTTP requests sent to the store by method and status code."},
		[]string{"method", "code"},
	)

	// Server side.

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docstore", Name: "http_requests_total", Help: "HTTP requests by route and status code."},
		[]string{"method", "route", "code"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "docstore", Name: "http_request_duration_seconds", Help: "HTTP request latency by route.", Buckets: prometheus.DefBuckets},
		[]string{"route"},
	)
	HeadUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docstore", Name: "head_updates_total", Help: "Branch head compare-and-swap attempts by outcome."},
		[]string{"outcome"},
	)
	RateLimitRejected = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "docstore", Name: "rate_limit_rejected_total", Help: "Requests rejected by the rate limiter."},
	)
)

// RegisterClientCollectors registers the client-side collectors.
func RegisterClientCollectors(reg prometheus.Registerer) {
	reg.MustRegister(Operations)
	reg.MustRegister(Attempts)
	reg.MustRegister(Conflicts)
	reg.MustRegister(Requests)
}

// RegisterServerCollectors registers the server-side collectors.
func RegisterServerCollectors(reg prometheus.Registerer) {
	reg.MustRegister(HTTPRequests)
	reg.MustRegister(HTTPDuration)
	reg.MustRegister(HeadUpdates)
	reg.MustRegister(RateLimitRejected)
}
