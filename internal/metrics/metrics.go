// Package metrics exposes the gateway's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubview_cache_outcomes_total",
			Help: "Gateway cache decisions by resource class and outcome (hit, not_modified, miss, stale, validator_mismatch, stale_served).",
		},
		[]string{"resource", "outcome"},
	)

	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubview_upstream_requests_total",
			Help: "Upstream API calls by resource class and result (ok, not_modified, error).",
		},
		[]string{"resource", "result"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hubview_upstream_request_duration_seconds",
			Help:    "Upstream API call latency by resource class.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource"},
	)

	SharedFlights = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hubview_shared_flights_total",
			Help: "Requests that joined another caller's in-flight upstream fetch.",
		},
	)
)
