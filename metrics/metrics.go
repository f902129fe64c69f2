package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petshop_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "petshop_http_request_duration_seconds",
			Help:    "Time taken to serve HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	PetOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petshop_pet_operations_total",
			Help: "Total number of pet service operations",
		},
		[]string{"operation", "outcome"},
	)

	StoreRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petshop_store_retries_total",
			Help: "Total number of retried document store calls",
		},
		[]string{"operation"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petshop_cache_hits_total",
			Help: "Total number of pet cache hits",
		},
		[]string{"backend"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petshop_cache_misses_total",
			Help: "Total number of pet cache misses",
		},
		[]string{"backend"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petshop_cache_errors_total",
			Help: "Total number of pet cache errors",
		},
		[]string{"backend", "operation"},
	)

	// CircuitBreakerState is 0 when closed, 1 when open and 2 when half-open.
	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "petshop_store_circuit_breaker_state",
			Help: "Current state of the document store circuit breaker",
		},
	)
)

var GoroutinePanics = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "petshop_goroutine_panics_total",
		Help: "Total number of panics recovered in background goroutines",
	},
	[]string{"task"},
)
