// Package metrics defines the Prometheus collectors used by the genome
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	GenomeUploadsTotal   *prometheus.CounterVec
	GenomeBasesUploaded  prometheus.Counter
	SearchesTotal        *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchMatchCount     *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. Tests pass a fresh
// prometheus.NewRegistry(); binaries pass prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		GenomeUploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "genome_uploads_total",
				Help: "Genome uploads by outcome (ok, invalid, duplicate, error).",
			},
			[]string{"status"},
		),
		GenomeBasesUploaded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "genome_bases_uploaded_total",
				Help: "Total sequence bytes across all accepted uploads.",
			},
		),
		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "genome_searches_total",
				Help: "Sequence searches by scope (genome, all) and result type (hit, zero_result, error).",
			},
			[]string{"scope", "result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "genome_search_latency_seconds",
				Help:    "Sequence search latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"scope", "cache_status"},
		),
		SearchMatchCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "genome_search_match_count",
				Help:    "Forward plus reverse matches returned per search.",
				Buckets: []float64{0, 1, 5, 10, 100, 1000, 10000},
			},
			[]string{"scope"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_cache_hits_total",
				Help: "Total number of search result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_cache_misses_total",
				Help: "Total number of search result cache misses.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.GenomeUploadsTotal,
		m.GenomeBasesUploaded,
		m.SearchesTotal,
		m.SearchLatency,
		m.SearchMatchCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
