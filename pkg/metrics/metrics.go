package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custom404_http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"method", "status", "route"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "custom404_http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status", "route"},
	)
	PagesRenderedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "custom404_pages_rendered_total",
			Help: "Total number of not-found pages rendered.",
		},
	)

	// Catalog Metrics
	CatalogDrawsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custom404_catalog_draws_total",
			Help: "Total number of image identifiers drawn.",
		},
		[]string{"mode"}, // pool or pick
	)
	CatalogReshufflesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "custom404_catalog_reshuffles_total",
			Help: "Total number of working pool reshuffles after exhaustion.",
		},
	)

	// Watermark Metrics
	WatermarkDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "custom404_watermark_duration_seconds",
			Help:    "Duration of load, draw and encode for one watermark request.",
			Buckets: prometheus.DefBuckets,
		},
	)
	WatermarkFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custom404_watermark_failures_total",
			Help: "Total number of silently failed watermark requests.",
		},
		[]string{"state"},
	)
	RefreshTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "custom404_refresh_total",
			Help: "Total number of image refreshes requested.",
		},
	)

	// Cache Metrics
	CacheOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custom404_cache_ops_total",
			Help: "Total number of cache operations.",
		},
		[]string{"type"}, // hit or miss
	)

	// Storage Metrics
	S3FetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "custom404_s3_fetch_duration_seconds",
			Help:    "Duration of S3 fetch operations.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Init registers all metrics with Prometheus
func Init() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(PagesRenderedTotal)
	prometheus.MustRegister(CatalogDrawsTotal)
	prometheus.MustRegister(CatalogReshufflesTotal)
	prometheus.MustRegister(WatermarkDuration)
	prometheus.MustRegister(WatermarkFailuresTotal)
	prometheus.MustRegister(RefreshTotal)
	prometheus.MustRegister(CacheOpsTotal)
	prometheus.MustRegister(S3FetchDuration)
}
