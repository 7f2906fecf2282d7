package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream"},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Cache lookups by outcome and tier.",
		},
		[]string{"outcome", "tier"},
	)

	cacheOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Duration of durable cache operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "backend", "ok"},
	)

	scoreComputationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "score_computations_total",
			Help: "Per-point-hour score computations by method.",
		},
		[]string{"method"},
	)

	backgroundRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_refresh_total",
			Help: "Stale-while-revalidate background refreshes by outcome.",
		},
		[]string{"outcome"},
	)

	invalidationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mask_invalidation_total",
			Help: "Mask invalidation events processed by outcome.",
		},
		[]string{"outcome"},
	)

	invalidationDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mask_invalidation_duration_seconds",
			Help:    "Time to process one invalidation event.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

func IncCacheHit(tier string) {
	cacheResults.WithLabelValues("hit", tier).Inc()
}

func IncCacheStale(tier string) {
	cacheResults.WithLabelValues("stale", tier).Inc()
}

func IncCacheMiss(tier string) {
	cacheResults.WithLabelValues("miss", tier).Inc()
}

func ObserveCacheOp(op, backend string, err error, durationSeconds float64) {
	ok := "true"
	if err != nil {
		ok = "false"
	}
	cacheOpDurationSeconds.WithLabelValues(op, backend, ok).Observe(durationSeconds)
}

func IncScore(method string) {
	scoreComputationsTotal.WithLabelValues(method).Inc()
}

func IncRefresh(outcome string) {
	backgroundRefreshTotal.WithLabelValues(outcome).Inc()
}

func ObserveInvalidation(dur time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	invalidationTotal.WithLabelValues(outcome).Inc()
	invalidationDurationSeconds.Observe(dur.Seconds())
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
