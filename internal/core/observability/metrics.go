// Package observability holds the Prometheus metric families shared by the
// HTTP surface, the upstream client and the cache stores.
package observability

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Upstream fetches by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds, retries included.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		},
		[]string{"endpoint"},
	)

	upstreamRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_retries_total",
			Help: "Retries issued after transport failures.",
		},
		[]string{"endpoint"},
	)

	cacheOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_ops_total",
			Help: "Cache store operations by op and result.",
		},
		[]string{"op", "result"},
	)

	cacheOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Cache store operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
		[]string{"op"},
	)

	cacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Cache lookups per resource by outcome (hit, miss, backup).",
		},
		[]string{"resource", "outcome"},
	)

	snapshotLastUpdate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "snapshot_last_update_timestamp_seconds",
			Help: "Unix time of the last_update carried by each snapshot.",
		},
		[]string{"snapshot"},
	)

	rateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter.",
		},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds,
		upstreamRequestsTotal, upstreamLatencySeconds, upstreamRetriesTotal,
		cacheOpsTotal, cacheOpDurationSeconds, cacheResults,
		snapshotLastUpdate, rateLimitedTotal,
	}
}

// Init registers every metric family on reg. A nil reg means the default
// registerer. Registering twice on the same registry is a no-op.
func Init(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstream(endpoint, outcome string, durationSeconds float64) {
	upstreamRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	upstreamLatencySeconds.WithLabelValues(endpoint).Observe(durationSeconds)
}

func IncUpstreamRetry(endpoint string) {
	upstreamRetriesTotal.WithLabelValues(endpoint).Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheOpsTotal.WithLabelValues(op, result).Inc()
	cacheOpDurationSeconds.WithLabelValues(op).Observe(durationSeconds)
}

func IncCacheHit(resource string)    { cacheResults.WithLabelValues(resource, "hit").Inc() }
func IncCacheMiss(resource string)   { cacheResults.WithLabelValues(resource, "miss").Inc() }
func IncCacheBackup(resource string) { cacheResults.WithLabelValues(resource, "backup").Inc() }

func SetSnapshotLastUpdate(snapshot string, t time.Time) {
	if t.IsZero() {
		return
	}
	snapshotLastUpdate.WithLabelValues(snapshot).Set(float64(t.Unix()))
}

func IncRateLimited() { rateLimitedTotal.Inc() }
