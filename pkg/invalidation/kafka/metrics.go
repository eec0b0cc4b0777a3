package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
)

type runnerMetrics struct {
	messages *prometheus.CounterVec   // result: ok, error, invalid
	keys     *prometheus.CounterVec   // action: delete, skip_version
	duration *prometheus.HistogramVec // op
	lag      prometheus.Gauge
}

// newRunnerMetrics registers on reg when it is non-nil. tracked reports the
// number of keys in the version memory.
func newRunnerMetrics(reg prometheus.Registerer, tracked func() float64) *runnerMetrics {
	m := &runnerMetrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invalidation_messages_total",
			Help: "Invalidation messages by result.",
		}, []string{"result"}),
		keys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invalidation_keys_total",
			Help: "Cache keys named by invalidation events, by action taken.",
		}, []string{"action"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "invalidation_apply_seconds",
			Help:    "Time to apply one invalidation event.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"op"}),
		lag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "invalidation_lag_seconds",
			Help: "Age of the last consumed message.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.messages, m.keys, m.duration, m.lag,
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "invalidation_tracked_keys",
				Help: "Keys held in the invalidation version memory.",
			}, tracked))
	}
	return m
}
