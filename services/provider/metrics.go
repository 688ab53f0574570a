package provider

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks upstream provider traffic.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panel",
			Subsystem: "provider",
			Name:      "upstream_requests_total",
			Help:      "Upstream provider API requests by operation and outcome.",
		}, []string{"provider", "op", "outcome"}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "panel",
			Subsystem: "provider",
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream provider API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "op"}),
	}
}

func (m *Metrics) ObserveUpstream(provider, op string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(provider, op, outcome).Inc()
	m.duration.WithLabelValues(provider, op).Observe(elapsed.Seconds())
}
