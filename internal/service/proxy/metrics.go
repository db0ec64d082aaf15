package proxy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts forwarded story requests. A nil *Metrics records nothing.
type Metrics struct {
	requests  *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

// NewMetrics registers the proxy collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "story_proxy_requests_total",
				Help: "Inbound story requests, partitioned by body kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "story_proxy_fallbacks_total",
				Help: "JSON-wrapped retries after a 404 on a text body, partitioned by result.",
			},
			[]string{"result"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "story_proxy_upstream_duration_seconds",
				Help:    "Latency of calls to the generation backend.",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
			},
			[]string{"attempt"},
		),
	}
}

func (m *Metrics) observeRequest(kind, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) observeFallback(result string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(result).Inc()
}

func (m *Metrics) observeUpstream(attempt string, started time.Time) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(attempt).Observe(time.Since(started).Seconds())
}
