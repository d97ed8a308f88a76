package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the chat gateway.
type Metrics struct {
	// Chat requests by outcome: ok, rate_limited, bad_request, exhausted, error.
	ChatRequests *prometheus.CounterVec

	ProviderAttempts *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec

	RateLimiterEntries prometheus.Gauge
}

// New registers the collectors on reg. A nil reg uses a private registry, which keeps
// tests from colliding on the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		ChatRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellness",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Chat requests by outcome.",
		}, []string{"outcome"}),

		ProviderAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellness",
			Subsystem: "provider",
			Name:      "attempts_total",
			Help:      "Provider calls by provider and outcome.",
		}, []string{"provider", "outcome"}),

		ProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wellness",
			Subsystem: "provider",
			Name:      "duration_seconds",
			Help:      "Provider call latency in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 60},
		}, []string{"provider"}),

		RateLimiterEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "wellness",
			Subsystem: "ratelimit",
			Name:      "entries",
			Help:      "Client windows currently tracked by the rate limiter.",
		}),
	}
}

func (m *Metrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.ChatRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveProvider(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ProviderAttempts.WithLabelValues(provider, outcome).Inc()
	m.ProviderLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (m *Metrics) SetRateLimiterEntries(n int) {
	if m == nil {
		return
	}
	m.RateLimiterEntries.Set(float64(n))
}
