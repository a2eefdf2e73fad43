package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	upstreamCalls       *prometheus.CounterVec
	upstreamDuration    *prometheus.HistogramVec
	peerCacheHits       prometheus.Counter
	peerCacheMisses     prometheus.Counter
	rateLimitedRequests prometheus.Counter
}

func NewMetrics() *Metrics {
	metrics := &Metrics{
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upstream_rpc_calls_total",
			Help: "The total number of upstream RPC calls by method and outcome",
		}, []string{"method", "outcome"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "upstream_rpc_duration_seconds",
			Help: "The duration of upstream RPC calls by method",
		}, []string{"method"}),
		peerCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peer_cache_hits_total",
			Help: "The total number of peer listings served from the cache",
		}),
		peerCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peer_cache_misses_total",
			Help: "The total number of peer listings recomputed from the daemon",
		}),
		rateLimitedRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rate_limited_requests_total",
			Help: "The total number of requests rejected by the rate limiter",
		}),
	}
	metrics.register()
	return metrics
}

func (m *Metrics) register() {
	prometheus.MustRegister(m.upstreamCalls)
	prometheus.MustRegister(m.upstreamDuration)
	prometheus.MustRegister(m.peerCacheHits)
	prometheus.MustRegister(m.peerCacheMisses)
	prometheus.MustRegister(m.rateLimitedRequests)
}

func (m *Metrics) ObserveUpstreamCall(method string, outcome string, duration time.Duration) {
	m.upstreamCalls.WithLabelValues(method, outcome).Inc()
	m.upstreamDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (m *Metrics) IncrementPeerCacheHits() {
	m.peerCacheHits.Inc()
}

func (m *Metrics) IncrementPeerCacheMisses() {
	m.peerCacheMisses.Inc()
}

func (m *Metrics) IncrementRateLimitedRequests() {
	m.rateLimitedRequests.Inc()
}
