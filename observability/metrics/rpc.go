package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type RPCMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	limited  prometheus.Counter
}

var (
	rpcOnce     sync.Once
	rpcRegistry *RPCMetrics
)

// RPC returns the JSON-RPC server metrics.
func RPC() *RPCMetrics {
	rpcOnce.Do(func() {
		rpcRegistry = &RPCMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ndx",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "JSON-RPC requests by method and response code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ndx",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "JSON-RPC handler latency.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			limited: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ndx",
				Subsystem: "rpc",
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter.",
			}),
		}
		prometheus.MustRegister(rpcRegistry.requests, rpcRegistry.latency, rpcRegistry.limited)
	})
	return rpcRegistry
}

func (m *RPCMetrics) Observe(method, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.requests.WithLabelValues(method, code).Inc()
	m.latency.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *RPCMetrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.limited.Inc()
}
