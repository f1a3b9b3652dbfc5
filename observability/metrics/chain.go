package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type ChainMetrics struct {
	blocks      prometheus.Counter
	height      prometheus.Gauge
	transitions *prometheus.CounterVec
	events      *prometheus.CounterVec
}

var (
	chainOnce     sync.Once
	chainRegistry *ChainMetrics
)

// Chain returns the lazily registered ledger metrics.
func Chain() *ChainMetrics {
	chainOnce.Do(func() {
		chainRegistry = &ChainMetrics{
			blocks: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ndx",
				Subsystem: "chain",
				Name:      "blocks_total",
				Help:      "Number of sealed blocks.",
			}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "ndx",
				Subsystem: "chain",
				Name:      "height",
				Help:      "Height of the latest sealed block.",
			}),
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ndx",
				Subsystem: "chain",
				Name:      "transitions_total",
				Help:      "State transitions segmented by kind and result.",
			}, []string{"kind", "result"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ndx",
				Subsystem: "chain",
				Name:      "events_total",
				Help:      "Committed events by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(
			chainRegistry.blocks,
			chainRegistry.height,
			chainRegistry.transitions,
			chainRegistry.events,
		)
	})
	return chainRegistry
}

func (m *ChainMetrics) ObserveBlock(height uint64) {
	if m == nil {
		return
	}
	m.blocks.Inc()
	m.height.Set(float64(height))
}

func (m *ChainMetrics) ObserveTransition(kind string, ok bool) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	result := "ok"
	if !ok {
		result = "reverted"
	}
	m.transitions.WithLabelValues(kind, result).Inc()
}

func (m *ChainMetrics) ObserveEvent(eventType string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.events.WithLabelValues(eventType).Inc()
}
