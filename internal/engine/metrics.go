package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/resonance-desktop/fractal-backend/pkg/types"
)

// metrics holds the prometheus instrumentation for the pipeline.
type metrics struct {
	reg *prometheus.Registry

	tickDuration  prometheus.Histogram
	ordersTotal   prometheus.Counter
	ordersFailed  prometheus.Counter
	coherence     prometheus.Gauge
	patternsGauge prometheus.Gauge
	activeGauge   prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		reg: prometheus.NewRegistry(),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fractal",
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock duration of one pipeline tick.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		ordersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fractal",
			Name:      "orders_total",
			Help:      "Simulated orders produced.",
		}),
		ordersFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fractal",
			Name:      "orders_failed_total",
			Help:      "Simulated orders that cancelled or rejected.",
		}),
		coherence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fractal",
			Name:      "coherence_total",
			Help:      "Composed coherence score of the last tick.",
		}),
		patternsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fractal",
			Name:      "memory_patterns",
			Help:      "Patterns currently held in fractal memory.",
		}),
		activeGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fractal",
			Name:      "active_strategies",
			Help:      "Strategies active after the final activation pass.",
		}),
	}
	m.reg.MustRegister(
		m.tickDuration,
		m.ordersTotal,
		m.ordersFailed,
		m.coherence,
		m.patternsGauge,
		m.activeGauge,
	)
	return m
}

func (m *metrics) observeTick(state *types.SystemState, elapsed time.Duration) {
	m.tickDuration.Observe(elapsed.Seconds())
	m.coherence.Set(state.Coherence.Total)
	m.patternsGauge.Set(float64(state.Health.MemoryPatterns))
	m.activeGauge.Set(float64(len(state.ActiveStrategies)))
	for _, r := range state.Results {
		m.ordersTotal.Inc()
		if !r.Success {
			m.ordersFailed.Inc()
		}
	}
}
