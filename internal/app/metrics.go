package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vk/flowtree/internal/execlog"
)

// runMetrics exposes process-level observations of finished runs on the
// healthcheck server. These are fed from the execution trace after the fact;
// workflow metrics themselves travel only through Updates.
type runMetrics struct {
	registry      *prometheus.Registry
	nodeTotal     *prometheus.CounterVec
	nodeDurations prometheus.Histogram
}

func newRunMetrics() *runMetrics {
	m := &runMetrics{
		registry: prometheus.NewRegistry(),
		nodeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowtree_node_executions_total",
			Help: "Node executions recorded in the trace, by kind and final status.",
		}, []string{"kind", "status"}),
		nodeDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowtree_node_duration_seconds",
			Help:    "Wall-clock duration of node executions.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
	m.registry.MustRegister(m.nodeTotal, m.nodeDurations)
	return m
}

// observe folds one run's trace entries into the counters.
func (m *runMetrics) observe(entries []execlog.Entry) {
	for _, e := range entries {
		m.nodeTotal.WithLabelValues(e.Kind, e.Status).Inc()
		if !e.EndTime.IsZero() {
			m.nodeDurations.Observe(e.EndTime.Sub(e.StartTime).Seconds())
		}
	}
}
