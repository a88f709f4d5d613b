package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsFileName is written into every run directory. Each run gets its
// own registry, so the file covers that run only.
const MetricsFileName = "metrics.prom"

type metrics struct {
	registry     *prometheus.Registry
	runs         *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	nonzeroExits *prometheus.CounterVec
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &metrics{
		registry: reg,
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "selfimprove_runs_total",
			Help: "Self-improvement runs by final status.",
		}, []string{"status"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "selfimprove_step_duration_seconds",
			Help:    "Duration of each pipeline step.",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 9),
		}, []string{"step"}),
		nonzeroExits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "selfimprove_exec_nonzero_exits_total",
			Help: "Sandbox commands that exited with a nonzero status.",
		}, []string{"step"}),
	}
}

func (m *metrics) observeStep(step string, d time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (m *metrics) writeTo(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
