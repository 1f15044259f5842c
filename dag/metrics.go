package dag

import "github.com/prometheus/client_golang/prometheus"

// Metrics exports engine-level execution counters in Prometheus format,
// grounded on ai/metrics/prometheus.go's PrometheusExporter shape
// (per-concern Counter/Gauge fields registered against a caller-supplied
// or freshly created registry).
type Metrics struct {
	registry *prometheus.Registry

	runsStarted   prometheus.Counter
	runsSucceeded prometheus.Counter
	runsFailed    prometheus.Counter
	tasksFailed   prometheus.Counter
	activeTasks   prometheus.Gauge
	queueDepth    prometheus.Gauge
}

// MetricsConfig configures a Metrics exporter.
type MetricsConfig struct {
	// Registry to register against. A fresh prometheus.NewRegistry() is
	// used if nil.
	Registry *prometheus.Registry
}

// NewMetrics builds and registers an engine Metrics exporter.
func NewMetrics(cfg MetricsConfig) *Metrics {
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskdag",
			Name:      "runs_started_total",
			Help:      "Number of times Engine.Start began executing a DAG.",
		}),
		runsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskdag",
			Name:      "runs_succeeded_total",
			Help:      "Number of Engine.Start calls where every task produced an output.",
		}),
		runsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskdag",
			Name:      "runs_failed_total",
			Help:      "Number of Engine.Start calls where at least one task failed.",
		}),
		tasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskdag",
			Name:      "tasks_failed_total",
			Help:      "Number of individual task actions that returned an Error output.",
		}),
		activeTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "taskdag",
			Name:      "active_tasks",
			Help:      "Number of task goroutines currently running their action.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "taskdag",
			Name:      "admission_queue_depth",
			Help:      "Number of task goroutines currently blocked on the worker-count admission gate.",
		}),
	}

	registry.MustRegister(
		m.runsStarted, m.runsSucceeded, m.runsFailed,
		m.tasksFailed, m.activeTasks, m.queueDepth,
	)
	return m
}

// Registry returns the underlying Prometheus registry, for wiring into
// an HTTP handler (e.g. promhttp.HandlerFor) by the caller.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
