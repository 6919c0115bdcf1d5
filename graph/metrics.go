package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for workflow execution.
//
// Exposed series, all under the "biflow" namespace:
//
//   - inflight_runs (gauge): runs currently executing.
//   - step_latency_ms (histogram, labels node_id/status): node invocation
//     duration. Status is one of ok, error, timeout.
//   - retries_total (counter, label edge): loop edge traversals.
//   - run_outcomes_total (counter, labels outcome/reason): terminal
//     outcomes per run.
//
// Register with a dedicated registry for isolation:
//
//	reg := prometheus.NewRegistry()
//	exec := graph.NewExecutor(g, graph.WithMetrics(graph.NewMetrics(reg)))
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
type Metrics struct {
	inflightRuns prometheus.Gauge
	stepLatency  *prometheus.HistogramVec
	retries      *prometheus.CounterVec
	outcomes     *prometheus.CounterVec
}

// NewMetrics creates and registers the execution metrics. A nil registry
// uses the global default registerer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)
	return &Metrics{
		inflightRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "biflow",
			Name:      "inflight_runs",
			Help:      "Number of workflow runs currently executing.",
		}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "biflow",
			Name:      "step_latency_ms",
			Help:      "Node invocation duration in milliseconds.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
		}, []string{"node_id", "status"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "biflow",
			Name:      "retries_total",
			Help:      "Loop edge traversals by edge name.",
		}, []string{"edge"}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "biflow",
			Name:      "run_outcomes_total",
			Help:      "Terminal run outcomes.",
		}, []string{"outcome", "reason"}),
	}
}

func (m *Metrics) runStarted() {
	if m == nil {
		return
	}
	m.inflightRuns.Inc()
}

func (m *Metrics) runFinished(outcome Outcome, reason string) {
	if m == nil {
		return
	}
	m.inflightRuns.Dec()
	m.outcomes.WithLabelValues(string(outcome), reason).Inc()
}

func (m *Metrics) observeStep(nodeID string, outcome StepOutcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	var status string
	switch outcome {
	case StepOK:
		status = "ok"
	case StepTimeout:
		status = "timeout"
	default:
		status = "error"
	}
	m.stepLatency.WithLabelValues(nodeID, status).Observe(float64(elapsed.Milliseconds()))
}

func (m *Metrics) observeRetry(edge string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(edge).Inc()
}
