package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type pipelineMetrics struct {
	activeRuns  prometheus.Gauge
	runTotal    *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	turnTotal    *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec

	invocationErrors  *prometheus.CounterVec
	selectorDecisions *prometheus.CounterVec

	snapshotTotal    *prometheus.CounterVec
	snapshotDuration *prometheus.HistogramVec

	providerCallTotal    *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec
	providerFailover     *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *pipelineMetrics
)

func getMetrics() *pipelineMetrics {
	metricsOnce.Do(func() {
		m := &pipelineMetrics{
			activeRuns: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "triad_active_runs",
					Help: "Runs currently in the running state.",
				},
			),
			runTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "triad_run_total",
					Help: "Finished runs by status and outcome.",
				},
				[]string{"status", "outcome"},
			),
			runDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "triad_run_duration_seconds",
					Help:    "Active run time in seconds by outcome.",
					Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
				},
				[]string{"outcome"},
			),
			turnTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "triad_turn_total",
					Help: "Role turns by role and status.",
				},
				[]string{"role", "status"},
			),
			turnDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "triad_turn_duration_seconds",
					Help:    "Role invocation duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"role"},
			),
			invocationErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "triad_invocation_errors_total",
					Help: "Model invocation errors by role and error kind.",
				},
				[]string{"role", "kind"},
			),
			selectorDecisions: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "triad_selector_decisions_total",
					Help: "Speaker selection decisions by selector and path.",
				},
				[]string{"selector", "path"},
			),
			snapshotTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "triad_snapshot_total",
					Help: "Snapshot operations by operation and status.",
				},
				[]string{"op", "status"},
			),
			snapshotDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "triad_snapshot_duration_seconds",
					Help:    "Snapshot operation duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"op"},
			),
			providerCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "triad_provider_call_total",
					Help: "Model provider calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			providerCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "triad_provider_call_duration_seconds",
					Help:    "Model provider call duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			providerFailover: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "triad_provider_failover_total",
					Help: "Failovers away from a provider profile.",
				},
				[]string{"profile"},
			),
		}

		prometheus.MustRegister(
			m.activeRuns,
			m.runTotal,
			m.runDuration,
			m.turnTotal,
			m.turnDuration,
			m.invocationErrors,
			m.selectorDecisions,
			m.snapshotTotal,
			m.snapshotDuration,
			m.providerCallTotal,
			m.providerCallDuration,
			m.providerFailover,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordRunStarted() {
	getMetrics().activeRuns.Inc()
}

func RecordRunFinished(status, outcome string, elapsed time.Duration) {
	m := getMetrics()
	m.activeRuns.Dec()
	m.runTotal.WithLabelValues(status, outcome).Inc()
	m.runDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func RecordTurn(role string, duration time.Duration, success bool) {
	m := getMetrics()
	m.turnTotal.WithLabelValues(role, statusLabel(success)).Inc()
	m.turnDuration.WithLabelValues(role).Observe(duration.Seconds())
}

func RecordInvocationError(role, kind string) {
	getMetrics().invocationErrors.WithLabelValues(role, kind).Inc()
}

// RecordSelection counts which path a selector took: rule, model, cache, fallback or none.
func RecordSelection(selector, path string) {
	getMetrics().selectorDecisions.WithLabelValues(selector, path).Inc()
}

func RecordSnapshot(op string, duration time.Duration, success bool) {
	m := getMetrics()
	m.snapshotTotal.WithLabelValues(op, statusLabel(success)).Inc()
	m.snapshotDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func RecordProviderCall(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	m.providerCallTotal.WithLabelValues(provider, statusLabel(success)).Inc()
	m.providerCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordProviderFailover(profile string) {
	getMetrics().providerFailover.WithLabelValues(profile).Inc()
}
