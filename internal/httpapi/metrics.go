package httpapi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PollerMetrics is a Prometheus-backed sourcepoller.Metrics.
type PollerMetrics struct {
	duration *prometheus.HistogramVec
	upserts  *prometheus.CounterVec
}

// NewPollerMetrics registers and returns a PollerMetrics.
func NewPollerMetrics(reg prometheus.Registerer) *PollerMetrics {
	m := &PollerMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vllm_bench",
			Subsystem: "source_poller",
			Name:      "tick_duration_seconds",
			Help:      "Duration of a Source Poller tick, labeled by project and outcome.",
		}, []string{"project_id", "ok"}),
		upserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vllm_bench",
			Subsystem: "source_poller",
			Name:      "file_upserts_total",
			Help:      "Files upserted into the Manifest Store by the Source Poller.",
		}, []string{"project_id"}),
	}
	reg.MustRegister(m.duration, m.upserts)
	return m
}

// ObservePoll implements sourcepoller.Metrics.
func (m *PollerMetrics) ObservePoll(projectID string, ok bool, duration time.Duration, upserts int) {
	m.duration.WithLabelValues(projectID, boolLabel(ok)).Observe(duration.Seconds())
	m.upserts.WithLabelValues(projectID).Add(float64(upserts))
}

// ReconcilerMetrics counts Deployment Tracker reconciliation sweeps.
type ReconcilerMetrics struct {
	sweeps *prometheus.CounterVec
}

// NewReconcilerMetrics registers and returns a ReconcilerMetrics.
func NewReconcilerMetrics(reg prometheus.Registerer) *ReconcilerMetrics {
	m := &ReconcilerMetrics{
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vllm_bench",
			Subsystem: "deployment_tracker",
			Name:      "reconcile_sweeps_total",
			Help:      "Deployment Tracker reconciliation sweeps.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.sweeps)
	return m
}

// ObserveSweep records one reconciliation sweep's outcome.
func (m *ReconcilerMetrics) ObserveSweep(outcome string) {
	m.sweeps.WithLabelValues(outcome).Inc()
}

// EvalSchedulerMetrics is a Prometheus-backed evaluation sweep observer.
type EvalSchedulerMetrics struct {
	fired *prometheus.CounterVec
}

// NewEvalSchedulerMetrics registers and returns an EvalSchedulerMetrics.
func NewEvalSchedulerMetrics(reg prometheus.Registerer) *EvalSchedulerMetrics {
	m := &EvalSchedulerMetrics{
		fired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vllm_bench",
			Subsystem: "evaluation_scheduler",
			Name:      "tasks_fired_total",
			Help:      "Evaluation tasks fired by the sweeper, labeled by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.fired)
	return m
}

// ObserveFire records one task firing's outcome ("completed" or
// "failed").
func (m *EvalSchedulerMetrics) ObserveFire(outcome string) {
	m.fired.WithLabelValues(outcome).Inc()
}

// BridgeMetrics is a Prometheus-backed registrybridge.Metrics.
type BridgeMetrics struct {
	duration *prometheus.HistogramVec
	created  prometheus.Counter
	updated  prometheus.Counter
}

// NewBridgeMetrics registers and returns a BridgeMetrics.
func NewBridgeMetrics(reg prometheus.Registerer) *BridgeMetrics {
	m := &BridgeMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vllm_bench",
			Subsystem: "registry_bridge",
			Name:      "tick_duration_seconds",
			Help:      "Duration of a Registry-to-Source Bridge tick.",
		}, []string{"ok"}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vllm_bench",
			Subsystem: "registry_bridge",
			Name:      "applications_created_total",
			Help:      "New application manifests rendered by the Registry-to-Source Bridge.",
		}),
		updated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vllm_bench",
			Subsystem: "registry_bridge",
			Name:      "applications_updated_total",
			Help:      "Existing application manifests whose global block was rewritten.",
		}),
	}
	reg.MustRegister(m.duration, m.created, m.updated)
	return m
}

// ObserveTick implements registrybridge.Metrics.
func (m *BridgeMetrics) ObserveTick(ok bool, duration time.Duration, created, updated int) {
	m.duration.WithLabelValues(boolLabel(ok)).Observe(duration.Seconds())
	m.created.Add(float64(created))
	m.updated.Add(float64(updated))
}

func boolLabel(ok bool) string {
	if ok {
		return "true"
	}
	return "false"
}
