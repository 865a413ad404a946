// Package metrics exposes Prometheus metrics for reconciliation runs.
package metrics

import (
	"net/http"
	"time"

	"squad-reconciler/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

const (
	defaultNamespace = "squad"
	defaultSubsystem = "reconcile"
)

type Option func(*Manager)

func WithNamespace(namespace string) Option {
	return func(m *Manager) { m.namespace = namespace }
}

func WithSubsystem(subsystem string) Option {
	return func(m *Manager) { m.subsystem = subsystem }
}

func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) { m.histogramBuckets = buckets }
}

// WithRegistry replaces the private registry, mostly for tests.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) { m.registry = registry }
}

type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	// checks
	checksTotal    *prometheus.CounterVec
	checkDuration  prometheus.Histogram
	issuesLast     *prometheus.GaugeVec
	issuesTotal    *prometheus.CounterVec
	orphansLast    prometheus.Gauge
	mismatchesLast prometheus.Gauge

	// repairs
	repairsTotal       *prometheus.CounterVec
	repairDuration     prometheus.Histogram
	repairStepsTotal   *prometheus.CounterVec
	purgedReferences   prometheus.Counter
	eventStatCountLast prometheus.Gauge
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        defaultNamespace,
		subsystem:        defaultSubsystem,
		histogramBuckets: prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.checksTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "checks_total",
		Help:      "Validation runs by result",
	}, []string{"result"})

	m.checkDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "check_duration_seconds",
		Help:      "Duration of a full load, validate and summarise run",
		Buckets:   m.histogramBuckets,
	})

	m.issuesLast = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "issues",
		Help:      "Issues found by the most recent check, by kind",
	}, []string{"kind"})

	m.issuesTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "issues_total",
		Help:      "Issues found across all checks, by severity",
	}, []string{"severity"})

	m.orphansLast = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "orphaned_references",
		Help:      "Orphaned player references seen by the most recent check",
	})

	m.mismatchesLast = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mismatched_comparisons",
		Help:      "Cross-layer comparisons with a mismatch in the most recent check",
	})

	m.repairsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "repairs_total",
		Help:      "Repair runs by result",
	}, []string{"result"})

	m.repairDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "repair_duration_seconds",
		Help:      "Duration of repair including re-validation",
		Buckets:   m.histogramBuckets,
	})

	m.repairStepsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "repair_steps_total",
		Help:      "Repair steps by name and final state",
	}, []string{"step", "state"})

	m.purgedReferences = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "purged_references_total",
		Help:      "Orphaned references removed from selections",
	})

	m.eventStatCountLast = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "event_stats",
		Help:      "Event stat rows counted by the last repair verify step",
	})
}

func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Manager) RecordCheck(report *domain.ReconciliationReport, duration time.Duration) {
	m.checksTotal.WithLabelValues("ok").Inc()
	m.checkDuration.Observe(duration.Seconds())
	for kind, n := range report.ByKind {
		m.issuesLast.WithLabelValues(string(kind)).Set(float64(n))
	}
	for severity, n := range report.BySeverity {
		m.issuesTotal.WithLabelValues(string(severity)).Add(float64(n))
	}
	m.orphansLast.Set(float64(report.OrphanCount))
	m.mismatchesLast.Set(float64(report.MismatchCount))
}

func (m *Manager) RecordCheckError() {
	m.checksTotal.WithLabelValues("error").Inc()
}

func (m *Manager) RecordRepair(outcome *domain.RepairOutcome, duration time.Duration) {
	result := "ok"
	if !outcome.Success {
		result = "degraded"
	}
	m.repairsTotal.WithLabelValues(result).Inc()
	m.repairDuration.Observe(duration.Seconds())
	for _, s := range outcome.Steps {
		m.repairStepsTotal.WithLabelValues(string(s.Name), string(s.State)).Inc()
	}
	m.purgedReferences.Add(float64(outcome.PurgedReferences))
	m.eventStatCountLast.Set(float64(outcome.EventStatCount))
}

func (m *Manager) RecordRepairError() {
	m.repairsTotal.WithLabelValues("error").Inc()
}

var Module = fx.Provide(func() *Manager { return NewManager() })
