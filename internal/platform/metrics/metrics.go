package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medication-adherence/internal/domain/schedule"
)

const namespace = "adherence"

// Metrics agrupa los collectors del servicio en un registry propio
// (así cada router de test tiene el suyo y no hay registros duplicados).
// Todos los métodos aceptan receiver nil.
type Metrics struct {
	registry *prometheus.Registry

	slots             *prometheus.CounterVec
	warnings          *prometheus.CounterVec
	doseLogs          *prometheus.CounterVec
	sweeps            *prometheus.CounterVec
	reconcileDuration prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		slots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slots_generated_total",
			Help:      "Dose slots produced by the reconciler, by status.",
		}, []string{"status"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_warnings_total",
			Help:      "Data-quality warnings reported by the reconciler, by kind.",
		}, []string{"kind"}),
		doseLogs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dose_logs_total",
			Help:      "Dose logs persisted, by status and late-logging decision.",
		}, []string{"status", "decision"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeper_runs_total",
			Help:      "Missed-dose sweeper runs, by result.",
		}, []string{"result"}),
		reconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Time spent fetching and reconciling a schedule.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.slots,
		m.warnings,
		m.doseLogs,
		m.sweeps,
		m.reconcileDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveReconcile(results []schedule.Result, took time.Duration) {
	if m == nil {
		return
	}
	m.reconcileDuration.Observe(took.Seconds())
	for _, r := range results {
		for _, s := range r.Slots {
			m.slots.WithLabelValues(string(s.Status)).Inc()
		}
		for _, w := range r.Warnings {
			m.warnings.WithLabelValues(string(w.Kind)).Inc()
		}
	}
}

func (m *Metrics) RecordDoseLog(status schedule.DoseStatus, decision schedule.LateDecision) {
	if m == nil {
		return
	}
	if decision == "" {
		decision = "n/a"
	}
	m.doseLogs.WithLabelValues(string(status), string(decision)).Inc()
}

func (m *Metrics) RecordSweep(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.sweeps.WithLabelValues(result).Inc()
}
