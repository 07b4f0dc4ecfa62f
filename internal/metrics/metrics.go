// Package metrics holds the Prometheus instruments of the decision core.
// A nil *Registry is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the core exports
type Registry struct {
	reg *prometheus.Registry

	SignalOutcomes     *prometheus.CounterVec
	Suppressions       *prometheus.CounterVec
	RiskChecks         *prometheus.CounterVec
	KillSwitchActive   prometheus.Gauge
	EvaluationDuration *prometheus.HistogramVec
	SignalDecisions    *prometheus.CounterVec
	StoreConflicts     prometheus.Counter
	JobRuns            *prometheus.CounterVec
	OracleRequests     *prometheus.CounterVec
}

// New registers all metrics on a private registry.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		SignalOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moves_signal_outcomes_total",
				Help: "Signal evaluation outcomes by result and action",
			},
			[]string{"result", "action"},
		),

		Suppressions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moves_signal_suppressions_total",
				Help: "Suppressed signal candidates by gate",
			},
			[]string{"gate"},
		),

		RiskChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moves_risk_checks_total",
				Help: "Risk check verdicts by check and result (passed, failed, skipped)",
			},
			[]string{"check", "result"},
		),

		KillSwitchActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "moves_kill_switch_active",
				Help: "1 while the kill switch is active",
			},
		),

		EvaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "moves_thesis_evaluation_duration_seconds",
				Help:    "Duration of one thesis evaluation",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"source"},
		),

		SignalDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moves_signal_decisions_total",
				Help: "Signal status transitions by target status",
			},
			[]string{"status"},
		),

		StoreConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "moves_store_conflicts_total",
				Help: "Pending-signal upsert conflicts",
			},
		),

		JobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moves_scheduler_job_runs_total",
				Help: "Scheduler job runs by job and status",
			},
			[]string{"job", "status"},
		),

		OracleRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moves_oracle_requests_total",
				Help: "Market oracle requests by endpoint and result",
			},
			[]string{"endpoint", "result"},
		),
	}

	r.reg.MustRegister(
		r.SignalOutcomes,
		r.Suppressions,
		r.RiskChecks,
		r.KillSwitchActive,
		r.EvaluationDuration,
		r.SignalDecisions,
		r.StoreConflicts,
		r.JobRuns,
		r.OracleRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ObserveOutcome counts one evaluation outcome.
func (r *Registry) ObserveOutcome(result, action, gate string) {
	if r == nil {
		return
	}
	r.SignalOutcomes.WithLabelValues(result, action).Inc()
	if gate != "" {
		r.Suppressions.WithLabelValues(gate).Inc()
	}
}

// ObserveRiskCheck counts one check verdict.
func (r *Registry) ObserveRiskCheck(check string, passed, skipped bool) {
	if r == nil {
		return
	}
	result := "failed"
	switch {
	case skipped:
		result = "skipped"
	case passed:
		result = "passed"
	}
	r.RiskChecks.WithLabelValues(check, result).Inc()
}

// SetKillSwitch mirrors the kill switch state.
func (r *Registry) SetKillSwitch(active bool) {
	if r == nil {
		return
	}
	if active {
		r.KillSwitchActive.Set(1)
	} else {
		r.KillSwitchActive.Set(0)
	}
}

// ObserveEvaluation records how long one thesis evaluation took.
func (r *Registry) ObserveEvaluation(source string, d time.Duration) {
	if r == nil {
		return
	}
	r.EvaluationDuration.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveDecision counts a signal status transition.
func (r *Registry) ObserveDecision(status string) {
	if r == nil {
		return
	}
	r.SignalDecisions.WithLabelValues(status).Inc()
}

// ObserveConflict counts one upsert conflict.
func (r *Registry) ObserveConflict() {
	if r == nil {
		return
	}
	r.StoreConflicts.Inc()
}

// ObserveJob counts one scheduler job run.
func (r *Registry) ObserveJob(job, status string) {
	if r == nil {
		return
	}
	r.JobRuns.WithLabelValues(job, status).Inc()
}

// ObserveOracle counts one oracle request.
func (r *Registry) ObserveOracle(endpoint, result string) {
	if r == nil {
		return
	}
	r.OracleRequests.WithLabelValues(endpoint, result).Inc()
}
