// Package metrics registers the engine's prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the engine metrics with their prometheus registry.
type Registry struct {
	Prom *prometheus.Registry

	RunsTotal      *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	ChassisTotal   *prometheus.CounterVec
	GateTotal      *prometheus.CounterVec
	LeakageBlocked prometheus.Counter
}

// New builds and registers all instruments on a fresh registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		Prom: reg,
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "velo_engine_runs_total",
			Help: "Engine runs by final status.",
		}, []string{"status"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "velo_stage_duration_seconds",
			Help:    "Pipeline stage wall time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		ChassisTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "velo_chassis_total",
			Help: "Decision verdicts by chassis type.",
		}, []string{"chassis"}),
		GateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "velo_learning_gate_total",
			Help: "Learning gate outcomes.",
		}, []string{"status"}),
		LeakageBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "velo_leakage_blocked_total",
			Help: "Frames rejected by the leakage firewall.",
		}),
	}

	reg.MustRegister(m.RunsTotal, m.StageDuration, m.ChassisTotal, m.GateTotal, m.LeakageBlocked)
	return m
}
