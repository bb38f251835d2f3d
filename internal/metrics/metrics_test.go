package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllInstruments(t *testing.T) {
	m := New()

	m.RunsTotal.WithLabelValues("completed").Inc()
	m.StageDuration.WithLabelValues("ingest").Observe(0.012)
	m.ChassisTotal.WithLabelValues("Win_Overlay").Inc()
	m.GateTotal.WithLabelValues("COMMITTED").Inc()
	m.LeakageBlocked.Inc()

	families, err := m.Prom.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"velo_engine_runs_total",
		"velo_stage_duration_seconds",
		"velo_chassis_total",
		"velo_learning_gate_total",
		"velo_leakage_blocked_total",
	}, names)
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := New()
	b := New()
	a.LeakageBlocked.Inc()

	families, err := b.Prom.Gather()
	require.NoError(t, err)
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			if f.GetName() == "velo_leakage_blocked_total" {
				assert.Zero(t, metric.GetCounter().GetValue())
			}
		}
	}
}
