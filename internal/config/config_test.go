package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "velo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.InDelta(t, 0.60, cfg.ChaosThreshold, 1e-9)
	assert.InDelta(t, 0.60, cfg.ManipulationThreshold, 1e-9)
	assert.InDelta(t, 0.65, cfg.StabilityThreshold, 1e-9)
	assert.Equal(t, 1, cfg.AblationMaxFlips)
	assert.InDelta(t, 0.15, cfg.AblationMaxProbDelta, 1e-9)
	assert.InDelta(t, 0.05, cfg.HistoricalStatsCaps.Trainer, 1e-9)
	assert.InDelta(t, 0.03, cfg.HistoricalStatsCaps.Combo, 1e-9)
	assert.InDelta(t, 0.10, cfg.StabilityModifierCap, 1e-9)
	assert.Equal(t, 5000, cfg.StageTimeoutMs)
	assert.Equal(t, "data/engine_runs", cfg.EngineRunDir)
	assert.NotEmpty(t, cfg.KillSwitchPath)

	require.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
chaos_threshold: 0.55
stage_timeout_ms: 2500
engine_run_dir: /tmp/runs
historical_stats_caps:
  trainer: 0.04
  jockey: 0.04
  combo: 0.02
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.InDelta(t, 0.55, cfg.ChaosThreshold, 1e-9)
	assert.Equal(t, 2500, cfg.StageTimeoutMs)
	assert.Equal(t, "/tmp/runs", cfg.EngineRunDir)
	assert.InDelta(t, 0.04, cfg.HistoricalStatsCaps.Trainer, 1e-9)
	// Untouched keys keep their defaults.
	assert.InDelta(t, 0.60, cfg.ManipulationThreshold, 1e-9)
	assert.Equal(t, 4, cfg.BatchWorkers)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "chaos_treshold: 0.5\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRanges(t *testing.T) {
	cfg := Default()
	cfg.ChaosThreshold = 1.2
	assert.ErrorContains(t, cfg.Validate(), "chaos_threshold")

	cfg = Default()
	cfg.AnchorGuardMaxManip = -0.1
	assert.ErrorContains(t, cfg.Validate(), "anchor_guard_max_manip")

	cfg = Default()
	cfg.StageTimeoutMs = 0
	assert.ErrorContains(t, cfg.Validate(), "stage_timeout_ms")

	cfg = Default()
	cfg.BatchWorkers = 0
	assert.ErrorContains(t, cfg.Validate(), "batch_workers")
}

func TestLoadValidates(t *testing.T) {
	path := writeConfig(t, "manipulation_threshold: 3.0\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "manipulation_threshold")
}

func TestStageTimeout(t *testing.T) {
	cfg := Default()
	cfg.StageTimeoutMs = 1500
	assert.Equal(t, 1500*time.Millisecond, cfg.StageTimeout())
}
