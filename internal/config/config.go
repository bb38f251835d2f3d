// Package config loads the engine's flat configuration. Unknown keys are
// rejected: no behavior may depend on undeclared options.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// HistoricalCaps bounds the per-source strike-rate modifiers.
type HistoricalCaps struct {
	Trainer float64 `yaml:"trainer"`
	Jockey  float64 `yaml:"jockey"`
	Combo   float64 `yaml:"combo"`
}

// Config is the full recognized option set.
type Config struct {
	ChaosThreshold        float64        `yaml:"chaos_threshold"`
	ManipulationThreshold float64        `yaml:"manipulation_threshold"`
	StabilityThreshold    float64        `yaml:"stability_threshold"`
	AblationMaxFlips      int            `yaml:"ablation_max_flips"`
	AblationMaxProbDelta  float64        `yaml:"ablation_max_prob_delta"`
	AnchorGuardMinProb    float64        `yaml:"anchor_guard_min_prob"`
	AnchorGuardMaxManip   float64        `yaml:"anchor_guard_max_manip"`
	TopStrikeBaseMargin   float64        `yaml:"topstrike_base_margin"`
	TopStrikeChaosSlope   float64        `yaml:"topstrike_chaos_slope"`
	HistoricalStatsCaps   HistoricalCaps `yaml:"historical_stats_caps"`
	StabilityModifierCap  float64        `yaml:"stability_modifier_cap"`
	StageTimeoutMs        int            `yaml:"stage_timeout_ms"`
	EngineRunDir          string         `yaml:"engine_run_dir"`
	LeakageManifestPath   string         `yaml:"leakage_manifest_path"`
	FeatureSchemaPath     string         `yaml:"feature_schema_path"`
	GovernanceDSN         string         `yaml:"governance_dsn"`
	RedisAddr             string         `yaml:"redis_addr"`
	HTTPHost              string         `yaml:"http_host"`
	HTTPPort              int            `yaml:"http_port"`
	BatchWorkers          int            `yaml:"batch_workers"`
	BatchRacesPerSecond   float64        `yaml:"batch_races_per_second"`
	StakeCapUnits         float64        `yaml:"stake_cap_units"`
	KillSwitchPath        string         `yaml:"kill_switch_path"`
}

// Default returns the doctrine defaults.
func Default() Config {
	return Config{
		ChaosThreshold:        0.60,
		ManipulationThreshold: 0.60,
		StabilityThreshold:    0.65,
		AblationMaxFlips:      1,
		AblationMaxProbDelta:  0.15,
		AnchorGuardMinProb:    0.62,
		AnchorGuardMaxManip:   0.45,
		TopStrikeBaseMargin:   0.12,
		TopStrikeChaosSlope:   0.10,
		HistoricalStatsCaps:   HistoricalCaps{Trainer: 0.05, Jockey: 0.05, Combo: 0.03},
		StabilityModifierCap:  0.10,
		StageTimeoutMs:        5000,
		EngineRunDir:          "data/engine_runs",
		HTTPHost:              "127.0.0.1",
		HTTPPort:              8080,
		BatchWorkers:          4,
		BatchRacesPerSecond:   4.0,
		StakeCapUnits:         2.0,
		KillSwitchPath:        "data/KILL_SWITCH",
	}
}

// Load reads a yaml file over the defaults. Unknown keys fail the load.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects out-of-range options.
func (c Config) Validate() error {
	checks := []struct {
		name string
		v    float64
	}{
		{"chaos_threshold", c.ChaosThreshold},
		{"manipulation_threshold", c.ManipulationThreshold},
		{"stability_threshold", c.StabilityThreshold},
		{"ablation_max_prob_delta", c.AblationMaxProbDelta},
		{"anchor_guard_min_prob", c.AnchorGuardMinProb},
		{"anchor_guard_max_manip", c.AnchorGuardMaxManip},
	}
	for _, ch := range checks {
		if ch.v < 0 || ch.v > 1 {
			return fmt.Errorf("config %s out of range [0,1]: %f", ch.name, ch.v)
		}
	}
	if c.StageTimeoutMs <= 0 {
		return fmt.Errorf("config stage_timeout_ms must be positive: %d", c.StageTimeoutMs)
	}
	if c.BatchWorkers < 1 {
		return fmt.Errorf("config batch_workers must be at least 1: %d", c.BatchWorkers)
	}
	return nil
}

// StageTimeout converts the millisecond budget to a duration.
func (c Config) StageTimeout() time.Duration {
	return time.Duration(c.StageTimeoutMs) * time.Millisecond
}
