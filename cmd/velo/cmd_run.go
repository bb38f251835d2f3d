package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/turfline/velo/internal/batch"
	"github.com/turfline/velo/internal/config"
	"github.com/turfline/velo/internal/domain"
	"github.com/turfline/velo/internal/enginerun"
	"github.com/turfline/velo/internal/leakage"
	"github.com/turfline/velo/internal/metrics"
	"github.com/turfline/velo/internal/persistence/retry"
	"github.com/turfline/velo/internal/pipeline"
)

// raceFile is the on-disk intake format for run, batch and shadow.
type raceFile struct {
	Race    domain.RaceContext   `json:"race"`
	Market  domain.MarketContext `json:"market"`
	Runners []domain.Runner      `json:"runners"`
	Outcome *domain.RaceOutcome  `json:"outcome,omitempty"`
}

func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func loadRaceFile(path string) (*raceFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read race file %s: %w", path, err)
	}
	var rf raceFile
	if err := json.Unmarshal(raw, &rf); err != nil {
		return nil, fmt.Errorf("parse race file %s: %w", path, err)
	}
	return &rf, nil
}

// killSwitchEngaged refuses new runs when the marker file exists.
func killSwitchEngaged(cfg config.Config) bool {
	if cfg.KillSwitchPath == "" {
		return false
	}
	_, err := os.Stat(cfg.KillSwitchPath)
	return err == nil
}

// buildOrchestrator assembles the standard production wiring: manifest
// firewall, file repository behind the retrying writer, metrics registry.
func buildOrchestrator(cfg config.Config, m *metrics.Registry) (*pipeline.Orchestrator, error) {
	firewall, err := leakage.NewFromManifest(leakage.Strict, cfg.LeakageManifestPath)
	if err != nil {
		return nil, err
	}
	repo, err := enginerun.NewFileRepository(cfg.EngineRunDir)
	if err != nil {
		return nil, err
	}
	return pipeline.New(cfg, firewall, retry.NewWriter(repo), m), nil
}

func newRunCmd() *cobra.Command {
	var racePath string
	var mode string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the decision pipeline for one race",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if killSwitchEngaged(cfg) {
				return fmt.Errorf("kill switch engaged at %s, refusing to run", cfg.KillSwitchPath)
			}
			rf, err := loadRaceFile(racePath)
			if err != nil {
				return err
			}

			orch, err := buildOrchestrator(cfg, metrics.New())
			if err != nil {
				return err
			}

			pctx, err := orch.Run(cmd.Context(), rf.Race, rf.Market, rf.Runners, pipeline.Options{
				Mode: domain.Mode(strings.ToUpper(mode)),
			})
			if err != nil {
				return err
			}

			out := map[string]any{
				"engine_run_id": pctx.EngineRunID,
				"features_hash": pctx.FeaturesHash,
				"chaos":         pctx.Chaos.Level,
				"chassis":       pctx.Decision.Chassis,
				"top_4":         pctx.Ranked.Top4,
				"learning_gate": pctx.Gate.StatusName,
				"confidence":    pctx.Decision.Confidence,
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&racePath, "race", "", "Path to the race intake JSON file")
	cmd.Flags().StringVar(&mode, "mode", "RACE", "Run mode (RACE|BACKTEST|SIMULATION)")
	_ = cmd.MarkFlagRequired("race")
	return cmd
}

func newBatchCmd() *cobra.Command {
	var dir string
	var workers int

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run the pipeline over a directory of race files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if killSwitchEngaged(cfg) {
				return fmt.Errorf("kill switch engaged at %s, refusing to run", cfg.KillSwitchPath)
			}
			if workers > 0 {
				cfg.BatchWorkers = workers
			}

			paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no race files under %s", dir)
			}

			races := make([]batch.Race, 0, len(paths))
			for _, p := range paths {
				rf, err := loadRaceFile(p)
				if err != nil {
					return err
				}
				races = append(races, batch.Race{Race: rf.Race, Market: rf.Market, Runners: rf.Runners})
			}

			m := metrics.New()
			runner := batch.NewRunner(func() *pipeline.Orchestrator {
				orch, err := buildOrchestrator(cfg, m)
				if err != nil {
					log.Fatal().Err(err).Msg("orchestrator wiring failed")
				}
				return orch
			}, cfg.BatchWorkers, cfg.BatchRacesPerSecond)

			results := runner.Run(cmd.Context(), races)
			failed := 0
			for _, res := range results {
				if res.Err != nil {
					failed++
					continue
				}
				log.Info().
					Str("race_id", res.RaceID).
					Str("chassis", string(res.Pipeline.Decision.Chassis)).
					Dur("took", res.Duration).
					Msg("race complete")
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d races failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory of race intake JSON files")
	cmd.Flags().IntVar(&workers, "workers", 0, "Worker pool size (overrides config)")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}
