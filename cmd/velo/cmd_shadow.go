package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/turfline/velo/internal/config"
	"github.com/turfline/velo/internal/episodic"
	"github.com/turfline/velo/internal/governance"
	"github.com/turfline/velo/internal/metrics"
	"github.com/turfline/velo/internal/pipeline"
)

func openStore(cfg config.Config) (governance.Store, *sqlx.DB, error) {
	if cfg.GovernanceDSN == "" {
		return nil, nil, fmt.Errorf("governance_dsn is not configured")
	}
	db, err := sqlx.Open("postgres", cfg.GovernanceDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open governance store: %w", err)
	}
	return governance.NewPostgresStore(db, 0), db, nil
}

func newShadowCmd() *cobra.Command {
	var racePath string
	var finalize bool

	cmd := &cobra.Command{
		Use:   "shadow",
		Short: "Observe a race as an episode: artifacts, inference and critic drafts",
		Long: `Creates the episode idempotently, records the PRE_STATE artifact, runs
the engine, records INFERENCE and persists critic findings as DRAFT
proposals. With --finalize and an outcome present in the race file, the
OUTCOME artifact is written, the post-race critique runs and draft
proposals move to PENDING. Nothing is ever applied automatically.`,
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

			store, db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := store.EnsureSchema(cmd.Context()); err != nil {
				return err
			}

			orch, err := buildOrchestrator(cfg, metrics.New())
			if err != nil {
				return err
			}
			runner := episodic.NewRunner(store, orch, nil)

			obs, err := runner.Observe(cmd.Context(), rf.Race, rf.Market, rf.Runners, pipeline.Options{})
			if err != nil {
				return err
			}
			log.Info().
				Str("episode_id", obs.EpisodeID).
				Int("proposals", len(obs.ProposalIDs)).
				Msg("observation complete")

			out := map[string]any{
				"episode_id":    obs.EpisodeID,
				"engine_run_id": obs.Pipeline.EngineRunID,
				"proposals":     obs.ProposalIDs,
			}

			if finalize {
				if rf.Outcome == nil {
					return fmt.Errorf("--finalize requires an outcome in the race file")
				}
				fin, err := runner.Finalize(cmd.Context(), obs.EpisodeID, obs.Pipeline, *rf.Outcome)
				if err != nil {
					return err
				}
				out["finalized"] = true
				out["learning_gate"] = fin.Gate.StatusName
				out["proposals_pending"] = fin.PendingMovedN
				out["gate_decision_correct"] = fin.Critique.GateDecisionCorrect
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&racePath, "race", "", "Path to the race intake JSON file")
	cmd.Flags().BoolVar(&finalize, "finalize", false, "Record the outcome and move drafts to PENDING")
	_ = cmd.MarkFlagRequired("race")
	return cmd
}
