// Package episodic frames each observable race as an epistemic unit: one
// episode, three artifacts and a batch of critic drafts. The path holds a
// constitutional guarantee: no learning, no doctrine mutation, no
// automatic proposal application ever happens here.
package episodic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/turfline/velo/internal/adlg"
	"github.com/turfline/velo/internal/critique"
	"github.com/turfline/velo/internal/domain"
	"github.com/turfline/velo/internal/governance"
	"github.com/turfline/velo/internal/pipeline"
)

// decisionLead is the knowledge cutoff before the off.
const decisionLead = 10 * time.Minute

// EpisodeID derives the stable id from the decision date and race id.
func EpisodeID(decisionTime time.Time, raceID string) string {
	return fmt.Sprintf("race_%s_%s", decisionTime.UTC().Format("2006-01-02"), raceID)
}

// DecisionTime is off time minus the fixed lead.
func DecisionTime(offTime time.Time) time.Time {
	return offTime.UTC().Add(-decisionLead)
}

// Runner drives one race through episode creation, inference, critique and
// finalization.
type Runner struct {
	store   governance.Store
	orch    *pipeline.Orchestrator
	critics []critique.Critic
}

// NewRunner wires the shadow path. A nil critics slice gets the default
// panel.
func NewRunner(store governance.Store, orch *pipeline.Orchestrator, critics []critique.Critic) *Runner {
	if critics == nil {
		critics = critique.DefaultCritics()
	}
	return &Runner{store: store, orch: orch, critics: critics}
}

// Observation is the result of observing one race pre-outcome.
type Observation struct {
	EpisodeID   string
	Pipeline    *pipeline.Context
	ProposalIDs []string
}

// Observe creates the episode, records PRE_STATE, runs the engine, records
// INFERENCE and persists critic drafts. Idempotent per episode id.
func (r *Runner) Observe(ctx context.Context, race domain.RaceContext, market domain.MarketContext, runners []domain.Runner, opts pipeline.Options) (*Observation, error) {
	decisionTime := race.DecisionTime.UTC()
	episodeID := EpisodeID(decisionTime, race.RaceID)

	preState := map[string]any{
		"race":    race,
		"market":  market,
		"runners": runners,
	}
	contextHash, err := governance.ContextHash(preState)
	if err != nil {
		return nil, err
	}

	if err := r.store.CreateEpisode(ctx, governance.Episode{
		ID:           episodeID,
		DecisionTime: decisionTime,
		ContextHash:  contextHash,
	}); err != nil {
		return nil, err
	}
	if err := r.saveArtifact(ctx, episodeID, governance.ArtifactPreState, preState); err != nil {
		return nil, err
	}

	pctx, runErr := r.orch.Run(ctx, race, market, runners, opts)
	if runErr != nil {
		// A cancelled or failed run leaves the episode open with its
		// PRE_STATE only; no proposals are emitted.
		return &Observation{EpisodeID: episodeID, Pipeline: pctx}, runErr
	}

	inference := map[string]any{
		"engine_run_id": pctx.EngineRunID,
		"features_hash": pctx.FeaturesHash,
		"chaos":         pctx.Chaos,
		"manipulation":  pctx.Manipulation,
		"decision":      pctx.Decision,
		"learning_gate": pctx.Gate,
		"scores":        pctx.Ranked.Breakdowns,
	}
	if err := r.saveArtifact(ctx, episodeID, governance.ArtifactInference, inference); err != nil {
		return nil, err
	}

	obs := &Observation{EpisodeID: episodeID, Pipeline: pctx}
	for critic, drafts := range critique.RunCritics(r.critics, pctx) {
		ids, err := r.store.PersistProposals(ctx, episodeID, critic, drafts)
		if err != nil {
			return obs, err
		}
		obs.ProposalIDs = append(obs.ProposalIDs, ids...)
	}

	log.Info().
		Str("episode_id", episodeID).
		Str("engine_run_id", pctx.EngineRunID).
		Int("proposals", len(obs.ProposalIDs)).
		Msg("episode observed")
	return obs, nil
}

// Finalization reports the outcome hand-off.
type Finalization struct {
	EpisodeID     string
	Gate          adlg.Result
	Critique      critique.Report
	NudgeIDs      []string
	PendingMovedN int64
}

// Finalize re-evaluates the learning gate against the verified outcome,
// records the OUTCOME artifact, runs the post-race critique, persists any
// threshold-nudge drafts, marks the episode finalized and moves its drafts
// to PENDING for human review.
func (r *Runner) Finalize(ctx context.Context, episodeID string, pctx *pipeline.Context, outcome domain.RaceOutcome) (*Finalization, error) {
	if _, err := r.store.GetEpisode(ctx, episodeID); err != nil {
		return nil, err
	}

	// The pre-race evaluation always holds outcome_verified and the
	// integrity check open; the resolved outcome closes both.
	in := pctx.GateInput
	in.OutcomeVerified = outcome.Verified
	in.WinnerID = outcome.WinnerID
	in.IntegrityFlags = integrityFlags(pctx, outcome)
	pctx.Gate = adlg.Evaluate(in)
	if pctx.Decision != nil {
		pctx.Decision.LearningGateStatus = pctx.Gate.StatusName
	}

	rep := critique.PostRace(pctx, outcome)

	payload := map[string]any{
		"outcome":       outcome,
		"learning_gate": pctx.Gate,
		"critique":      rep,
	}
	if err := r.saveArtifact(ctx, episodeID, governance.ArtifactOutcome, payload); err != nil {
		return nil, err
	}

	fin := &Finalization{EpisodeID: episodeID, Gate: pctx.Gate, Critique: rep}
	if len(rep.Nudges) > 0 {
		ids, err := r.store.PersistProposals(ctx, episodeID, governance.CriticDecision, rep.Nudges)
		if err != nil {
			return fin, err
		}
		fin.NudgeIDs = ids
	}

	now := time.Now().UTC()
	if err := r.store.FinalizeEpisode(ctx, episodeID, now); err != nil {
		return fin, err
	}
	moved, err := r.store.TransitionToPending(ctx, episodeID)
	if err != nil {
		return fin, err
	}
	fin.PendingMovedN = moved

	log.Info().
		Str("episode_id", episodeID).
		Str("learning_gate", pctx.Gate.StatusName).
		Bool("gate_decision_correct", rep.GateDecisionCorrect).
		Int64("proposals_pending", moved).
		Msg("episode finalized")
	return fin, nil
}

// integrityFlags resolves the checks the pre-race gate leaves pending:
// firewall violations carried in the audit and the winner's recorded
// position agreeing with the result.
func integrityFlags(pctx *pipeline.Context, outcome domain.RaceOutcome) []string {
	var flags []string
	for _, v := range pctx.LeakageAudit.Violations {
		flags = append(flags, "leakage_"+v.Kind)
	}
	if outcome.WinnerID != "" {
		if pos, ok := outcome.Positions[outcome.WinnerID]; !ok || pos != 1 {
			flags = append(flags, "winner_position_mismatch")
		}
	}
	return flags
}

func (r *Runner) saveArtifact(ctx context.Context, episodeID string, t governance.ArtifactType, content any) error {
	canonical, err := governance.CanonicalJSON(content)
	if err != nil {
		return err
	}
	return r.store.SaveArtifact(ctx, governance.Artifact{
		EpisodeID: episodeID,
		Type:      t,
		Content:   json.RawMessage(canonical),
	})
}
