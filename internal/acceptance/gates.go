// Package acceptance runs the eight release gates as self-tests against a
// synthetic fixture race. All gates must pass before a build is greenlit.
package acceptance

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/turfline/velo/internal/ablation"
	"github.com/turfline/velo/internal/config"
	"github.com/turfline/velo/internal/domain"
	"github.com/turfline/velo/internal/enginerun"
	"github.com/turfline/velo/internal/leakage"
	"github.com/turfline/velo/internal/pipeline"
)

// GateCheck is one gate result.
type GateCheck struct {
	Name        string `json:"name"`
	Passed      bool   `json:"passed"`
	Description string `json:"description"`
	Detail      string `json:"detail,omitempty"`
}

// Report aggregates the gate run.
type Report struct {
	Checks    []GateCheck `json:"checks"`
	AllPassed bool        `json:"all_passed"`
	Greenlit  bool        `json:"greenlit"`
}

// Run executes all eight gates with in-memory fixtures. No persistence is
// touched; saver stays nil throughout.
func Run(ctx context.Context, cfg config.Config) Report {
	report := Report{}
	add := func(c GateCheck) {
		report.Checks = append(report.Checks, c)
	}

	add(gateBuildIntegrity(cfg))
	add(gateDeterminism(ctx, cfg))
	add(gateLeakagePoisonPill())
	add(gateSchemaContract(ctx, cfg))
	add(gateWiring(ctx, cfg))
	add(gateModelSanity(ctx, cfg))
	add(gateAblationPresets())
	add(gateOperationalSafety(cfg))

	report.AllPassed = true
	for _, c := range report.Checks {
		if !c.Passed {
			report.AllPassed = false
			log.Warn().Str("gate", c.Name).Str("detail", c.Detail).Msg("acceptance gate failed")
		}
	}
	report.Greenlit = report.AllPassed
	return report
}

// gateBuildIntegrity checks that version constants and configuration are
// coherent.
func gateBuildIntegrity(cfg config.Config) GateCheck {
	c := GateCheck{
		Name:        "build_integrity",
		Description: "pipeline version constant set and configuration valid",
	}
	if enginerun.PipelineVersion == "" {
		c.Detail = "pipeline version constant is empty"
		return c
	}
	if err := cfg.Validate(); err != nil {
		c.Detail = err.Error()
		return c
	}
	c.Passed = true
	c.Detail = fmt.Sprintf("pipeline version %s", enginerun.PipelineVersion)
	return c
}

// gateDeterminism runs the fixture twice and compares record hashes with
// wall-clock fields zeroed.
func gateDeterminism(ctx context.Context, cfg config.Config) GateCheck {
	c := GateCheck{
		Name:        "determinism",
		Description: "identical input produces an identical engine run hash",
	}
	race, market, runners := FixtureRace()

	hashes := make([]string, 0, 2)
	for i := 0; i < 2; i++ {
		pctx, err := pipeline.New(cfg, nil, nil, nil).Run(ctx, race, market, runners, pipeline.Options{})
		if err != nil {
			c.Detail = err.Error()
			return c
		}
		run := *pctx.EngineRun
		run.ExecutionTimeMs = nil
		h, err := run.Hash()
		if err != nil {
			c.Detail = err.Error()
			return c
		}
		hashes = append(hashes, h)
	}
	if hashes[0] != hashes[1] {
		c.Detail = fmt.Sprintf("hash mismatch: %s vs %s", hashes[0], hashes[1])
		return c
	}
	c.Passed = true
	c.Detail = hashes[0]
	return c
}

// gateLeakagePoisonPill plants a post-outcome column and requires the
// strict firewall to block it.
func gateLeakagePoisonPill() GateCheck {
	c := GateCheck{
		Name:        "leakage_firewall",
		Description: "strict firewall blocks a planted post-outcome column",
	}
	fw := leakage.New(leakage.Strict)
	frame := leakage.Frame{
		Columns: []string{"runner_id", "odds_decimal", "sp"},
		Rows: []map[string]any{
			{"runner_id": "poison", "odds_decimal": 4.5, "sp": 4.2},
		},
	}
	_, err := fw.Check(frame, time.Now().UTC())
	if err == nil {
		c.Detail = "poison column passed the firewall"
		return c
	}
	c.Passed = true
	c.Detail = err.Error()
	return c
}

// gateSchemaContract runs the feature stage and requires the contract
// check to hold for the fixture.
func gateSchemaContract(ctx context.Context, cfg config.Config) GateCheck {
	c := GateCheck{
		Name:        "schema_contract",
		Description: "produced frame columns equal the feature schema set",
	}
	race, market, runners := FixtureRace()
	pctx, err := pipeline.New(cfg, nil, nil, nil).Run(ctx, race, market, runners, pipeline.Options{})
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	if pctx.FeaturesHash == "" {
		c.Detail = "features hash missing after feature stage"
		return c
	}
	c.Passed = true
	c.Detail = fmt.Sprintf("features hash %s over %d columns", pctx.FeaturesHash, len(pctx.Frame.Columns))
	return c
}

// gateWiring requires the whole pipeline to be reachable end to end.
func gateWiring(ctx context.Context, cfg config.Config) GateCheck {
	c := GateCheck{
		Name:        "wiring",
		Description: "all pipeline stages execute in declared order",
	}
	race, market, runners := FixtureRace()
	pctx, err := pipeline.New(cfg, nil, nil, nil).Run(ctx, race, market, runners, pipeline.Options{})
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	for _, stage := range pipeline.Stages {
		if _, ok := pctx.StageDurations[stage]; !ok {
			c.Detail = fmt.Sprintf("stage %s never ran", stage)
			return c
		}
	}
	c.Passed = true
	c.Detail = fmt.Sprintf("%d stages, status %s", len(pipeline.Stages), pctx.EngineRun.Metadata["status"])
	return c
}

// gateModelSanity checks score and structure invariants on the fixture.
func gateModelSanity(ctx context.Context, cfg config.Config) GateCheck {
	c := GateCheck{
		Name:        "model_sanity",
		Description: "scores decompose cleanly and the top-4 is distinct",
	}
	race, market, runners := FixtureRace()
	pctx, err := pipeline.New(cfg, nil, nil, nil).Run(ctx, race, market, runners, pipeline.Options{})
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	seen := map[string]bool{}
	for _, id := range pctx.Ranked.Top4 {
		if seen[id] {
			c.Detail = fmt.Sprintf("duplicate runner %s in top-4", id)
			return c
		}
		seen[id] = true
	}
	for _, b := range pctx.Ranked.Breakdowns {
		sum := 0.0
		for _, v := range b.Components {
			sum += v
		}
		if diff := sum - b.Total; diff > 0.01 || diff < -0.01 {
			c.Detail = fmt.Sprintf("runner %s components sum %.4f != total %.4f", b.RunnerID, sum, b.Total)
			return c
		}
	}
	if pctx.Decision.Confidence < 0.60 || pctx.Decision.Confidence > 0.80 {
		c.Detail = fmt.Sprintf("confidence %.2f outside [0.60, 0.80]", pctx.Decision.Confidence)
		return c
	}
	c.Passed = true
	c.Detail = fmt.Sprintf("top-4 %v", pctx.Ranked.Top4)
	return c
}

// gateAblationPresets requires every feature domain preset to exist.
func gateAblationPresets() GateCheck {
	c := GateCheck{
		Name:        "ablation_presets",
		Description: "all five feature domain presets are defined",
	}
	domains := ablation.Domains()
	if len(domains) != 5 {
		c.Detail = fmt.Sprintf("expected 5 domains, found %d", len(domains))
		return c
	}
	c.Passed = true
	c.Detail = fmt.Sprintf("%v", domains)
	return c
}

// gateOperationalSafety requires staking caps and the kill-switch hook.
func gateOperationalSafety(cfg config.Config) GateCheck {
	c := GateCheck{
		Name:        "operational_safety",
		Description: "staking caps and kill-switch hook configured",
	}
	if cfg.StakeCapUnits <= 0 {
		c.Detail = "stake cap is not set"
		return c
	}
	if cfg.KillSwitchPath == "" {
		c.Detail = "kill-switch path is not set"
		return c
	}
	c.Passed = true
	c.Detail = fmt.Sprintf("stake cap %.1f units, kill switch %s", cfg.StakeCapUnits, cfg.KillSwitchPath)
	return c
}

// FixtureRace is the synthetic eight-runner race used by the gates.
func FixtureRace() (domain.RaceContext, domain.MarketContext, []domain.Runner) {
	decision := time.Date(2026, 5, 14, 14, 20, 0, 0, time.UTC)
	race := domain.RaceContext{
		RaceID:       "ACC-FIXTURE-1",
		Course:       "Kempton",
		DistanceF:    8.0,
		Going:        "standard",
		ClassLevel:   4,
		FieldSize:    8,
		Surface:      "aw",
		DecisionTime: decision,
	}

	odds := []float64{3.0, 4.5, 6.0, 8.0, 11.0, 15.0, 21.0, 34.0}
	forms := []string{"1213", "2142", "3251", "4323", "5464", "6545", "0678", "9087"}
	runners := make([]domain.Runner, 0, len(odds))
	marketRunners := make([]domain.RunnerMarket, 0, len(odds))
	for i, o := range odds {
		id := fmt.Sprintf("r%d", i+1)
		dsl := 25
		fav := i == 0
		runners = append(runners, domain.Runner{
			RunnerID:         id,
			HorseName:        fmt.Sprintf("Fixture %d", i+1),
			OddsDecimal:      o,
			FormString:       forms[i],
			Trainer:          fmt.Sprintf("T%d", i%3+1),
			Jockey:           fmt.Sprintf("J%d", i%4+1),
			DaysSinceLastRun: &dsl,
			RunStyle:         pickStyle(i),
		})
		marketRunners = append(marketRunners, domain.RunnerMarket{
			RunnerID:    id,
			OddsDecimal: o,
			IsFavorite:  &fav,
		})
	}

	market := domain.MarketContext{
		RaceID:            race.RaceID,
		SnapshotTimestamp: decision.Add(-2 * time.Minute),
		Runners:           marketRunners,
	}
	return race, market, runners
}

func pickStyle(i int) string {
	if i == 1 {
		return "front"
	}
	return "mid"
}
