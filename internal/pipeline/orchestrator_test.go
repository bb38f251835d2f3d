package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turfline/velo/internal/config"
	"github.com/turfline/velo/internal/domain"
	"github.com/turfline/velo/internal/enginerun"
	"github.com/turfline/velo/internal/history"
	"github.com/turfline/velo/internal/leakage"
)

type captureSaver struct {
	records []*enginerun.Record
	err     error
}

func (s *captureSaver) Save(r *enginerun.Record) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.records = append(s.records, r)
	return r.EngineRunID + ".json", nil
}

func fixture() (domain.RaceContext, domain.MarketContext, []domain.Runner) {
	decision := time.Date(2026, 5, 14, 14, 20, 0, 0, time.UTC)
	race := domain.RaceContext{
		RaceID:       "ASC-2026-05-14-1430",
		Course:       "Ascot",
		DecisionTime: decision,
		DistanceF:    8.0,
		Going:        "Good",
		ClassLevel:   4,
		Surface:      "turf",
		FieldSize:    8,
	}

	odds := []float64{3.0, 4.5, 6.0, 8.0, 11.0, 15.0, 21.0, 34.0}
	forms := []string{"1213", "2142", "3321", "4515", "5647", "6758", "7869", "8970"}
	styles := []string{"held_up", "front", "prominent", "held_up", "prominent", "held_up", "held_up", "held_up"}

	market := domain.MarketContext{
		RaceID:            race.RaceID,
		SnapshotTimestamp: decision.Add(-2 * time.Minute),
	}
	runners := make([]domain.Runner, 0, 8)
	dsl := 25
	for i, o := range odds {
		id := "r" + string(rune('1'+i))
		fav := i == 0
		market.Runners = append(market.Runners, domain.RunnerMarket{
			RunnerID: id, OddsDecimal: o, IsFavorite: &fav,
		})
		runners = append(runners, domain.Runner{
			RunnerID:         id,
			HorseName:        "Horse " + id,
			Age:              5,
			Trainer:          "T " + id,
			Jockey:           "J " + id,
			FormString:       forms[i],
			OddsDecimal:      o,
			DaysSinceLastRun: &dsl,
			RunStyle:         styles[i],
		})
	}
	return race, market, runners
}

func TestRunCompletesAllStages(t *testing.T) {
	saver := &captureSaver{}
	orch := New(config.Default(), nil, saver, nil)

	race, market, runners := fixture()
	pctx, err := orch.Run(context.Background(), race, market, runners, Options{})
	require.NoError(t, err)

	for _, st := range Stages {
		assert.Contains(t, pctx.StageDurations, st)
	}
	assert.Len(t, pctx.EngineRunID, 16)
	assert.Len(t, pctx.FeaturesHash, 16)
	require.NotNil(t, pctx.Decision)
	assert.Len(t, pctx.Decision.Top4Structure, 4)
	assert.NotEmpty(t, pctx.Gate.StatusName)
	assert.Equal(t, pctx.Gate.StatusName, pctx.Decision.LearningGateStatus)
	assert.Equal(t, "ok", pctx.EngineRun.Metadata["status"])
	require.NotNil(t, pctx.EngineRun.ExecutionTimeMs)

	require.Len(t, saver.records, 1)
	assert.Len(t, saver.records[0].Scores, 8)
	assert.NotNil(t, saver.records[0].Decision)
}

func TestRunDeterministic(t *testing.T) {
	orch := New(config.Default(), nil, nil, nil)
	race, market, runners := fixture()

	a, err := orch.Run(context.Background(), race, market, runners, Options{})
	require.NoError(t, err)
	b, err := orch.Run(context.Background(), race, market, runners, Options{})
	require.NoError(t, err)

	assert.Equal(t, a.EngineRunID, b.EngineRunID)
	assert.Equal(t, a.FeaturesHash, b.FeaturesHash)
	assert.Equal(t, a.Decision.Top4Structure, b.Decision.Top4Structure)
	assert.Equal(t, a.Decision.Chassis, b.Decision.Chassis)

	// Wall-clock fields aside, the persisted artifacts hash identically.
	a.EngineRun.ExecutionTimeMs = nil
	b.EngineRun.ExecutionTimeMs = nil
	ha, err := a.EngineRun.Hash()
	require.NoError(t, err)
	hb, err := b.EngineRun.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestRunCancelledBeforeFirstStage(t *testing.T) {
	orch := New(config.Default(), nil, nil, nil)
	race, market, runners := fixture()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pctx, err := orch.Run(ctx, race, market, runners, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "cancelled", pctx.EngineRun.Metadata["status"])
	assert.Equal(t, "ingest", pctx.EngineRun.Metadata["cancelled_before"])
}

func TestRunValidatorFailurePersistsSkeleton(t *testing.T) {
	saver := &captureSaver{}
	orch := New(config.Default(), nil, saver, nil)

	race, market, runners := fixture()
	race.FieldSize = 9 // one runner short

	pctx, err := orch.Run(context.Background(), race, market, runners, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage ingest")
	assert.Equal(t, "failed", pctx.EngineRun.Metadata["status"])
	assert.Equal(t, "ingest", pctx.EngineRun.Metadata["failed_stage"])
	assert.NotEmpty(t, pctx.EngineRun.Metadata["error"])
	assert.Nil(t, pctx.Decision)

	// The error skeleton is still persisted for the audit trail.
	require.Len(t, saver.records, 1)
	assert.Nil(t, saver.records[0].Decision)
}

func TestRunLeakageBlocks(t *testing.T) {
	fw := leakage.New(leakage.Strict, "odds_implied")
	orch := New(config.Default(), fw, nil, nil)

	race, market, runners := fixture()
	pctx, err := orch.Run(context.Background(), race, market, runners, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage leakage")
	assert.Equal(t, "leakage", pctx.EngineRun.Metadata["failed_stage"])
	assert.False(t, pctx.LeakageAudit.Passed)
}

func TestRunStorageFailureSurfaces(t *testing.T) {
	saver := &captureSaver{err: errors.New("disk full")}
	orch := New(config.Default(), nil, saver, nil)

	race, market, runners := fixture()
	_, err := orch.Run(context.Background(), race, market, runners, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage storage")
}

func TestSignalOverridesRespected(t *testing.T) {
	orch := New(config.Default(), nil, nil, nil)
	race, market, runners := fixture()

	stab, pace := 0.42, 0.33
	pctx, err := orch.Run(context.Background(), race, market, runners, Options{
		Stability:    &stab,
		PaceGeometry: &pace,
	})
	require.NoError(t, err)
	assert.Equal(t, stab, pctx.StabilityScore)
	assert.Equal(t, pace, pctx.PaceGeometry)
}

func TestMarketPredict(t *testing.T) {
	frame := leakage.Frame{
		Columns: []string{"runner_id", "odds_implied"},
		Rows: []map[string]any{
			{"runner_id": "a", "odds_implied": 0.5},
			{"runner_id": "b", "odds_implied": 0.25},
			{"runner_id": "c", "odds_implied": 0.25},
		},
	}
	pred := MarketPredict(frame)
	assert.Equal(t, "a", pred.TopSelection)
	assert.InDelta(t, 0.5, pred.Probabilities["a"], 1e-9)
	assert.InDelta(t, 0.25, pred.Probabilities["b"], 1e-9)
}

func TestPaceGeometryBands(t *testing.T) {
	mk := func(styles ...string) []domain.Runner {
		rs := make([]domain.Runner, len(styles))
		for i, s := range styles {
			rs[i] = domain.Runner{RunStyle: s}
		}
		return rs
	}
	assert.Equal(t, 0.70, paceGeometry(mk("front", "held_up")))
	assert.Equal(t, 0.50, paceGeometry(mk("held_up", "prominent")))
	assert.Equal(t, 0.45, paceGeometry(mk("front", "front")))
	assert.Equal(t, 0.35, paceGeometry(mk("front", "front", "front")))
}

func TestDistanceBands(t *testing.T) {
	assert.Equal(t, "sprint", distanceBand(5))
	assert.Equal(t, "mile", distanceBand(8))
	assert.Equal(t, "middle", distanceBand(12))
	assert.Equal(t, "staying", distanceBand(16))
}

type fixedStatsSource struct {
	stats *domain.HistoricalStats
}

func (s fixedStatsSource) Fetch(context.Context, history.Scope) (*domain.HistoricalStats, error) {
	return s.stats, nil
}

func TestRunLeavesCallerRunnersUntouched(t *testing.T) {
	rate := 0.22
	src := fixedStatsSource{stats: &domain.HistoricalStats{
		Trainer: &domain.HistoricalStrike{Rate: rate, Runs: 120},
	}}
	orch := New(config.Default(), nil, nil, nil).WithStatsSource(src)

	race, market, runners := fixture()
	pctx, err := orch.Run(context.Background(), race, market, runners, Options{})
	require.NoError(t, err)
	require.NotEmpty(t, pctx.EngineRunID)

	for _, r := range runners {
		assert.Nil(t, r.Historical, "enrichment must not write into the caller's slice")
	}
}
