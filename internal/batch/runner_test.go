package batch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turfline/velo/internal/config"
	"github.com/turfline/velo/internal/domain"
	"github.com/turfline/velo/internal/pipeline"
)

func batchRace(n int) Race {
	decision := time.Date(2026, 5, 14, 13, 0, 0, 0, time.UTC).Add(time.Duration(n) * 35 * time.Minute)
	race := domain.RaceContext{
		RaceID:       fmt.Sprintf("ASC-2026-05-14-R%d", n),
		Course:       "Ascot",
		DecisionTime: decision,
		DistanceF:    8.0,
		Going:        "Good",
		ClassLevel:   4,
		Surface:      "turf",
		FieldSize:    6,
	}
	odds := []float64{3.0, 4.5, 6.0, 9.0, 15.0, 26.0}
	forms := []string{"1213", "2142", "3321", "4515", "5647", "6758"}

	market := domain.MarketContext{RaceID: race.RaceID, SnapshotTimestamp: decision.Add(-time.Minute)}
	runners := make([]domain.Runner, 0, 6)
	for i, o := range odds {
		id := fmt.Sprintf("r%d", i+1)
		market.Runners = append(market.Runners, domain.RunnerMarket{RunnerID: id, OddsDecimal: o})
		runners = append(runners, domain.Runner{
			RunnerID: id, HorseName: "Horse " + id, Age: 5,
			Trainer: "T", Jockey: "J", FormString: forms[i], OddsDecimal: o,
		})
	}
	return Race{Race: race, Market: market, Runners: runners}
}

func factory() OrchestratorFactory {
	return func() *pipeline.Orchestrator {
		return pipeline.New(config.Default(), nil, nil, nil)
	}
}

func TestRunPreservesInputOrder(t *testing.T) {
	races := make([]Race, 8)
	for i := range races {
		races[i] = batchRace(i)
	}

	results := NewRunner(factory(), 3, 0).Run(context.Background(), races)
	require.Len(t, results, 8)
	for i, res := range results {
		assert.Equal(t, races[i].Race.RaceID, res.RaceID)
		require.NoError(t, res.Err)
		require.NotNil(t, res.Pipeline)
		assert.Len(t, res.Pipeline.Decision.Top4Structure, 4)
		assert.Greater(t, res.Duration, time.Duration(0))
	}
}

func TestRunRecordsPerRaceFailures(t *testing.T) {
	good := batchRace(0)
	bad := batchRace(1)
	bad.Race.FieldSize = 9 // runner count mismatch

	results := NewRunner(factory(), 2, 0).Run(context.Background(), []Race{good, bad})
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	assert.Contains(t, results[1].Err.Error(), "stage ingest")
}

func TestRunCancelledBeforeDispatch(t *testing.T) {
	races := []Race{batchRace(0), batchRace(1), batchRace(2)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := NewRunner(factory(), 2, 0).Run(ctx, races)
	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, races[i].Race.RaceID, res.RaceID, "undispatched races still carry their id")
		assert.Error(t, res.Err)
	}
}

func TestDefaultWorkerCount(t *testing.T) {
	r := NewRunner(factory(), 0, 0)
	assert.Equal(t, 4, r.workers)
	assert.Nil(t, r.limiter)

	throttled := NewRunner(factory(), 2, 10)
	assert.NotNil(t, throttled.limiter)
}

func TestThrottledRunCompletes(t *testing.T) {
	races := []Race{batchRace(0), batchRace(1)}
	results := NewRunner(factory(), 2, 100).Run(context.Background(), races)
	for _, res := range results {
		assert.NoError(t, res.Err)
	}
}
