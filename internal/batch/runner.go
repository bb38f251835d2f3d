// Package batch dispatches many races across a bounded worker pool. Each
// worker owns its own orchestrator; the persistence adapters are the only
// shared resources and all their writes are idempotent.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/turfline/velo/internal/domain"
	"github.com/turfline/velo/internal/pipeline"
)

// Race is one unit of batch work.
type Race struct {
	Race    domain.RaceContext
	Market  domain.MarketContext
	Runners []domain.Runner
	Options pipeline.Options
}

// Result pairs a race with its pipeline outcome.
type Result struct {
	RaceID   string
	Pipeline *pipeline.Context
	Err      error
	Duration time.Duration
}

// OrchestratorFactory builds one orchestrator per worker so workers never
// share mutable state.
type OrchestratorFactory func() *pipeline.Orchestrator

// Runner is the batch dispatcher.
type Runner struct {
	factory OrchestratorFactory
	workers int
	limiter *rate.Limiter
}

// NewRunner builds a dispatcher. racesPerSecond <= 0 disables throttling.
func NewRunner(factory OrchestratorFactory, workers int, racesPerSecond float64) *Runner {
	if workers <= 0 {
		workers = 4
	}
	var limiter *rate.Limiter
	if racesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(racesPerSecond), 1)
	}
	return &Runner{factory: factory, workers: workers, limiter: limiter}
}

// Run processes all races and returns results in input order. Cancellation
// stops dispatch; in-flight races abort at their next stage boundary.
func (r *Runner) Run(ctx context.Context, races []Race) []Result {
	results := make([]Result, len(races))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			orch := r.factory()
			for idx := range jobs {
				results[idx] = r.runOne(ctx, orch, races[idx])
			}
		}()
	}

	dispatched := 0
dispatch:
	for i := range races {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				break dispatch
			}
		}
		select {
		case jobs <- i:
			dispatched++
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	for i := dispatched; i < len(races); i++ {
		if results[i].RaceID == "" {
			results[i] = Result{RaceID: races[i].Race.RaceID, Err: ctx.Err()}
		}
	}

	log.Info().
		Int("races", len(races)).
		Int("dispatched", dispatched).
		Int("workers", r.workers).
		Msg("batch run complete")
	return results
}

func (r *Runner) runOne(ctx context.Context, orch *pipeline.Orchestrator, race Race) Result {
	start := time.Now()
	pctx, err := orch.Run(ctx, race.Race, race.Market, race.Runners, race.Options)
	res := Result{
		RaceID:   race.Race.RaceID,
		Pipeline: pctx,
		Err:      err,
		Duration: time.Since(start),
	}
	if err != nil {
		log.Warn().Err(err).Str("race_id", res.RaceID).Msg("batch race failed")
	}
	return res
}
