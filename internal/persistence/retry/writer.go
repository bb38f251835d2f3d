// Package retry wraps engine-run persistence with exponential backoff and
// a circuit breaker. Transient write failures retry up to three attempts;
// the breaker keeps a flapping store from stalling batch runs.
package retry

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/turfline/velo/internal/enginerun"
)

// Saver is the minimal persistence surface the pipeline writes through.
type Saver interface {
	Save(r *enginerun.Record) (string, error)
}

// Writer retries saves with backoff behind a circuit breaker.
type Writer struct {
	next     Saver
	breaker  *gobreaker.CircuitBreaker
	attempts int
	baseWait time.Duration
}

// NewWriter wraps next. Three attempts with 100ms/200ms/400ms backoff.
func NewWriter(next Saver) *Writer {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "enginerun-writer",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("persistence breaker state change")
		},
	})
	return &Writer{next: next, breaker: cb, attempts: 3, baseWait: 100 * time.Millisecond}
}

// Save persists the record, retrying transient failures. On final failure
// the record stays in memory with the caller for later retry.
func (w *Writer) Save(r *enginerun.Record) (string, error) {
	var lastErr error
	wait := w.baseWait
	for attempt := 1; attempt <= w.attempts; attempt++ {
		path, err := w.breaker.Execute(func() (interface{}, error) {
			return w.next.Save(r)
		})
		if err == nil {
			return path.(string), nil
		}
		lastErr = err
		log.Warn().
			Err(err).
			Str("engine_run_id", r.EngineRunID).
			Int("attempt", attempt).
			Msg("engine run save failed")
		if attempt < w.attempts {
			time.Sleep(wait)
			wait *= 2
		}
	}
	return "", fmt.Errorf("engine run save exhausted %d attempts: %w", w.attempts, lastErr)
}
