// Package log provides the pipeline step logger: structured progress
// events over zerolog, one logger per run.
package log

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// StepLogger tracks ordered steps of a named operation.
type StepLogger struct {
	mu       sync.Mutex
	name     string
	steps    []string
	index    map[string]int
	started  map[string]time.Time
	duration map[string]time.Duration
}

// NewStepLogger declares the ordered steps up front.
func NewStepLogger(name string, steps []string) *StepLogger {
	idx := make(map[string]int, len(steps))
	for i, s := range steps {
		idx[s] = i
	}
	return &StepLogger{
		name:     name,
		steps:    steps,
		index:    idx,
		started:  make(map[string]time.Time, len(steps)),
		duration: make(map[string]time.Duration, len(steps)),
	}
}

// StartStep marks a step as running.
func (sl *StepLogger) StartStep(step string) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.started[step] = time.Now()
	log.Debug().
		Str("operation", sl.name).
		Str("stage", step).
		Int("step", sl.index[step]+1).
		Int("of", len(sl.steps)).
		Msg("stage started")
}

// CompleteStep marks a step done and records its duration.
func (sl *StepLogger) CompleteStep(step string) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	d := time.Since(sl.started[step])
	sl.duration[step] = d
	log.Debug().
		Str("operation", sl.name).
		Str("stage", step).
		Dur("duration", d).
		Msg("stage complete")
}

// FailStep marks a step failed.
func (sl *StepLogger) FailStep(step string, err error) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	d := time.Since(sl.started[step])
	sl.duration[step] = d
	log.Error().
		Err(err).
		Str("operation", sl.name).
		Str("stage", step).
		Dur("duration", d).
		Msg("stage failed")
}

// Durations returns a copy of the recorded step durations.
func (sl *StepLogger) Durations() map[string]time.Duration {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	out := make(map[string]time.Duration, len(sl.duration))
	for k, v := range sl.duration {
		out[k] = v
	}
	return out
}
