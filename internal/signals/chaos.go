// Package signals computes the chaos and manipulation signal set from a
// market snapshot. Every function here is pure: identical inputs yield
// identical outputs, with no hidden state.
package signals

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/turfline/velo/internal/domain/errs"
)

const (
	weightHHI   = 0.4
	weightGini  = 0.3
	weightField = 0.3
)

// ChaosResult carries the concentration, inequality and blended chaos
// readings for one snapshot. All values are clamped to [0,1].
type ChaosResult struct {
	HHI         float64 `json:"hhi"`
	Gini        float64 `json:"gini"`
	FieldFactor float64 `json:"field_factor"`
	Level       float64 `json:"chaos_level"`
}

// Chaos blends implied-probability concentration (HHI), inequality (Gini)
// and field size into a single [0,1] chaos level.
//
// chaos = 0.4*(1-HHI) + 0.3*(1-Gini) + 0.3*field_factor
//
// An empty odds vector returns 0.5 with a warning; a single-runner race
// returns 0. Non-positive odds fail fast.
func Chaos(odds []float64, fieldSize int) (ChaosResult, error) {
	if len(odds) == 0 {
		log.Warn().Int("field_size", fieldSize).Msg("chaos: empty odds vector, defaulting to 0.5")
		return ChaosResult{Level: 0.5}, nil
	}
	for i, o := range odds {
		if o <= 0 {
			return ChaosResult{}, errs.New(errs.CodeZeroOdds, "chaos input has non-positive odds",
				"index", fmt.Sprintf("%d", i), "odds", fmt.Sprintf("%.2f", o))
		}
	}
	if len(odds) == 1 {
		return ChaosResult{HHI: 1, Gini: 0, FieldFactor: fieldFactor(fieldSize), Level: 0}, nil
	}

	probs := impliedProbs(odds)
	hhi := herfindahl(probs)
	gini := giniCoefficient(probs)
	ff := fieldFactor(fieldSize)
	level := clamp01(weightHHI*(1-hhi) + weightGini*(1-gini) + weightField*ff)

	return ChaosResult{
		HHI:         clamp01(hhi),
		Gini:        clamp01(gini),
		FieldFactor: ff,
		Level:       level,
	}, nil
}

// impliedProbs converts decimal odds to renormalized implied probabilities.
func impliedProbs(odds []float64) []float64 {
	probs := make([]float64, len(odds))
	sum := 0.0
	for i, o := range odds {
		probs[i] = 1.0 / o
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

func herfindahl(probs []float64) float64 {
	h := 0.0
	for _, p := range probs {
		h += p * p
	}
	return h
}

// giniCoefficient over a probability vector; 0 = perfectly flat market,
// approaching 1 as probability concentrates on one runner.
func giniCoefficient(probs []float64) float64 {
	n := len(probs)
	if n < 2 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, probs)
	sort.Float64s(sorted)

	cum := 0.0
	weighted := 0.0
	for i, p := range sorted {
		weighted += float64(i+1) * p
		cum += p
	}
	if cum == 0 {
		return 0
	}
	g := (2*weighted)/(float64(n)*cum) - float64(n+1)/float64(n)
	if math.IsNaN(g) {
		return 0
	}
	return clamp01(g)
}

// fieldFactor = clamp((field_size-5)/15, 0, 1).
func fieldFactor(fieldSize int) float64 {
	return clamp01(float64(fieldSize-5) / 15.0)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
