// Package ranking composes the deterministic per-runner score and produces
// the Top-4 structure. Identical inputs always produce byte-identical
// orderings: the sort is stable and ties break on runner id.
package ranking

import (
	"fmt"
	"sort"

	"github.com/turfline/velo/internal/domain"
	"github.com/turfline/velo/internal/domain/errs"
)

const (
	roleWeightFactor  = 0.40
	oddsWeightFactor  = 0.30
	fieldWeightFactor = 0.10
	oddsProbCeiling   = 0.80

	anchorGuardBoost   = 0.10
	chaosHighThreshold = 0.60
	chaosLowThreshold  = 0.40
	chaosNudge         = 0.05

	midBandOddsLow  = 6.0
	midBandOddsHigh = 16.0
	shortFavProb    = 0.40
)

// roleWeights is the table-driven contribution per market role.
var roleWeights = map[domain.MarketRole]float64{
	domain.RoleLiquidityAnchor: 1.00,
	domain.RoleReleaseHorse:    0.75,
	domain.RoleSteam:           0.70,
	domain.RoleDriftBait:       0.40,
	domain.RoleSpoiler:         0.30,
	domain.RoleNoise:           0.20,
}

// Input is everything the ranker needs for one runner.
type Input struct {
	RunnerID         string
	OddsDecimal      float64
	Role             domain.MarketRole
	StabilityMod     float64 // bounded trust modifier from the form cluster
	StabilityReason  string
	HistoricalMod    float64 // bounded modifier from strike rates
	HistoricalReason string
}

// Params are the race-level signals shared across runners.
type Params struct {
	FieldSize        int
	ChaosLevel       float64
	ManipulationRisk float64
	AnchorGuardMinProb float64 // default 0.62
	AnchorGuardMaxManip float64 // default 0.45
}

// DefaultParams fills the anchor-guard thresholds.
func DefaultParams(fieldSize int, chaos, manip float64) Params {
	return Params{
		FieldSize:           fieldSize,
		ChaosLevel:          chaos,
		ManipulationRisk:    manip,
		AnchorGuardMinProb:  0.62,
		AnchorGuardMaxManip: 0.45,
	}
}

// Result is the ranked output: breakdowns in score order plus the Top-4.
type Result struct {
	Breakdowns []domain.ScoreBreakdown
	Top4       []string
	Margin     float64 // score[0] - score[1]; 0 for single-runner fields
}

// Rank scores every runner, sorts descending (stable, runner-id tie-break
// ascending) and returns the first min(4, field_size). Contract validators
// run unconditionally before returning.
func Rank(inputs []Input, p Params) (*Result, error) {
	if len(inputs) == 0 {
		return nil, errs.New(errs.CodeInvalidFieldSize, "ranker received no runners")
	}

	breakdowns := make([]domain.ScoreBreakdown, 0, len(inputs))
	for _, in := range inputs {
		if in.OddsDecimal <= 0 {
			return nil, errs.New(errs.CodeZeroOdds, "ranker input has non-positive odds",
				"runner_id", in.RunnerID, "odds", fmt.Sprintf("%.2f", in.OddsDecimal))
		}
		breakdowns = append(breakdowns, score(in, p))
	}

	sort.SliceStable(breakdowns, func(i, j int) bool {
		if breakdowns[i].Total != breakdowns[j].Total {
			return breakdowns[i].Total > breakdowns[j].Total
		}
		return breakdowns[i].RunnerID < breakdowns[j].RunnerID
	})

	n := len(breakdowns)
	want := n
	if want > 4 {
		want = 4
	}
	top4 := make([]string, 0, want)
	for _, b := range breakdowns[:want] {
		top4 = append(top4, b.RunnerID)
	}

	if err := errs.ValidateScores(breakdowns, p.FieldSize); err != nil {
		return nil, err
	}
	if err := errs.ValidateTop4(top4, p.FieldSize); err != nil {
		return nil, err
	}

	margin := 0.0
	if n > 1 {
		margin = breakdowns[0].Total - breakdowns[1].Total
	}
	return &Result{Breakdowns: breakdowns, Top4: top4, Margin: margin}, nil
}

// score builds one breakdown. The total is the sum of the numeric
// components taken in sorted key order so that audits can re-derive it
// exactly.
func score(in Input, p Params) domain.ScoreBreakdown {
	implied := 1.0 / in.OddsDecimal

	components := map[string]float64{
		"stability":    in.StabilityMod,
		"historical":   in.HistoricalMod,
		"role":         roleWeightFactor * roleWeights[in.Role],
		"odds":         oddsWeightFactor * minF(implied/oddsProbCeiling, 1.0),
		"chaos":        chaosAdjustment(in, p, implied),
		"field":        fieldWeightFactor * clamp01(float64(20-p.FieldSize)/20.0),
		"anchor_guard": anchorGuard(in, p, implied),
	}

	keys := make([]string, 0, len(components))
	for k := range components {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	total := 0.0
	for _, k := range keys {
		total += components[k]
	}
	if total < 0 {
		// Totals live in R>=0; negative modifiers cannot push a runner
		// below zero without breaking the component-sum invariant, so the
		// floor is recorded as its own component.
		components["floor"] = -total
		total = 0
	}

	return domain.ScoreBreakdown{
		RunnerID:   in.RunnerID,
		Total:      total,
		Components: components,
		Reasons: map[string]string{
			"stability_reason":  in.StabilityReason,
			"historical_reason": in.HistoricalReason,
		},
	}
}

// anchorGuard adds +0.10 iff the runner anchors liquidity in a clean,
// strongly-backed market. This keeps the ranker from systematically fading
// legitimate short favorites.
func anchorGuard(in Input, p Params, implied float64) float64 {
	if in.Role == domain.RoleLiquidityAnchor &&
		implied >= p.AnchorGuardMinProb &&
		p.ManipulationRisk < p.AnchorGuardMaxManip {
		return anchorGuardBoost
	}
	return 0
}

// chaosAdjustment is piecewise: high-chaos races boost mid-band odds and
// penalize short favorites; low-chaos races do the opposite.
func chaosAdjustment(in Input, p Params, implied float64) float64 {
	midBand := in.OddsDecimal >= midBandOddsLow && in.OddsDecimal < midBandOddsHigh
	shortFav := implied >= shortFavProb

	switch {
	case p.ChaosLevel > chaosHighThreshold:
		if midBand {
			return chaosNudge
		}
		if shortFav {
			return -chaosNudge
		}
	case p.ChaosLevel < chaosLowThreshold:
		if shortFav {
			return chaosNudge
		}
		if midBand {
			return -chaosNudge
		}
	}
	return 0
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
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
