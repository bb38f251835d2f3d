// Package opponent classifies each runner's market role, intent class and
// stable tactic from the odds snapshot and runner metadata. Role
// classification is strictly rank-based: the same snapshot always yields
// the same roles.
package opponent

import (
	"fmt"
	"sort"

	"github.com/turfline/velo/internal/domain"
	"github.com/turfline/velo/internal/domain/errs"
)

const (
	releaseOddsCeiling = 10.0
	noiseOddsFloor     = 20.0
	driftBaitTailFrac  = 0.30 // lowest 30% of the field by rank
	longLayoffDays     = 90
)

// Classify builds one OpponentProfile per runner. The lowest-odds runner
// is always Liquidity_Anchor; Noise never applies to it.
func Classify(runners []domain.Runner, market domain.MarketContext) ([]domain.OpponentProfile, error) {
	if len(runners) == 0 {
		return nil, errs.New(errs.CodeInvalidFieldSize, "no runners to classify", "race_id", market.RaceID)
	}
	for _, r := range runners {
		if err := errs.ValidateOdds(r); err != nil {
			return nil, err
		}
	}

	ranked := make([]domain.Runner, len(runners))
	copy(ranked, runners)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].OddsDecimal != ranked[j].OddsDecimal {
			return ranked[i].OddsDecimal < ranked[j].OddsDecimal
		}
		return ranked[i].RunnerID < ranked[j].RunnerID
	})

	field := len(ranked)
	tactics := classifyTactics(ranked)

	profiles := make([]domain.OpponentProfile, 0, field)
	for i, r := range ranked {
		rank := i + 1
		role, reason := classifyRole(rank, field, r)
		intent, intentReason := classifyIntent(r)

		p := domain.OpponentProfile{
			RunnerID:     r.RunnerID,
			HorseName:    r.HorseName,
			OddsDecimal:  r.OddsDecimal,
			Rank:         rank,
			Intent:       intent,
			Role:         role,
			Tactic:       tactics[r.RunnerID],
			Confidence:   roleConfidence(rank, field),
			RoleReason:   reason,
			IntentReason: intentReason,
			Evidence: map[string]string{
				"odds":         fmt.Sprintf("%.2f", r.OddsDecimal),
				"rank":         fmt.Sprintf("%d", rank),
				"implied_prob": fmt.Sprintf("%.4f", r.ImpliedProb()),
			},
		}
		if err := errs.ValidateRunnerProfile(p); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// classifyRole applies the rank ladder: rank 1 anchors liquidity, rank 2
// releases, the rest split by odds bands.
func classifyRole(rank, field int, r domain.Runner) (domain.MarketRole, string) {
	prob := r.ImpliedProb()
	switch {
	case rank == 1:
		return domain.RoleLiquidityAnchor, fmt.Sprintf(
			"rank 1 at %.2f (implied %.1f%%): shortest price absorbs liquidity", r.OddsDecimal, prob*100)
	case rank == 2:
		return domain.RoleReleaseHorse, fmt.Sprintf(
			"rank 2 at %.2f (implied %.1f%%): second line treated as genuine chance", r.OddsDecimal, prob*100)
	case r.OddsDecimal < releaseOddsCeiling:
		return domain.RoleReleaseHorse, fmt.Sprintf(
			"rank %d at %.2f (implied %.1f%%): odds below %.0f keep it a live contender",
			rank, r.OddsDecimal, prob*100, releaseOddsCeiling)
	case r.OddsDecimal < noiseOddsFloor:
		if inTail(rank, field) {
			return domain.RoleDriftBait, fmt.Sprintf(
				"rank %d at %.2f (implied %.1f%%): mid-band odds in the bottom %.0f%% of the field",
				rank, r.OddsDecimal, prob*100, driftBaitTailFrac*100)
		}
		return domain.RoleReleaseHorse, fmt.Sprintf(
			"rank %d at %.2f (implied %.1f%%): mid-band odds with a competitive rank",
			rank, r.OddsDecimal, prob*100)
	default:
		return domain.RoleNoise, fmt.Sprintf(
			"rank %d at %.2f (implied %.1f%%): odds at or above %.0f carry no market intent",
			rank, r.OddsDecimal, prob*100, noiseOddsFloor)
	}
}

// inTail reports whether the rank falls in the lowest 30% of the field.
func inTail(rank, field int) bool {
	return float64(rank) > float64(field)*(1.0-driftBaitTailFrac)
}

func roleConfidence(rank, field int) float64 {
	// Confidence decays with rank: the anchor read is near-certain, tail
	// reads are weak.
	c := 0.9 - 0.6*float64(rank-1)/float64(field)
	if c < 0.3 {
		c = 0.3
	}
	return c
}
