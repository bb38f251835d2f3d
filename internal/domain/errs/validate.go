package errs

import (
	"fmt"

	"github.com/turfline/velo/internal/domain"
)

// ValidateOdds rejects a runner with absent or non-positive odds.
func ValidateOdds(r domain.Runner) error {
	if r.RunnerID == "" {
		return New(CodeMissingRunnerID, "runner has no runner_id", "horse_name", r.HorseName)
	}
	if r.OddsDecimal == 0 {
		return New(CodeMissingOdds, "runner has no odds", "runner_id", r.RunnerID)
	}
	if r.OddsDecimal < 0 {
		return New(CodeZeroOdds, "runner odds must be positive",
			"runner_id", r.RunnerID, "odds", fmt.Sprintf("%.2f", r.OddsDecimal))
	}
	return nil
}

// ValidateRunnerProfile demands identity and a market role on a profile.
func ValidateRunnerProfile(p domain.OpponentProfile) error {
	if p.RunnerID == "" {
		return New(CodeInvalidProfile, "profile missing runner_id", "horse_name", p.HorseName)
	}
	if p.HorseName == "" {
		return New(CodeInvalidProfile, "profile missing horse_name", "runner_id", p.RunnerID)
	}
	if p.Role == "" {
		return New(CodeInvalidProfile, "profile missing market_role", "runner_id", p.RunnerID)
	}
	return nil
}

// ValidateScores requires one breakdown per runner with a non-null total
// and non-empty component map.
func ValidateScores(breakdowns []domain.ScoreBreakdown, fieldSize int) error {
	if len(breakdowns) != fieldSize {
		return New(CodeMissingScore, "score count does not match field size",
			"scores", fmt.Sprintf("%d", len(breakdowns)),
			"field_size", fmt.Sprintf("%d", fieldSize))
	}
	for _, b := range breakdowns {
		if b.RunnerID == "" {
			return New(CodeMissingRunnerID, "score breakdown missing runner_id")
		}
		if len(b.Components) == 0 {
			return New(CodeMissingScore, "score breakdown has no components", "runner_id", b.RunnerID)
		}
	}
	return nil
}

// ValidateTop4 checks the cardinality contract: len(ids) == min(4, fieldSize).
func ValidateTop4(ids []string, fieldSize int) error {
	want := fieldSize
	if want > 4 {
		want = 4
	}
	if len(ids) != want {
		return New(CodeInvalidTop4, "top-4 cardinality mismatch",
			"got", fmt.Sprintf("%d", len(ids)),
			"want", fmt.Sprintf("%d", want))
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			return New(CodeMissingRunnerID, "top-4 contains empty runner_id")
		}
		if seen[id] {
			return New(CodeInvalidTop4, "top-4 contains duplicate runner", "runner_id", id)
		}
		seen[id] = true
	}
	return nil
}

// ValidateRaceContext rejects a context with missing identity or an
// impossible field size.
func ValidateRaceContext(rc domain.RaceContext) error {
	if rc.RaceID == "" {
		return New(CodeMissingRunnerID, "race context missing race_id")
	}
	if rc.FieldSize < 1 {
		return New(CodeInvalidFieldSize, "field size must be at least 1",
			"race_id", rc.RaceID, "field_size", fmt.Sprintf("%d", rc.FieldSize))
	}
	if rc.DecisionTime.IsZero() {
		return New(CodeInvalidProfile, "race context missing decision_time", "race_id", rc.RaceID)
	}
	return nil
}

// ValidateMarketContext checks snapshot freshness against decision time and
// that any is_favorite flag agrees with the lowest-odds runner.
func ValidateMarketContext(mc domain.MarketContext, rc domain.RaceContext) error {
	if mc.RaceID != rc.RaceID {
		return New(CodeInvalidProfile, "market snapshot race_id mismatch",
			"market_race_id", mc.RaceID, "race_id", rc.RaceID)
	}
	if mc.SnapshotTimestamp.After(rc.DecisionTime) {
		return New(CodeInvalidProfile, "market snapshot is after decision time",
			"race_id", rc.RaceID,
			"snapshot", mc.SnapshotTimestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
			"decision_time", rc.DecisionTime.UTC().Format("2006-01-02T15:04:05Z07:00"))
	}
	lowest := mc.LowestOddsRunner()
	for _, rm := range mc.Runners {
		if rm.RunnerID == "" {
			return New(CodeMissingRunnerID, "market entry missing runner_id", "race_id", mc.RaceID)
		}
		if rm.OddsDecimal <= 0 {
			return New(CodeZeroOdds, "market entry has non-positive odds",
				"runner_id", rm.RunnerID, "odds", fmt.Sprintf("%.2f", rm.OddsDecimal))
		}
		if rm.IsFavorite != nil && *rm.IsFavorite && rm.RunnerID != lowest {
			return New(CodeInvalidProfile, "is_favorite flag disagrees with lowest odds",
				"flagged", rm.RunnerID, "lowest", lowest)
		}
	}
	return nil
}
