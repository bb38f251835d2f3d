package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/turfline/velo/internal/domain"
	"github.com/turfline/velo/internal/form"
	"github.com/turfline/velo/internal/leakage"
)

// FeatureSchema is the exact set of engineered feature names. Every built
// frame's columns must equal this set: no extras, no missing.
var FeatureSchema = []string{
	"class_delta",
	"combo_strike_rate",
	"course_cti",
	"distance_win_rate",
	"form_consistency",
	"form_recent",
	"jockey_strike_rate",
	"market_rank",
	"odds_decimal",
	"odds_implied",
	"pace_style_code",
	"place_rate",
	"run_style_front",
	"runner_id",
	"snapshot_ts",
	"stability_code",
	"trainer_strike_rate",
	"volume_traded",
	"win_rate",
}

// loadFeatureSchema reads a JSON schema file listing feature names, or
// returns the built-in set when path is empty.
func loadFeatureSchema(path string) ([]string, error) {
	if path == "" {
		return FeatureSchema, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("feature schema %s: %w", path, err)
	}
	var doc struct {
		Features []string `json:"features"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("feature schema %s: %w", path, err)
	}
	if len(doc.Features) == 0 {
		return nil, fmt.Errorf("feature schema %s lists no features", path)
	}
	return doc.Features, nil
}

// checkSchemaContract verifies the frame columns equal the schema set.
func checkSchemaContract(frame leakage.Frame, schema []string) error {
	want := make(map[string]bool, len(schema))
	for _, c := range schema {
		want[c] = true
	}
	got := make(map[string]bool, len(frame.Columns))
	for _, c := range frame.Columns {
		got[c] = true
	}
	var missing, extra []string
	for c := range want {
		if !got[c] {
			missing = append(missing, c)
		}
	}
	for c := range got {
		if !want[c] {
			extra = append(extra, c)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		sort.Strings(missing)
		sort.Strings(extra)
		return fmt.Errorf("feature schema contract violated: missing=%v extra=%v", missing, extra)
	}
	return nil
}

// buildFrame materializes the v12 feature frame: one row per runner, one
// column per engineered feature, snapshot timestamp carried for the
// firewall's timestamp guard.
func buildFrame(race domain.RaceContext, market domain.MarketContext, runners []domain.Runner, ctis map[string]float64) leakage.Frame {
	ranks := marketRanks(market)

	frame := leakage.Frame{Columns: append([]string(nil), FeatureSchema...)}
	sorted := make([]domain.Runner, len(runners))
	copy(sorted, runners)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RunnerID < sorted[j].RunnerID })

	for _, r := range sorted {
		p := form.BuildProfile(r.FormString)
		row := map[string]any{
			"runner_id":           r.RunnerID,
			"odds_decimal":        r.OddsDecimal,
			"odds_implied":        r.ImpliedProb(),
			"market_rank":         ranks[r.RunnerID],
			"volume_traded":       volumeFor(market, r.RunnerID),
			"trainer_strike_rate": strikeRate(r.Historical, "trainer"),
			"jockey_strike_rate":  strikeRate(r.Historical, "jockey"),
			"combo_strike_rate":   strikeRate(r.Historical, "combo"),
			"form_consistency":    p.Consistency,
			"form_recent":         p.RecentForm,
			"win_rate":            p.WinRate,
			"place_rate":          p.PlaceRate,
			"stability_code":      stabilityCode(p.Class),
			"pace_style_code":     paceStyleCode(r.RunStyle),
			"run_style_front":     boolToFloat(r.RunStyle == "front"),
			"course_cti":          ctis[r.RunnerID],
			"distance_win_rate":   distanceWinRate(r.Historical),
			"class_delta":         float64(r.ClassDelta),
			"snapshot_ts":         market.SnapshotTimestamp,
		}
		frame.Rows = append(frame.Rows, row)
	}
	return frame
}

func marketRanks(market domain.MarketContext) map[string]int {
	sorted := make([]domain.RunnerMarket, len(market.Runners))
	copy(sorted, market.Runners)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].OddsDecimal != sorted[j].OddsDecimal {
			return sorted[i].OddsDecimal < sorted[j].OddsDecimal
		}
		return sorted[i].RunnerID < sorted[j].RunnerID
	})
	out := make(map[string]int, len(sorted))
	for i, rm := range sorted {
		out[rm.RunnerID] = i + 1
	}
	return out
}

func volumeFor(market domain.MarketContext, runnerID string) float64 {
	for _, rm := range market.Runners {
		if rm.RunnerID == runnerID && rm.Volume != nil {
			return *rm.Volume
		}
	}
	return 0
}

func strikeRate(h *domain.HistoricalStats, which string) float64 {
	if h == nil {
		return 0
	}
	var s *domain.HistoricalStrike
	switch which {
	case "trainer":
		s = h.Trainer
	case "jockey":
		s = h.Jockey
	case "combo":
		s = h.Combo
	}
	if s == nil {
		return 0
	}
	return s.Rate
}

func distanceWinRate(h *domain.HistoricalStats) float64 {
	if h == nil || h.DistanceWinRate == nil {
		return 0
	}
	return *h.DistanceWinRate
}

func stabilityCode(c form.StabilityClass) float64 {
	switch c {
	case form.Stable:
		return 3
	case form.Moderate:
		return 2
	case form.Volatile:
		return 1
	default:
		return 0
	}
}

func paceStyleCode(style string) float64 {
	switch style {
	case "front":
		return 3
	case "prominent":
		return 2
	case "held_up":
		return 1
	default:
		return 0
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
