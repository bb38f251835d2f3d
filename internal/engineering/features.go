// Package engineering derives the per-race construction features: how the
// race was put together rather than how the horses have run. All four
// feature families are deterministic transforms over the decision-time
// snapshot plus the historical slice.
package engineering

import (
	"sort"

	"github.com/turfline/velo/internal/domain"
	"github.com/turfline/velo/internal/form"
)

// Features is the per-runner engineering bundle.
type Features struct {
	RunnerID string  `json:"runner_id"`
	CTI      float64 `json:"cti"` // condition targeting, [0,1]
	EIM      float64 `json:"eim"` // entry intent markers, [-1,1]
	MSC      MSC     `json:"msc"` // multi-runner stable coupling
	HMS      float64 `json:"hms"` // handicap mark strategy, [-1,1]
}

// MSC describes multi-runner stable coupling for one runner.
type MSC struct {
	Coupled     bool     `json:"coupled"`
	Stablemates []string `json:"stablemates,omitempty"`
	Role        string   `json:"role,omitempty"` // PRIMARY, SUPPORT, PACE_DECOY
	Threat      bool     `json:"threat"`
}

const (
	dslSweetSpotLow  = 20
	dslSweetSpotHigh = 45
	longLayoffDays   = 90
)

// Build computes the engineering feature set for every runner in the race.
func Build(race domain.RaceContext, runners []domain.Runner) []Features {
	byTrainer := make(map[string][]domain.Runner)
	for _, r := range runners {
		byTrainer[r.Trainer] = append(byTrainer[r.Trainer], r)
	}

	ratingRanks := ratingRankMap(runners)
	oddsRanks := oddsRankMap(runners)

	out := make([]Features, 0, len(runners))
	for _, r := range runners {
		cti := conditionTargeting(race, r)
		out = append(out, Features{
			RunnerID: r.RunnerID,
			CTI:      cti,
			EIM:      entryIntentMarkers(r),
			MSC:      stableCoupling(r, byTrainer[r.Trainer]),
			HMS:      markStrategy(r, cti, oddsRanks[r.RunnerID], ratingRanks[r.RunnerID]),
		})
	}
	return out
}

// conditionTargeting scores how precisely the entry matches the race
// conditions: age band, sex restriction, class delta and the historical
// win rate at this exact distance, equally weighted.
func conditionTargeting(race domain.RaceContext, r domain.Runner) float64 {
	score := 0.0

	if ageBandMatches(race.AgeBand, r.Age) {
		score += 0.25
	}
	if race.SexRestriction == "" || race.SexRestriction == r.Sex {
		score += 0.25
	}
	switch {
	case r.ClassDelta < 0: // dropped in class for this race
		score += 0.25
	case r.ClassDelta == 0:
		score += 0.15
	}
	if r.Historical != nil && r.Historical.DistanceWinRate != nil {
		score += 0.25 * clamp01(*r.Historical.DistanceWinRate/0.25)
	}
	return clamp01(score)
}

func ageBandMatches(band string, age int) bool {
	switch band {
	case "", "open":
		return true
	case "2yo":
		return age == 2
	case "3yo":
		return age == 3
	case "3yo+":
		return age >= 3
	case "4yo+":
		return age >= 4
	default:
		return true
	}
}

// entryIntentMarkers sums the signed intent markers and clamps to [-1,1].
func entryIntentMarkers(r domain.Runner) float64 {
	m := 0.0
	if r.DaysSinceLastRun != nil {
		d := *r.DaysSinceLastRun
		switch {
		case d >= dslSweetSpotLow && d <= dslSweetSpotHigh:
			m += 0.3
		case d >= longLayoffDays:
			m -= 0.3
		}
	}
	if r.FirstTimeHeadgear {
		m += 0.2
	}
	if r.JockeyNotable {
		m += 0.3
	}
	switch {
	case r.ClassDelta < 0:
		m += 0.2
	case r.ClassDelta > 0:
		m -= 0.2
	}
	return clampSigned(m)
}

// stableCoupling labels runners from trainers fielding two or more. Threat
// fires when the stable pairs its shortest price with a declared
// front-runner at a long price: the classic pace-decoy construction.
func stableCoupling(r domain.Runner, stable []domain.Runner) MSC {
	if len(stable) < 2 {
		return MSC{}
	}
	mates := make([]string, 0, len(stable)-1)
	shortest := stable[0]
	hasLongFront := false
	for _, s := range stable {
		if s.OddsDecimal < shortest.OddsDecimal ||
			(s.OddsDecimal == shortest.OddsDecimal && s.RunnerID < shortest.RunnerID) {
			shortest = s
		}
		if s.RunStyle == "front" && s.OddsDecimal >= 15 {
			hasLongFront = true
		}
	}
	for _, s := range stable {
		if s.RunnerID != r.RunnerID {
			mates = append(mates, s.RunnerID)
		}
	}
	sort.Strings(mates)

	msc := MSC{Coupled: true, Stablemates: mates}
	switch {
	case r.RunnerID == shortest.RunnerID:
		msc.Role = "PRIMARY"
		msc.Threat = hasLongFront
	case r.RunStyle == "front" && r.OddsDecimal >= 15:
		msc.Role = "PACE_DECOY"
		msc.Threat = true
	default:
		msc.Role = "SUPPORT"
	}
	return msc
}

// markStrategy detects handicap-mark engineering: a mark-floor drop from
// the career high, a descending-effort sequence in recent form, and
// condition/market convergence where the market rates the runner better
// than its rating rank implies.
func markStrategy(r domain.Runner, cti float64, oddsRank, ratingRank int) float64 {
	h := 0.0
	if r.ORRating != nil && r.CareerHighOR != nil && *r.CareerHighOR-*r.ORRating >= 5 {
		h += 0.3
	}
	if descendingEffort(r.FormString) {
		h += 0.3
	}
	if cti >= 0.6 && ratingRank > 0 && oddsRank > 0 && oddsRank < ratingRank {
		h += 0.4
	}
	return clampSigned(h)
}

// descendingEffort reports three or more successively worse placed efforts
// in the most recent valid runs, the "drop program" shape.
func descendingEffort(formString string) bool {
	positions := form.Positions(form.Parse(formString))
	if len(positions) < 3 {
		return false
	}
	// Most-recent-first: a drop program reads worse recent, better older.
	return positions[0] > positions[1] && positions[1] > positions[2]
}

func ratingRankMap(runners []domain.Runner) map[string]int {
	type rated struct {
		id     string
		rating int
	}
	var rs []rated
	for _, r := range runners {
		if r.ORRating != nil {
			rs = append(rs, rated{r.RunnerID, *r.ORRating})
		}
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].rating != rs[j].rating {
			return rs[i].rating > rs[j].rating
		}
		return rs[i].id < rs[j].id
	})
	out := make(map[string]int, len(rs))
	for i, r := range rs {
		out[r.id] = i + 1
	}
	return out
}

func oddsRankMap(runners []domain.Runner) map[string]int {
	sorted := make([]domain.Runner, len(runners))
	copy(sorted, runners)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].OddsDecimal != sorted[j].OddsDecimal {
			return sorted[i].OddsDecimal < sorted[j].OddsDecimal
		}
		return sorted[i].RunnerID < sorted[j].RunnerID
	})
	out := make(map[string]int, len(sorted))
	for i, r := range sorted {
		out[r.RunnerID] = i + 1
	}
	return out
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

func clampSigned(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
