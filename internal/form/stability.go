package form

import (
	"fmt"
	"math"
)

// StabilityClass labels how repeatable a runner's form is.
type StabilityClass string

const (
	Stable           StabilityClass = "STABLE"
	Moderate         StabilityClass = "MODERATE"
	Volatile         StabilityClass = "VOLATILE"
	InsufficientData StabilityClass = "INSUFFICIENT_DATA"
)

// Trend labels the direction of recent form.
type Trend string

const (
	TrendImproving Trend = "IMPROVING"
	TrendDeclining Trend = "DECLINING"
	TrendFlat      Trend = "FLAT"
)

const (
	recentWindow   = 5
	minValidRaces  = 3
	stableFloor    = 0.70
	volatileCeil   = 0.40
	trendThreshold = 1.0 // mean-position delta between halves
)

// Profile is the derived form picture for one runner.
type Profile struct {
	Runs        []Run          `json:"-"`
	ValidRaces  int            `json:"valid_races"`
	Consistency float64        `json:"consistency"`
	RecentForm  float64        `json:"recent_form"`
	WinRate     float64        `json:"win_rate"`
	PlaceRate   float64        `json:"place_rate"`
	Class       StabilityClass `json:"stability_class"`
	Trend       Trend          `json:"trend"`
}

// BuildProfile derives the per-runner stability metrics from a form string.
func BuildProfile(formString string) Profile {
	runs := Parse(formString)
	positions := Positions(runs)
	p := Profile{Runs: runs, ValidRaces: len(positions)}

	if len(positions) > 0 {
		wins, places := 0, 0
		for _, pos := range positions {
			if pos == 1 {
				wins++
			}
			if pos <= 3 {
				places++
			}
		}
		p.WinRate = float64(wins) / float64(len(positions))
		p.PlaceRate = float64(places) / float64(len(positions))
		p.Consistency = clamp01(1.0 - stdDev(positions)/3.0)
		p.RecentForm = recentFormScore(positions)
	}

	switch {
	case p.ValidRaces < minValidRaces:
		p.Class = InsufficientData
	case p.Consistency >= stableFloor:
		p.Class = Stable
	case p.Consistency <= volatileCeil:
		p.Class = Volatile
	default:
		p.Class = Moderate
	}

	p.Trend = classifyTrend(positions)
	return p
}

// recentFormScore normalizes the inverse mean position of the last N valid
// runs onto [0,1]; position 1 maps to 1.0, position 9+ to 0.
func recentFormScore(positions []int) float64 {
	n := len(positions)
	if n > recentWindow {
		n = recentWindow
	}
	sum := 0.0
	for _, pos := range positions[:n] {
		sum += float64(pos)
	}
	mean := sum / float64(n)
	return clamp01((9.0 - mean) / 8.0)
}

// classifyTrend compares mean positions of the older half against the
// newer half; deltas within the threshold are flat. Positions are listed
// most-recent-first, so a lower newer-half mean means improvement.
func classifyTrend(positions []int) Trend {
	if len(positions) < 4 {
		return TrendFlat
	}
	half := len(positions) / 2
	newer := mean(positions[:half])
	older := mean(positions[len(positions)-half:])
	switch {
	case older-newer > trendThreshold:
		return TrendImproving
	case newer-older > trendThreshold:
		return TrendDeclining
	default:
		return TrendFlat
	}
}

// Cluster is the rule-based stability cluster label with its bounded trust
// modifier. The modifier derives only from the cluster label bands, never
// from raw positions.
type Cluster struct {
	ID            string  `json:"cluster_id"`
	TrustModifier float64 `json:"trust_modifier"`
}

const trustModifierCap = 0.10

// BuildCluster assigns the {stability}_{consistency_band}_{trend}_{rank_band}
// cluster id and its trust modifier in [-0.10, +0.10]. fieldRank is the
// runner's odds rank (1 = favorite) within fieldSize.
func BuildCluster(p Profile, fieldRank, fieldSize int) Cluster {
	cb := consistencyBand(p.Consistency)
	rb := rankBand(fieldRank, fieldSize)
	id := fmt.Sprintf("%s_%s_%s_%s", p.Class, cb, p.Trend, rb)

	mod := 0.0
	switch p.Class {
	case Stable:
		mod += 0.05
	case Volatile:
		mod -= 0.05
	}
	switch p.Trend {
	case TrendImproving:
		mod += 0.03
	case TrendDeclining:
		mod -= 0.03
	}
	switch cb {
	case "HIGH":
		mod += 0.02
	case "LOW":
		mod -= 0.02
	}
	if p.Class == InsufficientData {
		mod = 0
	}
	if mod > trustModifierCap {
		mod = trustModifierCap
	}
	if mod < -trustModifierCap {
		mod = -trustModifierCap
	}
	return Cluster{ID: id, TrustModifier: mod}
}

func consistencyBand(c float64) string {
	switch {
	case c >= 0.7:
		return "HIGH"
	case c >= 0.4:
		return "MID"
	default:
		return "LOW"
	}
}

func rankBand(rank, fieldSize int) string {
	if fieldSize < 1 {
		return "UNRANKED"
	}
	frac := float64(rank) / float64(fieldSize)
	switch {
	case frac <= 0.34:
		return "TOP"
	case frac <= 0.67:
		return "MID"
	default:
		return "TAIL"
	}
}

func mean(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += float64(x)
	}
	return sum / float64(len(xs))
}

func stdDev(xs []int) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := float64(x) - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
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
