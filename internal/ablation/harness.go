// Package ablation silences feature domains one at a time over a
// model-like predict callback and reports how fragile the prediction is.
// The harness is pure with respect to the callback and never mutates the
// input frame.
package ablation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/turfline/velo/internal/leakage"
)

// Domain is one of the five silenceable feature families.
type Domain string

const (
	DomainMarket         Domain = "MARKET"
	DomainTrainerJockey  Domain = "TRAINER_JOCKEY"
	DomainForm           Domain = "FORM"
	DomainPace           Domain = "PACE"
	DomainCourseGoing    Domain = "COURSE_GOING_DISTANCE"
)

// Domains lists the ablation set in fixed order.
func Domains() []Domain {
	return []Domain{DomainMarket, DomainTrainerJockey, DomainForm, DomainPace, DomainCourseGoing}
}

// domainPrefixes scopes frame columns to domains.
var domainPrefixes = map[Domain][]string{
	DomainMarket:        {"odds_", "market_", "implied_", "volume_"},
	DomainTrainerJockey: {"trainer_", "jockey_", "combo_"},
	DomainForm:          {"form_", "stability_", "consistency_", "win_rate", "place_rate"},
	DomainPace:          {"pace_", "run_style_"},
	DomainCourseGoing:   {"course_", "going_", "distance_", "class_", "surface_"},
}

// Prediction is the callback output: a top selection plus per-runner
// probabilities.
type Prediction struct {
	TopSelection  string
	Probabilities map[string]float64
}

// PredictFunc scores a frame.
type PredictFunc func(frame leakage.Frame) Prediction

// DomainResult records one ablation.
type DomainResult struct {
	Domain           Domain  `json:"domain"`
	SilencedColumns  int     `json:"silenced_columns"`
	NewTopSelection  string  `json:"new_top_selection"`
	SelectionFlipped bool    `json:"selection_flipped"`
	ProbDelta        float64 `json:"prob_delta"` // |delta| on the baseline top selection
	RankDelta        int     `json:"rank_delta"` // coarse rank movement of the baseline top
}

// Report aggregates the ablation run.
type Report struct {
	Baseline     Prediction     `json:"-"`
	Results      []DomainResult `json:"results"`
	FlipCount    int            `json:"flip_count"`
	MaxProbDelta float64        `json:"max_prob_delta"`
	Fragile      bool           `json:"fragile"`
	Summary      string         `json:"summary"`
}

const fragileProbDelta = 0.15

// Run ablates each domain against the baseline prediction. The frame is
// deep-copied per ablation so the callback never observes shared state.
func Run(frame leakage.Frame, predict PredictFunc, baseline Prediction) Report {
	report := Report{Baseline: baseline}

	for _, d := range Domains() {
		silenced, count := silenceDomain(frame, d)
		pred := predict(silenced)

		r := DomainResult{
			Domain:          d,
			SilencedColumns: count,
			NewTopSelection: pred.TopSelection,
			SelectionFlipped: pred.TopSelection != baseline.TopSelection,
			ProbDelta:       probDelta(baseline, pred),
			RankDelta:       rankDelta(baseline, pred),
		}
		if r.SelectionFlipped {
			report.FlipCount++
		}
		if r.ProbDelta > report.MaxProbDelta {
			report.MaxProbDelta = r.ProbDelta
		}
		report.Results = append(report.Results, r)
	}

	report.Fragile = report.FlipCount >= 1 || report.MaxProbDelta > fragileProbDelta
	report.Summary = fmt.Sprintf("flips=%d max_prob_delta=%.3f fragile=%t",
		report.FlipCount, report.MaxProbDelta, report.Fragile)
	return report
}

// silenceDomain returns a copy of the frame with the domain's columns
// zeroed, plus the count of columns touched.
func silenceDomain(frame leakage.Frame, d Domain) (leakage.Frame, int) {
	prefixes := domainPrefixes[d]
	touched := map[string]bool{}
	for _, col := range frame.Columns {
		lower := strings.ToLower(col)
		for _, p := range prefixes {
			if strings.HasPrefix(lower, p) {
				touched[col] = true
			}
		}
	}

	out := leakage.Frame{Columns: append([]string(nil), frame.Columns...)}
	out.Rows = make([]map[string]any, len(frame.Rows))
	for i, row := range frame.Rows {
		cp := make(map[string]any, len(row))
		for k, v := range row {
			if touched[k] {
				cp[k] = zeroOf(v)
			} else {
				cp[k] = v
			}
		}
		out.Rows[i] = cp
	}
	return out, len(touched)
}

func zeroOf(v any) any {
	switch v.(type) {
	case float64:
		return float64(0)
	case float32:
		return float32(0)
	case int:
		return 0
	case int64:
		return int64(0)
	case bool:
		return false
	case string:
		return ""
	default:
		return nil
	}
}

func probDelta(baseline, ablated Prediction) float64 {
	before := baseline.Probabilities[baseline.TopSelection]
	after := ablated.Probabilities[baseline.TopSelection]
	d := before - after
	if d < 0 {
		d = -d
	}
	return d
}

// rankDelta computes how many places the baseline top selection moved in
// the ablated probability ordering.
func rankDelta(baseline, ablated Prediction) int {
	return probRank(ablated.Probabilities, baseline.TopSelection) -
		probRank(baseline.Probabilities, baseline.TopSelection)
}

func probRank(probs map[string]float64, id string) int {
	type entry struct {
		id   string
		prob float64
	}
	entries := make([]entry, 0, len(probs))
	for k, v := range probs {
		entries = append(entries, entry{k, v})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].prob != entries[j].prob {
			return entries[i].prob > entries[j].prob
		}
		return entries[i].id < entries[j].id
	})
	for i, e := range entries {
		if e.id == id {
			return i + 1
		}
	}
	return len(entries) + 1
}
