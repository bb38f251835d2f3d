// Package ctf is the cognitive-trap firewall: rule-based bias detectors
// that fire after opponent modeling and attach mitigations to the verdict.
package ctf

import (
	"fmt"

	"github.com/turfline/velo/internal/domain"
)

// Bias names a detector.
type Bias string

const (
	BiasAnchoring Bias = "ANCHORING"
	BiasRecency   Bias = "RECENCY"
	BiasNarrative Bias = "NARRATIVE"
	BiasSunkCost  Bias = "SUNK_COST"
)

// Severity bands for a detected bias score.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

func severityOf(score float64) Severity {
	switch {
	case score > 0.8:
		return SeverityCritical
	case score > 0.6:
		return SeverityHigh
	case score >= 0.3:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Finding is one detected bias with its mitigation.
type Finding struct {
	Bias       Bias     `json:"bias"`
	Score      float64  `json:"score"`
	Severity   Severity `json:"severity"`
	Trigger    string   `json:"trigger"`
	Mitigation string   `json:"mitigation"`
}

// Input is the state the detectors inspect.
type Input struct {
	TopProfile       domain.OpponentProfile // proposed top-ranked runner
	TopIsFavorite    bool
	ReleaseSignal    bool    // a release signal supports the favorite
	StabilityScore   float64 // top runner's stability consistency
	LastPosition     int     // top runner's most recent finish, 0 if unknown
	FiveRunAvgPos    float64 // mean position over last five, 0 if unknown
	RecentLosses     int     // user-context consecutive losing bets
	StakeSuggested   float64
}

// Report is the firewall verdict.
type Report struct {
	Findings        []Finding `json:"findings"`
	MaxSeverity     Severity  `json:"max_severity"`
	DecisionAdjusted bool     `json:"decision_adjusted"`
	WinConfidenceMult float64 `json:"win_confidence_mult"`
	StakeMultiplier   float64 `json:"stake_multiplier"`
	ForceTop4Chassis  bool    `json:"force_top4_chassis"`
	RequireIntentConfirm bool `json:"require_intent_confirm"`
	MinStabilityOverride float64 `json:"min_stability_override,omitempty"`
}

// Scan runs the four detectors. Only MEDIUM+ findings adjust the decision.
func Scan(in Input) Report {
	rep := Report{MaxSeverity: SeverityLow, WinConfidenceMult: 1.0, StakeMultiplier: 1.0}

	if in.TopIsFavorite && !in.ReleaseSignal {
		rep.add(Finding{
			Bias:       BiasAnchoring,
			Score:      0.65,
			Trigger:    "favorite selected without a release signal",
			Mitigation: "win confidence downweighted x0.7",
		}, func(r *Report) { r.WinConfidenceMult = 0.7 })
	}

	if in.LastPosition > 0 && in.FiveRunAvgPos > 0 &&
		in.FiveRunAvgPos-float64(in.LastPosition) >= 3 && in.StabilityScore < 0.65 {
		rep.add(Finding{
			Bias:       BiasRecency,
			Score:      0.55,
			Trigger:    fmt.Sprintf("last position %d far ahead of 5-run average %.1f with stability %.2f", in.LastPosition, in.FiveRunAvgPos, in.StabilityScore),
			Mitigation: "stability floor raised to 0.70",
		}, func(r *Report) { r.MinStabilityOverride = 0.70 })
	}

	if in.TopProfile.Intent == domain.IntentUnknown &&
		(in.TopProfile.Evidence["trainer_high_profile"] == "true" || in.TopProfile.Evidence["jockey_notable"] == "true") {
		rep.add(Finding{
			Bias:       BiasNarrative,
			Score:      0.45,
			Trigger:    "high-profile connections with intent Unknown",
			Mitigation: "intent confirmation required before win overlay",
		}, func(r *Report) { r.RequireIntentConfirm = true })
	}

	if in.RecentLosses >= 3 {
		rep.add(Finding{
			Bias:       BiasSunkCost,
			Score:      0.70,
			Trigger:    fmt.Sprintf("losing streak of %d", in.RecentLosses),
			Mitigation: "top-4 chassis forced, stake multiplier 0.5",
		}, func(r *Report) {
			r.ForceTop4Chassis = true
			r.StakeMultiplier = 0.5
		})
	}

	return rep
}

// add records a finding and applies its mitigation when the severity is
// MEDIUM or worse.
func (r *Report) add(f Finding, apply func(*Report)) {
	f.Severity = severityOf(f.Score)
	r.Findings = append(r.Findings, f)
	if severityRank(f.Severity) > severityRank(r.MaxSeverity) {
		r.MaxSeverity = f.Severity
	}
	if severityRank(f.Severity) >= severityRank(SeverityMedium) {
		r.DecisionAdjusted = true
		apply(r)
	}
}
