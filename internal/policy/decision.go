// Package policy applies the anti-house chassis selection: which bet
// structure, if any, the verdict supports. Suppression reasons concatenate
// every failing condition so the audit trail explains exactly why a win
// bet was withheld.
package policy

import (
	"fmt"
	"strings"

	"github.com/turfline/velo/internal/ctf"
	"github.com/turfline/velo/internal/domain"
	"github.com/turfline/velo/internal/ranking"
)

// Thresholds are the policy boundaries. Defaults mirror the doctrine.
type Thresholds struct {
	Chaos             float64 // chaos vs structure boundary
	Manipulation      float64 // win overlay blocked at or above
	Stability         float64 // convergence floor in structure races
	PaceGeometry      float64 // convergence floor in structure races
	TopStrikeBase     float64 // base margin
	TopStrikeChaosSlope float64 // extra margin per unit chaos
	AblationMaxFlips  int
	AblationMaxProbDelta float64
}

// DefaultThresholds returns the doctrine defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Chaos:                0.60,
		Manipulation:         0.60,
		Stability:            0.65,
		PaceGeometry:         0.65,
		TopStrikeBase:        0.12,
		TopStrikeChaosSlope:  0.10,
		AblationMaxFlips:     1,
		AblationMaxProbDelta: 0.15,
	}
}

// Input gathers everything the decision tree reads.
type Input struct {
	Ranked           *ranking.Result
	Profiles         []domain.OpponentProfile
	ChaosLevel       float64
	ManipulationRisk float64
	StabilityScore   float64
	PaceGeometry     float64
	AblationFlips    int
	AblationProbDelta float64
	CTF              ctf.Report
}

// Decide walks the chassis decision tree and returns the verdict. The
// Top-4 is always the score-ranked structure from the ranker.
func Decide(in Input, th Thresholds) domain.DecisionOutput {
	roles := make(map[string]domain.MarketRole, len(in.Profiles))
	profileByID := make(map[string]domain.OpponentProfile, len(in.Profiles))
	for _, p := range in.Profiles {
		roles[p.RunnerID] = p.Role
		profileByID[p.RunnerID] = p
	}

	topID := in.Ranked.Top4[0]
	top := profileByID[topID]
	fragile := in.AblationFlips >= th.AblationMaxFlips+1 || in.AblationProbDelta > th.AblationMaxProbDelta

	out := domain.DecisionOutput{
		Top4Structure: append([]string(nil), in.Ranked.Top4...),
		MarketRoles:   roles,
		Notes: map[string]string{
			"chaos_level":       fmt.Sprintf("%.3f", in.ChaosLevel),
			"manipulation_risk": fmt.Sprintf("%.3f", in.ManipulationRisk),
			"stability_score":   fmt.Sprintf("%.3f", in.StabilityScore),
			"pace_geometry":     fmt.Sprintf("%.3f", in.PaceGeometry),
			"ablation":          fmt.Sprintf("flips=%d prob_delta=%.3f", in.AblationFlips, in.AblationProbDelta),
			"ctf_max_severity":  string(in.CTF.MaxSeverity),
			"top_margin":        fmt.Sprintf("%.3f", in.Ranked.Margin),
		},
	}

	var failures []string
	chaosRace := in.ChaosLevel >= th.Chaos

	if chaosRace {
		// Chaos race: win overlay only for a clean released contender.
		if top.Role != domain.RoleReleaseHorse {
			failures = append(failures, fmt.Sprintf("Not Release Horse (top role %s)", top.Role))
		}
		if top.Intent != domain.IntentWin {
			failures = append(failures, fmt.Sprintf("Intent not Win (%s)", top.Intent))
		}
		if in.ManipulationRisk >= th.Manipulation {
			failures = append(failures, fmt.Sprintf("Manipulation risk %.2f >= %.2f", in.ManipulationRisk, th.Manipulation))
		}
		if fragile {
			failures = append(failures, "Ablation fragile")
		}
		if in.CTF.DecisionAdjusted {
			failures = append(failures, "Cognitive-trap mitigation active")
		}
	} else {
		// Structure race: convergence of stability, pace and intent.
		if in.StabilityScore < effectiveStabilityFloor(th.Stability, in.CTF) {
			failures = append(failures, fmt.Sprintf("Stability %.2f below floor %.2f", in.StabilityScore, effectiveStabilityFloor(th.Stability, in.CTF)))
		}
		if in.PaceGeometry < th.PaceGeometry {
			failures = append(failures, fmt.Sprintf("Pace geometry %.2f below floor %.2f", in.PaceGeometry, th.PaceGeometry))
		}
		if top.Intent != domain.IntentWin {
			failures = append(failures, fmt.Sprintf("Intent not Win (%s)", top.Intent))
		}
		if fragile {
			failures = append(failures, "Ablation fragile")
		}
		if in.CTF.DecisionAdjusted {
			failures = append(failures, "Cognitive-trap mitigation active")
		}
	}

	if in.CTF.ForceTop4Chassis && len(failures) == 0 {
		failures = append(failures, "Sunk-cost mitigation forces top-4 chassis")
	}

	if len(failures) > 0 {
		out.Chassis = domain.ChassisTop4Structure
		out.WinSuppressed = true
		if chaosRace {
			out.SuppressionReason = strings.Join(failures, "; ")
		} else {
			out.SuppressionReason = "Convergence failed: " + strings.Join(failures, "; ")
		}
		out.Confidence = clampConfidence(0.70 * in.CTF.WinConfidenceMult)
		return out
	}

	// Win overlay allowed; apply the TopStrike margin check.
	required := th.TopStrikeBase + th.TopStrikeChaosSlope*in.ChaosLevel
	if in.Ranked.Margin >= required {
		out.Chassis = domain.ChassisWinOverlay
		out.TopStrikeSelection = &topID
		out.Confidence = clampConfidence(0.80 * in.CTF.WinConfidenceMult)
		return out
	}

	out.Chassis = domain.ChassisTop4Structure
	out.WinSuppressed = true
	out.SuppressionReason = fmt.Sprintf("Insufficient margin: %.3f < %.3f", in.Ranked.Margin, required)
	out.Confidence = clampConfidence(0.70 * in.CTF.WinConfidenceMult)
	return out
}

// effectiveStabilityFloor lifts the floor when the recency detector fired.
func effectiveStabilityFloor(base float64, rep ctf.Report) float64 {
	if rep.MinStabilityOverride > base {
		return rep.MinStabilityOverride
	}
	return base
}

// clampConfidence bounds verdict confidence to [0.60, 0.80].
func clampConfidence(c float64) float64 {
	if c < 0.60 {
		return 0.60
	}
	if c > 0.80 {
		return 0.80
	}
	return c
}
