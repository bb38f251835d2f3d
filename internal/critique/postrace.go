package critique

import (
	"fmt"
	"sort"

	"github.com/turfline/velo/internal/adlg"
	"github.com/turfline/velo/internal/domain"
	"github.com/turfline/velo/internal/governance"
	"github.com/turfline/velo/internal/pipeline"
)

// RoleCheck compares one assigned market role against the finish.
type RoleCheck struct {
	RunnerID string            `json:"runner_id"`
	Role     domain.MarketRole `json:"role"`
	Position int               `json:"position"` // 0 when the runner did not finish
	Expected string            `json:"expected"`
	Valid    bool              `json:"valid"`
}

// Counters track quarantined runs resolved by outcome. Promotion means
// the quarantined verdict would have been correct to commit.
type Counters struct {
	QuarantinePromoted int `json:"quarantine_promoted"`
	QuarantineRejected int `json:"quarantine_rejected"`
}

// Report is the retrospective for one resolved race.
type Report struct {
	RaceID              string      `json:"race_id"`
	WinnerID            string      `json:"winner_id"`
	WinnerInTop4        bool        `json:"winner_in_top4"`
	TopStrikeHit        *bool       `json:"top_strike_hit,omitempty"`
	RoleChecks          []RoleCheck `json:"role_checks"`
	GateDecisionCorrect bool        `json:"gate_decision_correct"`
	Counters            Counters    `json:"counters"`
	WhyWon              []string    `json:"why_won,omitempty"`
	WhyLost             []string    `json:"why_lost,omitempty"`
	Nudges              []governance.Draft `json:"-"`
}

const nudgeStep = 0.02

// PostRace runs the retrospective once the outcome is verified. Threshold
// nudges are bounded and emitted as drafts only, never applied here.
func PostRace(pctx *pipeline.Context, outcome domain.RaceOutcome) Report {
	rep := Report{RaceID: outcome.RaceID, WinnerID: outcome.WinnerID}

	rep.RoleChecks = validateRoles(pctx.Profiles, outcome.Positions)

	if pctx.Ranked != nil {
		for _, id := range pctx.Ranked.Top4 {
			if id == outcome.WinnerID {
				rep.WinnerInTop4 = true
				break
			}
		}
	}
	if pctx.Decision != nil && pctx.Decision.TopStrikeSelection != nil {
		hit := *pctx.Decision.TopStrikeSelection == outcome.WinnerID
		rep.TopStrikeHit = &hit
	}

	// Outcome quality proxy: a Top-4 structure containing the winner, or a
	// correct top strike, counts as a good read of the race.
	good := rep.WinnerInTop4
	if rep.TopStrikeHit != nil {
		good = *rep.TopStrikeHit
	}

	switch pctx.Gate.Status {
	case adlg.Committed:
		rep.GateDecisionCorrect = good
	case adlg.Rejected:
		rep.GateDecisionCorrect = !good
	case adlg.Quarantined:
		rep.GateDecisionCorrect = true // quarantine is never wrong, only resolved
		if good {
			rep.Counters.QuarantinePromoted++
		} else {
			rep.Counters.QuarantineRejected++
		}
	}

	rep.WhyWon, rep.WhyLost = reasons(pctx, outcome, good)
	rep.Nudges = thresholdNudges(pctx, good)
	return rep
}

// validateRoles checks Release horses placed top-3 and Anchors placed 2
// through 4. Other roles carry no positional expectation.
func validateRoles(profiles []domain.OpponentProfile, positions map[string]int) []RoleCheck {
	var checks []RoleCheck
	for _, p := range profiles {
		pos := positions[p.RunnerID]
		switch p.Role {
		case domain.RoleReleaseHorse:
			checks = append(checks, RoleCheck{
				RunnerID: p.RunnerID, Role: p.Role, Position: pos,
				Expected: "top-3 finish",
				Valid:    pos >= 1 && pos <= 3,
			})
		case domain.RoleLiquidityAnchor:
			checks = append(checks, RoleCheck{
				RunnerID: p.RunnerID, Role: p.Role, Position: pos,
				Expected: "finish 2-4",
				Valid:    pos >= 2 && pos <= 4,
			})
		}
	}
	sort.Slice(checks, func(i, j int) bool { return checks[i].RunnerID < checks[j].RunnerID })
	return checks
}

// reasons assembles the why_won / why_lost lists from chassis, roles and
// signals.
func reasons(pctx *pipeline.Context, outcome domain.RaceOutcome, good bool) (won, lost []string) {
	var winnerRole domain.MarketRole
	for _, p := range pctx.Profiles {
		if p.RunnerID == outcome.WinnerID {
			winnerRole = p.Role
			break
		}
	}

	if pctx.Decision != nil {
		if good {
			won = append(won, fmt.Sprintf("chassis %s covered the winner", pctx.Decision.Chassis))
		} else {
			lost = append(lost, fmt.Sprintf("chassis %s missed the winner", pctx.Decision.Chassis))
		}
		if pctx.Decision.WinSuppressed && good {
			lost = append(lost, "win bet was suppressed despite a correct structural read")
		}
	}

	if winnerRole != "" {
		line := fmt.Sprintf("winner carried role %s", winnerRole)
		if winnerRole == domain.RoleReleaseHorse || winnerRole == domain.RoleLiquidityAnchor {
			won = append(won, line)
		} else {
			lost = append(lost, line)
		}
	}

	if pctx.Chaos.Level >= 0.60 && !good {
		lost = append(lost, fmt.Sprintf("chaos reading %.2f made the market structurally unreliable", pctx.Chaos.Level))
	}
	if pctx.Manipulation >= 0.60 {
		lost = append(lost, fmt.Sprintf("manipulation risk %.2f tainted the snapshot", pctx.Manipulation))
	}
	if pctx.Ablation.Fragile && !good {
		lost = append(lost, "prediction was ablation-fragile")
	}
	return won, lost
}

// thresholdNudges proposes bounded adjustments to the chaos and
// manipulation thresholds for governance review.
func thresholdNudges(pctx *pipeline.Context, good bool) []governance.Draft {
	var drafts []governance.Draft

	// A chaos race read correctly argues the boundary sits slightly high;
	// a misread argues the reverse. Either way the step is capped.
	if pctx.Chaos.Level >= 0.55 && pctx.Chaos.Level < 0.65 {
		delta := nudgeStep
		if !good {
			delta = -nudgeStep
		}
		drafts = append(drafts, governance.Draft{
			Severity:    governance.SeverityLow,
			FindingType: "threshold_nudge_chaos",
			Description: fmt.Sprintf("chaos %.2f near boundary; outcome suggests %+.2f adjustment", pctx.Chaos.Level, delta),
			ProposedChange: map[string]any{
				"action":    "nudge_threshold",
				"threshold": "chaos_threshold",
				"delta":     delta,
			},
		})
	}

	if pctx.Manipulation >= 0.55 && pctx.Manipulation < 0.65 {
		delta := -nudgeStep
		if good {
			delta = nudgeStep
		}
		drafts = append(drafts, governance.Draft{
			Severity:    governance.SeverityLow,
			FindingType: "threshold_nudge_manipulation",
			Description: fmt.Sprintf("manipulation %.2f near boundary; outcome suggests %+.2f adjustment", pctx.Manipulation, delta),
			ProposedChange: map[string]any{
				"action":    "nudge_threshold",
				"threshold": "manipulation_threshold",
				"delta":     delta,
			},
		})
	}
	return drafts
}
