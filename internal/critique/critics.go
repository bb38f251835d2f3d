// Package critique turns engine runs into reviewable findings. Pre-race
// critics inspect the pipeline context for structural problems; the
// post-race pass judges roles and gate decisions against the result.
// Nothing in this package mutates engine state.
package critique

import (
	"fmt"

	"github.com/turfline/velo/internal/ctf"
	"github.com/turfline/velo/internal/governance"
	"github.com/turfline/velo/internal/pipeline"
)

// Critic examines a completed pipeline context and emits zero or more
// draft proposals.
type Critic interface {
	Type() governance.CriticType
	Examine(pctx *pipeline.Context) []governance.Draft
}

// DefaultCritics is the standard pre-race panel.
func DefaultCritics() []Critic {
	return []Critic{
		LeakageCritic{},
		BiasCritic{},
		FeatureCritic{},
		DecisionCritic{},
	}
}

// LeakageCritic flags firewall violations that survived to a persisted
// run, which can only happen in audit mode.
type LeakageCritic struct{}

func (LeakageCritic) Type() governance.CriticType { return governance.CriticLeakage }

func (LeakageCritic) Examine(pctx *pipeline.Context) []governance.Draft {
	var drafts []governance.Draft
	for _, v := range pctx.LeakageAudit.Violations {
		drafts = append(drafts, governance.Draft{
			Severity:    governance.SeverityCritical,
			FindingType: "post_outcome_field",
			Description: fmt.Sprintf("column %q reached the feature frame: %s", v.Column, v.Detail),
			ProposedChange: map[string]any{
				"action": "add_to_blocklist",
				"column": v.Column,
			},
		})
	}
	return drafts
}

// BiasCritic promotes MEDIUM-or-worse cognitive-trap detections into
// findings so repeated patterns become visible across episodes.
type BiasCritic struct{}

func (BiasCritic) Type() governance.CriticType { return governance.CriticBias }

func (BiasCritic) Examine(pctx *pipeline.Context) []governance.Draft {
	var drafts []governance.Draft
	for _, f := range pctx.CTF.Findings {
		if f.Severity != ctf.SeverityMedium && f.Severity != ctf.SeverityHigh && f.Severity != ctf.SeverityCritical {
			continue
		}
		drafts = append(drafts, governance.Draft{
			Severity:    mapSeverity(f.Severity),
			FindingType: fmt.Sprintf("bias_%s", f.Bias),
			Description: f.Trigger,
			ProposedChange: map[string]any{
				"action": "review_bias_mitigation",
				"bias":   string(f.Bias),
				"score":  roundScore(f.Score),
			},
		})
	}
	return drafts
}

// FeatureCritic flags ablation-fragile runs: a verdict that flips when a
// feature domain is zeroed leans too hard on that domain.
type FeatureCritic struct{}

func (FeatureCritic) Type() governance.CriticType { return governance.CriticFeature }

func (FeatureCritic) Examine(pctx *pipeline.Context) []governance.Draft {
	if !pctx.Ablation.Fragile {
		return nil
	}
	var drafts []governance.Draft
	for _, d := range pctx.Ablation.Results {
		if !d.SelectionFlipped && d.ProbDelta <= 0.15 {
			continue
		}
		drafts = append(drafts, governance.Draft{
			Severity:    governance.SeverityHigh,
			FindingType: "fragile_feature_domain",
			Description: fmt.Sprintf("zeroing domain %q flips the selection or moves top probability by %.3f", d.Domain, d.ProbDelta),
			ProposedChange: map[string]any{
				"action": "rebalance_feature_domain",
				"domain": string(d.Domain),
			},
		})
	}
	return drafts
}

// DecisionCritic records structure-race suppressions so near-threshold
// convergence failures accumulate evidence for threshold review.
type DecisionCritic struct{}

func (DecisionCritic) Type() governance.CriticType { return governance.CriticDecision }

func (DecisionCritic) Examine(pctx *pipeline.Context) []governance.Draft {
	if pctx.Decision == nil || !pctx.Decision.WinSuppressed {
		return nil
	}
	return []governance.Draft{{
		Severity:    governance.SeverityLow,
		FindingType: "win_suppressed",
		Description: pctx.Decision.SuppressionReason,
		ProposedChange: map[string]any{
			"action":  "track_suppression",
			"chassis": string(pctx.Decision.Chassis),
			"reason":  pctx.Decision.SuppressionReason,
		},
	}}
}

// RunCritics executes the panel and groups drafts by critic type.
func RunCritics(critics []Critic, pctx *pipeline.Context) map[governance.CriticType][]governance.Draft {
	out := make(map[governance.CriticType][]governance.Draft)
	for _, c := range critics {
		if drafts := c.Examine(pctx); len(drafts) > 0 {
			out[c.Type()] = append(out[c.Type()], drafts...)
		}
	}
	return out
}

func mapSeverity(s ctf.Severity) governance.Severity {
	switch s {
	case ctf.SeverityCritical:
		return governance.SeverityCritical
	case ctf.SeverityHigh:
		return governance.SeverityHigh
	case ctf.SeverityMedium:
		return governance.SeverityMedium
	default:
		return governance.SeverityLow
	}
}

// roundScore keeps proposal fingerprints stable across float noise.
func roundScore(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
