package critique

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turfline/velo/internal/ablation"
	"github.com/turfline/velo/internal/ctf"
	"github.com/turfline/velo/internal/domain"
	"github.com/turfline/velo/internal/governance"
	"github.com/turfline/velo/internal/leakage"
	"github.com/turfline/velo/internal/pipeline"
)

func TestLeakageCriticFlagsAuditViolations(t *testing.T) {
	pctx := &pipeline.Context{
		LeakageAudit: leakage.AuditBlob{
			Violations: []leakage.Violation{
				{Kind: "blocked_column", Column: "sp", Detail: "blocked column present"},
				{Kind: "blocked_column", Column: "winner", Detail: "blocked column present"},
			},
		},
	}

	drafts := LeakageCritic{}.Examine(pctx)
	require.Len(t, drafts, 2)
	assert.Equal(t, governance.SeverityCritical, drafts[0].Severity)
	assert.Equal(t, "post_outcome_field", drafts[0].FindingType)
	assert.Equal(t, "sp", drafts[0].ProposedChange["column"])
	assert.Equal(t, "add_to_blocklist", drafts[0].ProposedChange["action"])

	assert.Empty(t, LeakageCritic{}.Examine(&pipeline.Context{}))
}

func TestBiasCriticPromotesMediumAndWorse(t *testing.T) {
	pctx := &pipeline.Context{
		CTF: ctf.Report{
			Findings: []ctf.Finding{
				{Bias: ctf.BiasAnchoring, Score: 0.65, Severity: ctf.SeverityHigh, Trigger: "favorite without release"},
				{Bias: ctf.BiasNarrative, Score: 0.2, Severity: ctf.SeverityLow, Trigger: "weak story"},
			},
		},
	}

	drafts := BiasCritic{}.Examine(pctx)
	require.Len(t, drafts, 1)
	assert.Equal(t, "bias_ANCHORING", drafts[0].FindingType)
	assert.Equal(t, governance.SeverityHigh, drafts[0].Severity)
	assert.Equal(t, 0.65, drafts[0].ProposedChange["score"])
}

func TestBiasCriticScoresRoundedForFingerprints(t *testing.T) {
	mk := func(score float64) *pipeline.Context {
		return &pipeline.Context{CTF: ctf.Report{Findings: []ctf.Finding{
			{Bias: ctf.BiasRecency, Score: score, Severity: ctf.SeverityMedium, Trigger: "t"},
		}}}
	}

	a := BiasCritic{}.Examine(mk(0.55000001))
	b := BiasCritic{}.Examine(mk(0.54999999))
	require.Len(t, a, 1)
	require.Len(t, b, 1)

	fpA, err := governance.Fingerprint(governance.CriticBias, a[0].FindingType, a[0].ProposedChange)
	require.NoError(t, err)
	fpB, err := governance.Fingerprint(governance.CriticBias, b[0].FindingType, b[0].ProposedChange)
	require.NoError(t, err)
	assert.Equal(t, fpA, fpB)
}

func TestFeatureCriticOnFragileRun(t *testing.T) {
	pctx := &pipeline.Context{
		Ablation: ablation.Report{
			Fragile: true,
			Results: []ablation.DomainResult{
				{Domain: ablation.DomainMarket, SelectionFlipped: true, ProbDelta: 0.30},
				{Domain: ablation.DomainForm, SelectionFlipped: false, ProbDelta: 0.05},
			},
		},
	}

	drafts := FeatureCritic{}.Examine(pctx)
	require.Len(t, drafts, 1)
	assert.Equal(t, "fragile_feature_domain", drafts[0].FindingType)
	assert.Equal(t, string(ablation.DomainMarket), drafts[0].ProposedChange["domain"])

	// A robust run emits nothing even with per-domain movement.
	pctx.Ablation.Fragile = false
	assert.Empty(t, FeatureCritic{}.Examine(pctx))
}

func TestDecisionCriticOnSuppression(t *testing.T) {
	pctx := &pipeline.Context{
		Decision: &domain.DecisionOutput{
			Chassis:           domain.ChassisTop4Structure,
			WinSuppressed:     true,
			SuppressionReason: "Convergence failed: Stability 0.50 below floor 0.65",
		},
	}

	drafts := DecisionCritic{}.Examine(pctx)
	require.Len(t, drafts, 1)
	assert.Equal(t, governance.SeverityLow, drafts[0].Severity)
	assert.Equal(t, "win_suppressed", drafts[0].FindingType)
	assert.Contains(t, drafts[0].Description, "Convergence failed")

	assert.Empty(t, DecisionCritic{}.Examine(&pipeline.Context{}))
	assert.Empty(t, DecisionCritic{}.Examine(&pipeline.Context{Decision: &domain.DecisionOutput{}}))
}

func TestRunCriticsGroupsByType(t *testing.T) {
	pctx := &pipeline.Context{
		LeakageAudit: leakage.AuditBlob{Violations: []leakage.Violation{
			{Kind: "blocked_column", Column: "sp", Detail: "blocked column present"},
		}},
		Decision: &domain.DecisionOutput{WinSuppressed: true, SuppressionReason: "Insufficient margin"},
	}

	grouped := RunCritics(DefaultCritics(), pctx)
	require.Len(t, grouped, 2)
	assert.Len(t, grouped[governance.CriticLeakage], 1)
	assert.Len(t, grouped[governance.CriticDecision], 1)
	assert.NotContains(t, grouped, governance.CriticBias)
}
