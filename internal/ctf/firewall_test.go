package ctf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turfline/velo/internal/domain"
)

func TestCleanInputNoFindings(t *testing.T) {
	rep := Scan(Input{
		TopProfile:     domain.OpponentProfile{Intent: domain.IntentWin},
		TopIsFavorite:  true,
		ReleaseSignal:  true,
		StabilityScore: 0.8,
	})

	assert.Empty(t, rep.Findings)
	assert.Equal(t, SeverityLow, rep.MaxSeverity)
	assert.False(t, rep.DecisionAdjusted)
	assert.Equal(t, 1.0, rep.WinConfidenceMult)
	assert.Equal(t, 1.0, rep.StakeMultiplier)
}

func TestAnchoringOnUnreleasedFavorite(t *testing.T) {
	rep := Scan(Input{TopIsFavorite: true, ReleaseSignal: false})

	require.Len(t, rep.Findings, 1)
	f := rep.Findings[0]
	assert.Equal(t, BiasAnchoring, f.Bias)
	assert.Equal(t, SeverityHigh, f.Severity)
	assert.InDelta(t, 0.65, f.Score, 1e-9)

	assert.True(t, rep.DecisionAdjusted)
	assert.InDelta(t, 0.7, rep.WinConfidenceMult, 1e-9)
}

func TestRecencyNeedsWideGapAndShakyForm(t *testing.T) {
	base := Input{
		LastPosition:   1,
		FiveRunAvgPos:  5.5,
		StabilityScore: 0.5,
	}
	rep := Scan(base)
	require.Len(t, rep.Findings, 1)
	assert.Equal(t, BiasRecency, rep.Findings[0].Bias)
	assert.Equal(t, SeverityMedium, rep.Findings[0].Severity)
	assert.InDelta(t, 0.70, rep.MinStabilityOverride, 1e-9)

	// A stable runner earns its recent win.
	base.StabilityScore = 0.75
	assert.Empty(t, Scan(base).Findings)

	// A narrow gap is normal variance.
	base.StabilityScore = 0.5
	base.FiveRunAvgPos = 3.0
	assert.Empty(t, Scan(base).Findings)

	// Unknown history never triggers.
	assert.Empty(t, Scan(Input{LastPosition: 0, FiveRunAvgPos: 5.5, StabilityScore: 0.2}).Findings)
}

func TestNarrativeOnConnectionsWithoutIntent(t *testing.T) {
	rep := Scan(Input{
		TopProfile: domain.OpponentProfile{
			Intent:   domain.IntentUnknown,
			Evidence: map[string]string{"jockey_notable": "true"},
		},
	})

	require.Len(t, rep.Findings, 1)
	assert.Equal(t, BiasNarrative, rep.Findings[0].Bias)
	assert.Equal(t, SeverityMedium, rep.Findings[0].Severity)
	assert.True(t, rep.RequireIntentConfirm)

	// Confirmed intent quiets the story.
	rep = Scan(Input{
		TopProfile: domain.OpponentProfile{
			Intent:   domain.IntentWin,
			Evidence: map[string]string{"trainer_high_profile": "true"},
		},
	})
	assert.Empty(t, rep.Findings)
}

func TestSunkCostOnLosingStreak(t *testing.T) {
	rep := Scan(Input{RecentLosses: 3, StakeSuggested: 2.0})

	require.Len(t, rep.Findings, 1)
	assert.Equal(t, BiasSunkCost, rep.Findings[0].Bias)
	assert.Equal(t, SeverityHigh, rep.Findings[0].Severity)
	assert.True(t, rep.ForceTop4Chassis)
	assert.InDelta(t, 0.5, rep.StakeMultiplier, 1e-9)

	assert.Empty(t, Scan(Input{RecentLosses: 2}).Findings)
}

func TestMaxSeverityAcrossFindings(t *testing.T) {
	rep := Scan(Input{
		TopIsFavorite: true,
		TopProfile: domain.OpponentProfile{
			Intent:   domain.IntentUnknown,
			Evidence: map[string]string{"jockey_notable": "true"},
		},
		RecentLosses: 4,
	})

	require.Len(t, rep.Findings, 3)
	assert.Equal(t, SeverityHigh, rep.MaxSeverity)
	assert.True(t, rep.DecisionAdjusted)
	assert.True(t, rep.ForceTop4Chassis)
	assert.InDelta(t, 0.7, rep.WinConfidenceMult, 1e-9)
	assert.InDelta(t, 0.5, rep.StakeMultiplier, 1e-9)
}

func TestSeverityBands(t *testing.T) {
	assert.Equal(t, SeverityLow, severityOf(0.2))
	assert.Equal(t, SeverityMedium, severityOf(0.3))
	assert.Equal(t, SeverityMedium, severityOf(0.6))
	assert.Equal(t, SeverityHigh, severityOf(0.61))
	assert.Equal(t, SeverityCritical, severityOf(0.81))
}
