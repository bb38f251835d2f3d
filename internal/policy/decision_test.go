package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turfline/velo/internal/ctf"
	"github.com/turfline/velo/internal/domain"
	"github.com/turfline/velo/internal/ranking"
)

func decisionInput() Input {
	return Input{
		Ranked: &ranking.Result{
			Top4:   []string{"b", "a", "c", "d"},
			Margin: 0.30,
		},
		Profiles: []domain.OpponentProfile{
			{RunnerID: "a", Role: domain.RoleLiquidityAnchor, Intent: domain.IntentWin},
			{RunnerID: "b", Role: domain.RoleReleaseHorse, Intent: domain.IntentWin},
			{RunnerID: "c", Role: domain.RoleReleaseHorse, Intent: domain.IntentPlace},
			{RunnerID: "d", Role: domain.RoleNoise, Intent: domain.IntentUnknown},
		},
		ChaosLevel:       0.30,
		ManipulationRisk: 0.20,
		StabilityScore:   0.80,
		PaceGeometry:     0.75,
		CTF:              ctf.Report{MaxSeverity: ctf.SeverityLow, WinConfidenceMult: 1.0, StakeMultiplier: 1.0},
	}
}

func TestStructureRaceWinOverlay(t *testing.T) {
	out := Decide(decisionInput(), DefaultThresholds())

	assert.Equal(t, domain.ChassisWinOverlay, out.Chassis)
	assert.False(t, out.WinSuppressed)
	require.NotNil(t, out.TopStrikeSelection)
	assert.Equal(t, "b", *out.TopStrikeSelection)
	assert.InDelta(t, 0.80, out.Confidence, 1e-9)
	assert.Equal(t, []string{"b", "a", "c", "d"}, out.Top4Structure)
	assert.Equal(t, domain.RoleReleaseHorse, out.MarketRoles["b"])
}

func TestStructureRaceConvergenceFailure(t *testing.T) {
	in := decisionInput()
	in.StabilityScore = 0.50
	in.PaceGeometry = 0.40

	out := Decide(in, DefaultThresholds())

	assert.Equal(t, domain.ChassisTop4Structure, out.Chassis)
	assert.True(t, out.WinSuppressed)
	assert.Contains(t, out.SuppressionReason, "Convergence failed: ")
	assert.Contains(t, out.SuppressionReason, "Stability 0.50 below floor 0.65")
	assert.Contains(t, out.SuppressionReason, "Pace geometry 0.40 below floor 0.65")
	assert.Nil(t, out.TopStrikeSelection)
	assert.InDelta(t, 0.70, out.Confidence, 1e-9)
}

func TestChaosRaceRequiresCleanRelease(t *testing.T) {
	in := decisionInput()
	in.ChaosLevel = 0.75
	in.ManipulationRisk = 0.65
	in.Ranked.Top4 = []string{"a", "b", "c", "d"}

	out := Decide(in, DefaultThresholds())

	assert.True(t, out.WinSuppressed)
	assert.NotContains(t, out.SuppressionReason, "Convergence failed")
	assert.Contains(t, out.SuppressionReason, "Not Release Horse")
	assert.Contains(t, out.SuppressionReason, "Manipulation risk 0.65 >= 0.60")
}

func TestChaosRaceWinOverlayWithWideMargin(t *testing.T) {
	in := decisionInput()
	in.ChaosLevel = 0.75
	// Required margin is 0.12 + 0.10*0.75 = 0.195.
	in.Ranked.Margin = 0.20

	out := Decide(in, DefaultThresholds())
	assert.Equal(t, domain.ChassisWinOverlay, out.Chassis)
	require.NotNil(t, out.TopStrikeSelection)
	assert.Equal(t, "b", *out.TopStrikeSelection)
}

func TestTopStrikeMarginScalesWithChaos(t *testing.T) {
	in := decisionInput()
	in.ChaosLevel = 0.50
	in.Ranked.Margin = 0.16 // below 0.12 + 0.10*0.50 = 0.17

	out := Decide(in, DefaultThresholds())
	assert.True(t, out.WinSuppressed)
	assert.Contains(t, out.SuppressionReason, "Insufficient margin: 0.160 < 0.170")
	assert.Equal(t, domain.ChassisTop4Structure, out.Chassis)
}

func TestFragileAblationSuppresses(t *testing.T) {
	in := decisionInput()
	in.AblationFlips = 2

	out := Decide(in, DefaultThresholds())
	assert.True(t, out.WinSuppressed)
	assert.Contains(t, out.SuppressionReason, "Ablation fragile")

	in.AblationFlips = 0
	in.AblationProbDelta = 0.20
	out = Decide(in, DefaultThresholds())
	assert.Contains(t, out.SuppressionReason, "Ablation fragile")

	// One flip with a small delta stays within tolerance.
	in.AblationFlips = 1
	in.AblationProbDelta = 0.10
	out = Decide(in, DefaultThresholds())
	assert.False(t, out.WinSuppressed)
}

func TestRecencyOverrideLiftsStabilityFloor(t *testing.T) {
	in := decisionInput()
	in.StabilityScore = 0.68
	in.CTF.MinStabilityOverride = 0.70
	in.CTF.DecisionAdjusted = true

	out := Decide(in, DefaultThresholds())
	assert.True(t, out.WinSuppressed)
	assert.Contains(t, out.SuppressionReason, "Stability 0.68 below floor 0.70")
	assert.Contains(t, out.SuppressionReason, "Cognitive-trap mitigation active")
}

func TestSunkCostForcesStructure(t *testing.T) {
	in := decisionInput()
	in.CTF.ForceTop4Chassis = true
	in.CTF.StakeMultiplier = 0.5

	out := Decide(in, DefaultThresholds())
	assert.Equal(t, domain.ChassisTop4Structure, out.Chassis)
	assert.True(t, out.WinSuppressed)
	assert.Contains(t, out.SuppressionReason, "Sunk-cost mitigation forces top-4 chassis")
}

func TestConfidenceClampedWithMitigation(t *testing.T) {
	in := decisionInput()
	in.CTF.WinConfidenceMult = 0.7
	in.CTF.DecisionAdjusted = true

	out := Decide(in, DefaultThresholds())
	assert.True(t, out.WinSuppressed)
	// 0.70 * 0.7 = 0.49 clamps up to the floor.
	assert.InDelta(t, 0.60, out.Confidence, 1e-9)
}

func TestNotesCarryAuditContext(t *testing.T) {
	out := Decide(decisionInput(), DefaultThresholds())
	assert.Equal(t, "0.300", out.Notes["chaos_level"])
	assert.Equal(t, "flips=0 prob_delta=0.000", out.Notes["ablation"])
	assert.Equal(t, "LOW", out.Notes["ctf_max_severity"])
}
