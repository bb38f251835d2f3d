package adlg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passingInput() Input {
	return Input{
		SQPE:             0.80,
		SSES:             0.75,
		TIE:              0.85,
		Stability:        0.72,
		ManipulationRisk: 0.20,
		AblationFlips:    0,
		AblationProbDeltaMax: 0.05,
		OutcomeVerified:  true,
		WinnerID:         "r3",
	}
}

func TestCommittedWhenAllConditionsPass(t *testing.T) {
	res := Evaluate(passingInput())

	assert.Equal(t, Committed, res.Status)
	assert.Equal(t, "COMMITTED", res.StatusName)
	assert.Empty(t, res.Rationale)
	require.Len(t, res.Conditions, 5)
	for _, c := range res.Conditions {
		assert.True(t, c.Passed, c.Name)
	}
}

func TestRejectedOnManipulation(t *testing.T) {
	in := passingInput()
	in.ManipulationRisk = 0.75
	// Drag convergence down too: manipulation still dominates.
	in.SQPE = 0.40

	res := Evaluate(in)
	assert.Equal(t, Rejected, res.Status)
	assert.Equal(t, "REJECTED", res.StatusName)
	assert.Contains(t, res.Rationale[len(res.Rationale)-1], "manipulation failed")
}

func TestQuarantinedOnConvergenceShortfall(t *testing.T) {
	in := passingInput()
	in.SQPE = 0.40
	in.SSES = 0.50

	res := Evaluate(in)
	assert.Equal(t, Quarantined, res.Status)
	require.Len(t, res.Rationale, 1)
	assert.Contains(t, res.Rationale[0], "signal_convergence failed")
	// mean(0.40, 0.50, 0.85, 0.72) = 0.6175.
	assert.InDelta(t, 0.6175, res.Conditions[0].Score, 1e-9)
}

func TestQuarantinedOnFragileAblation(t *testing.T) {
	in := passingInput()
	in.AblationFlips = 2

	res := Evaluate(in)
	assert.Equal(t, Quarantined, res.Status)
	assert.Contains(t, res.Rationale[0], "ablation_robustness failed")

	in.AblationFlips = 1
	in.AblationProbDeltaMax = 0.15
	res = Evaluate(in)
	assert.Equal(t, Quarantined, res.Status, "prob delta at the limit is out of tolerance")

	in.AblationProbDeltaMax = 0.14
	assert.Equal(t, Committed, Evaluate(in).Status)
}

func TestQuarantinedOnUnverifiedOutcome(t *testing.T) {
	in := passingInput()
	in.OutcomeVerified = false

	res := Evaluate(in)
	assert.Equal(t, Quarantined, res.Status)
	assert.Contains(t, res.Rationale[0], "outcome_verified failed")

	in.OutcomeVerified = true
	in.WinnerID = ""
	res = Evaluate(in)
	assert.Equal(t, Quarantined, res.Status, "a verified outcome still needs a winner id")
}

func TestQuarantinedOnIntegrityFlags(t *testing.T) {
	in := passingInput()
	in.IntegrityFlags = []string{"snapshot_gap"}

	res := Evaluate(in)
	assert.Equal(t, Quarantined, res.Status)
	assert.Contains(t, res.Rationale[0], "integrity_check failed: 1 integrity flags")
}

func TestRationaleListsEveryFailure(t *testing.T) {
	in := Input{
		SQPE:             0.10,
		ManipulationRisk: 0.90,
		AblationFlips:    4,
		AblationProbDeltaMax: 0.40,
		IntegrityFlags:   []string{"a", "b"},
	}

	res := Evaluate(in)
	assert.Equal(t, Rejected, res.Status)
	assert.Len(t, res.Rationale, 5)
	// Robustness score bottoms out at zero.
	assert.Zero(t, res.Conditions[2].Score)
}

func TestStatusRoundTrip(t *testing.T) {
	for _, s := range []Status{Committed, Quarantined, Rejected} {
		parsed, err := ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	parsed, err := ParseStatus("bogus")
	assert.Error(t, err)
	assert.Equal(t, Quarantined, parsed)
}
