package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turfline/velo/internal/domain"
)

func rankerField() []Input {
	return []Input{
		{RunnerID: "a", OddsDecimal: 2.5, Role: domain.RoleLiquidityAnchor},
		{RunnerID: "b", OddsDecimal: 5.0, Role: domain.RoleReleaseHorse},
		{RunnerID: "c", OddsDecimal: 9.0, Role: domain.RoleReleaseHorse},
		{RunnerID: "d", OddsDecimal: 14.0, Role: domain.RoleDriftBait},
		{RunnerID: "e", OddsDecimal: 26.0, Role: domain.RoleNoise},
		{RunnerID: "f", OddsDecimal: 41.0, Role: domain.RoleNoise},
	}
}

func TestRankProducesTop4(t *testing.T) {
	res, err := Rank(rankerField(), DefaultParams(6, 0.30, 0.0))
	require.NoError(t, err)

	require.Len(t, res.Top4, 4)
	require.Len(t, res.Breakdowns, 6)
	assert.Equal(t, "a", res.Top4[0], "the anchor dominates a calm, clean market")
	assert.Greater(t, res.Margin, 0.0)
}

func TestRankSmallField(t *testing.T) {
	inputs := rankerField()[:3]
	res, err := Rank(inputs, DefaultParams(3, 0.30, 0.0))
	require.NoError(t, err)
	assert.Len(t, res.Top4, 3)
}

func TestComponentsSumToTotal(t *testing.T) {
	res, err := Rank(rankerField(), DefaultParams(6, 0.72, 0.2))
	require.NoError(t, err)

	for _, b := range res.Breakdowns {
		sum := 0.0
		for _, v := range b.Components {
			sum += v
		}
		assert.InDelta(t, b.Total, sum, 0.01, "runner %s", b.RunnerID)
	}
}

func TestRankDeterministic(t *testing.T) {
	p := DefaultParams(6, 0.55, 0.1)
	a, err := Rank(rankerField(), p)
	require.NoError(t, err)
	b, err := Rank(rankerField(), p)
	require.NoError(t, err)
	assert.Equal(t, a.Top4, b.Top4)
	assert.Equal(t, a.Margin, b.Margin)
}

func TestTieBreakByRunnerID(t *testing.T) {
	inputs := []Input{
		{RunnerID: "zed", OddsDecimal: 5.0, Role: domain.RoleReleaseHorse},
		{RunnerID: "abe", OddsDecimal: 5.0, Role: domain.RoleReleaseHorse},
	}
	res, err := Rank(inputs, DefaultParams(2, 0.5, 0.0))
	require.NoError(t, err)
	assert.Equal(t, []string{"abe", "zed"}, res.Top4)
	assert.Zero(t, res.Margin)
}

func TestAnchorGuardFires(t *testing.T) {
	in := Input{RunnerID: "a", OddsDecimal: 1.5, Role: domain.RoleLiquidityAnchor}

	clean := score(in, DefaultParams(8, 0.3, 0.1))
	assert.InDelta(t, 0.10, clean.Components["anchor_guard"], 1e-9)

	// High manipulation disarms the guard.
	dirty := score(in, DefaultParams(8, 0.3, 0.5))
	assert.Zero(t, dirty.Components["anchor_guard"])

	// A weakly backed anchor gets no guard.
	weak := score(Input{RunnerID: "a", OddsDecimal: 2.5, Role: domain.RoleLiquidityAnchor}, DefaultParams(8, 0.3, 0.1))
	assert.Zero(t, weak.Components["anchor_guard"])
}

func TestChaosAdjustmentPiecewise(t *testing.T) {
	midBand := Input{RunnerID: "m", OddsDecimal: 10.0, Role: domain.RoleReleaseHorse}
	shortFav := Input{RunnerID: "s", OddsDecimal: 1.8, Role: domain.RoleLiquidityAnchor}

	high := DefaultParams(10, 0.75, 0.0)
	low := DefaultParams(10, 0.20, 0.0)

	assert.InDelta(t, 0.05, score(midBand, high).Components["chaos"], 1e-9)
	assert.InDelta(t, -0.05, score(shortFav, high).Components["chaos"], 1e-9)
	assert.InDelta(t, -0.05, score(midBand, low).Components["chaos"], 1e-9)
	assert.InDelta(t, 0.05, score(shortFav, low).Components["chaos"], 1e-9)

	// Mid-chaos races leave both untouched.
	mid := DefaultParams(10, 0.50, 0.0)
	assert.Zero(t, score(midBand, mid).Components["chaos"])
}

func TestNegativeTotalFloored(t *testing.T) {
	in := Input{
		RunnerID: "n", OddsDecimal: 500.0, Role: domain.RoleNoise,
		StabilityMod: -0.10, HistoricalMod: -0.05,
	}
	b := score(in, Params{FieldSize: 30, ChaosLevel: 0.5, ManipulationRisk: 0.0})
	assert.GreaterOrEqual(t, b.Total, 0.0)

	sum := 0.0
	for _, v := range b.Components {
		sum += v
	}
	assert.InDelta(t, b.Total, sum, 0.01)
}

func TestRankRejectsBadInput(t *testing.T) {
	_, err := Rank(nil, DefaultParams(0, 0.5, 0))
	assert.Error(t, err)

	_, err = Rank([]Input{{RunnerID: "a", OddsDecimal: 0}}, DefaultParams(1, 0.5, 0))
	assert.Error(t, err)
}

func TestScoreFloorsNegativeTotal(t *testing.T) {
	in := Input{
		RunnerID:      "x",
		OddsDecimal:   1000.0,
		Role:          domain.RoleNoise,
		StabilityMod:  -0.10,
		HistoricalMod: -0.05,
	}
	b := score(in, Params{FieldSize: 20, ChaosLevel: 0.80})

	assert.Zero(t, b.Total)
	require.Contains(t, b.Components, "floor")

	sum := 0.0
	for _, v := range b.Components {
		sum += v
	}
	assert.InDelta(t, b.Total, sum, 0.01)
}
