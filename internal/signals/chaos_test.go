package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turfline/velo/internal/domain"
	"github.com/turfline/velo/internal/domain/errs"
)

func TestChaosEmptyOddsDefaults(t *testing.T) {
	res, err := Chaos(nil, 8)
	require.NoError(t, err)
	assert.Equal(t, 0.5, res.Level)
}

func TestChaosSingleRunner(t *testing.T) {
	res, err := Chaos([]float64{1.5}, 1)
	require.NoError(t, err)
	assert.Zero(t, res.Level)
	assert.Equal(t, 1.0, res.HHI)
}

func TestChaosNonPositiveOddsFailFast(t *testing.T) {
	_, err := Chaos([]float64{2.0, 0.0, 5.0}, 3)
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeZeroOdds))
}

func TestChaosFlatMarketIsChaotic(t *testing.T) {
	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 20.0
	}
	skewed := []float64{1.2, 10, 20, 30, 40, 50}

	flatRes, err := Chaos(flat, 20)
	require.NoError(t, err)
	skewRes, err := Chaos(skewed, 6)
	require.NoError(t, err)

	assert.Greater(t, flatRes.Level, skewRes.Level)
	assert.Greater(t, flatRes.Level, 0.6, "a flat 20-runner market reads chaotic")
}

func TestChaosDeterministic(t *testing.T) {
	odds := []float64{2.5, 4.0, 6.0, 9.0, 15.0}
	a, err := Chaos(odds, 5)
	require.NoError(t, err)
	b, err := Chaos(odds, 5)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestChaosFieldFactor(t *testing.T) {
	cases := []struct {
		fieldSize int
		want      float64
	}{
		{5, 0.0},
		{8, 0.2},
		{20, 1.0},
		{30, 1.0},
		{2, 0.0},
	}
	for _, tc := range cases {
		res, err := Chaos([]float64{2.0, 3.0}, tc.fieldSize)
		require.NoError(t, err)
		assert.InDelta(t, tc.want, res.FieldFactor, 1e-9, "field size %d", tc.fieldSize)
	}
}

func TestChaosBounds(t *testing.T) {
	res, err := Chaos([]float64{1.05, 100, 200, 500}, 4)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Level, 0.0)
	assert.LessOrEqual(t, res.Level, 1.0)
	assert.LessOrEqual(t, res.Gini, 1.0)
}

func TestManipulationDefaultStub(t *testing.T) {
	market := domain.MarketContext{RaceID: "R1"}
	assert.Zero(t, ManipulationRisk(market, nil))
}

func TestManipulationOverrideClamped(t *testing.T) {
	market := domain.MarketContext{RaceID: "R1"}
	risk := ManipulationRisk(market, func(domain.MarketContext) float64 { return 1.7 })
	assert.Equal(t, 1.0, risk)

	risk = ManipulationRisk(market, func(domain.MarketContext) float64 { return 0.35 })
	assert.Equal(t, 0.35, risk)
}
