package opponent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turfline/velo/internal/domain"
)

func field(odds ...float64) []domain.Runner {
	runners := make([]domain.Runner, 0, len(odds))
	for i, o := range odds {
		runners = append(runners, domain.Runner{
			RunnerID:    string(rune('a' + i)),
			HorseName:   "Horse " + string(rune('A'+i)),
			OddsDecimal: o,
			Trainer:     "T" + string(rune('a'+i)),
		})
	}
	return runners
}

func TestClassifyRoleLadder(t *testing.T) {
	runners := field(3.0, 4.5, 8.0, 12.0, 15.0, 18.0, 25.0, 40.0)
	profiles, err := Classify(runners, domain.MarketContext{RaceID: "R1"})
	require.NoError(t, err)
	require.Len(t, profiles, 8)

	byID := map[string]domain.OpponentProfile{}
	for _, p := range profiles {
		byID[p.RunnerID] = p
	}

	assert.Equal(t, domain.RoleLiquidityAnchor, byID["a"].Role)
	assert.Equal(t, domain.RoleReleaseHorse, byID["b"].Role)
	assert.Equal(t, domain.RoleReleaseHorse, byID["c"].Role) // under 10.0
	assert.Equal(t, domain.RoleNoise, byID["g"].Role)        // 25.0
	assert.Equal(t, domain.RoleNoise, byID["h"].Role)        // 40.0
}

func TestDriftBaitRequiresTailRank(t *testing.T) {
	// 12.0 and 18.0 sit in the mid band; only tail-rank entries drift-bait.
	runners := field(3.0, 4.5, 8.0, 12.0, 15.0, 18.0, 25.0, 40.0)
	profiles, err := Classify(runners, domain.MarketContext{RaceID: "R1"})
	require.NoError(t, err)

	byID := map[string]domain.OpponentProfile{}
	for _, p := range profiles {
		byID[p.RunnerID] = p
	}

	// Ranks: d=4, e=5, f=6 of 8. Tail is rank > 5.6, so only f drift-baits.
	assert.Equal(t, domain.RoleReleaseHorse, byID["d"].Role)
	assert.Equal(t, domain.RoleReleaseHorse, byID["e"].Role)
	assert.Equal(t, domain.RoleDriftBait, byID["f"].Role)
}

func TestAnchorNeverNoise(t *testing.T) {
	// Even a 50.0 favorite anchors liquidity by rank.
	runners := field(50.0, 60.0, 80.0)
	profiles, err := Classify(runners, domain.MarketContext{RaceID: "R1"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleLiquidityAnchor, profiles[0].Role)
}

func TestClassifyDeterministicOnOddsTies(t *testing.T) {
	runners := []domain.Runner{
		{RunnerID: "zed", HorseName: "Zed", OddsDecimal: 5.0, Trainer: "T1"},
		{RunnerID: "abe", HorseName: "Abe", OddsDecimal: 5.0, Trainer: "T2"},
		{RunnerID: "moe", HorseName: "Moe", OddsDecimal: 9.0, Trainer: "T3"},
	}
	profiles, err := Classify(runners, domain.MarketContext{RaceID: "R1"})
	require.NoError(t, err)

	// Ties break by runner id, so "abe" takes rank 1 every time.
	assert.Equal(t, "abe", profiles[0].RunnerID)
	assert.Equal(t, 1, profiles[0].Rank)
	assert.Equal(t, "zed", profiles[1].RunnerID)
}

func TestEveryProfileCarriesReasonAndEvidence(t *testing.T) {
	runners := field(2.0, 6.0, 14.0, 30.0)
	profiles, err := Classify(runners, domain.MarketContext{RaceID: "R1"})
	require.NoError(t, err)

	for _, p := range profiles {
		assert.NotEmpty(t, p.RoleReason, "runner %s", p.RunnerID)
		assert.Contains(t, p.Evidence, "odds")
		assert.Contains(t, p.Evidence, "rank")
		assert.Contains(t, p.Evidence, "implied_prob")
	}
}

func TestRoleConfidenceDecaysWithRank(t *testing.T) {
	runners := field(2.0, 4.0, 8.0, 16.0, 32.0, 64.0)
	profiles, err := Classify(runners, domain.MarketContext{RaceID: "R1"})
	require.NoError(t, err)

	for i := 1; i < len(profiles); i++ {
		assert.GreaterOrEqual(t, profiles[i-1].Confidence, profiles[i].Confidence)
	}
	assert.GreaterOrEqual(t, profiles[len(profiles)-1].Confidence, 0.3)
}

func TestClassifyRejectsBadInput(t *testing.T) {
	_, err := Classify(nil, domain.MarketContext{RaceID: "R1"})
	assert.Error(t, err)

	_, err = Classify([]domain.Runner{{RunnerID: "a", HorseName: "A"}}, domain.MarketContext{RaceID: "R1"})
	assert.Error(t, err)
}

func TestIntentLadder(t *testing.T) {
	layoff := 120
	fresh := 20

	intent, _ := classifyIntent(domain.Runner{RunnerID: "a", JockeyNotable: true, DaysSinceLastRun: &fresh})
	assert.Equal(t, domain.IntentWin, intent)

	// Layoff dominates the jockey booking.
	intent, _ = classifyIntent(domain.Runner{RunnerID: "a", JockeyNotable: true, DaysSinceLastRun: &layoff})
	assert.Equal(t, domain.IntentPrep, intent)

	intent, _ = classifyIntent(domain.Runner{RunnerID: "a", ClassDelta: 2, DaysSinceLastRun: &fresh})
	assert.Equal(t, domain.IntentPrep, intent)

	or, high := 88, 88
	intent, reason := classifyIntent(domain.Runner{
		RunnerID: "a", ORRating: &or, CareerHighOR: &high,
		FormString: "7889", DaysSinceLastRun: &fresh,
	})
	assert.Equal(t, domain.IntentMarkAdjust, intent)
	assert.NotEmpty(t, reason)

	intent, _ = classifyIntent(domain.Runner{RunnerID: "a", DaysSinceLastRun: &fresh})
	assert.Equal(t, domain.IntentUnknown, intent)
}

func TestStableTactics(t *testing.T) {
	runners := []domain.Runner{
		{RunnerID: "s1", HorseName: "S1", OddsDecimal: 3.0, Trainer: "Shared"},
		{RunnerID: "s2", HorseName: "S2", OddsDecimal: 12.0, Trainer: "Shared", RunStyle: "front"},
		{RunnerID: "s3", HorseName: "S3", OddsDecimal: 25.0, Trainer: "Shared"},
		{RunnerID: "x1", HorseName: "X1", OddsDecimal: 6.0, Trainer: "Lone"},
	}
	profiles, err := Classify(runners, domain.MarketContext{RaceID: "R1"})
	require.NoError(t, err)

	byID := map[string]domain.OpponentProfile{}
	for _, p := range profiles {
		byID[p.RunnerID] = p
	}

	assert.Equal(t, domain.TacticFinisher, byID["s1"].Tactic)
	assert.Equal(t, domain.TacticPaceSetter, byID["s2"].Tactic)
	assert.Equal(t, domain.TacticDecoy, byID["s3"].Tactic)
	assert.Equal(t, domain.TacticSolo, byID["x1"].Tactic)
}
