// Package domain holds the core race, market and verdict types shared by
// every pipeline stage. All types are immutable once constructed; stages
// communicate by value or through freshly built artifacts.
package domain

import "time"

// Mode identifies how a run was produced.
type Mode string

const (
	ModeRace       Mode = "RACE"
	ModeBacktest   Mode = "BACKTEST"
	ModeSimulation Mode = "SIMULATION"
)

// IntentClass is the strategic intent attributed to a runner's connections.
type IntentClass string

const (
	IntentWin        IntentClass = "Win"
	IntentPlace      IntentClass = "Place"
	IntentPrep       IntentClass = "Prep"
	IntentMarkAdjust IntentClass = "Mark-Adjust"
	IntentUnknown    IntentClass = "Unknown"
)

// MarketRole classifies how the market is using a runner.
type MarketRole string

const (
	RoleLiquidityAnchor MarketRole = "Liquidity_Anchor"
	RoleReleaseHorse    MarketRole = "Release_Horse"
	RoleSteam           MarketRole = "Steam"
	RoleSpoiler         MarketRole = "Spoiler"
	RoleDriftBait       MarketRole = "Drift_Bait"
	RoleNoise           MarketRole = "Noise"
)

// StableTactic is the intra-stable job assigned to a runner.
type StableTactic string

const (
	TacticPaceSetter StableTactic = "Pace_Setter"
	TacticCover      StableTactic = "Cover"
	TacticFinisher   StableTactic = "Finisher"
	TacticDecoy      StableTactic = "Decoy"
	TacticSolo       StableTactic = "Solo"
)

// ChassisType is the structural shape of the wager verdict.
type ChassisType string

const (
	ChassisWinOverlay    ChassisType = "Win_Overlay"
	ChassisTop4Structure ChassisType = "Top_4_Structure"
	ChassisValueEW       ChassisType = "Value_EW"
	ChassisFadeOnly      ChassisType = "Fade_Only"
	ChassisSuppress      ChassisType = "Suppress"
)

// RaceContext identifies a race at decision time. Constructed once by the
// orchestrator and referenced by every downstream artifact.
type RaceContext struct {
	RaceID         string    `json:"race_id"`
	Course         string    `json:"course"`
	DecisionTime   time.Time `json:"decision_time"`
	DistanceF      float64   `json:"distance_f"` // furlongs
	Going          string    `json:"going"`
	ClassLevel     int       `json:"class_level"`
	Surface        string    `json:"surface"`
	FieldSize      int       `json:"field_size"`
	AgeBand        string    `json:"age_band,omitempty"`        // e.g. "3yo+", "2yo"
	SexRestriction string    `json:"sex_restriction,omitempty"` // e.g. "F", "" for open
}

// RunnerMarket is one runner's slice of the market snapshot.
type RunnerMarket struct {
	RunnerID    string   `json:"runner_id"`
	OddsDecimal float64  `json:"odds_decimal"`
	Volume      *float64 `json:"volume,omitempty"`
	IsFavorite  *bool    `json:"is_favorite,omitempty"`
}

// MarketContext is the market snapshot at or before decision time.
type MarketContext struct {
	RaceID            string         `json:"race_id"`
	SnapshotTimestamp time.Time      `json:"snapshot_timestamp"`
	Runners           []RunnerMarket `json:"runners"`
}

// HistoricalStrike is a strike rate with its sample size, scoped by the
// source that produced it (track, distance band, surface, recency window).
type HistoricalStrike struct {
	Rate float64 `json:"rate"`
	Runs int     `json:"runs"`
}

// HistoricalStats bundles the strike-rate slices available for a runner at
// decision time. Nil fields mean the slice was unavailable.
type HistoricalStats struct {
	Trainer         *HistoricalStrike `json:"trainer,omitempty"`
	Jockey          *HistoricalStrike `json:"jockey,omitempty"`
	Combo           *HistoricalStrike `json:"combo,omitempty"`
	DistanceWinRate *float64          `json:"distance_win_rate,omitempty"`
}

// Runner is a race participant as known at decision time.
type Runner struct {
	RunnerID          string           `json:"runner_id"`
	HorseName         string           `json:"horse_name"`
	Age               int              `json:"age"`
	Sex               string           `json:"sex"`
	Trainer           string           `json:"trainer"`
	Jockey            string           `json:"jockey"`
	JockeyNotable     bool             `json:"jockey_notable,omitempty"`
	TrainerHighProfile bool            `json:"trainer_high_profile,omitempty"`
	FormString        string           `json:"form_string,omitempty"`
	OddsDecimal       float64          `json:"odds_decimal"`
	ORRating          *int             `json:"or_rating,omitempty"`
	CareerHighOR      *int             `json:"career_high_or,omitempty"`
	RPR               *int             `json:"rpr,omitempty"`
	TS                *int             `json:"ts,omitempty"`
	DaysSinceLastRun  *int             `json:"days_since_last_run,omitempty"`
	FirstTimeHeadgear bool             `json:"first_time_headgear,omitempty"`
	RunStyle          string           `json:"run_style,omitempty"` // "front", "prominent", "held_up"
	ClassDelta        int              `json:"class_delta,omitempty"` // positive = class rise
	Historical        *HistoricalStats `json:"historical_stats,omitempty"`
}

// ImpliedProb returns the implied win probability from decimal odds, or 0
// when odds are not positive.
func (r Runner) ImpliedProb() float64 {
	if r.OddsDecimal <= 0 {
		return 0
	}
	return 1.0 / r.OddsDecimal
}

// OpponentProfile is the strategic classification of one runner.
type OpponentProfile struct {
	RunnerID     string            `json:"runner_id"`
	HorseName    string            `json:"horse_name"`
	OddsDecimal  float64           `json:"odds_decimal"`
	Rank         int               `json:"rank"` // 1 = shortest price
	Intent       IntentClass       `json:"intent_class"`
	Role         MarketRole        `json:"market_role"`
	Tactic       StableTactic      `json:"stable_tactic"`
	Confidence   float64           `json:"confidence"`
	RoleReason   string            `json:"role_reason"`
	IntentReason string            `json:"intent_reason,omitempty"`
	Evidence     map[string]string `json:"evidence,omitempty"`
}

// ScoreBreakdown is one runner's ranking output. Numeric components sum to
// Total within 0.01; summation runs in sorted key order so the invariant
// holds exactly in audits. A synthetic "floor" component appears alongside
// the scoring components when negative modifiers would otherwise push the
// total below zero.
type ScoreBreakdown struct {
	RunnerID   string             `json:"runner_id"`
	Total      float64            `json:"total"`
	Components map[string]float64 `json:"components"`
	Reasons    map[string]string  `json:"reasons"`
}

// DecisionOutput is the verdict for one race.
type DecisionOutput struct {
	Chassis            ChassisType           `json:"chassis_type"`
	TopStrikeSelection *string               `json:"top_strike_selection,omitempty"`
	Top4Structure      []string              `json:"top_4_structure"`
	MarketRoles        map[string]MarketRole `json:"market_roles"`
	WinSuppressed      bool                  `json:"win_suppressed"`
	SuppressionReason  string                `json:"suppression_reason,omitempty"`
	Confidence         float64               `json:"confidence"`
	LearningGateStatus string                `json:"learning_gate_status,omitempty"`
	Notes              map[string]string     `json:"notes,omitempty"`
}

// RaceOutcome is the post-race result used by finalization and critique.
type RaceOutcome struct {
	RaceID    string         `json:"race_id"`
	WinnerID  string         `json:"winner_id"`
	Positions map[string]int `json:"positions"` // runner_id -> finishing position, 1-based
	Verified  bool           `json:"verified"`
}

// LowestOddsRunner returns the runner id with the shortest price in the
// snapshot, ties broken by runner id for determinism. Empty string when the
// snapshot has no runners.
func (m MarketContext) LowestOddsRunner() string {
	best := ""
	bestOdds := 0.0
	for _, rm := range m.Runners {
		if rm.OddsDecimal <= 0 {
			continue
		}
		if best == "" || rm.OddsDecimal < bestOdds || (rm.OddsDecimal == bestOdds && rm.RunnerID < best) {
			best = rm.RunnerID
			bestOdds = rm.OddsDecimal
		}
	}
	return best
}
