// Package pipeline sequences the nine engine stages for one race and
// assembles the EngineRun artifact. Stages run in declared order; the
// leakage firewall strictly dominates every downstream read of features.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/turfline/velo/internal/ablation"
	"github.com/turfline/velo/internal/adlg"
	"github.com/turfline/velo/internal/config"
	"github.com/turfline/velo/internal/ctf"
	"github.com/turfline/velo/internal/domain"
	"github.com/turfline/velo/internal/domain/errs"
	"github.com/turfline/velo/internal/engineering"
	"github.com/turfline/velo/internal/enginerun"
	"github.com/turfline/velo/internal/form"
	"github.com/turfline/velo/internal/history"
	"github.com/turfline/velo/internal/leakage"
	velolog "github.com/turfline/velo/internal/log"
	"github.com/turfline/velo/internal/metrics"
	"github.com/turfline/velo/internal/opponent"
	"github.com/turfline/velo/internal/policy"
	"github.com/turfline/velo/internal/ranking"
	"github.com/turfline/velo/internal/signals"
)

// Stage names in declared execution order.
var Stages = []string{
	"ingest",
	"features",
	"leakage",
	"signals",
	"intelligence",
	"decision",
	"learning_gate",
	"storage",
}

// Saver is the persistence surface the storage stage writes through.
type Saver interface {
	Save(r *enginerun.Record) (string, error)
}

// Options carry per-run knobs and metadata-fed placeholders.
type Options struct {
	Mode         domain.Mode
	Stability    *float64 // override; default derived from form profiles
	PaceGeometry *float64 // override; default derived from run styles
	SQPE         *float64
	SSES         *float64
	TIE          *float64
	RecentLosses int // user-context losing streak for the sunk-cost detector
	Predict      ablation.PredictFunc
}

// Context is the full output of one run: inputs, intermediate signals,
// verdict and the persisted record.
type Context struct {
	EngineRunID    string
	FeaturesHash   string
	Frame          leakage.Frame
	LeakageAudit   leakage.AuditBlob
	Chaos          signals.ChaosResult
	Manipulation   float64
	StabilityScore float64
	PaceGeometry   float64
	Profiles       []domain.OpponentProfile
	Engineering    []engineering.Features
	CTF            ctf.Report
	Ablation       ablation.Report
	Ranked         *ranking.Result
	Decision       *domain.DecisionOutput
	Gate           adlg.Result
	GateInput      adlg.Input // pre-race inputs, re-evaluated at finalization
	EngineRun      *enginerun.Record
	StageDurations map[string]time.Duration
}

// Orchestrator owns one race at a time; batch runs construct one per
// worker. Dependencies are injected explicitly, no process-wide
// singletons.
type Orchestrator struct {
	cfg      config.Config
	firewall *leakage.Firewall
	saver    Saver
	metrics  *metrics.Registry
	manip    signals.ManipulationFunc
	stats    history.Source // optional enrichment for runners missing stats
}

// New builds an orchestrator. saver may be nil (no persistence, e.g. in
// acceptance self-tests); metrics may be nil.
func New(cfg config.Config, firewall *leakage.Firewall, saver Saver, m *metrics.Registry) *Orchestrator {
	if firewall == nil {
		firewall = leakage.New(leakage.Strict)
	}
	return &Orchestrator{cfg: cfg, firewall: firewall, saver: saver, metrics: m}
}

// WithManipulationOverride installs a live manipulation detector in place
// of the stub.
func (o *Orchestrator) WithManipulationOverride(fn signals.ManipulationFunc) *Orchestrator {
	o.manip = fn
	return o
}

// WithStatsSource installs a historical-stats source used to enrich
// runners that arrive without stats.
func (o *Orchestrator) WithStatsSource(src history.Source) *Orchestrator {
	o.stats = src
	return o
}

// Run executes the pipeline. A validator failure aborts the run and
// records the error into EngineRun metadata without emitting a verdict.
// Cancellation aborts at the next stage boundary.
func (o *Orchestrator) Run(ctx context.Context, race domain.RaceContext, market domain.MarketContext, runners []domain.Runner, opts Options) (*Context, error) {
	if opts.Mode == "" {
		opts.Mode = domain.ModeRace
	}
	// Ingest may enrich runner rows; work on a copy so the caller's slice
	// stays untouched.
	runners = append([]domain.Runner(nil), runners...)
	pctx := &Context{StageDurations: make(map[string]time.Duration)}
	run := enginerun.New(race, market, opts.Mode)
	run.Metadata = map[string]string{}
	pctx.EngineRun = run
	pctx.EngineRunID = run.EngineRunID

	stepLogger := velolog.NewStepLogger("velo-pipeline", Stages)
	started := time.Now()

	stages := []struct {
		name string
		fn   func(context.Context, domain.RaceContext, domain.MarketContext, []domain.Runner, Options, *Context) error
	}{
		{"ingest", o.stageIngest},
		{"features", o.stageFeatures},
		{"leakage", o.stageLeakage},
		{"signals", o.stageSignals},
		{"intelligence", o.stageIntelligence},
		{"decision", o.stageDecision},
		{"learning_gate", o.stageLearningGate},
		{"storage", o.stageStorage},
	}

	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			run.Metadata["status"] = "cancelled"
			run.Metadata["cancelled_before"] = st.name
			o.countRun("cancelled")
			return pctx, fmt.Errorf("run cancelled before stage %s: %w", st.name, err)
		}

		stepLogger.StartStep(st.name)
		stageStart := time.Now()
		err := st.fn(ctx, race, market, runners, opts, pctx)
		elapsed := time.Since(stageStart)
		pctx.StageDurations[st.name] = elapsed
		if o.metrics != nil {
			o.metrics.StageDuration.WithLabelValues(st.name).Observe(elapsed.Seconds())
		}

		if err == nil && elapsed > o.cfg.StageTimeout() {
			err = fmt.Errorf("stage %s exceeded budget %s (took %s)", st.name, o.cfg.StageTimeout(), elapsed)
		}
		if err != nil {
			stepLogger.FailStep(st.name, err)
			run.Metadata["status"] = "failed"
			run.Metadata["failed_stage"] = st.name
			run.Metadata["error"] = err.Error()
			o.countRun("failed")
			o.persistBestEffort(pctx)
			return pctx, fmt.Errorf("stage %s: %w", st.name, err)
		}
		stepLogger.CompleteStep(st.name)
	}

	total := time.Since(started).Milliseconds()
	run.ExecutionTimeMs = &total
	run.Metadata["status"] = "ok"
	o.countRun("ok")

	log.Info().
		Str("engine_run_id", pctx.EngineRunID).
		Str("race_id", race.RaceID).
		Str("chassis", string(pctx.Decision.Chassis)).
		Str("learning_gate", pctx.Gate.StatusName).
		Int64("execution_ms", total).
		Msg("engine run complete")
	return pctx, nil
}

func (o *Orchestrator) countRun(status string) {
	if o.metrics != nil {
		o.metrics.RunsTotal.WithLabelValues(status).Inc()
	}
}

// persistBestEffort writes the error-annotated skeleton so a failed run is
// still queryable. Failures here are logged only.
func (o *Orchestrator) persistBestEffort(pctx *Context) {
	if o.saver == nil {
		return
	}
	if _, err := o.saver.Save(pctx.EngineRun); err != nil {
		log.Error().Err(err).Str("engine_run_id", pctx.EngineRunID).Msg("failed to persist error skeleton")
	}
}

// stageIngest validates the materialized inputs.
func (o *Orchestrator) stageIngest(ctx context.Context, race domain.RaceContext, market domain.MarketContext, runners []domain.Runner, _ Options, pctx *Context) error {
	if err := errs.ValidateRaceContext(race); err != nil {
		return err
	}
	if err := errs.ValidateMarketContext(market, race); err != nil {
		return err
	}
	if len(runners) != race.FieldSize {
		return errs.New(errs.CodeInvalidFieldSize, "runner count does not match field size",
			"runners", fmt.Sprintf("%d", len(runners)),
			"field_size", fmt.Sprintf("%d", race.FieldSize))
	}
	for _, r := range runners {
		if err := errs.ValidateOdds(r); err != nil {
			return err
		}
	}
	// Optional stats enrichment for runners missing historical slices.
	if o.stats != nil {
		for i := range runners {
			if runners[i].Historical != nil {
				continue
			}
			scope := history.Scope{
				Trainer: runners[i].Trainer, Jockey: runners[i].Jockey,
				Track: race.Course, DistanceBand: distanceBand(race.DistanceF), Surface: race.Surface,
			}
			stats, err := o.stats.Fetch(ctx, scope)
			if err != nil {
				log.Warn().Err(err).Str("runner_id", runners[i].RunnerID).Msg("historical stats fetch failed, using zero contribution")
				continue
			}
			runners[i].Historical = stats
		}
	}
	return nil
}

// stageFeatures builds the v12 frame, checks the schema contract and
// computes the features hash.
func (o *Orchestrator) stageFeatures(_ context.Context, race domain.RaceContext, market domain.MarketContext, runners []domain.Runner, _ Options, pctx *Context) error {
	pctx.Engineering = engineering.Build(race, runners)
	ctis := make(map[string]float64, len(pctx.Engineering))
	for _, f := range pctx.Engineering {
		ctis[f.RunnerID] = f.CTI
	}
	pctx.Frame = buildFrame(race, market, runners, ctis)

	schema, err := loadFeatureSchema(o.cfg.FeatureSchemaPath)
	if err != nil {
		return err
	}
	if err := checkSchemaContract(pctx.Frame, schema); err != nil {
		return err
	}

	hash, err := featuresHash(race, market)
	if err != nil {
		return err
	}
	pctx.FeaturesHash = hash
	pctx.EngineRun.Metadata["features_hash"] = hash
	return nil
}

// stageLeakage runs the firewall in strict mode. No stage-4 work may read
// pre-firewall data.
func (o *Orchestrator) stageLeakage(_ context.Context, race domain.RaceContext, _ domain.MarketContext, _ []domain.Runner, _ Options, pctx *Context) error {
	blob, err := o.firewall.Check(pctx.Frame, race.DecisionTime)
	pctx.LeakageAudit = blob
	if err != nil {
		if o.metrics != nil {
			o.metrics.LeakageBlocked.Inc()
		}
		return err
	}
	return nil
}

// stageSignals computes chaos and manipulation, plus the placeholder
// stability and pace-geometry readings fed from metadata where available.
func (o *Orchestrator) stageSignals(_ context.Context, _ domain.RaceContext, market domain.MarketContext, runners []domain.Runner, opts Options, pctx *Context) error {
	odds := make([]float64, 0, len(market.Runners))
	for _, rm := range market.Runners {
		odds = append(odds, rm.OddsDecimal)
	}
	chaos, err := signals.Chaos(odds, len(runners))
	if err != nil {
		return err
	}
	pctx.Chaos = chaos
	pctx.EngineRun.ChaosLevel = chaos.Level
	pctx.Manipulation = signals.ManipulationRisk(market, o.manip)

	if opts.Stability != nil {
		pctx.StabilityScore = *opts.Stability
	} else {
		pctx.StabilityScore = fieldStability(runners)
	}
	if opts.PaceGeometry != nil {
		pctx.PaceGeometry = *opts.PaceGeometry
	} else {
		pctx.PaceGeometry = paceGeometry(runners)
	}
	return nil
}

// stageIntelligence runs opponent models, the ranker, the cognitive-trap
// scan and the ablation harness. The whole stage completes before the
// decision stage reads any of it.
func (o *Orchestrator) stageIntelligence(_ context.Context, race domain.RaceContext, market domain.MarketContext, runners []domain.Runner, opts Options, pctx *Context) error {
	profiles, err := opponent.Classify(runners, market)
	if err != nil {
		return err
	}
	pctx.Profiles = profiles

	inputs, err := o.rankingInputs(runners, profiles)
	if err != nil {
		return err
	}
	params := ranking.Params{
		FieldSize:           race.FieldSize,
		ChaosLevel:          pctx.Chaos.Level,
		ManipulationRisk:    pctx.Manipulation,
		AnchorGuardMinProb:  o.cfg.AnchorGuardMinProb,
		AnchorGuardMaxManip: o.cfg.AnchorGuardMaxManip,
	}
	ranked, err := ranking.Rank(inputs, params)
	if err != nil {
		return err
	}
	pctx.Ranked = ranked

	pctx.CTF = o.scanTraps(runners, profiles, ranked, market, opts)

	predict := opts.Predict
	if predict == nil {
		predict = MarketPredict
	}
	pctx.Ablation = ablation.Run(pctx.Frame, predict, predict(pctx.Frame))
	return nil
}

// stageDecision applies the chassis policy tree.
func (o *Orchestrator) stageDecision(_ context.Context, _ domain.RaceContext, _ domain.MarketContext, _ []domain.Runner, _ Options, pctx *Context) error {
	th := policy.Thresholds{
		Chaos:                o.cfg.ChaosThreshold,
		Manipulation:         o.cfg.ManipulationThreshold,
		Stability:            o.cfg.StabilityThreshold,
		PaceGeometry:         0.65,
		TopStrikeBase:        o.cfg.TopStrikeBaseMargin,
		TopStrikeChaosSlope:  o.cfg.TopStrikeChaosSlope,
		AblationMaxFlips:     o.cfg.AblationMaxFlips,
		AblationMaxProbDelta: o.cfg.AblationMaxProbDelta,
	}
	decision := policy.Decide(policy.Input{
		Ranked:            pctx.Ranked,
		Profiles:          pctx.Profiles,
		ChaosLevel:        pctx.Chaos.Level,
		ManipulationRisk:  pctx.Manipulation,
		StabilityScore:    pctx.StabilityScore,
		PaceGeometry:      pctx.PaceGeometry,
		AblationFlips:     pctx.Ablation.FlipCount,
		AblationProbDelta: pctx.Ablation.MaxProbDelta,
		CTF:               pctx.CTF,
	}, th)
	pctx.Decision = &decision
	if o.metrics != nil {
		o.metrics.ChassisTotal.WithLabelValues(string(decision.Chassis)).Inc()
	}
	return nil
}

// stageLearningGate evaluates the ADLG with integrity pending pre-race.
func (o *Orchestrator) stageLearningGate(_ context.Context, _ domain.RaceContext, _ domain.MarketContext, _ []domain.Runner, opts Options, pctx *Context) error {
	in := adlg.Input{
		SQPE:                 orDefault(opts.SQPE, 1.0-pctx.Chaos.Level),
		SSES:                 orDefault(opts.SSES, topProfileConfidence(pctx.Profiles, pctx.Ranked)),
		TIE:                  orDefault(opts.TIE, tieFromAudit(pctx.LeakageAudit)),
		Stability:            pctx.StabilityScore,
		ManipulationRisk:     pctx.Manipulation,
		AblationFlips:        pctx.Ablation.FlipCount,
		AblationProbDeltaMax: pctx.Ablation.MaxProbDelta,
		OutcomeVerified:      false, // pre-race: outcome pending
		IntegrityFlags:       nil,   // integrity_check = pending
	}
	pctx.GateInput = in
	pctx.Gate = adlg.Evaluate(in)
	pctx.Decision.LearningGateStatus = pctx.Gate.StatusName
	if o.metrics != nil {
		o.metrics.GateTotal.WithLabelValues(pctx.Gate.StatusName).Inc()
	}
	return nil
}

// stageStorage assembles and persists the EngineRun.
func (o *Orchestrator) stageStorage(_ context.Context, _ domain.RaceContext, _ domain.MarketContext, _ []domain.Runner, _ Options, pctx *Context) error {
	run := pctx.EngineRun
	run.Scores = pctx.Ranked.Breakdowns
	run.Decision = pctx.Decision
	run.Metadata["ablation"] = pctx.Ablation.Summary
	run.Metadata["ctf_max_severity"] = string(pctx.CTF.MaxSeverity)
	run.Metadata["stability_score"] = fmt.Sprintf("%.3f", pctx.StabilityScore)
	run.Metadata["pace_geometry"] = fmt.Sprintf("%.3f", pctx.PaceGeometry)

	if o.saver == nil {
		return nil
	}
	if _, err := o.saver.Save(run); err != nil {
		return err
	}
	return nil
}

// rankingInputs derives the per-runner ranker inputs from form clusters
// and historical modifiers.
func (o *Orchestrator) rankingInputs(runners []domain.Runner, profiles []domain.OpponentProfile) ([]ranking.Input, error) {
	roleByID := make(map[string]domain.OpponentProfile, len(profiles))
	for _, p := range profiles {
		roleByID[p.RunnerID] = p
	}
	base := history.DefaultBaseline()

	inputs := make([]ranking.Input, 0, len(runners))
	for _, r := range runners {
		p := roleByID[r.RunnerID]
		profile := form.BuildProfile(r.FormString)
		cluster := form.BuildCluster(profile, p.Rank, len(runners))
		hist := history.Compute(r.Historical, base)

		inputs = append(inputs, ranking.Input{
			RunnerID:         r.RunnerID,
			OddsDecimal:      r.OddsDecimal,
			Role:             p.Role,
			StabilityMod:     cluster.TrustModifier,
			StabilityReason:  cluster.ID,
			HistoricalMod:    hist.Value,
			HistoricalReason: hist.Reason,
		})
	}
	return inputs, nil
}

// scanTraps prepares the cognitive-trap input from the proposed top runner.
func (o *Orchestrator) scanTraps(runners []domain.Runner, profiles []domain.OpponentProfile, ranked *ranking.Result, market domain.MarketContext, opts Options) ctf.Report {
	topID := ranked.Top4[0]
	var top domain.OpponentProfile
	for _, p := range profiles {
		if p.RunnerID == topID {
			top = p
			break
		}
	}
	var topRunner domain.Runner
	for _, r := range runners {
		if r.RunnerID == topID {
			topRunner = r
			break
		}
	}
	if top.Evidence == nil {
		top.Evidence = map[string]string{}
	}
	if topRunner.TrainerHighProfile {
		top.Evidence["trainer_high_profile"] = "true"
	}
	if topRunner.JockeyNotable {
		top.Evidence["jockey_notable"] = "true"
	}

	profile := form.BuildProfile(topRunner.FormString)
	lastPos := 0
	if ps := form.Positions(profile.Runs); len(ps) > 0 {
		lastPos = ps[0]
	}
	fiveAvg := 0.0
	if ps := form.Positions(profile.Runs); len(ps) > 0 {
		n := len(ps)
		if n > 5 {
			n = 5
		}
		sum := 0.0
		for _, p := range ps[:n] {
			sum += float64(p)
		}
		fiveAvg = sum / float64(n)
	}

	releaseSignal := false
	for _, p := range profiles {
		if p.Role == domain.RoleReleaseHorse && p.RunnerID == topID {
			releaseSignal = true
		}
	}

	return ctf.Scan(ctf.Input{
		TopProfile:     top,
		TopIsFavorite:  topID == market.LowestOddsRunner(),
		ReleaseSignal:  releaseSignal,
		StabilityScore: profile.Consistency,
		LastPosition:   lastPos,
		FiveRunAvgPos:  fiveAvg,
		RecentLosses:   opts.RecentLosses,
	})
}

// MarketPredict is the default model-like callback: probabilities
// proportional to the frame's implied-odds column.
func MarketPredict(frame leakage.Frame) ablation.Prediction {
	probs := make(map[string]float64, len(frame.Rows))
	total := 0.0
	for _, row := range frame.Rows {
		id, _ := row["runner_id"].(string)
		implied, _ := row["odds_implied"].(float64)
		probs[id] = implied
		total += implied
	}
	if total > 0 {
		for id := range probs {
			probs[id] /= total
		}
	}
	top := ""
	best := -1.0
	ids := make([]string, 0, len(probs))
	for id := range probs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if probs[id] > best {
			best = probs[id]
			top = id
		}
	}
	return ablation.Prediction{TopSelection: top, Probabilities: probs}
}

// featuresHash = sha256(canonical(race) || canonical(market))[:16].
func featuresHash(race domain.RaceContext, market domain.MarketContext) (string, error) {
	race.DecisionTime = race.DecisionTime.UTC()
	market.SnapshotTimestamp = market.SnapshotTimestamp.UTC()
	rawRace, err := canonicalJSON(race)
	if err != nil {
		return "", err
	}
	rawMarket, err := canonicalJSON(market)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(append(rawRace, rawMarket...))
	return hex.EncodeToString(sum[:])[:16], nil
}

func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical json: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("canonical json: %w", err)
	}
	return json.Marshal(m)
}

// fieldStability is the mean form consistency across the field, the
// placeholder stability engine until a dedicated model lands.
func fieldStability(runners []domain.Runner) float64 {
	if len(runners) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range runners {
		sum += form.BuildProfile(r.FormString).Consistency
	}
	return sum / float64(len(runners))
}

// paceGeometry reads the declared run styles: a single front-runner gives
// clean geometry, none leaves it muddled, several promise a burn-up.
func paceGeometry(runners []domain.Runner) float64 {
	fronts := 0
	for _, r := range runners {
		if r.RunStyle == "front" {
			fronts++
		}
	}
	switch fronts {
	case 1:
		return 0.70
	case 0:
		return 0.50
	case 2:
		return 0.45
	default:
		return 0.35
	}
}

func orDefault(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}

func topProfileConfidence(profiles []domain.OpponentProfile, ranked *ranking.Result) float64 {
	if ranked == nil || len(ranked.Top4) == 0 {
		return 0
	}
	for _, p := range profiles {
		if p.RunnerID == ranked.Top4[0] {
			return p.Confidence
		}
	}
	return 0
}

// tieFromAudit scores temporal integrity from the firewall pass: a clean
// frame is full marks.
func tieFromAudit(blob leakage.AuditBlob) float64 {
	if blob.Passed {
		return 1.0
	}
	return 0.0
}

func distanceBand(furlongs float64) string {
	switch {
	case furlongs < 7:
		return "sprint"
	case furlongs < 10:
		return "mile"
	case furlongs < 14:
		return "middle"
	default:
		return "staying"
	}
}
