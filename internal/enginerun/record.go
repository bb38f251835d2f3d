// Package enginerun defines the canonical, reproducible record of one
// engine run and its file-backed repository. Serialization is canonical
// JSON: sorted keys, RFC3339 timestamps with explicit UTC offset.
package enginerun

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/turfline/velo/internal/domain"
)

// PipelineVersion is stamped into every record.
const PipelineVersion = "velo-12.0"

// Record is the complete input + signal + verdict artifact for one run.
// Immutable once persisted.
type Record struct {
	EngineRunID       string                  `json:"engine_run_id"`
	DecisionTimestamp time.Time               `json:"decision_timestamp"`
	Race              domain.RaceContext      `json:"race_context"`
	Market            domain.MarketContext    `json:"market_context"`
	Scores            []domain.ScoreBreakdown `json:"runner_scores"`
	Decision          *domain.DecisionOutput  `json:"decision,omitempty"`
	Mode              domain.Mode             `json:"mode"`
	ChaosLevel        float64                 `json:"chaos_level"`
	PipelineVersion   string                  `json:"pipeline_version"`
	ExecutionTimeMs   *int64                  `json:"execution_time_ms,omitempty"`
	Metadata          map[string]string       `json:"metadata,omitempty"`
}

// DeriveID computes engine_run_id = sha256(race_id + "_" + ts)[:16] over
// the RFC3339 UTC decision timestamp.
func DeriveID(raceID string, decisionTS time.Time) string {
	sum := sha256.Sum256([]byte(raceID + "_" + decisionTS.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(sum[:])[:16]
}

// New builds a record with its derived id and pipeline version stamped.
func New(race domain.RaceContext, market domain.MarketContext, mode domain.Mode) *Record {
	ts := race.DecisionTime.UTC()
	return &Record{
		EngineRunID:       DeriveID(race.RaceID, ts),
		DecisionTimestamp: ts,
		Race:              race,
		Market:            market,
		Mode:              mode,
		PipelineVersion:   PipelineVersion,
	}
}

// MarshalCanonical renders the record as canonical JSON. encoding/json
// already emits struct fields in declaration order and map keys sorted;
// canonicalization here means normalizing timestamps to UTC and re-keying
// through an intermediate map so top-level keys are sorted too.
func (r *Record) MarshalCanonical() ([]byte, error) {
	r.DecisionTimestamp = r.DecisionTimestamp.UTC()
	r.Race.DecisionTime = r.Race.DecisionTime.UTC()
	r.Market.SnapshotTimestamp = r.Market.SnapshotTimestamp.UTC()

	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal engine run: %w", err)
	}
	// Round-trip through map[string]any: json.Marshal sorts map keys,
	// which yields a stable byte stream independent of field order.
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("canonicalize engine run: %w", err)
	}
	return json.Marshal(m)
}

// Unmarshal parses a record from its canonical form. The reproducibility
// contract is Unmarshal(MarshalCanonical(r)) == r for all fields.
func Unmarshal(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal engine run: %w", err)
	}
	return &r, nil
}

// Hash is the sha256 of the canonical serialization, used by the
// determinism acceptance gate.
func (r *Record) Hash() (string, error) {
	raw, err := r.MarshalCanonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
