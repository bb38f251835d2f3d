// Package leakage guards the pipeline against post-decision data. Two
// checks run on every feature frame: a column guard against result-bearing
// fields and a timestamp guard against rows stamped after decision time.
package leakage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Mode selects firewall behavior on violation.
type Mode string

const (
	// Strict raises on the first violation. This is the pipeline default.
	Strict Mode = "strict"
	// Audit logs violations and reports them without raising.
	Audit Mode = "audit"
)

// builtinBlocked are result-bearing columns that can never appear in a
// decision-time frame.
var builtinBlocked = []string{
	"pos", "pos_num", "sp", "bfsp",
	"in_running_low", "in_running_high",
	"result", "finish_time", "winner", "placed",
}

// Frame is the minimal tabular view the firewall inspects.
type Frame struct {
	Columns []string
	Rows    []map[string]any
}

// Violation describes a single leakage finding.
type Violation struct {
	Kind   string `json:"kind"` // "blocked_column" or "future_timestamp"
	Column string `json:"column,omitempty"`
	Row    int    `json:"row,omitempty"`
	Detail string `json:"detail"`
}

// Error is the fatal leakage failure carrying its violations.
type Error struct {
	Violations []Violation
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Detail)
	}
	return fmt.Sprintf("leakage firewall: %s", strings.Join(parts, "; "))
}

// AuditBlob is the record emitted for every firewall pass, violating or not.
type AuditBlob struct {
	RowCount     int         `json:"row_count"`
	ColumnCount  int         `json:"column_count"`
	BlockedHits  []string    `json:"blocked_hits,omitempty"`
	DecisionTime time.Time   `json:"decision_time"`
	Violations   []Violation `json:"violations,omitempty"`
	Passed       bool        `json:"passed"`
}

// Firewall holds the merged blocklist and operating mode.
type Firewall struct {
	blocked map[string]struct{}
	mode    Mode
}

// New builds a firewall with the built-in blocklist plus any extensions.
func New(mode Mode, extensions ...string) *Firewall {
	blocked := make(map[string]struct{}, len(builtinBlocked)+len(extensions))
	for _, c := range builtinBlocked {
		blocked[c] = struct{}{}
	}
	for _, c := range extensions {
		if c != "" {
			blocked[strings.ToLower(c)] = struct{}{}
		}
	}
	return &Firewall{blocked: blocked, mode: mode}
}

// manifest is the on-disk schema manifest of additional blocked fields.
type manifest struct {
	BlockedFields []string `json:"blocked_fields"`
}

// NewFromManifest merges the built-in blocklist with a JSON manifest file.
// A missing path yields the built-in list only.
func NewFromManifest(mode Mode, path string) (*Firewall, error) {
	if path == "" {
		return New(mode), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("leakage manifest %s: %w", path, err)
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("leakage manifest %s: %w", path, err)
	}
	return New(mode, m.BlockedFields...), nil
}

// BlockedColumns returns the merged blocklist, sorted.
func (f *Firewall) BlockedColumns() []string {
	out := make([]string, 0, len(f.blocked))
	for c := range f.blocked {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Check runs both guards over the frame. In strict mode the first pass
// with any violation returns a *Error; in audit mode the blob records the
// violations and err is nil.
func (f *Firewall) Check(frame Frame, decisionTime time.Time) (AuditBlob, error) {
	blob := AuditBlob{
		RowCount:     len(frame.Rows),
		ColumnCount:  len(frame.Columns),
		DecisionTime: decisionTime,
	}

	for _, col := range frame.Columns {
		if _, hit := f.blocked[strings.ToLower(col)]; hit {
			blob.BlockedHits = append(blob.BlockedHits, col)
			blob.Violations = append(blob.Violations, Violation{
				Kind:   "blocked_column",
				Column: col,
				Detail: fmt.Sprintf("blocked column %q present in frame", col),
			})
		}
	}

	for i, row := range frame.Rows {
		for col, val := range row {
			ts, ok := val.(time.Time)
			if !ok {
				continue
			}
			if ts.After(decisionTime) {
				blob.Violations = append(blob.Violations, Violation{
					Kind:   "future_timestamp",
					Column: col,
					Row:    i,
					Detail: fmt.Sprintf("row %d column %q stamped %s after decision time %s",
						i, col, ts.UTC().Format(time.RFC3339), decisionTime.UTC().Format(time.RFC3339)),
				})
			}
		}
	}

	blob.Passed = len(blob.Violations) == 0
	sort.Strings(blob.BlockedHits)

	if !blob.Passed {
		if f.mode == Strict {
			return blob, &Error{Violations: blob.Violations}
		}
		log.Warn().
			Int("violations", len(blob.Violations)).
			Time("decision_time", decisionTime).
			Msg("leakage firewall violations (audit mode)")
	}
	return blob, nil
}
