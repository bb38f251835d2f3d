// Package adlg implements the anti-delusion learning gate: the only
// component allowed to declare that a race's learnings may update state.
// It never mutates state itself.
package adlg

import (
	"fmt"
)

// Status is the gate verdict as a sum type; String() is the serialized form.
type Status int

const (
	Committed Status = iota
	Quarantined
	Rejected
)

func (s Status) String() string {
	switch s {
	case Committed:
		return "COMMITTED"
	case Quarantined:
		return "QUARANTINED"
	case Rejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus converts the serialized form back to the sum type.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "COMMITTED":
		return Committed, nil
	case "QUARANTINED":
		return Quarantined, nil
	case "REJECTED":
		return Rejected, nil
	}
	return Quarantined, fmt.Errorf("unknown learning gate status %q", s)
}

// Condition is one scored gate condition.
type Condition struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Passed bool    `json:"passed"`
	Detail string  `json:"detail"`
}

// Input carries everything the five conditions read.
type Input struct {
	SQPE                 float64 // signal quality posterior estimate
	SSES                 float64 // signal-set effect size
	TIE                  float64 // temporal integrity estimate
	Stability            float64
	ManipulationRisk     float64
	AblationFlips        int
	AblationProbDeltaMax float64
	OutcomeVerified      bool
	WinnerID             string
	IntegrityFlags       []string // zero flags = clean
}

// Result is the gate decision with per-condition scores and the rationale
// list of every failing condition.
type Result struct {
	Status     Status      `json:"-"`
	StatusName string      `json:"status"`
	Conditions []Condition `json:"conditions"`
	Rationale  []string    `json:"rationale"`
}

const (
	convergenceFloor = 0.70
	manipCeiling     = 0.60
	maxFlips         = 1
	maxProbDelta     = 0.15
)

// Evaluate scores the five conditions. COMMITTED requires all to pass;
// a failed manipulation condition is an outright REJECTED; any other
// failure quarantines.
func Evaluate(in Input) Result {
	conditions := make([]Condition, 0, 5)

	convergence := (in.SQPE + in.SSES + in.TIE + in.Stability) / 4.0
	conditions = append(conditions, Condition{
		Name:   "signal_convergence",
		Score:  convergence,
		Passed: convergence >= convergenceFloor,
		Detail: fmt.Sprintf("mean(SQPE, SSES, TIE, stability) = %.3f, floor %.2f", convergence, convergenceFloor),
	})

	manipScore := 1.0 - in.ManipulationRisk
	conditions = append(conditions, Condition{
		Name:   "manipulation",
		Score:  manipScore,
		Passed: in.ManipulationRisk <= manipCeiling,
		Detail: fmt.Sprintf("manipulation risk %.3f, ceiling %.2f", in.ManipulationRisk, manipCeiling),
	})

	robustness := 1.0 - float64(in.AblationFlips)/5.0 - in.AblationProbDeltaMax
	if robustness < 0 {
		robustness = 0
	}
	conditions = append(conditions, Condition{
		Name:   "ablation_robustness",
		Score:  robustness,
		Passed: in.AblationFlips <= maxFlips && in.AblationProbDeltaMax < maxProbDelta,
		Detail: fmt.Sprintf("flips=%d (max %d), prob_delta_max=%.3f (max %.2f)", in.AblationFlips, maxFlips, in.AblationProbDeltaMax, maxProbDelta),
	})

	outcomeOK := in.OutcomeVerified && in.WinnerID != ""
	outcomeScore := 0.0
	if outcomeOK {
		outcomeScore = 1.0
	}
	conditions = append(conditions, Condition{
		Name:   "outcome_verified",
		Score:  outcomeScore,
		Passed: outcomeOK,
		Detail: fmt.Sprintf("verified=%t winner_id=%q", in.OutcomeVerified, in.WinnerID),
	})

	integrityScore := 0.0
	if len(in.IntegrityFlags) == 0 {
		integrityScore = 1.0
	}
	conditions = append(conditions, Condition{
		Name:   "integrity_check",
		Score:  integrityScore,
		Passed: len(in.IntegrityFlags) == 0,
		Detail: fmt.Sprintf("%d integrity flags", len(in.IntegrityFlags)),
	})

	var rationale []string
	manipFailed := false
	allPassed := true
	for _, c := range conditions {
		if !c.Passed {
			allPassed = false
			rationale = append(rationale, fmt.Sprintf("%s failed: %s", c.Name, c.Detail))
			if c.Name == "manipulation" {
				manipFailed = true
			}
		}
	}

	status := Quarantined
	switch {
	case allPassed:
		status = Committed
	case manipFailed:
		status = Rejected
	}

	return Result{
		Status:     status,
		StatusName: status.String(),
		Conditions: conditions,
		Rationale:  rationale,
	}
}
