// Package form parses compact racing form strings and derives the
// stability profile and cluster used by the ranker's trust modifier.
package form

import "unicode"

// Run is one historical start. Position is nil for unplaced runs (digit 0)
// and for DNF letter codes (F, U, P, R, ...). SeasonGap marks a run that
// followed a season break.
type Run struct {
	Position  *int
	SeasonGap bool
}

// Parse reads a compact form string character by character and returns the
// runs most-recent-first. Digits are finishing positions (0 = unplaced),
// '-' is a season gap applied to the following run, letters are DNFs.
// Form strings are written oldest-to-newest, so the parse order is
// reversed before returning.
func Parse(formString string) []Run {
	var runs []Run
	gap := false
	for _, ch := range formString {
		switch {
		case ch == '-' || ch == '/':
			gap = true
		case unicode.IsDigit(ch):
			var pos *int
			if ch != '0' {
				p := int(ch - '0')
				pos = &p
			}
			runs = append(runs, Run{Position: pos, SeasonGap: gap})
			gap = false
		case unicode.IsLetter(ch):
			runs = append(runs, Run{Position: nil, SeasonGap: gap})
			gap = false
		}
	}
	// Reverse: most recent run first.
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	return runs
}

// Positions returns the finishing positions most-recent-first, skipping
// nulls (unplaced and DNF runs).
func Positions(runs []Run) []int {
	var out []int
	for _, r := range runs {
		if r.Position != nil {
			out = append(out, *r.Position)
		}
	}
	return out
}
