package opponent

import (
	"fmt"
	"sort"

	"github.com/turfline/velo/internal/domain"
	"github.com/turfline/velo/internal/form"
)

// classifyIntent walks the heuristic ladder top-down; the first rule that
// fires wins.
func classifyIntent(r domain.Runner) (domain.IntentClass, string) {
	layoff := r.DaysSinceLastRun != nil && *r.DaysSinceLastRun >= longLayoffDays

	if r.JockeyNotable && !layoff {
		return domain.IntentWin, fmt.Sprintf("notable jockey %s booked with no long layoff", r.Jockey)
	}
	if layoff {
		return domain.IntentPrep, fmt.Sprintf("%d days since last run suggests a prep spin", *r.DaysSinceLastRun)
	}
	if r.ClassDelta > 0 {
		return domain.IntentPrep, fmt.Sprintf("class rise of %d suggests a prep against better company", r.ClassDelta)
	}
	if atCareerHighMark(r) && recentFormPoor(r) {
		return domain.IntentMarkAdjust, "career-high mark with recent poor form points at mark relief"
	}
	return domain.IntentUnknown, "no intent rule fired"
}

func atCareerHighMark(r domain.Runner) bool {
	return r.ORRating != nil && r.CareerHighOR != nil && *r.ORRating >= *r.CareerHighOR
}

func recentFormPoor(r domain.Runner) bool {
	p := form.BuildProfile(r.FormString)
	return p.ValidRaces >= 2 && p.RecentForm < 0.4
}

// classifyTactics assigns the intra-stable job per runner. Trainers with a
// single entry run Solo; in multi-runner stables the shortest price is the
// Finisher, declared front-runners set the pace, long prices decoy and the
// rest cover.
func classifyTactics(ranked []domain.Runner) map[string]domain.StableTactic {
	byTrainer := make(map[string][]domain.Runner)
	for _, r := range ranked {
		byTrainer[r.Trainer] = append(byTrainer[r.Trainer], r)
	}

	tactics := make(map[string]domain.StableTactic, len(ranked))
	for _, stable := range byTrainer {
		if len(stable) == 1 {
			tactics[stable[0].RunnerID] = domain.TacticSolo
			continue
		}
		sort.SliceStable(stable, func(i, j int) bool {
			if stable[i].OddsDecimal != stable[j].OddsDecimal {
				return stable[i].OddsDecimal < stable[j].OddsDecimal
			}
			return stable[i].RunnerID < stable[j].RunnerID
		})
		for i, r := range stable {
			switch {
			case i == 0:
				tactics[r.RunnerID] = domain.TacticFinisher
			case r.RunStyle == "front":
				tactics[r.RunnerID] = domain.TacticPaceSetter
			case r.OddsDecimal >= noiseOddsFloor:
				tactics[r.RunnerID] = domain.TacticDecoy
			default:
				tactics[r.RunnerID] = domain.TacticCover
			}
		}
	}
	return tactics
}
