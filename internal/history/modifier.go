// Package history turns trainer/jockey/combo strike rates into a bounded
// score adjustment with sample-size decay, and provides the read-through
// cache in front of the stats source.
package history

import (
	"fmt"

	"github.com/turfline/velo/internal/domain"
)

const (
	trainerCap   = 0.05
	jockeyCap    = 0.05
	comboCap     = 0.03
	aggregateCap = 0.05
	fullSampleN  = 10 // sample_weight = min(n/10, 1)
)

// Baseline strike rates used when scoring deviation. These are the
// long-run market-wide rates for UK/IRE handicaps.
type Baseline struct {
	Trainer float64
	Jockey  float64
	Combo   float64
}

// DefaultBaseline returns the market-wide baseline strike rates.
func DefaultBaseline() Baseline {
	return Baseline{Trainer: 0.11, Jockey: 0.11, Combo: 0.12}
}

// Modifier is the bounded adjustment with its audit reason.
type Modifier struct {
	Value  float64 `json:"value"`
	Reason string  `json:"reason"`
}

// Compute produces the aggregate score adjustment for one runner. Combo
// stats and trainer+jockey stats are mutually exclusive modes: a combo
// sample wins when present. Null stats contribute 0 with a
// no_historical_stats reason. The aggregate is hard-capped to [-0.05, +0.05].
func Compute(stats *domain.HistoricalStats, base Baseline) Modifier {
	if stats == nil {
		return Modifier{Value: 0, Reason: "no_historical_stats"}
	}

	if stats.Combo != nil {
		v := strikeModifier(*stats.Combo, base.Combo, comboCap)
		return Modifier{
			Value:  capAggregate(v),
			Reason: fmt.Sprintf("combo %.0f%% over %d runs vs %.0f%% baseline", stats.Combo.Rate*100, stats.Combo.Runs, base.Combo*100),
		}
	}

	total := 0.0
	reason := ""
	if stats.Trainer != nil {
		total += strikeModifier(*stats.Trainer, base.Trainer, trainerCap)
		reason += fmt.Sprintf("trainer %.0f%%/%d", stats.Trainer.Rate*100, stats.Trainer.Runs)
	}
	if stats.Jockey != nil {
		total += strikeModifier(*stats.Jockey, base.Jockey, jockeyCap)
		if reason != "" {
			reason += ", "
		}
		reason += fmt.Sprintf("jockey %.0f%%/%d", stats.Jockey.Rate*100, stats.Jockey.Runs)
	}
	if reason == "" {
		return Modifier{Value: 0, Reason: "no_historical_stats"}
	}
	return Modifier{Value: capAggregate(total), Reason: reason}
}

// strikeModifier = clamp((rate - baseline) * sample_weight, -cap, +cap)
// with sample_weight = min(n/10, 1).
func strikeModifier(s domain.HistoricalStrike, baseline, cap float64) float64 {
	weight := float64(s.Runs) / float64(fullSampleN)
	if weight > 1 {
		weight = 1
	}
	v := (s.Rate - baseline) * weight
	if v > cap {
		return cap
	}
	if v < -cap {
		return -cap
	}
	return v
}

func capAggregate(v float64) float64 {
	if v > aggregateCap {
		return aggregateCap
	}
	if v < -aggregateCap {
		return -aggregateCap
	}
	return v
}
