package signals

import "github.com/turfline/velo/internal/domain"

// ManipulationFunc scores manipulation risk for a snapshot in [0,1].
type ManipulationFunc func(market domain.MarketContext) float64

// ManipulationRisk returns the snapshot's manipulation risk. Under the
// live-only regime no time-series data is available, so the default scorer
// returns 0; a detector fed from odds-movement history can be supplied as
// an override. Callers must treat 0 as "no evidence", not "clean".
func ManipulationRisk(market domain.MarketContext, override ManipulationFunc) float64 {
	if override != nil {
		v := override(market)
		return clamp01(v)
	}
	// Placeholder: live snapshots carry no movement history to score.
	return 0.0
}
