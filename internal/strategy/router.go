package strategy

import (
	"fmt"

	"kraken-autotrade/internal/indicators"
)

// Router selects which strategy's signal to act on based on the prevailing
// regime, per spec.md §4.4.
type Router struct {
	momentum      Strategy
	meanReversion Strategy
	scalping      Strategy
	grid          Grid
	thresholds    RegimeThresholds
}

// NewRouter constructs a Router wired to the four required strategies.
func NewRouter(momentum, meanReversion, scalping Strategy, th RegimeThresholds) *Router {
	return &Router{momentum: momentum, meanReversion: meanReversion, scalping: scalping, thresholds: th}
}

// Route classifies the regime and dispatches to the preferred strategy,
// applying the VOLATILE-regime confidence/size adjustments. It never falls
// back silently: if the chosen strategy returns NONE, the router reports
// NONE with reason "regime-gated".
func (r *Router) Route(fv indicators.FeatureVector, cfg Config) (Signal, float64) {
	regime, regimeReason := ClassifyRegime(fv, r.thresholds)

	var chosen Strategy
	threshold := cfg.BaseConfidenceThreshold
	sizeMultiplier := 1.0

	switch regime {
	case RegimeTrend:
		chosen = r.momentum
	case RegimeRange:
		chosen = r.meanReversion
	case RegimeVolatile:
		chosen = r.momentum
		threshold += cfg.VolatileConfidenceBoost
		sizeMultiplier = 1 - cfg.VolatilePositionSizeCut
	case RegimeUnknown:
		chosen = r.momentum
		threshold += cfg.VolatileConfidenceBoost / 2
	default:
		chosen = r.momentum
	}

	signal := chosen.Evaluate(fv, cfg)
	signal.Regime = regime
	signal.RegimeReason = regimeReason

	if signal.Side == SideNone || signal.Confidence < threshold {
		signal.Side = SideNone
		signal.ReasonText = fmt.Sprintf("regime-gated: %s (threshold=%.1f, got=%.1f)", regimeReason, threshold, signal.Confidence)
		return signal, sizeMultiplier
	}

	return signal, sizeMultiplier
}

// GridLevels returns the grid ladder for the current feature vector when the
// prevailing regime is RANGE, per spec.md §4.4 ("RANGE → mean-reversion
// preferred; grid allowed"). Outside RANGE it returns nil: grid ladders are
// only ever advisory alongside mean-reversion, never a replacement for the
// regime-selected strategy.
func (r *Router) GridLevels(fv indicators.FeatureVector, cfg Config) []GridLevel {
	regime, _ := ClassifyRegime(fv, r.thresholds)
	if regime != RegimeRange {
		return nil
	}
	return r.grid.Levels(fv, cfg)
}
