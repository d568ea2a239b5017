package strategy

import "kraken-autotrade/internal/indicators"

// RegimeThresholds configures the ADX/Bollinger-width cutoffs used to
// classify the regime. Exposed as configuration per the design note that the
// exact thresholds separating TREND/RANGE/VOLATILE are not fully specified
// upstream.
type RegimeThresholds struct {
	ADXTrendMin    float64 // ADX at or above this -> trending
	ADXRangeMax    float64 // ADX at or below this -> ranging
	BollWidthVolatilePct float64 // (upper-lower)/mid at or above this -> volatile
}

// DefaultRegimeThresholds matches commonly used ADX cutoffs (25/20) and a
// 6% Bollinger-band-width volatility cutoff.
func DefaultRegimeThresholds() RegimeThresholds {
	return RegimeThresholds{ADXTrendMin: 25, ADXRangeMax: 20, BollWidthVolatilePct: 6}
}

// ClassifyRegime derives a Regime from the 1h snapshot's ADX, Bollinger
// width, and EMA alignment, per spec.md §3 ("derived from ADX thresholds,
// Bollinger-width, and EMA alignment").
func ClassifyRegime(fv indicators.FeatureVector, th RegimeThresholds) (Regime, string) {
	snap := fv.H1
	if !snap.Ready {
		return RegimeUnknown, "insufficient history for 1h snapshot"
	}

	width := 0.0
	if snap.Bollinger.Mid != 0 {
		width = (snap.Bollinger.Upper - snap.Bollinger.Lower) / snap.Bollinger.Mid * 100
	}

	if width >= th.BollWidthVolatilePct {
		return RegimeVolatile, "bollinger width above volatility threshold"
	}
	if snap.ADX14 >= th.ADXTrendMin && snap.TrendDirection() != 0 {
		return RegimeTrend, "ADX above trend threshold with aligned EMA stack"
	}
	if snap.ADX14 <= th.ADXRangeMax {
		return RegimeRange, "ADX at or below range threshold"
	}
	return RegimeUnknown, "ADX in the indeterminate band between range and trend"
}
