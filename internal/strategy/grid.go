package strategy

import "kraken-autotrade/internal/indicators"

// GridLevel is one rung of a grid ladder: a price and the side a fill at
// that price would represent.
type GridLevel struct {
	Price float64
	Side  Side
}

// Grid produces level ladders from ATR and the current price. Per spec.md
// §4.3 this is "out of core scope beyond level generation" — consumers
// (order submission) materialize discrete orders from the ladder; Grid
// itself never emits an actionable Signal directly, so Evaluate always
// reports NONE and callers should use Levels for ladder construction.
type Grid struct{}

func (Grid) Name() string { return "grid" }

func (Grid) Evaluate(fv indicators.FeatureVector, cfg Config) Signal {
	return none(fv.Pair, "grid", "grid strategy only produces level ladders, not signals")
}

// Levels builds a symmetric ladder of buy levels below price and sell levels
// above price, spaced by cfg.GridATRSpacing multiples of ATR14.
func (Grid) Levels(fv indicators.FeatureVector, cfg Config) []GridLevel {
	snap := fv.M5
	if !snap.Ready || snap.ATR14 <= 0 || cfg.GridLevels <= 0 {
		return nil
	}
	spacing := snap.ATR14 * cfg.GridATRSpacing
	if spacing <= 0 {
		return nil
	}
	levels := make([]GridLevel, 0, cfg.GridLevels*2)
	for i := 1; i <= cfg.GridLevels; i++ {
		levels = append(levels,
			GridLevel{Price: fv.Price - float64(i)*spacing, Side: SideBuy},
			GridLevel{Price: fv.Price + float64(i)*spacing, Side: SideSell},
		)
	}
	return levels
}
