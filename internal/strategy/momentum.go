package strategy

import (
	"fmt"

	"kraken-autotrade/internal/indicators"
)

// Momentum implements the momentum strategy from spec.md §4.3:
// BUY when EMA9>EMA21>EMA50 AND MACD histogram positive AND close>EMA21 AND
// volume >= 0.5x volume-SMA20. SELL on the inverse. Only the sign of the
// latest histogram value is checked; whether it is rising or falling
// against the previous bar is not.
type Momentum struct{}

func (Momentum) Name() string { return "momentum" }

func (Momentum) Evaluate(fv indicators.FeatureVector, cfg Config) Signal {
	snap := fv.M5
	label := "momentum"
	if !snap.Ready {
		return none(fv.Pair, label, "insufficient candle history")
	}

	required := 4
	satisfied := 0
	var reasons []string

	stackBull := snap.EMA9 > snap.EMA21 && snap.EMA21 > snap.EMA50
	stackBear := snap.EMA9 < snap.EMA21 && snap.EMA21 < snap.EMA50
	macdRising := snap.MACD.Histogram > 0
	macdFalling := snap.MACD.Histogram < 0
	aboveEMA21 := fv.Price > snap.EMA21
	belowEMA21 := fv.Price < snap.EMA21
	volConfirmed := snap.VolumeSMA20 == 0 || fv.Volume >= cfg.VolumeConfirmMult*snap.VolumeSMA20

	side := SideNone
	switch {
	case stackBull && macdRising && aboveEMA21 && volConfirmed:
		side = SideBuy
		satisfied = 4
		reasons = []string{"EMA9>EMA21>EMA50", "MACD histogram positive", "price above EMA21", "volume confirmed"}
	case stackBear && macdFalling && belowEMA21 && volConfirmed:
		side = SideSell
		satisfied = 4
		reasons = []string{"EMA9<EMA21<EMA50", "MACD histogram negative", "price below EMA21", "volume confirmed"}
	default:
		if stackBull {
			satisfied++
		}
		if macdRising {
			satisfied++
		}
		if aboveEMA21 {
			satisfied++
		}
		if volConfirmed {
			satisfied++
		}
	}

	confidence := 0.0
	if side != SideNone {
		confidence = clamp(55 + 15*float64(satisfied-required) + fv.AlignBonus)
	}

	reasonText := fmt.Sprintf("momentum: %d/%d checks satisfied", satisfied, required)
	if len(reasons) > 0 {
		reasonText = fmt.Sprintf("momentum: %s", joinReasons(reasons))
	}

	return Signal{
		Pair: fv.Pair, Side: side, Confidence: confidence, ReasonText: reasonText,
		SatisfiedChecks: satisfied, RequiredChecks: required, TFAlignBonus: fv.AlignBonus,
		StrategyLabel: label,
	}
}

func joinReasons(rs []string) string {
	out := ""
	for i, r := range rs {
		if i > 0 {
			out += ", "
		}
		out += r
	}
	return out
}
