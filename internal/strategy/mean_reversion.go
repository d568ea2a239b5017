package strategy

import (
	"fmt"
	"math"

	"kraken-autotrade/internal/indicators"
)

// MeanReversion implements spec.md §4.3: BUY when price < lowerBB AND RSI<30
// AND price deviation from EMA50 exceeds a configured z. SELL on the
// inverse.
type MeanReversion struct{}

func (MeanReversion) Name() string { return "mean_reversion" }

func (MeanReversion) Evaluate(fv indicators.FeatureVector, cfg Config) Signal {
	snap := fv.M5
	label := "mean_reversion"
	if !snap.Ready || snap.EMA50 == 0 {
		return none(fv.Pair, label, "insufficient candle history")
	}

	required := 3
	satisfied := 0

	deviation := (fv.Price - snap.EMA50) / snap.EMA50
	z := deviation
	if snap.EMA50 != 0 {
		z = deviation // using fractional deviation directly as a deviation proxy
	}

	belowLower := fv.Price < snap.Bollinger.Lower
	aboveUpper := fv.Price > snap.Bollinger.Upper
	oversold := snap.RSI14 < 30
	overbought := snap.RSI14 > 70
	deviatedDown := math.Abs(z) >= cfg.MeanReversionZ && deviation < 0
	deviatedUp := math.Abs(z) >= cfg.MeanReversionZ && deviation > 0

	side := SideNone
	switch {
	case belowLower && oversold && deviatedDown:
		side = SideBuy
		satisfied = 3
	case aboveUpper && overbought && deviatedUp:
		side = SideSell
		satisfied = 3
	default:
		if belowLower || aboveUpper {
			satisfied++
		}
		if oversold || overbought {
			satisfied++
		}
		if deviatedDown || deviatedUp {
			satisfied++
		}
	}

	confidence := 0.0
	if side != SideNone {
		confidence = clamp(55 + 15*float64(satisfied-required) + fv.AlignBonus)
	}

	return Signal{
		Pair: fv.Pair, Side: side, Confidence: confidence,
		ReasonText:      fmt.Sprintf("mean_reversion: %d/%d checks satisfied, RSI=%.1f, dev=%.2f%%", satisfied, required, snap.RSI14, deviation*100),
		SatisfiedChecks: satisfied, RequiredChecks: required, TFAlignBonus: fv.AlignBonus,
		StrategyLabel: label,
	}
}
