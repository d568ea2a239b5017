package strategy

import (
	"fmt"

	"kraken-autotrade/internal/indicators"
)

// Scalping implements spec.md §4.3: BUY on an EMA9/EMA21 bullish cross with
// ATR above a minimum and volume confirmation. Targets are small and stops
// tight, sized by the engine's risk parameters rather than this strategy.
type Scalping struct {
	prevEMA9, prevEMA21 map[string]float64
}

func NewScalping() *Scalping {
	return &Scalping{prevEMA9: map[string]float64{}, prevEMA21: map[string]float64{}}
}

func (s *Scalping) Name() string { return "scalping" }

func (s *Scalping) Evaluate(fv indicators.FeatureVector, cfg Config) Signal {
	snap := fv.M5
	label := "scalping"
	if !snap.Ready || fv.Price == 0 {
		return none(fv.Pair, label, "insufficient candle history")
	}

	required := 3
	satisfied := 0

	prev9, haveHistory := s.prevEMA9[fv.Pair]
	prev21 := s.prevEMA21[fv.Pair]
	s.prevEMA9[fv.Pair] = snap.EMA9
	s.prevEMA21[fv.Pair] = snap.EMA21

	bullCross := haveHistory && prev9 <= prev21 && snap.EMA9 > snap.EMA21
	bearCross := haveHistory && prev9 >= prev21 && snap.EMA9 < snap.EMA21

	atrPct := 0.0
	if fv.Price != 0 {
		atrPct = snap.ATR14 / fv.Price * 100
	}
	atrOK := atrPct >= cfg.ScalpMinATRPct
	volOK := snap.VolumeSMA20 == 0 || fv.Volume >= cfg.VolumeConfirmMult*snap.VolumeSMA20

	side := SideNone
	switch {
	case bullCross && atrOK && volOK:
		side = SideBuy
		satisfied = 3
	case bearCross && atrOK && volOK:
		side = SideSell
		satisfied = 3
	default:
		if bullCross || bearCross {
			satisfied++
		}
		if atrOK {
			satisfied++
		}
		if volOK {
			satisfied++
		}
	}

	confidence := 0.0
	if side != SideNone {
		confidence = clamp(50 + 15*float64(satisfied-required) + fv.AlignBonus)
	}

	return Signal{
		Pair: fv.Pair, Side: side, Confidence: confidence,
		ReasonText:      fmt.Sprintf("scalping: %d/%d checks satisfied, ATR%%=%.3f", satisfied, required, atrPct),
		SatisfiedChecks: satisfied, RequiredChecks: required, TFAlignBonus: fv.AlignBonus,
		StrategyLabel: label,
	}
}
