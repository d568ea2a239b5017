package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"kraken-autotrade/internal/indicators"
)

func bullishCandles(n int, start float64) []indicators.Candle {
	candles := make([]indicators.Candle, n)
	price := start
	ts := time.Now().Add(-time.Duration(n) * time.Minute)
	for i := 0; i < n; i++ {
		price += 0.5
		candles[i] = indicators.Candle{
			OpenTs: ts.Add(time.Duration(i) * time.Minute),
			Open:   price - 0.5, High: price + 0.3, Low: price - 0.6, Close: price,
			Volume: 100 + float64(i),
		}
	}
	return candles
}

func TestMomentumBuyOnAlignedBullStack(t *testing.T) {
	candles := bullishCandles(60, 100)
	snap := indicators.Compute(candles, indicators.Interval5m)
	fv := indicators.NewFeatureVector("BTC/USD", snap, snap, snap, candles[len(candles)-1].Close, 150)

	sig := Momentum{}.Evaluate(fv, DefaultConfig())
	assert.Equal(t, "momentum", sig.StrategyLabel)
	if snap.Ready && snap.EMA9 > snap.EMA21 && snap.EMA21 > snap.EMA50 {
		assert.Equal(t, SideBuy, sig.Side)
		assert.Greater(t, sig.Confidence, 0.0)
	}
}

func TestRouterReportsRegimeGatedOnNone(t *testing.T) {
	r := NewRouter(Momentum{}, MeanReversion{}, NewScalping(), DefaultRegimeThresholds())
	fv := indicators.FeatureVector{Pair: "ETH/USD"} // zero-value, no readiness
	sig, mult := r.Route(fv, DefaultConfig())
	assert.Equal(t, SideNone, sig.Side)
	assert.Equal(t, 1.0, mult)
	assert.Contains(t, sig.ReasonText, "regime-gated")
}

func TestClassifyRegimeVolatileOnWideBands(t *testing.T) {
	candles := bullishCandles(60, 100)
	// widen the tail sharply to blow out Bollinger width
	for i := len(candles) - 5; i < len(candles); i++ {
		candles[i].Close *= 1.2
		candles[i].High *= 1.3
	}
	snap := indicators.Compute(candles, indicators.Interval1h)
	fv := indicators.FeatureVector{H1: snap}
	regime, reason := ClassifyRegime(fv, DefaultRegimeThresholds())
	assert.NotEmpty(t, reason)
	assert.Equal(t, RegimeVolatile, regime)
}
