package indicators

import "math"

// RSI computes the Relative Strength Index using Wilder smoothing over the
// given period. Returns (50, false) — the conventional neutral value — when
// there is not enough history.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 50, false
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), true
}

// MACD holds the MACD line, its signal line (EMA(9) of MACD), and histogram.
type MACD struct {
	Value     float64
	Signal    float64
	Histogram float64
}

// ComputeMACD returns MACD = EMA(fast) - EMA(slow), signal = EMA(signal) of
// the MACD series, histogram = MACD - signal. Standard periods are
// (12, 26, 9). Returns false when there isn't enough history for the slow
// EMA plus the signal EMA window.
func ComputeMACD(closes []float64, fast, slow, signal int) (MACD, bool) {
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)
	if len(fastEMA) == 0 || len(slowEMA) == 0 {
		return MACD{}, false
	}
	// Align: fastEMA starts at index (fast-1), slowEMA at (slow-1). The MACD
	// series only exists where both are defined, i.e. from index (slow-1).
	offset := slow - fast
	if offset < 0 || offset >= len(fastEMA) {
		return MACD{}, false
	}
	macdSeries := make([]float64, len(slowEMA))
	for i := range slowEMA {
		macdSeries[i] = fastEMA[i+offset] - slowEMA[i]
	}
	if len(macdSeries) < signal {
		return MACD{}, false
	}
	signalSeries := EMA(macdSeries, signal)
	if len(signalSeries) == 0 {
		return MACD{}, false
	}
	macdVal := macdSeries[len(macdSeries)-1]
	sigVal := signalSeries[len(signalSeries)-1]
	return MACD{Value: macdVal, Signal: sigVal, Histogram: macdVal - sigVal}, true
}

// Bollinger holds the three Bollinger Band values.
type Bollinger struct {
	Upper float64
	Mid   float64
	Lower float64
}

// ComputeBollinger returns Bollinger Bands using a population stdev, as
// specified: mid = SMA(period), upper/lower = mid +/- stddevMult*stddev.
func ComputeBollinger(closes []float64, period int, stddevMult float64) (Bollinger, bool) {
	mid, ok := SMA(closes, period)
	if !ok {
		return Bollinger{}, false
	}
	dev, ok := StdDevPopulation(closes, period)
	if !ok {
		return Bollinger{}, false
	}
	return Bollinger{
		Upper: mid + stddevMult*dev,
		Mid:   mid,
		Lower: mid - stddevMult*dev,
	}, true
}

// ATR computes the Average True Range using Wilder smoothing.
func ATR(candles []Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period+1 {
		return 0, false
	}
	trueRanges := make([]float64, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		trueRanges[i-1] = trueRange(candles[i], candles[i-1])
	}
	return wilderSmooth(trueRanges, period)
}

func trueRange(cur, prev Candle) float64 {
	hl := cur.High - cur.Low
	hc := math.Abs(cur.High - prev.Close)
	lc := math.Abs(cur.Low - prev.Close)
	return math.Max(hl, math.Max(hc, lc))
}

// wilderSmooth returns the Wilder-smoothed average of the series: seed is
// the simple average of the first `period` values, then each subsequent
// value is folded in as prev*(period-1)/period + v/period.
func wilderSmooth(series []float64, period int) (float64, bool) {
	if len(series) < period {
		return 0, false
	}
	seed := 0.0
	for _, v := range series[:period] {
		seed += v
	}
	seed /= float64(period)
	avg := seed
	for _, v := range series[period:] {
		avg = (avg*float64(period-1) + v) / float64(period)
	}
	return avg, true
}

// ADX computes the Average Directional Index using Wilder-smoothed
// directional movement, along with the smoothed +DI/-DI used to derive it.
func ADX(candles []Candle, period int) (adx, plusDI, minusDI float64, ok bool) {
	if period <= 0 || len(candles) < 2*period+1 {
		return 0, 0, 0, false
	}
	n := len(candles) - 1
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	tr := make([]float64, n)
	for i := 1; i < len(candles); i++ {
		up := candles[i].High - candles[i-1].High
		down := candles[i-1].Low - candles[i].Low
		if up > down && up > 0 {
			plusDM[i-1] = up
		}
		if down > up && down > 0 {
			minusDM[i-1] = down
		}
		tr[i-1] = trueRange(candles[i], candles[i-1])
	}

	smoothedTR, ok1 := wilderSmooth(tr, period)
	smoothedPlusDM, ok2 := wilderSmooth(plusDM, period)
	smoothedMinusDM, ok3 := wilderSmooth(minusDM, period)
	if !ok1 || !ok2 || !ok3 || smoothedTR == 0 {
		return 0, 0, 0, false
	}
	plusDI = 100 * smoothedPlusDM / smoothedTR
	minusDI = 100 * smoothedMinusDM / smoothedTR

	dxSeries := make([]float64, 0, n-period)
	// Recompute a rolling DX series over the tail so ADX itself can be
	// Wilder-smoothed rather than taken as a single DX snapshot.
	for start := period; start <= n-period; start++ {
		wTR, a := wilderSmooth(tr[start-period:start+period], period)
		wPlus, b := wilderSmooth(plusDM[start-period:start+period], period)
		wMinus, c := wilderSmooth(minusDM[start-period:start+period], period)
		if !a || !b || !c || wTR == 0 {
			continue
		}
		pDI := 100 * wPlus / wTR
		mDI := 100 * wMinus / wTR
		sum := pDI + mDI
		if sum == 0 {
			continue
		}
		dx := 100 * math.Abs(pDI-mDI) / sum
		dxSeries = append(dxSeries, dx)
	}
	if len(dxSeries) < period {
		sum := plusDI + minusDI
		if sum == 0 {
			return 0, plusDI, minusDI, true
		}
		return 100 * math.Abs(plusDI-minusDI) / sum, plusDI, minusDI, true
	}
	smoothedADX, ok4 := wilderSmooth(dxSeries, period)
	if !ok4 {
		return 0, plusDI, minusDI, false
	}
	return smoothedADX, plusDI, minusDI, true
}
