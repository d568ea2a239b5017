package indicators

import "math"

// SMA returns the simple moving average of the last `period` closes.
// Returns (0, false) when there are fewer than `period` closes.
func SMA(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period {
		return 0, false
	}
	sum := 0.0
	start := len(closes) - period
	for _, c := range closes[start:] {
		sum += c
	}
	return sum / float64(period), true
}

// EMA returns the exponential moving average series seeded by the SMA of the
// first `period` closes, per spec: EMA seed = SMA(first N), alpha = 2/(N+1).
// The returned slice is aligned to closes[period-1:] — EMA(closes[:period])
// is the seed value, EMA(closes[:period+1]) the next, and so on. Returns nil
// when there are fewer than `period` closes.
func EMA(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) < period {
		return nil
	}
	alpha := 2.0 / float64(period+1)
	seed, _ := SMA(closes[:period], period)
	out := make([]float64, len(closes)-period+1)
	out[0] = seed
	prev := seed
	for i := period; i < len(closes); i++ {
		v := closes[i]*alpha + prev*(1-alpha)
		out[i-period+1] = v
		prev = v
	}
	return out
}

// EMALast returns only the most recent EMA value, or (0, false) if there is
// not enough history.
func EMALast(closes []float64, period int) (float64, bool) {
	series := EMA(closes, period)
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

// StdDevPopulation returns the population standard deviation of the last
// `period` closes around their mean.
func StdDevPopulation(closes []float64, period int) (float64, bool) {
	mean, ok := SMA(closes, period)
	if !ok {
		return 0, false
	}
	start := len(closes) - period
	var sumSq float64
	for _, c := range closes[start:] {
		d := c - mean
		sumSq += d * d
	}
	variance := sumSq / float64(period)
	return math.Sqrt(variance), true
}
