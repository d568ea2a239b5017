package exchange

import "sync"

// MarkupTracker maintains an EMA of the observed hidden spread for BUY fills
// on the trading exchange, per spec.md §4.8. Venues whose visible price
// already includes a spread cause sizing drift unless corrected.
type MarkupTracker struct {
	mu         sync.Mutex
	ema        map[string]float64
	samples    map[string]int
	alpha      float64
	minSamples int
	fallback   float64
	floor      float64
	cap        float64
}

// NewMarkupTracker builds a tracker with spec.md's defaults: alpha=0.3,
// minSamples=3, clamped to [0.10%, 5.00%].
func NewMarkupTracker() *MarkupTracker {
	return &MarkupTracker{
		ema: make(map[string]float64), samples: make(map[string]int),
		alpha: 0.3, minSamples: 3, fallback: 0.15, floor: 0.10, cap: 5.00,
	}
}

// Observe records one BUY fill's realized entry cost versus the reference
// mid price at submission time, as a percentage.
func (m *MarkupTracker) Observe(pair string, executedPrice, referenceMid float64) {
	if referenceMid == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	pct := (executedPrice - referenceMid) / referenceMid * 100
	if pct < 0 {
		pct = 0
	}
	if pct > m.cap {
		pct = m.cap
	}

	prev, seen := m.ema[pair]
	if !seen {
		m.ema[pair] = pct
	} else {
		m.ema[pair] = m.alpha*pct + (1-m.alpha)*prev
	}
	m.samples[pair]++
}

// EstimatePct returns the current markup estimate for a pair, clamped to
// [floor, cap]. Until minSamples observations exist, the fixed fallback is
// used.
func (m *MarkupTracker) EstimatePct(pair string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.samples[pair] < m.minSamples {
		return m.fallback
	}
	v := m.ema[pair]
	if v < m.floor {
		return m.floor
	}
	if v > m.cap {
		return m.cap
	}
	return v
}
