package notify

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottleAppliesTypeThrottleEvenWithoutADedupeKey(t *testing.T) {
	th := newThrottle()
	now := time.Now()

	// Heartbeat.DedupeKey() is always "", so the per-key minInterval check
	// never fires for it — but its kind-level typeThrottle (1h) still must.
	c := Heartbeat{At: now}
	assert.True(t, th.allow(c, now))
	assert.False(t, th.allow(c, now)) // immediate repeat suppressed by typeThrottle
	assert.True(t, th.allow(c, now.Add(time.Hour+time.Second)))
}

func TestThrottleEnforcesMaxPerHour(t *testing.T) {
	th := newThrottle()
	now := time.Now()

	// entry_intent caps at 8/hour. Vary the pair each send so the per-key
	// minInterval never fires, and space sends 6m apart (past the 5m
	// typeThrottle) so only maxPerHour can be the thing blocking the 9th.
	for i := 0; i < 8; i++ {
		c := EntryIntent{Pair: fmt.Sprintf("PAIR%d/EUR", i), Side: "BUY", At: now.Add(time.Duration(i) * 6 * time.Minute)}
		assert.True(t, th.allow(c, c.At), "send %d should be allowed", i)
	}

	ninth := EntryIntent{Pair: "PAIR8/EUR", Side: "BUY", At: now.Add(8 * 6 * time.Minute)}
	assert.False(t, th.allow(ninth, ninth.At))
}

func TestThrottleSuppressesRepeatWithinWindow(t *testing.T) {
	th := newThrottle()
	now := time.Now()

	intent := EntryIntent{Pair: "BTC/EUR", Side: "BUY", At: now}
	assert.True(t, th.allow(intent, now))
	assert.False(t, th.allow(intent, now.Add(time.Minute)))
	assert.True(t, th.allow(intent, now.Add(16*time.Minute)))
}

func TestThrottleDedupesZeroWindowKeyForever(t *testing.T) {
	th := newThrottle()
	now := time.Now()

	// FiscoReportGenerated has no §4.10 throttle rule: its DedupeKey (tax
	// year) dedupes forever once sent, regardless of elapsed time.
	report := FiscoReportGenerated{TaxYear: 2026, At: now}
	assert.True(t, th.allow(report, now))
	assert.False(t, th.allow(report, now.Add(24*time.Hour)))
}

func TestThrottleGCDropsStaleEntries(t *testing.T) {
	th := newThrottle()
	now := time.Now()

	intent := EntryIntent{Pair: "ETH/EUR", Side: "SELL", At: now}
	th.allow(intent, now)

	th.gc(time.Hour, now.Add(2*time.Hour))

	assert.True(t, th.allow(intent, now.Add(2*time.Hour)))
}

func TestEntryIntentDedupeKeyBucketsByFifteenMinutes(t *testing.T) {
	base := time.Now().Truncate(time.Hour)
	a := EntryIntent{Pair: "BTC/EUR", Side: "BUY", At: base}
	b := EntryIntent{Pair: "BTC/EUR", Side: "BUY", At: base.Add(5 * time.Minute)}
	c := EntryIntent{Pair: "BTC/EUR", Side: "BUY", At: base.Add(20 * time.Minute)}

	assert.Equal(t, a.DedupeKey(), b.DedupeKey())
	assert.NotEqual(t, a.DedupeKey(), c.DedupeKey())
}

func TestRenderNeverLeaksPlaceholders(t *testing.T) {
	msg := TradeBuy{Pair: "", Exchange: "-", Strategy: "undefined", LotID: "null"}
	text := msg.Render()
	assert.NotContains(t, text, "undefined")
	assert.NotContains(t, text, "null")
}
