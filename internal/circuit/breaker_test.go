package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kraken-autotrade/internal/events"
)

func testConfig() *Config {
	return &Config{
		Enabled:              true,
		MaxLossPerHour:       10,
		MaxConsecutiveLosses: 3,
		CooldownMinutes:      30,
		MaxTradesPerMinute:   100,
		MaxDailyLoss:         20,
		MaxDailyTrades:       1000,
	}
}

func TestCanTradeWhenClosed(t *testing.T) {
	b := NewBreaker(testConfig(), nil)
	ok, reason := b.CanTrade()
	assert.True(t, ok)
	assert.Empty(t, reason)
	assert.Equal(t, StateClosed, b.GetState())
}

func TestTripsOnConsecutiveLosses(t *testing.T) {
	b := NewBreaker(testConfig(), nil)

	tripped := make(chan string, 1)
	b.OnTrip(func(reason string) { tripped <- reason })

	b.RecordTrade(-1)
	b.RecordTrade(-1)
	assert.Equal(t, StateClosed, b.GetState())

	b.RecordTrade(-1)
	assert.Equal(t, StateOpen, b.GetState())

	select {
	case reason := <-tripped:
		assert.Contains(t, reason, "consecutive losses")
	case <-time.After(time.Second):
		t.Fatal("onTrip callback was not invoked")
	}

	ok, reason := b.CanTrade()
	assert.False(t, ok)
	assert.Contains(t, reason, "cooldown")
}

func TestWinningTradeResetsConsecutiveLossCounter(t *testing.T) {
	b := NewBreaker(testConfig(), nil)
	b.RecordTrade(-1)
	b.RecordTrade(-1)
	b.RecordTrade(2) // win, resets the streak before it ever reaches the trip threshold
	b.RecordTrade(-1)
	b.RecordTrade(-1)
	assert.Equal(t, StateClosed, b.GetState())
}

func TestTripsOnHourlyLossLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLossPerHour = 5
	b := NewBreaker(cfg, nil)

	b.RecordTrade(-3)
	b.RecordTrade(-3)

	assert.Equal(t, StateOpen, b.GetState())
}

func TestForceResetClearsOpenState(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConsecutiveLosses = 1
	b := NewBreaker(cfg, nil)

	b.RecordTrade(-1)
	require.Equal(t, StateOpen, b.GetState())

	b.ForceReset()
	assert.Equal(t, StateClosed, b.GetState())
	ok, _ := b.CanTrade()
	assert.True(t, ok)
}

func TestDisabledBreakerNeverBlocks(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	b := NewBreaker(cfg, nil)

	for i := 0; i < 10; i++ {
		b.RecordTrade(-5)
	}
	ok, _ := b.CanTrade()
	assert.True(t, ok)
	assert.Equal(t, StateClosed, b.GetState())
}

func TestTripEmitsBusEvent(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConsecutiveLosses = 1
	bus := events.NewBusWithBuffer(4)
	b := NewBreaker(cfg, bus)

	b.RecordTrade(-1)
	require.Equal(t, StateOpen, b.GetState())

	select {
	case evt := <-bus.Events():
		assert.Equal(t, events.TypeCircuitBreaker, evt.Type)
		assert.Equal(t, events.LevelWarn, evt.Level)
	default:
		t.Fatal("expected a circuit breaker event on the bus")
	}
}

func TestGetStatsReflectsCounters(t *testing.T) {
	b := NewBreaker(testConfig(), nil)
	b.RecordTrade(-1)
	b.RecordTrade(2)

	stats := b.GetStats()
	assert.Equal(t, 2, stats["daily_trades"])
	assert.Equal(t, string(StateClosed), stats["state"])
}
