// Package circuit implements a supplementary trading circuit breaker,
// wired alongside internal/risk.Admission: where Admission enforces
// exposure/cooldown/daily-loss limits per spec.md §4.4, this breaker adds a
// short-window consecutive-loss and trade-rate trip that recovers through a
// half-open probe, independent of Admission's UTC-day rollover.
package circuit

import (
	"fmt"
	"math"
	"sync"
	"time"

	"kraken-autotrade/internal/events"
)

// BreakerState represents the circuit breaker state.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // normal operation
	StateOpen     BreakerState = "open"      // trading halted
	StateHalfOpen BreakerState = "half_open" // testing recovery
)

// Config holds circuit breaker configuration.
type Config struct {
	Enabled              bool    `json:"enabled"`
	MaxLossPerHour       float64 `json:"max_loss_per_hour"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	CooldownMinutes      int     `json:"cooldown_minutes"`
	MaxTradesPerMinute   int     `json:"max_trades_per_minute"`
	MaxDailyLoss         float64 `json:"max_daily_loss"`
	MaxDailyTrades       int     `json:"max_daily_trades"`
}

// DefaultConfig returns safe defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:              true,
		MaxLossPerHour:       3.0,
		MaxConsecutiveLosses: 5,
		CooldownMinutes:      30,
		MaxTradesPerMinute:   10,
		MaxDailyLoss:         5.0,
		MaxDailyTrades:       100,
	}
}

// Breaker implements the trading circuit breaker pattern. It holds no
// per-user state: one Breaker instance covers the whole bot (or, if the
// caller constructs one per pair, that pair alone).
type Breaker struct {
	config            *Config
	state             BreakerState
	consecutiveLosses int
	hourlyLoss        float64
	dailyLoss         float64
	tradesLastMinute  int
	dailyTrades       int
	lastTripTime      time.Time
	lastTradeTime     time.Time
	hourlyResetTime   time.Time
	dailyResetTime    time.Time
	minuteResetTime   time.Time
	tripReason        string
	mu                sync.RWMutex
	onTrip            func(reason string)
	onReset           func()
	bus               *events.Bus
}

// NewBreaker creates a new circuit breaker.
func NewBreaker(config *Config, bus *events.Bus) *Breaker {
	if config == nil {
		config = DefaultConfig()
	}

	now := time.Now()
	return &Breaker{
		config:          config,
		state:           StateClosed,
		hourlyResetTime: now.Add(time.Hour),
		dailyResetTime:  now.Truncate(24 * time.Hour).Add(24 * time.Hour),
		minuteResetTime: now.Add(time.Minute),
		bus:             bus,
	}
}

// OnTrip sets a callback invoked when the breaker trips.
func (cb *Breaker) OnTrip(handler func(reason string)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onTrip = handler
}

// OnReset sets a callback invoked when the breaker resets.
func (cb *Breaker) OnReset(handler func()) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onReset = handler
}

// CanTrade checks if trading is allowed, returning a reason string when not.
func (cb *Breaker) CanTrade() (bool, string) {
	if !cb.config.Enabled {
		return true, ""
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.resetCountersIfNeeded()

	if cb.state == StateOpen {
		elapsed := time.Since(cb.lastTripTime)
		cooldown := time.Duration(cb.config.CooldownMinutes) * time.Minute

		if elapsed < cooldown {
			remaining := cooldown - elapsed
			return false, fmt.Sprintf("circuit breaker open, cooldown remaining: %v (reason: %s)",
				remaining.Round(time.Second), cb.tripReason)
		}

		cb.state = StateHalfOpen
	}

	if cb.hourlyLoss >= cb.config.MaxLossPerHour {
		return false, fmt.Sprintf("hourly loss limit reached: %.2f%% >= %.2f%%",
			cb.hourlyLoss, cb.config.MaxLossPerHour)
	}

	if cb.dailyLoss >= cb.config.MaxDailyLoss {
		return false, fmt.Sprintf("daily loss limit reached: %.2f%% >= %.2f%%",
			cb.dailyLoss, cb.config.MaxDailyLoss)
	}

	if cb.state != StateHalfOpen && cb.consecutiveLosses >= cb.config.MaxConsecutiveLosses {
		return false, fmt.Sprintf("max consecutive losses reached: %d", cb.consecutiveLosses)
	}

	if cb.tradesLastMinute >= cb.config.MaxTradesPerMinute {
		return false, fmt.Sprintf("rate limit reached: %d trades/minute", cb.tradesLastMinute)
	}

	if cb.dailyTrades >= cb.config.MaxDailyTrades {
		return false, fmt.Sprintf("daily trade limit reached: %d trades", cb.dailyTrades)
	}

	return true, ""
}

// RecordTrade records a closed trade's realized PnL percent.
func (cb *Breaker) RecordTrade(pnlPercent float64) {
	if !cb.config.Enabled {
		return
	}

	cb.mu.Lock()

	if math.IsNaN(pnlPercent) || math.IsInf(pnlPercent, 0) {
		cb.mu.Unlock()
		return
	}

	cb.resetCountersIfNeeded()

	cb.lastTradeTime = time.Now()
	cb.tradesLastMinute++
	cb.dailyTrades++

	var recoveredFromHalfOpen bool
	if pnlPercent < 0 {
		cb.consecutiveLosses++
		cb.hourlyLoss += -pnlPercent
		cb.dailyLoss += -pnlPercent
	} else {
		cb.consecutiveLosses = 0

		if cb.state == StateHalfOpen {
			cb.state = StateClosed
			recoveredFromHalfOpen = true
			if cb.onReset != nil {
				go cb.onReset()
			}
		}
	}

	cb.mu.Unlock()

	if recoveredFromHalfOpen && cb.bus != nil {
		cb.bus.Info(events.TypeCircuitBreaker, "", "circuit breaker recovered after a winning trade", map[string]interface{}{
			"state":  string(StateClosed),
			"action": "recovered",
		})
	}

	cb.mu.Lock()
	cb.checkAndTrip()
	cb.mu.Unlock()
}

func (cb *Breaker) checkAndTrip() {
	var reason string

	if cb.consecutiveLosses >= cb.config.MaxConsecutiveLosses {
		reason = fmt.Sprintf("consecutive losses: %d", cb.consecutiveLosses)
	} else if cb.hourlyLoss >= cb.config.MaxLossPerHour {
		reason = fmt.Sprintf("hourly loss: %.2f%%", cb.hourlyLoss)
	} else if cb.dailyLoss >= cb.config.MaxDailyLoss {
		reason = fmt.Sprintf("daily loss: %.2f%%", cb.dailyLoss)
	}

	if reason != "" {
		cb.trip(reason)
	}
}

func (cb *Breaker) trip(reason string) {
	cb.state = StateOpen
	cb.lastTripTime = time.Now()
	cb.tripReason = reason

	if cb.onTrip != nil {
		go cb.onTrip(reason)
	}

	if cb.bus != nil {
		cb.bus.Warn(events.TypeCircuitBreaker, "", fmt.Sprintf("circuit breaker tripped: %s", reason), map[string]interface{}{
			"state":              string(StateOpen),
			"action":             "tripped",
			"reason":             reason,
			"consecutive_losses": cb.consecutiveLosses,
			"hourly_loss":        cb.hourlyLoss,
			"daily_loss":         cb.dailyLoss,
		})
	}
}

func (cb *Breaker) resetCountersIfNeeded() {
	now := time.Now()

	if now.After(cb.minuteResetTime) {
		cb.tradesLastMinute = 0
		cb.minuteResetTime = now.Add(time.Minute)
	}

	if now.After(cb.hourlyResetTime) {
		cb.hourlyLoss = 0
		cb.hourlyResetTime = now.Add(time.Hour)
	}

	if now.After(cb.dailyResetTime) {
		cb.dailyLoss = 0
		cb.dailyTrades = 0
		cb.dailyResetTime = now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	}
}

// ForceReset manually resets the circuit breaker to closed and clears the
// consecutive-loss count and trip reason.
func (cb *Breaker) ForceReset() {
	cb.mu.Lock()
	cb.state = StateClosed
	cb.consecutiveLosses = 0
	cb.tripReason = ""
	cb.mu.Unlock()

	if cb.onReset != nil {
		go cb.onReset()
	}

	if cb.bus != nil {
		cb.bus.Info(events.TypeCircuitBreaker, "", "circuit breaker manually reset", map[string]interface{}{
			"state":  string(StateClosed),
			"action": "reset",
		})
	}
}

// GetState returns the current breaker state.
func (cb *Breaker) GetState() BreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// GetStats returns current statistics for the /diagnostics endpoint.
func (cb *Breaker) GetStats() map[string]interface{} {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return map[string]interface{}{
		"state":              string(cb.state),
		"consecutive_losses": cb.consecutiveLosses,
		"hourly_loss":        cb.hourlyLoss,
		"daily_loss":         cb.dailyLoss,
		"trades_last_minute": cb.tradesLastMinute,
		"daily_trades":       cb.dailyTrades,
		"trip_reason":        cb.tripReason,
		"last_trip_time":     cb.lastTripTime,
	}
}

// IsEnabled returns whether the circuit breaker is enabled.
func (cb *Breaker) IsEnabled() bool {
	return cb.config.Enabled
}

// GetConfig returns a copy of the current configuration.
func (cb *Breaker) GetConfig() Config {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return *cb.config
}

// UpdateConfig applies non-zero overrides to the current configuration.
func (cb *Breaker) UpdateConfig(updates *Config) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if updates.MaxLossPerHour > 0 {
		cb.config.MaxLossPerHour = updates.MaxLossPerHour
	}
	if updates.MaxDailyLoss > 0 {
		cb.config.MaxDailyLoss = updates.MaxDailyLoss
	}
	if updates.MaxConsecutiveLosses > 0 {
		cb.config.MaxConsecutiveLosses = updates.MaxConsecutiveLosses
	}
	if updates.CooldownMinutes > 0 {
		cb.config.CooldownMinutes = updates.CooldownMinutes
	}
	if updates.MaxTradesPerMinute > 0 {
		cb.config.MaxTradesPerMinute = updates.MaxTradesPerMinute
	}
	if updates.MaxDailyTrades > 0 {
		cb.config.MaxDailyTrades = updates.MaxDailyTrades
	}
}

// SetEnabled enables or disables the circuit breaker.
func (cb *Breaker) SetEnabled(enabled bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.config.Enabled = enabled
}
