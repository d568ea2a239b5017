// Package risk implements the per-position protective-exit state machine and
// the admission-control / daily-loss kill-switch that gates new entries.
package risk

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// ExitState is a position's place in the protective-exit lifecycle. States
// only ever advance; a position never regresses to an earlier state.
type ExitState string

const (
	StateActive   ExitState = "ACTIVE"
	StateBEArmed  ExitState = "BE_ARMED"
	StateTrailing ExitState = "TRAILING"
	StateClosed   ExitState = "CLOSED"
)

// ExitType labels why a position was closed.
type ExitType string

const (
	ExitStopLoss     ExitType = "STOP_LOSS"
	ExitTakeProfit   ExitType = "TAKE_PROFIT"
	ExitTrailingStop ExitType = "TRAILING_STOP"
	ExitManual       ExitType = "MANUAL"
)

// Config holds the per-position exit policy, sourced from bot_config.
type Config struct {
	StopLossPct          float64
	TakeProfitPct        float64
	BEArmPct             float64
	BELockPct            float64
	TrailingStopEnabled  bool
	TrailingArmPct       float64 // must be >= BEArmPct
	TrailingDistancePct  float64
}

// Position tracks one open lot through the exit state machine.
type Position struct {
	LotID                 string
	Pair                  string
	Exchange              string
	EntryPrice            float64
	State                 ExitState
	StopPrice             float64
	TakeProfitPrice       float64
	TrailingHighWaterMark float64
	LastStopUpdateAt      time.Time
}

// ExitDecision is what the engine acts on after Evaluate: either nothing, or
// a SELL with the given exit type.
type ExitDecision struct {
	Exit      bool
	ExitType  ExitType
	StopRaised bool // true when the stop moved up without triggering an exit
}

// Manager owns the in-memory position map. Per spec.md §5 it is exclusively
// owned by the engine worker; other workers must only read snapshots.
type Manager struct {
	mu        sync.RWMutex
	positions map[string]*Position // keyed by pair+exchange
	cfg       Config
}

func NewManager(cfg Config) *Manager {
	return &Manager{positions: make(map[string]*Position), cfg: cfg}
}

func key(pair, exchange string) string { return pair + "|" + exchange }

// Open registers a new position at entry per the initial invariants of
// spec.md §4.7.
func (m *Manager) Open(lotID, pair, exchange string, entryPrice float64) *Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := &Position{
		LotID:                 lotID,
		Pair:                  pair,
		Exchange:              exchange,
		EntryPrice:            entryPrice,
		State:                 StateActive,
		StopPrice:             entryPrice * (1 - m.cfg.StopLossPct/100),
		TakeProfitPrice:       entryPrice * (1 + m.cfg.TakeProfitPct/100),
		TrailingHighWaterMark: entryPrice,
	}
	m.positions[key(pair, exchange)] = p
	log.Printf("[risk] opened position %s entry=%.8f stop=%.8f tp=%.8f", pair, entryPrice, p.StopPrice, p.TakeProfitPrice)
	return p
}

// Snapshot returns a copy of the position for the given pair/exchange, or
// nil if none is open. Callers outside the engine worker must use this, not
// a raw pointer into the map.
func (m *Manager) Snapshot(pair, exchange string) *Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[key(pair, exchange)]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// All returns copies of every open position.
func (m *Manager) All() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out
}

// Close evicts the in-memory record; persistence is the source of truth
// across restarts.
func (m *Manager) Close(pair, exchange string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, key(pair, exchange))
}

// Evaluate applies the current price to the position's exit state machine.
// Tie-break order when multiple triggers are simultaneously satisfied:
// STOP_LOSS > TRAILING_STOP > TAKE_PROFIT > MANUAL (SL always wins).
func (m *Manager) Evaluate(pair, exchange string, price float64) ExitDecision {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[key(pair, exchange)]
	if !ok || p.State == StateClosed {
		return ExitDecision{}
	}

	// SL wins over every other trigger, but only while still in the
	// pre-trailing phase: once trailing has taken over, a stop breach is a
	// TRAILING_STOP (checked further down against the raised stop), not a
	// STOP_LOSS against the original one.
	if p.State != StateTrailing && price <= p.StopPrice {
		p.State = StateClosed
		return ExitDecision{Exit: true, ExitType: ExitStopLoss}
	}

	stopRaised := false

	if p.State == StateActive && price >= p.EntryPrice*(1+m.cfg.BEArmPct/100) {
		p.State = StateBEArmed
		newStop := p.EntryPrice * (1 + m.cfg.BELockPct/100)
		if newStop > p.StopPrice {
			p.StopPrice = newStop
			stopRaised = true
		}
	}

	if m.cfg.TrailingStopEnabled && price >= p.EntryPrice*(1+m.cfg.TrailingArmPct/100) {
		if p.State != StateTrailing {
			p.State = StateTrailing
		}
		if price > p.TrailingHighWaterMark {
			p.TrailingHighWaterMark = price
		}
		trailingStop := p.TrailingHighWaterMark * (1 - m.cfg.TrailingDistancePct/100)
		if trailingStop > p.StopPrice {
			p.StopPrice = trailingStop
			stopRaised = true
		}
		if price <= p.StopPrice {
			p.State = StateClosed
			return ExitDecision{Exit: true, ExitType: ExitTrailingStop}
		}
	}

	if p.State != StateTrailing && price >= p.TakeProfitPrice {
		p.State = StateClosed
		return ExitDecision{Exit: true, ExitType: ExitTakeProfit}
	}

	return ExitDecision{StopRaised: stopRaised}
}

// ManualExit forces a CLOSED state and reports a MANUAL exit.
func (m *Manager) ManualExit(pair, exchange string) ExitDecision {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[key(pair, exchange)]
	if !ok {
		return ExitDecision{}
	}
	p.State = StateClosed
	return ExitDecision{Exit: true, ExitType: ExitManual}
}

func (c Config) String() string {
	return fmt.Sprintf("SL=%.2f%% TP=%.2f%% BEArm=%.2f%% BELock=%.2f%% TrailArm=%.2f%% TrailDist=%.2f%%",
		c.StopLossPct, c.TakeProfitPct, c.BEArmPct, c.BELockPct, c.TrailingArmPct, c.TrailingDistancePct)
}
