// Package engine implements the bot's trading tick loop: one goroutine per
// configured pair, each cycle evaluating exits on any open position and, if
// none is open and the bot is not paused, routing a fresh signal through
// internal/strategy and internal/risk admission control before submitting
// an order. This replaces the teacher's single-venue Binance futures
// polling loop (internal/bot in the original) with the multi-venue,
// multi-pair design of spec.md §4.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kraken-autotrade/config"
	"kraken-autotrade/internal/accounting"
	"kraken-autotrade/internal/circuit"
	"kraken-autotrade/internal/database"
	"kraken-autotrade/internal/events"
	"kraken-autotrade/internal/exchange"
	"kraken-autotrade/internal/indicators"
	"kraken-autotrade/internal/logging"
	"kraken-autotrade/internal/notify"
	"kraken-autotrade/internal/orders"
	"kraken-autotrade/internal/risk"
	"kraken-autotrade/internal/strategy"
)

// RedisHealth reports Redis reachability for the heartbeat. Implemented by
// internal/cache.CacheService; kept as an interface here to avoid a direct
// dependency on the concrete cache type.
type RedisHealth interface {
	IsHealthy() bool
}

// Deps bundles every collaborator the engine needs. Constructed once in
// main.go — the engine never builds its own collaborators.
type Deps struct {
	Config      config.TradingConfig
	RiskConfig  config.RiskConfig
	Factory     *exchange.Factory
	Router      *strategy.Router
	StrategyCfg strategy.Config
	Admission   *risk.Admission
	Positions   *risk.Manager
	Accountant  *accounting.Accountant
	Breaker     *circuit.Breaker
	OrderGen    *orders.Generator
	Markup      *exchange.MarkupTracker
	Repo        *database.Repository
	Bus         *events.Bus
	Redis       RedisHealth
	Log         *logging.Logger
	Publish     func(ctx context.Context, msg notify.Context)
}

// Engine is the single owner of in-flight trading state for the process,
// per spec.md §5 ("the engine worker exclusively owns positions and
// in-flight order state; every other goroutine only reads snapshots").
type Engine struct {
	cfg         config.TradingConfig
	riskCfg     config.RiskConfig
	factory     *exchange.Factory
	router      *strategy.Router
	strategyCfg strategy.Config
	admission   *risk.Admission
	positions   *risk.Manager
	accountant  *accounting.Accountant
	breaker     *circuit.Breaker
	orderGen    *orders.Generator
	markup      *exchange.MarkupTracker
	repo        *database.Repository
	bus         *events.Bus
	redis       RedisHealth
	log         *logging.Logger

	publish func(ctx context.Context, msg notify.Context)

	mu          sync.RWMutex
	paused      bool
	pendingBuy  map[string]bool    // keyed by pair, true while a BUY is in flight
	positionQty map[string]float64 // keyed by pair|exchange, the open lot's filled quantity

	startedAt time.Time
	tickSeq   int64

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New constructs an Engine from its dependencies. The returned Engine does
// not start any goroutines until Start is called.
func New(d Deps) *Engine {
	return &Engine{
		cfg:         d.Config,
		riskCfg:     d.RiskConfig,
		factory:     d.Factory,
		router:      d.Router,
		strategyCfg: d.StrategyCfg,
		admission:   d.Admission,
		positions:   d.Positions,
		accountant:  d.Accountant,
		breaker:     d.Breaker,
		orderGen:    d.OrderGen,
		markup:      d.Markup,
		repo:        d.Repo,
		bus:         d.Bus,
		redis:       d.Redis,
		log:         d.Log.WithComponent("engine"),
		publish:     d.Publish,
		pendingBuy:  make(map[string]bool),
		positionQty: make(map[string]float64),
		startedAt:   time.Now(),
		stopChan:    make(chan struct{}),
	}
}

// Start spawns one tick-loop goroutine per configured pair. It returns
// immediately; call Stop to halt all of them.
func (e *Engine) Start(ctx context.Context) {
	interval := time.Duration(e.cfg.TickIntervalSec) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	e.bus.Info(events.TypeBotStarted, "", fmt.Sprintf("trading engine started, dry_run=%v pairs=%v", e.cfg.DryRun, e.cfg.Pairs), nil)

	for _, pair := range e.cfg.Pairs {
		e.wg.Add(1)
		go e.runPairLoop(ctx, pair, interval)
	}
}

// Stop signals every pair loop to exit and waits for them to drain.
func (e *Engine) Stop() {
	close(e.stopChan)
	e.wg.Wait()
	e.bus.Info(events.TypeBotStopped, "", "trading engine stopped", nil)
}

func (e *Engine) runPairLoop(ctx context.Context, pair string, interval time.Duration) {
	defer e.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.scanPair(ctx, pair)
		}
	}
}

// Pause suspends new entries; existing positions continue to be managed for
// exits. Wired to the Telegram /pausar command.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
}

// Resume re-enables new entries. Wired to /reanudar.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = false
}

// Paused reports whether new entries are currently suspended.
func (e *Engine) Paused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.paused
}

// Uptime satisfies scheduling.HeartbeatSource.
func (e *Engine) Uptime() time.Duration {
	return time.Since(e.startedAt)
}

// OpenLotCount satisfies scheduling.HeartbeatSource.
func (e *Engine) OpenLotCount() int {
	return len(e.positions.All())
}

// RedisHealthy satisfies scheduling.HeartbeatSource.
func (e *Engine) RedisHealthy() bool {
	if e.redis == nil {
		return false
	}
	return e.redis.IsHealthy()
}

// Status satisfies notify.StatusProvider, answering /estado, /balance,
// /cartera, /posiciones, /ganancias and /exposicion.
func (e *Engine) Status(ctx context.Context) notify.StatusSnapshot {
	summary := e.accountant.Summarize()
	positions := e.positions.All()

	lots := make([]notify.OpenLotView, 0, len(positions))
	var totalExposure float64
	for _, p := range positions {
		price, err := e.currentPrice(ctx, p.Pair)
		if err != nil {
			price = p.EntryPrice
		}
		unrealizedPct := 0.0
		if p.EntryPrice != 0 {
			unrealizedPct = (price - p.EntryPrice) / p.EntryPrice * 100
		}
		lots = append(lots, notify.OpenLotView{
			Pair:          p.Pair,
			Exchange:      p.Exchange,
			LotID:         p.LotID,
			CurrentPrice:  price,
			EntryPrice:    p.EntryPrice,
			UnrealizedPct: unrealizedPct,
			ExitState:     string(p.State),
			StopPrice:     p.StopPrice,
		})
		totalExposure += price * e.qtyFor(p.Pair, p.Exchange)
	}

	balances := e.accountBalances(ctx)

	return notify.StatusSnapshot{
		Uptime:           e.Uptime(),
		BalancesEur:      balances,
		OpenLots:         lots,
		RealizedPnLEur:   summary.RealizedPnLTotal,
		RealizedPnLPct:   summary.RealizedPnLExcludingWarnings,
		ExposurePct:      e.exposurePct(totalExposure),
		KillSwitchActive: e.admission.KillSwitchActive(time.Now()),
		DryRun:           e.cfg.DryRun,
	}
}

// DailyReportData satisfies scheduling.DailyReportSource.
func (e *Engine) DailyReportData(ctx context.Context, date time.Time) (notify.DailyReport, error) {
	summary := e.accountant.Summarize()
	positions := e.positions.All()

	var totalExposure float64
	for _, p := range positions {
		price, err := e.currentPrice(ctx, p.Pair)
		if err != nil {
			price = p.EntryPrice
		}
		totalExposure += price * e.qtyFor(p.Pair, p.Exchange)
	}

	var opened, closed int
	for _, d := range e.accountant.Disposals() {
		if sameDay(d.DisposedAt, date) {
			closed++
		}
	}

	return notify.DailyReport{
		Date:               date,
		RealizedPnLEur:     summary.RealizedPnLTotal,
		RealizedPnLExclEur: summary.RealizedPnLExcludingWarnings,
		TradesOpened:       opened,
		TradesClosed:       closed,
		OpenLots:           len(positions),
		ExposurePct:        e.exposurePct(totalExposure),
		KillSwitchTripped:  e.admission.KillSwitchActive(time.Now()),
	}, nil
}

// OpenPositionSnapshots builds a point-in-time snapshot of every open
// position for the scheduled daily position-snapshot job, satisfying
// scheduling.PositionSnapshotSource.
func (e *Engine) OpenPositionSnapshots(ctx context.Context, date time.Time) []database.PositionSnapshot {
	positions := e.positions.All()
	snapshots := make([]database.PositionSnapshot, 0, len(positions))
	for _, p := range positions {
		price, err := e.currentPrice(ctx, p.Pair)
		if err != nil {
			price = p.EntryPrice
		}
		qty := e.qtyFor(p.Pair, p.Exchange)
		unrealized := (price - p.EntryPrice) * qty
		snapshots = append(snapshots, database.PositionSnapshot{
			SnapshotDate:  date,
			Pair:          p.Pair,
			Exchange:      p.Exchange,
			LotID:         p.LotID,
			Quantity:      qty,
			EntryPrice:    p.EntryPrice,
			MarkPrice:     price,
			UnrealizedPnL: unrealized,
			ExitState:     string(p.State),
			StopPrice:     p.StopPrice,
		})
	}
	return snapshots
}

// Diagnostics satisfies api.DiagnosticsProvider.
func (e *Engine) Diagnostics(ctx context.Context) map[string]interface{} {
	positions := e.positions.All()
	breakerStats := map[string]interface{}{"enabled": false}
	if e.breaker != nil {
		breakerStats = e.breaker.GetStats()
	}

	return map[string]interface{}{
		"uptime_seconds":     int(e.Uptime().Seconds()),
		"paused":             e.Paused(),
		"dry_run":            e.cfg.DryRun,
		"pairs":              e.cfg.Pairs,
		"open_positions":     len(positions),
		"kill_switch_active": e.admission.KillSwitchActive(time.Now()),
		"circuit_breaker":    breakerStats,
		"exchanges_enabled":  e.factory.Enabled(),
		"tick_count":         e.tickSeqSnapshot(),
	}
}

func (e *Engine) tickSeqSnapshot() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tickSeq
}

func (e *Engine) exposurePct(totalQuote float64) float64 {
	equity := e.cfg.BasePositionSizeQuote * float64(len(e.cfg.Pairs))
	if equity <= 0 {
		return 0
	}
	return totalQuote / equity * 100
}

func (e *Engine) currentPrice(ctx context.Context, pair string) (float64, error) {
	ex, err := e.factory.Trading()
	if err != nil {
		return 0, err
	}
	return ex.GetTicker(ctx, pair)
}

func (e *Engine) accountBalances(ctx context.Context) map[string]float64 {
	out := make(map[string]float64)
	ex, err := e.factory.Trading()
	if err != nil {
		return out
	}
	balances, err := ex.GetBalance(ctx)
	if err != nil {
		e.log.Warn("failed to read balances", "error", err.Error())
		return out
	}
	for _, b := range balances {
		out[b.Asset] = b.Free + b.Locked
	}
	return out
}

// notify publishes msg if a publisher was wired, and is always safe to call
// even before main.go has finished constructing the notification stack.
func (e *Engine) notify(ctx context.Context, msg notify.Context) {
	if e.publish == nil {
		return
	}
	e.publish(ctx, msg)
}

func (e *Engine) qtyFor(pair, exchangeName string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.positionQty[pair+"|"+exchangeName]
}

func (e *Engine) setQty(pair, exchangeName string, qty float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positionQty[pair+"|"+exchangeName] = qty
}

func (e *Engine) clearQty(pair, exchangeName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.positionQty, pair+"|"+exchangeName)
}

func sameDay(t, ref time.Time) bool {
	ty, tm, td := t.Date()
	ry, rm, rd := ref.Date()
	return ty == ry && tm == rm && td == rd
}

func featureVectorFor(ctx context.Context, ex exchange.Exchange, pair string) (indicators.FeatureVector, error) {
	m5Candles, err := ex.GetOHLC(ctx, pair, indicators.Interval5m, 200)
	if err != nil {
		return indicators.FeatureVector{}, fmt.Errorf("fetch 5m candles: %w", err)
	}
	h1Candles, err := ex.GetOHLC(ctx, pair, indicators.Interval1h, 200)
	if err != nil {
		return indicators.FeatureVector{}, fmt.Errorf("fetch 1h candles: %w", err)
	}
	h4Candles, err := ex.GetOHLC(ctx, pair, indicators.Interval4h, 200)
	if err != nil {
		return indicators.FeatureVector{}, fmt.Errorf("fetch 4h candles: %w", err)
	}

	price, err := ex.GetTicker(ctx, pair)
	if err != nil {
		return indicators.FeatureVector{}, fmt.Errorf("fetch ticker: %w", err)
	}

	now := time.Now()
	closedOnly := func(cs []indicators.Candle, iv indicators.Interval) []indicators.Candle {
		if n := len(cs); n > 0 && !indicators.Closed(cs[n-1], iv, now) {
			return cs[:n-1]
		}
		return cs
	}
	m5Candles = closedOnly(m5Candles, indicators.Interval5m)
	h1Candles = closedOnly(h1Candles, indicators.Interval1h)
	h4Candles = closedOnly(h4Candles, indicators.Interval4h)

	var volume float64
	if len(m5Candles) > 0 {
		volume = m5Candles[len(m5Candles)-1].Volume
	}

	m5 := indicators.Compute(m5Candles, indicators.Interval5m)
	h1 := indicators.Compute(h1Candles, indicators.Interval1h)
	h4 := indicators.Compute(h4Candles, indicators.Interval4h)

	return indicators.NewFeatureVector(pair, m5, h1, h4, price, volume), nil
}
