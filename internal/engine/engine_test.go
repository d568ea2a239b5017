package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kraken-autotrade/config"
	"kraken-autotrade/internal/accounting"
	"kraken-autotrade/internal/events"
	"kraken-autotrade/internal/exchange"
	"kraken-autotrade/internal/indicators"
	"kraken-autotrade/internal/logging"
	"kraken-autotrade/internal/notify"
	"kraken-autotrade/internal/risk"
	"kraken-autotrade/internal/strategy"
)

// stubExchange is a network-free exchange.Exchange, grounded on the same
// fake used by internal/exchange's own tests.
type stubExchange struct {
	name   string
	ticker float64
}

func (s stubExchange) Name() string         { return s.name }
func (s stubExchange) TakerFeePct() float64 { return 0.001 }
func (s stubExchange) MakerFeePct() float64 { return 0.0005 }
func (s stubExchange) GetTicker(context.Context, string) (float64, error) { return s.ticker, nil }
func (s stubExchange) GetOHLC(context.Context, string, indicators.Interval, int) ([]indicators.Candle, error) {
	return nil, nil
}
func (s stubExchange) GetBalance(context.Context) ([]exchange.Balance, error) { return nil, nil }
func (s stubExchange) PairInfo(context.Context, string) (exchange.PairInfo, error) {
	return exchange.PairInfo{}, nil
}
func (s stubExchange) SubmitOrder(context.Context, exchange.SubmitOrderParams) (exchange.OrderResult, error) {
	return exchange.OrderResult{}, nil
}
func (s stubExchange) GetOrderStatus(context.Context, string) (exchange.OrderState, error) {
	return exchange.OrderState{}, nil
}
func (s stubExchange) CancelOrder(context.Context, string) error                { return nil }
func (s stubExchange) ListFills(context.Context, time.Time) ([]exchange.Fill, error) { return nil, nil }

func testEngine(t *testing.T, pairs []string) *Engine {
	t.Helper()

	factory := exchange.NewFactory("kraken")
	factory.Register(stubExchange{name: "kraken", ticker: 100})
	factory.Register(stubExchange{name: "revolutx", ticker: 100})
	require.NoError(t, factory.SetTradingExchange("kraken"))

	router := strategy.NewRouter(strategy.Momentum{}, strategy.MeanReversion{}, strategy.NewScalping(), strategy.DefaultRegimeThresholds())

	log := logging.New(&logging.Config{Level: "ERROR", Output: "stdout", Component: "engine-test"})

	return New(Deps{
		Config:      config.TradingConfig{Pairs: pairs, BasePositionSizeQuote: 100},
		RiskConfig:  config.RiskConfig{},
		Factory:     factory,
		Router:      router,
		StrategyCfg: strategy.DefaultConfig(),
		Admission:   risk.NewAdmission(risk.AdmissionConfig{MaxPairExposurePct: 10, MaxTotalExposurePct: 50, DailyLossLimitPct: 5, CooldownSec: 60}),
		Positions:   risk.NewManager(risk.Config{StopLossPct: 3, TakeProfitPct: 10}),
		Accountant:  accounting.NewAccountant(),
		OrderGen:    nil,
		Markup:      exchange.NewMarkupTracker(),
		Repo:        nil,
		Bus:         events.NewBusWithBuffer(16),
		Redis:       nil,
		Log:         log,
		Publish:     func(context.Context, notify.Context) {},
	})
}

func TestPauseResumeTogglesPaused(t *testing.T) {
	e := testEngine(t, []string{"BTC/USD"})
	assert.False(t, e.Paused())
	e.Pause()
	assert.True(t, e.Paused())
	e.Resume()
	assert.False(t, e.Paused())
}

func TestQuantityTrackingRoundTrips(t *testing.T) {
	e := testEngine(t, []string{"BTC/USD"})
	assert.Equal(t, 0.0, e.qtyFor("BTC/USD", "kraken"))

	e.setQty("BTC/USD", "kraken", 1.5)
	assert.Equal(t, 1.5, e.qtyFor("BTC/USD", "kraken"))

	e.clearQty("BTC/USD", "kraken")
	assert.Equal(t, 0.0, e.qtyFor("BTC/USD", "kraken"))
}

func TestDiagnosticsReportsConfiguredPairsAndExchanges(t *testing.T) {
	e := testEngine(t, []string{"BTC/USD", "ETH/USD"})
	diag := e.Diagnostics(context.Background())

	assert.Equal(t, []string{"BTC/USD", "ETH/USD"}, diag["pairs"])
	assert.Equal(t, 0, diag["open_positions"])
	assert.ElementsMatch(t, []string{"kraken", "revolutx"}, diag["exchanges_enabled"])
}

func TestStatusReflectsOpenPositionExposure(t *testing.T) {
	e := testEngine(t, []string{"BTC/USD"})
	e.positions.Open("lot-1", "BTC/USD", "kraken", 100)
	e.setQty("BTC/USD", "kraken", 1)

	snapshot := e.Status(context.Background())
	require.Len(t, snapshot.OpenLots, 1)
	assert.Equal(t, "BTC/USD", snapshot.OpenLots[0].Pair)
	assert.Equal(t, 100.0, snapshot.ExposurePct) // 100 quote exposure / 100 base equity
}

func TestDailyReportDataCountsOpenLots(t *testing.T) {
	e := testEngine(t, []string{"BTC/USD"})
	e.positions.Open("lot-1", "BTC/USD", "kraken", 100)

	report, err := e.DailyReportData(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, report.OpenLots)
}

func TestOpenPositionSnapshotsMapsRiskPositionsToSnapshotRows(t *testing.T) {
	e := testEngine(t, []string{"BTC/USD"})
	e.positions.Open("lot-1", "BTC/USD", "kraken", 100)
	e.setQty("BTC/USD", "kraken", 2)

	snapshots := e.OpenPositionSnapshots(context.Background(), time.Now())
	require.Len(t, snapshots, 1)
	assert.Equal(t, "BTC/USD", snapshots[0].Pair)
	assert.Equal(t, 2.0, snapshots[0].Quantity)
	assert.Equal(t, 100.0, snapshots[0].MarkPrice) // stub ticker always returns 100
}

func TestBaseAssetSplitsOnSlash(t *testing.T) {
	assert.Equal(t, "BTC", baseAsset("BTC/USD"))
	assert.Equal(t, "XBT", baseAsset("XBT"))
}
