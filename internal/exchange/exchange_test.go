package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kraken-autotrade/internal/indicators"
)

type stubExchange struct{ name string }

func (s stubExchange) Name() string         { return s.name }
func (s stubExchange) TakerFeePct() float64 { return 0.001 }
func (s stubExchange) MakerFeePct() float64 { return 0.0005 }
func (s stubExchange) GetTicker(context.Context, string) (float64, error) { return 0, nil }
func (s stubExchange) GetOHLC(context.Context, string, indicators.Interval, int) ([]indicators.Candle, error) {
	return nil, nil
}
func (s stubExchange) GetBalance(context.Context) ([]Balance, error) { return nil, nil }
func (s stubExchange) PairInfo(context.Context, string) (PairInfo, error) { return PairInfo{}, nil }
func (s stubExchange) SubmitOrder(context.Context, SubmitOrderParams) (OrderResult, error) {
	return OrderResult{}, nil
}
func (s stubExchange) GetOrderStatus(context.Context, string) (OrderState, error) {
	return OrderState{}, nil
}
func (s stubExchange) CancelOrder(context.Context, string) error { return nil }
func (s stubExchange) ListFills(context.Context, time.Time) ([]Fill, error) { return nil, nil }

func TestNonceGeneratorStrictlyIncreases(t *testing.T) {
	n := &NonceGenerator{}
	var last int64
	for i := 0; i < 1000; i++ {
		next := n.Next()
		assert.Greater(t, next, last)
		last = next
	}
}

func TestFactoryRejectsDisablingActiveTradingExchange(t *testing.T) {
	f := NewFactory("kraken")
	f.Register(stubExchange{"kraken"})
	f.Register(stubExchange{"revolutx"})
	require.NoError(t, f.SetTradingExchange("kraken"))

	err := f.Disable("kraken")
	assert.Error(t, err)
}

func TestFactoryRejectsDisablingLastExchange(t *testing.T) {
	f := NewFactory("kraken")
	f.Register(stubExchange{"kraken"})
	assert.Error(t, f.Disable("kraken"), "sole venue is also the active trading exchange")
}

func TestMarkupTrackerUsesFallbackUntilMinSamples(t *testing.T) {
	m := NewMarkupTracker()
	assert.Equal(t, 0.15, m.EstimatePct("BTC/USD"))
	m.Observe("BTC/USD", 101, 100)
	m.Observe("BTC/USD", 101, 100)
	assert.Equal(t, 0.15, m.EstimatePct("BTC/USD"), "still below minSamples")
	m.Observe("BTC/USD", 101, 100)
	assert.InDelta(t, 1.0, m.EstimatePct("BTC/USD"), 0.01)
}

func TestMarkupTrackerClampsToCap(t *testing.T) {
	m := NewMarkupTracker()
	for i := 0; i < 10; i++ {
		m.Observe("ETH/USD", 200, 100) // absurd 100% markup
	}
	assert.Equal(t, 5.00, m.EstimatePct("ETH/USD"))
}
