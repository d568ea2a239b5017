package accounting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarioBFIFOAcrossTwoBuysAndOneLargerSell(t *testing.T) {
	a := NewAccountant()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := a.ApplyFill(Fill{FillID: "buy1", Asset: "BTC", Side: "BUY", PriceEur: 20000, Quantity: 1, FeeEur: 1, ExecutedAt: t0})
	require.NoError(t, err)
	_, err = a.ApplyFill(Fill{FillID: "buy2", Asset: "BTC", Side: "BUY", PriceEur: 30000, Quantity: 1, FeeEur: 1, ExecutedAt: t0.Add(time.Hour)})
	require.NoError(t, err)

	disposals, err := a.ApplyFill(Fill{FillID: "sell1", Asset: "BTC", Side: "SELL", PriceEur: 40000, Quantity: 1.5, FeeEur: 2, ExecutedAt: t0.Add(2 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, disposals, 2)

	assert.InDelta(t, 1.0, disposals[0].Quantity, 1e-9)
	assert.InDelta(t, 20001, disposals[0].CostBasisEur, 1e-6)
	assert.InDelta(t, 0.5, disposals[1].Quantity, 1e-9)

	lots := a.OpenLots("BTC")
	require.Len(t, lots, 1)
	assert.InDelta(t, 0.5, lots[0].RemainingQty, 1e-9)
	assert.False(t, lots[0].IsClosed)
}

func TestSellQuantityInvariant(t *testing.T) {
	a := NewAccountant()
	t0 := time.Now()
	a.ApplyFill(Fill{FillID: "b1", Asset: "ETH", Side: "BUY", PriceEur: 1000, Quantity: 2, FeeEur: 0.5, ExecutedAt: t0})
	disposals, err := a.ApplyFill(Fill{FillID: "s1", Asset: "ETH", Side: "SELL", PriceEur: 1200, Quantity: 2, FeeEur: 0.5, ExecutedAt: t0.Add(time.Minute)})
	require.NoError(t, err)
	var sum float64
	for _, d := range disposals {
		sum += d.Quantity
	}
	assert.InDelta(t, 2.0, sum, 1e-8)
}

func TestShortDisposalProducesWarningNotError(t *testing.T) {
	a := NewAccountant()
	disposals, err := a.ApplyFill(Fill{FillID: "s1", Asset: "SOL", Side: "SELL", PriceEur: 100, Quantity: 1, FeeEur: 0, ExecutedAt: time.Now()})
	require.NoError(t, err)
	require.Len(t, disposals, 1)
	assert.Empty(t, disposals[0].LotID)
	assert.Len(t, a.Warnings(), 1)

	summary := a.Summarize()
	assert.Equal(t, summary.RealizedPnLTotal, disposals[0].GainLossEur)
	assert.Equal(t, 0.0, summary.RealizedPnLExcludingWarnings)
}

func TestClosedLotInvariant(t *testing.T) {
	a := NewAccountant()
	t0 := time.Now()
	a.ApplyFill(Fill{FillID: "b1", Asset: "BTC", Side: "BUY", PriceEur: 100, Quantity: 1, ExecutedAt: t0})
	a.ApplyFill(Fill{FillID: "s1", Asset: "BTC", Side: "SELL", PriceEur: 110, Quantity: 1, ExecutedAt: t0.Add(time.Minute)})
	assert.Empty(t, a.OpenLots("BTC"), "fully consumed lot is compacted out of the open set")
}
