// Package accounting implements FIFO cost-basis matching for realized P&L,
// reported in EUR regardless of the fill's native quote currency.
package accounting

import "time"

// Lot is an open or partially-open buy-side inventory unit, per spec.md §3.
type Lot struct {
	LotID        string
	Asset        string
	Exchange     string
	AcquiredAt   time.Time
	Quantity     float64
	RemainingQty float64
	UnitCostEur  float64
	CostEur      float64
	FeeEur       float64
	IsClosed     bool
	insertionSeq uint64 // breaks FIFO ties when AcquiredAt is identical
}

// Disposal is a SELL-side match against one lot, per spec.md §3.
type Disposal struct {
	DisposalID   string
	SellFillID   string
	LotID        string // empty for a short disposal (no historical buy)
	Asset        string
	Quantity     float64
	ProceedsEur  float64
	CostBasisEur float64
	GainLossEur  float64
	DisposedAt   time.Time
}

// Fill is the accountant's view of a confirmed exchange execution.
type Fill struct {
	FillID      string
	Exchange    string
	Asset       string // base asset, e.g. "BTC"
	Side        string // "BUY" or "SELL"
	PriceEur    float64
	Quantity    float64
	FeeEur      float64
	ExecutedAt  time.Time
}

const epsilon = 1e-8
