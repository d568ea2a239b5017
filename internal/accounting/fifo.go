package accounting

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FeeAttributionPct is the fraction of a sell's proceeds attributed to fees
// when computing a disposal's proceedsEur, per spec.md §4.9.
const FeeAttributionPct = 0.0 // fee already deducted into FeeEur on the fill; kept as a hook for venues that net it differently

// Warning records a non-fatal accounting anomaly, per spec.md §4.9 and the
// InvariantViolation error kind of §7: recorded, never crashes the pipeline.
type Warning struct {
	FillID  string
	Message string
}

// Summary reports aggregate realized P&L both including and excluding
// warning-flagged (short) disposals, per the Open Question in spec.md §9.
type Summary struct {
	RealizedPnLTotal             float64
	RealizedPnLExcludingWarnings float64
}

// Accountant owns the open-lot inventory and produces disposals as sells are
// matched against it in strict FIFO order. Per spec.md §5 all mutations are
// serialized through a single worker; Accountant itself is safe for
// single-goroutine use and additionally guards its state with a mutex so
// tests and the sync-run replay path can call it directly.
type Accountant struct {
	mu          sync.Mutex
	openLots    map[string][]*Lot // keyed by asset, ordered oldest-first
	disposals   []Disposal
	warnings    []Warning
	nextSeq     uint64
	idGen       func() string
}

// NewAccountant constructs an empty Accountant.
func NewAccountant() *Accountant {
	return &Accountant{
		openLots: make(map[string][]*Lot),
		idGen:    func() string { return uuid.NewString() },
	}
}

// ApplyFill ingests one confirmed fill, in executedAt order, per spec.md §5
// ("fills are applied to the accountant in executedAt order"). The caller is
// responsible for buffering out-of-order arrivals before calling ApplyFill.
func (a *Accountant) ApplyFill(f Fill) ([]Disposal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch f.Side {
	case "BUY":
		a.createLot(f)
		return nil, nil
	case "SELL":
		return a.matchSell(f), nil
	default:
		return nil, fmt.Errorf("accounting: unknown fill side %q", f.Side)
	}
}

func (a *Accountant) createLot(f Fill) *Lot {
	qty := decimal.NewFromFloat(f.Quantity)
	cost := decimal.NewFromFloat(f.PriceEur).Mul(qty).Add(decimal.NewFromFloat(f.FeeEur))
	unitCost := decimal.Zero
	if !qty.IsZero() {
		unitCost = cost.Div(qty)
	}

	a.nextSeq++
	lot := &Lot{
		LotID:        a.idGen(),
		Asset:        f.Asset,
		Exchange:     f.Exchange,
		AcquiredAt:   f.ExecutedAt,
		Quantity:     f.Quantity,
		RemainingQty: f.Quantity,
		UnitCostEur:  roundFloat(unitCost),
		CostEur:      roundFloat(cost),
		FeeEur:       f.FeeEur,
		insertionSeq: a.nextSeq,
	}
	a.openLots[f.Asset] = append(a.openLots[f.Asset], lot)
	a.sortLots(f.Asset)
	return lot
}

// sortLots enforces strict FIFO order: earliest AcquiredAt first, ties
// broken by insertion order, per spec.md §4.9.
func (a *Accountant) sortLots(asset string) {
	lots := a.openLots[asset]
	sort.SliceStable(lots, func(i, j int) bool {
		if !lots[i].AcquiredAt.Equal(lots[j].AcquiredAt) {
			return lots[i].AcquiredAt.Before(lots[j].AcquiredAt)
		}
		return lots[i].insertionSeq < lots[j].insertionSeq
	})
}

func (a *Accountant) matchSell(f Fill) []Disposal {
	remaining := decimal.NewFromFloat(f.Quantity)
	sellPrice := decimal.NewFromFloat(f.PriceEur)
	feeFactor := decimal.NewFromFloat(1 - FeeAttributionPct)

	var produced []Disposal
	lots := a.openLots[f.Asset]
	i := 0
	for i < len(lots) && remaining.GreaterThan(decimal.NewFromFloat(epsilon)) {
		lot := lots[i]
		if lot.IsClosed || lot.RemainingQty <= epsilon {
			i++
			continue
		}
		lotRemaining := decimal.NewFromFloat(lot.RemainingQty)
		consumed := decimal.Min(lotRemaining, remaining)

		costBasis := consumed.Mul(decimal.NewFromFloat(lot.UnitCostEur))
		proceeds := consumed.Mul(sellPrice).Mul(feeFactor)
		gainLoss := proceeds.Sub(costBasis)

		disp := Disposal{
			DisposalID:   a.idGen(),
			SellFillID:   f.FillID,
			LotID:        lot.LotID,
			Asset:        f.Asset,
			Quantity:     roundFloat(consumed),
			ProceedsEur:  roundFloat(proceeds),
			CostBasisEur: roundFloat(costBasis),
			GainLossEur:  roundFloat(gainLoss),
			DisposedAt:   f.ExecutedAt,
		}
		produced = append(produced, disp)
		a.disposals = append(a.disposals, disp)

		lot.RemainingQty = roundFloat(lotRemaining.Sub(consumed))
		if lot.RemainingQty <= epsilon {
			lot.IsClosed = true
			lot.RemainingQty = 0
		}

		remaining = remaining.Sub(consumed)
		i++
	}

	// purge fully-closed lots from the front to keep the working set small
	a.compactClosed(f.Asset)

	if remaining.GreaterThan(decimal.NewFromFloat(epsilon)) {
		// short disposal: sold more than historical buys cover
		shortQty := roundFloat(remaining)
		disp := Disposal{
			DisposalID:  a.idGen(),
			SellFillID:  f.FillID,
			LotID:       "",
			Asset:       f.Asset,
			Quantity:    shortQty,
			ProceedsEur: roundFloat(remaining.Mul(sellPrice).Mul(feeFactor)),
			DisposedAt:  f.ExecutedAt,
		}
		disp.GainLossEur = disp.ProceedsEur // zero cost basis
		produced = append(produced, disp)
		a.disposals = append(a.disposals, disp)
		a.warnings = append(a.warnings, Warning{
			FillID:  f.FillID,
			Message: fmt.Sprintf("short disposal: sold %.8f %s with no matching historical buy", shortQty, f.Asset),
		})
	}

	return produced
}

func (a *Accountant) compactClosed(asset string) {
	lots := a.openLots[asset]
	kept := lots[:0]
	for _, l := range lots {
		if !l.IsClosed {
			kept = append(kept, l)
		}
	}
	a.openLots[asset] = kept
}

// OpenLots returns a snapshot of the currently open (or partially-open) lots
// for an asset, oldest first.
func (a *Accountant) OpenLots(asset string) []Lot {
	a.mu.Lock()
	defer a.mu.Unlock()
	lots := a.openLots[asset]
	out := make([]Lot, len(lots))
	for i, l := range lots {
		out[i] = *l
	}
	return out
}

// Disposals returns every disposal produced so far, in production order.
func (a *Accountant) Disposals() []Disposal {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Disposal, len(a.disposals))
	copy(out, a.disposals)
	return out
}

// Warnings returns every InvariantViolation-class warning recorded so far.
func (a *Accountant) Warnings() []Warning {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Warning, len(a.warnings))
	copy(out, a.warnings)
	return out
}

// Summarize computes realized P&L both including and excluding
// warning-flagged short disposals.
func (a *Accountant) Summarize() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	var total, excl float64
	for _, d := range a.disposals {
		total += d.GainLossEur
		if d.LotID != "" {
			excl += d.GainLossEur
		}
	}
	return Summary{RealizedPnLTotal: total, RealizedPnLExcludingWarnings: excl}
}

func roundFloat(d decimal.Decimal) float64 {
	f, _ := d.Round(8).Float64()
	return f
}
