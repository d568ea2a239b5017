package accounting

import "time"

// IncomeEvent is a non-trade inflow (staking reward, lending interest, or a
// conversion between assets) normalized to a synthetic BUY lot at the
// event's EUR value. Per spec.md §9 the original valuation rules for these
// events are not fully specified; ingestion stays open but valuation is
// gated behind config (SPEC_FULL.md §11, decision 3).
type IncomeEvent struct {
	Asset      string
	Quantity   float64
	ValueEur   float64
	OccurredAt time.Time
	Source     string // "staking", "lending", "conversion"
}

// RecordIncomeEvent creates a synthetic BUY lot for an income event when
// valuation is enabled; the caller gates this on
// config.AccountingConfig.ValuationOfIncomeEvents.
func (a *Accountant) RecordIncomeEvent(ev IncomeEvent) *Lot {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ev.Quantity <= 0 {
		return nil
	}
	a.nextSeq++
	unitCost := 0.0
	if ev.Quantity != 0 {
		unitCost = ev.ValueEur / ev.Quantity
	}
	lot := &Lot{
		LotID:        a.idGen(),
		Asset:        ev.Asset,
		Exchange:     ev.Source,
		AcquiredAt:   ev.OccurredAt,
		Quantity:     ev.Quantity,
		RemainingQty: ev.Quantity,
		UnitCostEur:  unitCost,
		CostEur:      ev.ValueEur,
		insertionSeq: a.nextSeq,
	}
	a.openLots[ev.Asset] = append(a.openLots[ev.Asset], lot)
	a.sortLots(ev.Asset)
	return lot
}
