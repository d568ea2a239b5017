package engine

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"kraken-autotrade/internal/accounting"
	"kraken-autotrade/internal/database"
	"kraken-autotrade/internal/events"
	"kraken-autotrade/internal/exchange"
	"kraken-autotrade/internal/indicators"
	"kraken-autotrade/internal/notify"
	"kraken-autotrade/internal/orders"
	"kraken-autotrade/internal/risk"
	"kraken-autotrade/internal/strategy"
)

// orderPollTimeout bounds how long the engine waits for an order to fill
// before cancelling it, per spec.md §4.6.
const orderPollTimeout = 120 * time.Second

// scanPair runs one full evaluation cycle for a single pair: manage an
// existing position's exit state, or evaluate a fresh entry signal if none
// is open.
func (e *Engine) scanPair(ctx context.Context, pair string) {
	tick := atomic.AddInt64(&e.tickSeq, 1)

	tradingEx, err := e.factory.Trading()
	if err != nil {
		e.log.Error("no trading exchange configured", "error", err.Error())
		return
	}
	dataEx, err := e.factory.Data()
	if err != nil {
		e.log.Error("no data exchange configured", "error", err.Error())
		return
	}

	fv, err := featureVectorFor(ctx, dataEx, pair)
	if err != nil {
		e.bus.Warn(events.TypeError, pair, fmt.Sprintf("feature vector fetch failed: %s", err.Error()), nil)
		return
	}
	if !fv.M5.Ready || !fv.H1.Ready || !fv.H4.Ready {
		e.log.Debug("insufficient candle history, skipping tick", "pair", pair)
		return
	}

	snapshot := e.positions.Snapshot(pair, tradingEx.Name())
	if snapshot != nil {
		e.manageExit(ctx, tradingEx, pair, snapshot, fv.Price, tick)
		return
	}

	if e.Paused() {
		return
	}

	e.evaluateEntry(ctx, tradingEx, pair, fv, tick)
}

func (e *Engine) manageExit(ctx context.Context, ex exchange.Exchange, pair string, before *risk.Position, price float64, tick int64) {
	decision := e.positions.Evaluate(pair, ex.Name(), price)

	if !decision.Exit {
		if decision.StopRaised {
			after := e.positions.Snapshot(pair, ex.Name())
			e.bus.Info(events.TypeExitStateChange, pair, "protective stop raised", map[string]interface{}{
				"lot_id": before.LotID, "from_state": string(before.State), "to_state": string(after.State), "stop_price": after.StopPrice,
			})
		}
		return
	}

	e.log.Info("exit triggered", "pair", pair, "lot_id", before.LotID, "exit_type", string(decision.ExitType))

	qty := e.qtyFor(pair, ex.Name())
	clientOrderID := orders.Generate(pair, orders.SideSell, tick)
	result, err := ex.SubmitOrder(ctx, exchange.SubmitOrderParams{
		Pair: pair, Side: exchange.SideSell, Type: exchange.OrderTypeMarket,
		Amount: qty, ClientOrderID: clientOrderID,
	})
	if err != nil {
		e.bus.Error(events.TypeError, pair, fmt.Sprintf("exit order submission failed: %s", err.Error()), nil)
		return
	}

	state, err := e.pollOrderFill(ctx, ex, result.OrderID)
	if err != nil {
		e.bus.Error(events.TypeError, pair, fmt.Sprintf("exit order did not fill: %s", err.Error()), nil)
		return
	}

	e.recordSellFill(ctx, ex, pair, before, decision, state)
}

func (e *Engine) recordSellFill(ctx context.Context, ex exchange.Exchange, pair string, before *risk.Position, decision risk.ExitDecision, state exchange.OrderState) {
	asset := baseAsset(pair)
	now := time.Now()

	disposals, err := e.accountant.ApplyFill(accounting.Fill{
		FillID: state.OrderID, Exchange: ex.Name(), Asset: asset, Side: "SELL",
		PriceEur: state.FilledPrice, Quantity: state.FilledAmount, FeeEur: state.FeeQuote, ExecutedAt: now,
	})
	if err != nil {
		e.log.Error("failed to apply sell fill to accountant", "error", err.Error())
	}

	var gainLossEur, gainLossPct float64
	for _, d := range disposals {
		gainLossEur += d.GainLossEur
	}
	if before.EntryPrice != 0 {
		gainLossPct = (state.FilledPrice - before.EntryPrice) / before.EntryPrice * 100
	}

	if err := e.repo.CreateFill(ctx, &database.TradeFill{
		FillID: state.OrderID, Exchange: ex.Name(), Pair: pair, Asset: asset, Side: "SELL",
		PriceEur: state.FilledPrice, Quantity: state.FilledAmount, FeeEur: state.FeeQuote,
		ClientOrderID: state.ClientOrderID, ExecutedAt: now,
	}); err != nil {
		e.log.Warn("failed to persist sell fill", "error", err.Error())
	}

	e.positions.Close(pair, ex.Name())
	e.clearQty(pair, ex.Name())
	e.admission.Cooldown(pair, now)
	if gainLossPct < 0 {
		e.admission.RecordRealizedLossPct(now, -gainLossPct)
	}
	if e.breaker != nil {
		e.breaker.RecordTrade(gainLossPct)
	}

	e.bus.Info(events.TypeTradeSell, pair, fmt.Sprintf("sold %s at %.8f (%s)", pair, state.FilledPrice, string(decision.ExitType)), map[string]interface{}{
		"lot_id": before.LotID, "exit_type": string(decision.ExitType), "gain_loss_eur": gainLossEur, "gain_loss_pct": gainLossPct,
	})
	e.notify(ctx, notify.TradeSell{
		Pair: pair, Exchange: ex.Name(), LotID: before.LotID, Quantity: state.FilledAmount, Price: state.FilledPrice,
		ClientOrderID: state.ClientOrderID, ExitType: string(decision.ExitType), GainLossEur: gainLossEur, GainLossPct: gainLossPct, At: now,
	})
}

func (e *Engine) evaluateEntry(ctx context.Context, ex exchange.Exchange, pair string, fv indicators.FeatureVector, tick int64) {
	signal, sizeMultiplier := e.router.Route(fv, e.strategyCfg)

	if levels := e.router.GridLevels(fv, e.strategyCfg); len(levels) > 0 {
		e.bus.Info(events.TypeGridLevels, pair, fmt.Sprintf("%d grid levels available in range regime", len(levels)), map[string]interface{}{
			"levels": levels,
		})
	}

	if signal.Side != strategy.SideBuy {
		return
	}

	now := time.Now()
	e.notify(ctx, notify.EntryIntent{
		Pair: pair, Side: string(signal.Side), Confidence: signal.Confidence, Reason: signal.ReasonText, At: now,
	})

	e.mu.Lock()
	pending := e.pendingBuy[pair]
	e.mu.Unlock()
	if pending {
		return
	}

	if e.breaker != nil {
		if tradeable, reason := e.breaker.CanTrade(); !tradeable {
			e.bus.Warn(events.TypeAdmissionRejected, pair, reason, nil)
			return
		}
	}

	currentExposurePct, totalExposurePct := e.exposureSnapshot(ctx, pair)
	admitted, reason := e.admission.Check(now, pair, currentExposurePct, totalExposurePct, pending)
	if !admitted {
		e.bus.Warn(events.TypeAdmissionRejected, pair, reason, nil)
		return
	}

	e.submitBuy(ctx, ex, pair, fv, sizeMultiplier, tick)
}

func (e *Engine) submitBuy(ctx context.Context, ex exchange.Exchange, pair string, fv indicators.FeatureVector, sizeMultiplier float64, tick int64) {
	clientOrderID := orders.Generate(pair, orders.SideBuy, tick)
	if err := e.orderGen.ClaimForSubmission(ctx, clientOrderID); err != nil {
		e.log.Warn("buy submission not claimed, skipping", "pair", pair, "error", err.Error())
		return
	}

	markupPct := e.markup.EstimatePct(pair)
	referencePrice := fv.Price * (1 + markupPct/100)
	quoteAmount := e.cfg.BasePositionSizeQuote * sizeMultiplier
	if quoteAmount <= 0 || referencePrice <= 0 {
		return
	}
	qty := quoteAmount / referencePrice

	e.mu.Lock()
	e.pendingBuy[pair] = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.pendingBuy, pair)
		e.mu.Unlock()
	}()

	result, err := ex.SubmitOrder(ctx, exchange.SubmitOrderParams{
		Pair: pair, Side: exchange.SideBuy, Type: exchange.OrderTypeMarket, Amount: qty, ClientOrderID: clientOrderID,
	})
	if err != nil {
		e.admission.Cooldown(pair, time.Now())
		e.bus.Error(events.TypeError, pair, fmt.Sprintf("buy order submission failed: %s", err.Error()), nil)
		return
	}

	state, err := e.pollOrderFill(ctx, ex, result.OrderID)
	if err != nil {
		_ = ex.CancelOrder(ctx, result.OrderID)
		e.admission.Cooldown(pair, time.Now())
		e.bus.Error(events.TypeError, pair, fmt.Sprintf("buy order did not fill: %s", err.Error()), nil)
		return
	}

	e.recordBuyFill(ctx, ex, pair, fv, state)
}

func (e *Engine) recordBuyFill(ctx context.Context, ex exchange.Exchange, pair string, fv indicators.FeatureVector, state exchange.OrderState) {
	now := time.Now()
	asset := baseAsset(pair)

	e.markup.Observe(pair, state.FilledPrice, fv.Price)

	if _, err := e.accountant.ApplyFill(accounting.Fill{
		FillID: state.OrderID, Exchange: ex.Name(), Asset: asset, Side: "BUY",
		PriceEur: state.FilledPrice, Quantity: state.FilledAmount, FeeEur: state.FeeQuote, ExecutedAt: now,
	}); err != nil {
		e.log.Error("failed to apply buy fill to accountant", "error", err.Error())
	}

	if err := e.repo.CreateFill(ctx, &database.TradeFill{
		FillID: state.OrderID, Exchange: ex.Name(), Pair: pair, Asset: asset, Side: "BUY",
		PriceEur: state.FilledPrice, Quantity: state.FilledAmount, FeeEur: state.FeeQuote,
		ClientOrderID: state.ClientOrderID, ExecutedAt: now,
	}); err != nil {
		e.log.Warn("failed to persist buy fill", "error", err.Error())
	}

	position := e.positions.Open(state.OrderID, pair, ex.Name(), state.FilledPrice)
	e.setQty(pair, ex.Name(), state.FilledAmount)
	e.admission.Cooldown(pair, now)

	e.bus.Info(events.TypeTradeBuy, pair, fmt.Sprintf("bought %s at %.8f", pair, state.FilledPrice), map[string]interface{}{
		"lot_id": position.LotID, "quantity": state.FilledAmount,
	})
	e.notify(ctx, notify.TradeBuy{
		Pair: pair, Exchange: ex.Name(), LotID: position.LotID, Quantity: state.FilledAmount, Price: state.FilledPrice,
		ClientOrderID: state.ClientOrderID, Strategy: "router", At: now,
	})
}

// pollOrderFill polls an order's status with exponential backoff, capped at
// orderPollTimeout, per spec.md §4.6.
func (e *Engine) pollOrderFill(ctx context.Context, ex exchange.Exchange, orderID string) (exchange.OrderState, error) {
	deadline := time.Now().Add(orderPollTimeout)
	backoff := 2 * time.Second
	const maxBackoff = 10 * time.Second

	for {
		state, err := ex.GetOrderStatus(ctx, orderID)
		if err != nil {
			return exchange.OrderState{}, fmt.Errorf("poll order %s: %w", orderID, err)
		}

		switch state.Status {
		case exchange.StatusFilled:
			return state, nil
		case exchange.StatusCanceled, exchange.StatusRejected:
			return exchange.OrderState{}, fmt.Errorf("order %s ended in status %s", orderID, state.Status)
		}

		if time.Now().After(deadline) {
			return exchange.OrderState{}, fmt.Errorf("order %s did not fill within %s", orderID, orderPollTimeout)
		}

		select {
		case <-ctx.Done():
			return exchange.OrderState{}, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// exposureSnapshot computes the candidate pair's current exposure and the
// total exposure across every open position, both as a percentage of the
// configured equity base, per spec.md §4.5.
func (e *Engine) exposureSnapshot(ctx context.Context, pair string) (pairPct, totalPct float64) {
	equity := e.cfg.BasePositionSizeQuote * float64(len(e.cfg.Pairs))
	if equity <= 0 {
		return 0, 0
	}

	var pairQuote, totalQuote float64
	for _, p := range e.positions.All() {
		price, err := e.currentPrice(ctx, p.Pair)
		if err != nil {
			price = p.EntryPrice
		}
		quote := price * e.qtyFor(p.Pair, p.Exchange)
		totalQuote += quote
		if p.Pair == pair {
			pairQuote += quote
		}
	}
	return pairQuote / equity * 100, totalQuote / equity * 100
}

func baseAsset(pair string) string {
	if i := strings.Index(pair, "/"); i >= 0 {
		return pair[:i]
	}
	return pair
}
