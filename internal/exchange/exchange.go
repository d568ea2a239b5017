// Package exchange provides a uniform capability set over the trading
// venues (Kraken, RevolutX), decoupling the engine from venue-specific
// wire formats.
package exchange

import (
	"context"
	"time"

	"kraken-autotrade/internal/indicators"
)

// OrderType is the kind of order submitted.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderSide is BUY or SELL.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderStatus is the lifecycle state of a submitted order.
type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"
	StatusFilled          OrderStatus = "filled"
	StatusPartiallyFilled OrderStatus = "partiallyFilled"
	StatusCanceled        OrderStatus = "canceled"
	StatusRejected        OrderStatus = "rejected"
)

// SubmitOrderParams carries a new order request. ClientOrderID is mandatory
// and must be unique per spec.md §4.6 — duplicate submissions with the same
// ClientOrderID must be rejected by the exchange implementation (or, for
// venues without native idempotency, held by a local idempotency cache; see
// internal/orders).
type SubmitOrderParams struct {
	Pair          string
	Side          OrderSide
	Type          OrderType
	Amount        float64
	Price         float64 // required for limit orders
	ClientOrderID string
}

// OrderResult is the immediate acknowledgement of a submission.
type OrderResult struct {
	OrderID       string
	ClientOrderID string
	Status        OrderStatus
	SubmittedAt   time.Time
}

// OrderState is a point-in-time read of an order's status.
type OrderState struct {
	OrderID       string
	ClientOrderID string
	Status        OrderStatus
	FilledPrice   float64
	FilledAmount  float64
	FeeQuote      float64
	UpdatedAt     time.Time
}

// Fill is a confirmed (possibly partial) execution.
type Fill struct {
	FillID        string
	OrderID       string
	ClientOrderID string
	Pair          string
	Side          OrderSide
	Price         float64
	Amount        float64
	Cost          float64
	Fee           float64
	ExecutedAt    time.Time
}

// PairInfo carries the precision/minimum-size metadata the engine needs to
// size and round orders correctly.
type PairInfo struct {
	Pair         string
	BaseAsset    string
	QuoteAsset   string
	MinOrderSize float64
	PriceStep    float64
	QtyStep      float64
}

// Balance is a single asset's free/locked split.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

// Exchange is the uniform capability set every venue implementation
// exposes, per spec.md §4.1.
type Exchange interface {
	Name() string
	TakerFeePct() float64
	MakerFeePct() float64

	GetTicker(ctx context.Context, pair string) (float64, error)
	GetOHLC(ctx context.Context, pair string, interval indicators.Interval, limit int) ([]indicators.Candle, error)
	GetBalance(ctx context.Context) ([]Balance, error)
	PairInfo(ctx context.Context, pair string) (PairInfo, error)

	SubmitOrder(ctx context.Context, params SubmitOrderParams) (OrderResult, error)
	GetOrderStatus(ctx context.Context, orderID string) (OrderState, error)
	CancelOrder(ctx context.Context, orderID string) error
	ListFills(ctx context.Context, since time.Time) ([]Fill, error)
}
