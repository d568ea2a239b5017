package database

import (
	"time"
)

// TradeFill is a confirmed exchange execution, persisted as the durable
// source feeding the FIFO accountant (spec.md §3 TradeFill).
type TradeFill struct {
	ID             int64     `json:"id"`
	FillID         string    `json:"fill_id"` // exchange-assigned execution id
	Exchange       string    `json:"exchange"`
	Pair           string    `json:"pair"`
	Asset          string    `json:"asset"`
	Side           string    `json:"side"` // BUY or SELL
	PriceEur       float64   `json:"price_eur"`
	Quantity       float64   `json:"quantity"`
	FeeEur         float64   `json:"fee_eur"`
	ClientOrderID  string    `json:"client_order_id"`
	ExecutedAt     time.Time `json:"executed_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// Lot is an open or partially-open buy-side inventory unit (spec.md §3 Lot),
// mirrored from internal/accounting.Lot for durable storage.
type Lot struct {
	ID           int64     `json:"id"`
	LotID        string    `json:"lot_id"`
	Asset        string    `json:"asset"`
	Exchange     string    `json:"exchange"`
	Source       string    `json:"source"` // "fill", "staking", "conversion"
	AcquiredAt   time.Time `json:"acquired_at"`
	Quantity     float64   `json:"quantity"`
	RemainingQty float64   `json:"remaining_qty"`
	UnitCostEur  float64   `json:"unit_cost_eur"`
	CostEur      float64   `json:"cost_eur"`
	FeeEur       float64   `json:"fee_eur"`
	IsClosed     bool      `json:"is_closed"`
	CreatedAt    time.Time `json:"created_at"`
}

// Disposal is a SELL-side match against one lot (spec.md §3 Disposal).
// LotID is empty for a short disposal (no historical buy) per SPEC_FULL.md
// §11 Open Question 2.
type Disposal struct {
	ID           int64     `json:"id"`
	DisposalID   string    `json:"disposal_id"`
	SellFillID   string    `json:"sell_fill_id"`
	LotID        *string   `json:"lot_id,omitempty"`
	Asset        string    `json:"asset"`
	Quantity     float64   `json:"quantity"`
	ProceedsEur  float64   `json:"proceeds_eur"`
	CostBasisEur float64   `json:"cost_basis_eur"`
	GainLossEur  float64   `json:"gain_loss_eur"`
	IsWarning    bool      `json:"is_warning"` // true for short disposals
	DisposedAt   time.Time `json:"disposed_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// BotEvent is the durable record behind the BotEvent WebSocket stream
// (spec.md §6): level/type/message/meta, emitted one-way from the engine.
type BotEvent struct {
	ID        int64                  `json:"id"`
	EventID   string                 `json:"event_id"`
	Level     string                 `json:"level"` // info, warn, error
	Type      string                 `json:"type"`  // e.g. "trade_buy", "trade_sell", "exit_state_change"
	Pair      string                 `json:"pair,omitempty"`
	Message   string                 `json:"message"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	CreatedAt time.Time              `json:"created_at"`
}

// BotConfig is a single persisted key/value runtime override (e.g. paused
// state, per-pair risk overrides) read at startup and mutated via Telegram
// commands (/pausar, /reanudar, /config).
type BotConfig struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TelegramChat is a registered notification channel. The notifier fans DailyReport
// and alert messages out to every enabled chat.
type TelegramChat struct {
	ChatID    int64     `json:"chat_id"`
	Label     string    `json:"label"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// FiscoAlertConfig holds the operator-configured thresholds for fiscal
// (tax-reporting) alerting — e.g. notify when accumulated realized gains
// cross a reporting threshold for the current tax year.
type FiscoAlertConfig struct {
	ID                 int64     `json:"id"`
	TaxYear             int      `json:"tax_year"`
	GainThresholdEur    float64  `json:"gain_threshold_eur"`
	NotifyOnThreshold   bool     `json:"notify_on_threshold"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// FiscoSyncHistory records a single daily FIFO sync run (spec.md §4.11,
// SyncRun in §3): fills fetched per exchange since lastSyncAt, and the
// resulting lot/disposal counts.
type FiscoSyncHistory struct {
	ID              int64     `json:"id"`
	SyncRunID       string    `json:"sync_run_id"`
	Exchange        string    `json:"exchange"`
	SyncedFrom      time.Time `json:"synced_from"`
	SyncedTo        time.Time `json:"synced_to"`
	FillsFetched    int       `json:"fills_fetched"`
	LotsCreated     int       `json:"lots_created"`
	DisposalsCreated int      `json:"disposals_created"`
	Warnings        int       `json:"warnings"`
	Err             string    `json:"error,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}

// EquitySnapshot is a point-in-time record of total exposure and equity,
// used for the daily report and the /exposicion Telegram command.
type EquitySnapshot struct {
	ID              int64     `json:"id"`
	TotalEquityEur  float64   `json:"total_equity_eur"`
	TotalExposureEur float64  `json:"total_exposure_eur"`
	OpenPositions   int       `json:"open_positions"`
	RealizedPnLEur  float64   `json:"realized_pnl_eur"`
	Timestamp       time.Time `json:"timestamp"`
	CreatedAt       time.Time `json:"created_at"`
}
