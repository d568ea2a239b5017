// Package notify renders and delivers BotEvent-derived notifications to the
// operator's Telegram channels, and exposes the bot's slash-command surface
// (spec.md §6). Message kinds are a tagged union behind the Context
// interface (one struct per kind, per the design note in SPEC_FULL.md §10)
// rather than a single catch-all Notification struct with optional fields.
package notify

import (
	"fmt"
	"strings"
	"time"
)

// Context is one renderable notification. Each concrete type is one message
// kind; Render produces the HTML-formatted Telegram message body.
type Context interface {
	Kind() string
	// DedupeKey, when non-empty, scopes deduplication/throttling for this
	// send: two contexts with the same Kind and DedupeKey within the
	// kind's throttle window collapse to one delivery.
	DedupeKey() string
	Render() string
}

// placeholder values original upstream rows sometimes carry for unset
// numeric/string fields; Render must never let these leak into a message.
func isPlaceholder(s string) bool {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "", "-", "null", "undefined", "nan", "n/a":
		return true
	default:
		return false
	}
}

func orDash(s string) string {
	if isPlaceholder(s) {
		return "—"
	}
	return s
}

func fmtPct(v float64) string  { return fmt.Sprintf("%.2f%%", v) }
func fmtEur(v float64) string  { return fmt.Sprintf("%.2f€", v) }
func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	return t.Format("2006-01-02 15:04:05")
}

// BotStarted announces a successful boot.
type BotStarted struct {
	Version     string
	Exchanges   []string
	Pairs       []string
	DryRun      bool
	StartedAt   time.Time
}

func (BotStarted) Kind() string        { return "bot_started" }
func (BotStarted) DedupeKey() string   { return "" }
func (c BotStarted) Render() string {
	mode := "live"
	if c.DryRun {
		mode = "dry-run"
	}
	return fmt.Sprintf(
		"🟢 <b>Bot started</b>\nVersion: %s\nMode: %s\nExchanges: %s\nPairs: %s\nAt: %s",
		orDash(c.Version), mode, strings.Join(c.Exchanges, ", "), strings.Join(c.Pairs, ", "), fmtTime(c.StartedAt),
	)
}

// Heartbeat is the periodic liveness ping (internal/scheduling).
type Heartbeat struct {
	Uptime      time.Duration
	OpenLots    int
	Paused      bool
	RedisOK     bool
	At          time.Time
}

func (Heartbeat) Kind() string      { return "heartbeat" }
func (Heartbeat) DedupeKey() string { return "" }
func (c Heartbeat) Render() string {
	status := "running"
	if c.Paused {
		status = "paused"
	}
	redis := "ok"
	if !c.RedisOK {
		redis = "degraded"
	}
	return fmt.Sprintf(
		"💓 <b>Heartbeat</b>\nStatus: %s\nUptime: %s\nOpen lots: %d\nRedis: %s\nAt: %s",
		status, c.Uptime.Round(time.Second), c.OpenLots, redis, fmtTime(c.At),
	)
}

// TradeBuy announces a filled entry.
type TradeBuy struct {
	Pair          string
	Exchange      string
	LotID         string
	Quantity      float64
	Price         float64
	ClientOrderID string
	Strategy      string
	At            time.Time
}

func (TradeBuy) Kind() string        { return "trade_buy" }
func (c TradeBuy) DedupeKey() string { return c.ClientOrderID }
func (c TradeBuy) Render() string {
	return fmt.Sprintf(
		"🟩 <b>Buy filled</b> — %s (%s)\nQty: %.8f @ %s\nStrategy: %s\nLot: %s\nAt: %s",
		orDash(c.Pair), orDash(c.Exchange), c.Quantity, fmtEur(c.Price), orDash(c.Strategy), orDash(c.LotID), fmtTime(c.At),
	)
}

// TradeSell announces a filled exit, with the realized result.
type TradeSell struct {
	Pair          string
	Exchange      string
	LotID         string
	Quantity      float64
	Price         float64
	ClientOrderID string
	ExitType      string
	GainLossEur   float64
	GainLossPct   float64
	At            time.Time
}

func (TradeSell) Kind() string        { return "trade_sell" }
func (c TradeSell) DedupeKey() string { return c.ClientOrderID }
func (c TradeSell) Render() string {
	emoji := "🟥"
	if c.GainLossEur >= 0 {
		emoji = "🟩"
	}
	return fmt.Sprintf(
		"%s <b>Sell filled</b> — %s (%s)\nQty: %.8f @ %s\nExit: %s\nP&amp;L: %s (%s)\nLot: %s\nAt: %s",
		emoji, orDash(c.Pair), orDash(c.Exchange), c.Quantity, fmtEur(c.Price), orDash(c.ExitType),
		fmtEur(c.GainLossEur), fmtPct(c.GainLossPct), orDash(c.LotID), fmtTime(c.At),
	)
}

// EntryIntent announces a signal the router produced before submission,
// deduplicated per spec.md §4.6-adjacent notification rules on
// {pair, side, 15-minute bucket} so a flapping signal doesn't spam the chat.
type EntryIntent struct {
	Pair       string
	Side       string
	Confidence float64
	Reason     string
	At         time.Time
}

func (EntryIntent) Kind() string { return "entry_intent" }
func (c EntryIntent) DedupeKey() string {
	bucket := c.At.Unix() / int64(15*time.Minute/time.Second)
	return fmt.Sprintf("%s|%s|%d", c.Pair, c.Side, bucket)
}
func (c EntryIntent) Render() string {
	return fmt.Sprintf(
		"🔎 <b>Entry intent</b> — %s %s\nConfidence: %.1f\nReason: %s\nAt: %s",
		orDash(c.Side), orDash(c.Pair), c.Confidence, orDash(c.Reason), fmtTime(c.At),
	)
}

// PositionsUpdate reports an exit-state-machine transition for one lot.
type PositionsUpdate struct {
	Pair       string
	Exchange   string
	LotID      string
	FromState  string
	ToState    string
	StopPrice  float64
	At         time.Time
}

func (PositionsUpdate) Kind() string      { return "positions_update" }
func (c PositionsUpdate) DedupeKey() string {
	return fmt.Sprintf("%s|%s|%s|%s", c.Pair, c.Exchange, c.LotID, c.ToState)
}
func (c PositionsUpdate) Render() string {
	return fmt.Sprintf(
		"🛡 <b>Position update</b> — %s (%s)\n%s → %s\nStop: %s\nLot: %s\nAt: %s",
		orDash(c.Pair), orDash(c.Exchange), orDash(c.FromState), orDash(c.ToState),
		fmtEur(c.StopPrice), orDash(c.LotID), fmtTime(c.At),
	)
}

// ErrorAlert surfaces an operational error worth paging the operator for
// (exchange errors, kill-switch trips, sync failures).
type ErrorAlert struct {
	Source  string
	Message string
	At      time.Time
}

func (ErrorAlert) Kind() string        { return "error_alert" }
func (c ErrorAlert) DedupeKey() string { return c.Source + "|" + c.Message }
func (c ErrorAlert) Render() string {
	return fmt.Sprintf("⚠️ <b>Error</b> — %s\n%s\nAt: %s", orDash(c.Source), orDash(c.Message), fmtTime(c.At))
}

// FiscoSyncSummary reports the outcome of a daily FIFO accounting sync run.
type FiscoSyncSummary struct {
	Exchange         string
	FillsFetched     int
	LotsCreated      int
	DisposalsCreated int
	Warnings         int
	Err              string
	At               time.Time
}

func (FiscoSyncSummary) Kind() string        { return "fisco_sync_summary" }
func (c FiscoSyncSummary) DedupeKey() string { return c.Exchange + "|" + fmtTime(c.At) }
func (c FiscoSyncSummary) Render() string {
	if !isPlaceholder(c.Err) {
		return fmt.Sprintf("🔴 <b>Fiscal sync failed</b> — %s\n%s\nAt: %s", orDash(c.Exchange), c.Err, fmtTime(c.At))
	}
	return fmt.Sprintf(
		"📊 <b>Fiscal sync</b> — %s\nFills: %d · Lots: %d · Disposals: %d · Warnings: %d\nAt: %s",
		orDash(c.Exchange), c.FillsFetched, c.LotsCreated, c.DisposalsCreated, c.Warnings, fmtTime(c.At),
	)
}

// FiscoReportGenerated announces that a tax-year report/threshold alert is
// ready (spec.md §4.9, FiscoAlertConfig).
type FiscoReportGenerated struct {
	TaxYear          int
	RealizedGainEur  float64
	ThresholdEur     float64
	ThresholdCrossed bool
	At               time.Time
}

func (FiscoReportGenerated) Kind() string        { return "fisco_report" }
func (c FiscoReportGenerated) DedupeKey() string { return fmt.Sprintf("%d", c.TaxYear) }
func (c FiscoReportGenerated) Render() string {
	alert := ""
	if c.ThresholdCrossed {
		alert = "\n⚠️ threshold crossed"
	}
	return fmt.Sprintf(
		"🧾 <b>Fiscal report</b> — tax year %d\nRealized gain: %s (threshold %s)%s\nAt: %s",
		c.TaxYear, fmtEur(c.RealizedGainEur), fmtEur(c.ThresholdEur), alert, fmtTime(c.At),
	)
}

// DailyReport is the end-of-day digest (internal/scheduling,
// NotificationConfig.DailyReportHour).
type DailyReport struct {
	Date                time.Time
	RealizedPnLEur      float64
	RealizedPnLExclEur  float64
	TradesOpened        int
	TradesClosed        int
	OpenLots            int
	ExposurePct         float64
	KillSwitchTripped   bool
}

func (DailyReport) Kind() string        { return "daily_report" }
func (c DailyReport) DedupeKey() string { return c.Date.Format("2006-01-02") }
func (c DailyReport) Render() string {
	kill := ""
	if c.KillSwitchTripped {
		kill = "\n🔴 kill switch tripped today"
	}
	return fmt.Sprintf(
		"📅 <b>Daily report</b> — %s\nRealized P&amp;L: %s (%s excl. warnings)\nTrades: %d opened / %d closed\nOpen lots: %d\nExposure: %s%s",
		c.Date.Format("2006-01-02"), fmtEur(c.RealizedPnLEur), fmtEur(c.RealizedPnLExclEur),
		c.TradesOpened, c.TradesClosed, c.OpenLots, fmtPct(c.ExposurePct), kill,
	)
}
