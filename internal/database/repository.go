package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
)

// Repository provides data access methods for the trading engine's durable
// state: fills, lots, disposals, bot events, runtime config, notification
// channels, and fiscal sync history.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// GetDB returns the underlying DB instance for direct access.
func (r *Repository) GetDB() *DB {
	return r.db
}

// ============================================================================
// TRADE FILLS
// ============================================================================

// CreateFill inserts a confirmed execution. Idempotent on fill_id: a
// duplicate insert is a no-op (ON CONFLICT DO NOTHING), since the order
// watcher may observe the same fill more than once across reconnects.
func (r *Repository) CreateFill(ctx context.Context, f *TradeFill) error {
	query := `
		INSERT INTO trade_fills (fill_id, exchange, pair, asset, side, price_eur, quantity, fee_eur, client_order_id, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (fill_id) DO NOTHING
		RETURNING id, created_at
	`
	err := r.db.Pool.QueryRow(
		ctx, query,
		f.FillID, f.Exchange, f.Pair, f.Asset, f.Side, f.PriceEur, f.Quantity, f.FeeEur, f.ClientOrderID, f.ExecutedAt,
	).Scan(&f.ID, &f.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil // already recorded
	}
	return err
}

// FillsSince returns fills for an exchange executed at or after `since`,
// ordered oldest-first (FIFO input order), used by the daily sync job.
func (r *Repository) FillsSince(ctx context.Context, exchange string, since time.Time) ([]*TradeFill, error) {
	query := `
		SELECT id, fill_id, exchange, pair, asset, side, price_eur, quantity, fee_eur, client_order_id, executed_at, created_at
		FROM trade_fills
		WHERE exchange = $1 AND executed_at >= $2
		ORDER BY executed_at ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, exchange, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []*TradeFill
	for rows.Next() {
		f := &TradeFill{}
		if err := rows.Scan(&f.ID, &f.FillID, &f.Exchange, &f.Pair, &f.Asset, &f.Side,
			&f.PriceEur, &f.Quantity, &f.FeeEur, &f.ClientOrderID, &f.ExecutedAt, &f.CreatedAt); err != nil {
			return nil, err
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// ============================================================================
// LOTS
// ============================================================================

// UpsertLot persists the current state of an open or closed lot.
func (r *Repository) UpsertLot(ctx context.Context, l *Lot) error {
	query := `
		INSERT INTO lots (lot_id, asset, exchange, source, acquired_at, quantity, remaining_qty, unit_cost_eur, cost_eur, fee_eur, is_closed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (lot_id) DO UPDATE SET
			remaining_qty = EXCLUDED.remaining_qty,
			is_closed = EXCLUDED.is_closed
	`
	_, err := r.db.Pool.Exec(ctx, query,
		l.LotID, l.Asset, l.Exchange, l.Source, l.AcquiredAt, l.Quantity, l.RemainingQty, l.UnitCostEur, l.CostEur, l.FeeEur, l.IsClosed)
	return err
}

// OpenLots returns every non-closed lot for an asset, ordered by acquisition
// time (oldest first) to preserve FIFO ordering on reload.
func (r *Repository) OpenLots(ctx context.Context, asset string) ([]*Lot, error) {
	query := `
		SELECT id, lot_id, asset, exchange, source, acquired_at, quantity, remaining_qty, unit_cost_eur, cost_eur, fee_eur, is_closed, created_at
		FROM lots
		WHERE asset = $1 AND is_closed = FALSE
		ORDER BY acquired_at ASC, id ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, asset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []*Lot
	for rows.Next() {
		l := &Lot{}
		if err := rows.Scan(&l.ID, &l.LotID, &l.Asset, &l.Exchange, &l.Source, &l.AcquiredAt,
			&l.Quantity, &l.RemainingQty, &l.UnitCostEur, &l.CostEur, &l.FeeEur, &l.IsClosed, &l.CreatedAt); err != nil {
			return nil, err
		}
		lots = append(lots, l)
	}
	return lots, rows.Err()
}

// ============================================================================
// DISPOSALS
// ============================================================================

// CreateDisposal persists a SELL-side lot match (or short-disposal warning).
func (r *Repository) CreateDisposal(ctx context.Context, d *Disposal) error {
	query := `
		INSERT INTO disposals (disposal_id, sell_fill_id, lot_id, asset, quantity, proceeds_eur, cost_basis_eur, gain_loss_eur, is_warning, disposed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`
	return r.db.Pool.QueryRow(ctx, query,
		d.DisposalID, d.SellFillID, d.LotID, d.Asset, d.Quantity, d.ProceedsEur, d.CostBasisEur, d.GainLossEur, d.IsWarning, d.DisposedAt,
	).Scan(&d.ID, &d.CreatedAt)
}

// DisposalsInRange returns disposals within [from, to), used for fiscal
// reporting (/informe_fiscal) and the daily report.
func (r *Repository) DisposalsInRange(ctx context.Context, from, to time.Time) ([]*Disposal, error) {
	query := `
		SELECT id, disposal_id, sell_fill_id, lot_id, asset, quantity, proceeds_eur, cost_basis_eur, gain_loss_eur, is_warning, disposed_at, created_at
		FROM disposals
		WHERE disposed_at >= $1 AND disposed_at < $2
		ORDER BY disposed_at ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var disposals []*Disposal
	for rows.Next() {
		d := &Disposal{}
		if err := rows.Scan(&d.ID, &d.DisposalID, &d.SellFillID, &d.LotID, &d.Asset,
			&d.Quantity, &d.ProceedsEur, &d.CostBasisEur, &d.GainLossEur, &d.IsWarning, &d.DisposedAt, &d.CreatedAt); err != nil {
			return nil, err
		}
		disposals = append(disposals, d)
	}
	return disposals, rows.Err()
}

// ============================================================================
// BOT EVENTS
// ============================================================================

// CreateEvent persists a BotEvent for the reverse-chronological snapshot
// served on WebSocket connect (spec.md §6).
func (r *Repository) CreateEvent(ctx context.Context, e *BotEvent) error {
	var metaJSON []byte
	if e.Meta != nil {
		var err error
		metaJSON, err = json.Marshal(e.Meta)
		if err != nil {
			return err
		}
	}
	query := `
		INSERT INTO bot_events (event_id, level, type, pair, message, meta, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	return r.db.Pool.QueryRow(ctx, query,
		e.EventID, e.Level, e.Type, e.Pair, e.Message, metaJSON, e.Timestamp,
	).Scan(&e.ID, &e.CreatedAt)
}

// RecentEvents returns the most recent `limit` events, newest first, for the
// WebSocket connect-time snapshot and the /ultimas command.
func (r *Repository) RecentEvents(ctx context.Context, limit int) ([]*BotEvent, error) {
	query := `
		SELECT id, event_id, level, type, COALESCE(pair, ''), message, meta, timestamp, created_at
		FROM bot_events
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*BotEvent
	for rows.Next() {
		e := &BotEvent{}
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.EventID, &e.Level, &e.Type, &e.Pair, &e.Message, &metaJSON, &e.Timestamp, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &e.Meta); err != nil {
				return nil, err
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ============================================================================
// BOT CONFIG (runtime key/value overrides: pause state, etc.)
// ============================================================================

// SetConfigValue upserts a runtime config key, used by /pausar and /reanudar.
func (r *Repository) SetConfigValue(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO bot_config (key, value, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.db.Pool.Exec(ctx, query, key, value)
	return err
}

// GetConfigValue returns a runtime config value, or ("", false) if unset.
func (r *Repository) GetConfigValue(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.Pool.QueryRow(ctx, `SELECT value FROM bot_config WHERE key = $1`, key).Scan(&value)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// ============================================================================
// TELEGRAM CHATS
// ============================================================================

// RegisterChat enables (or re-enables) a Telegram chat for notifications.
func (r *Repository) RegisterChat(ctx context.Context, chatID int64, label string) error {
	query := `
		INSERT INTO telegram_chats (chat_id, label, enabled)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (chat_id) DO UPDATE SET enabled = TRUE, label = EXCLUDED.label
	`
	_, err := r.db.Pool.Exec(ctx, query, chatID, label)
	return err
}

// DisableChat stops notifications to a chat without deleting its history.
func (r *Repository) DisableChat(ctx context.Context, chatID int64) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE telegram_chats SET enabled = FALSE WHERE chat_id = $1`, chatID)
	return err
}

// EnabledChats returns every chat currently subscribed to notifications.
func (r *Repository) EnabledChats(ctx context.Context) ([]*TelegramChat, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT chat_id, label, enabled, created_at FROM telegram_chats WHERE enabled = TRUE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []*TelegramChat
	for rows.Next() {
		c := &TelegramChat{}
		if err := rows.Scan(&c.ChatID, &c.Label, &c.Enabled, &c.CreatedAt); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// ============================================================================
// FISCO (fiscal reporting)
// ============================================================================

// UpsertFiscoAlertConfig sets the gain-threshold alert config for a tax year.
func (r *Repository) UpsertFiscoAlertConfig(ctx context.Context, c *FiscoAlertConfig) error {
	query := `
		INSERT INTO fisco_alert_config (tax_year, gain_threshold_eur, notify_on_threshold, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (tax_year) DO UPDATE SET
			gain_threshold_eur = EXCLUDED.gain_threshold_eur,
			notify_on_threshold = EXCLUDED.notify_on_threshold,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id, updated_at
	`
	return r.db.Pool.QueryRow(ctx, query, c.TaxYear, c.GainThresholdEur, c.NotifyOnThreshold).Scan(&c.ID, &c.UpdatedAt)
}

// CreateSyncRun records the start of a daily FIFO sync job.
func (r *Repository) CreateSyncRun(ctx context.Context, s *FiscoSyncHistory) error {
	query := `
		INSERT INTO fisco_sync_history (sync_run_id, exchange, synced_from, synced_to, fills_fetched, lots_created, disposals_created, warnings, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	return r.db.Pool.QueryRow(ctx, query,
		s.SyncRunID, s.Exchange, s.SyncedFrom, s.SyncedTo, s.FillsFetched, s.LotsCreated,
		s.DisposalsCreated, s.Warnings, s.Err, s.StartedAt, s.FinishedAt,
	).Scan(&s.ID)
}

// LastSyncRun returns the most recent completed sync for an exchange, used
// to resume the daily FIFO sync from where it left off.
func (r *Repository) LastSyncRun(ctx context.Context, exchange string) (*FiscoSyncHistory, error) {
	query := `
		SELECT id, sync_run_id, exchange, synced_from, synced_to, fills_fetched, lots_created, disposals_created, warnings, COALESCE(error, ''), started_at, finished_at
		FROM fisco_sync_history
		WHERE exchange = $1
		ORDER BY finished_at DESC
		LIMIT 1
	`
	s := &FiscoSyncHistory{}
	err := r.db.Pool.QueryRow(ctx, query, exchange).Scan(
		&s.ID, &s.SyncRunID, &s.Exchange, &s.SyncedFrom, &s.SyncedTo, &s.FillsFetched,
		&s.LotsCreated, &s.DisposalsCreated, &s.Warnings, &s.Err, &s.StartedAt, &s.FinishedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ============================================================================
// EQUITY SNAPSHOTS
// ============================================================================

// CreateEquitySnapshot records the daily equity/exposure point used by the
// daily report and /exposicion.
func (r *Repository) CreateEquitySnapshot(ctx context.Context, s *EquitySnapshot) error {
	query := `
		INSERT INTO equity_snapshots (total_equity_eur, total_exposure_eur, open_positions, realized_pnl_eur, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	return r.db.Pool.QueryRow(ctx, query,
		s.TotalEquityEur, s.TotalExposureEur, s.OpenPositions, s.RealizedPnLEur, s.Timestamp,
	).Scan(&s.ID, &s.CreatedAt)
}

// LatestEquitySnapshot returns the most recent equity snapshot, or nil if none exist.
func (r *Repository) LatestEquitySnapshot(ctx context.Context) (*EquitySnapshot, error) {
	query := `
		SELECT id, total_equity_eur, total_exposure_eur, open_positions, realized_pnl_eur, timestamp, created_at
		FROM equity_snapshots
		ORDER BY timestamp DESC
		LIMIT 1
	`
	s := &EquitySnapshot{}
	err := r.db.Pool.QueryRow(ctx, query).Scan(
		&s.ID, &s.TotalEquityEur, &s.TotalExposureEur, &s.OpenPositions, &s.RealizedPnLEur, &s.Timestamp, &s.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
