// Package database provides repository methods for daily open-position
// snapshots: a point-in-time record of every position still open at the
// time the daily position-snapshot job runs (spec.md §3 OpenPosition).
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// PositionSnapshot is a daily point-in-time record of one open position,
// mirroring the engine's in-memory OpenPosition view (spec.md §3) for
// historical reporting and the daily Telegram report.
type PositionSnapshot struct {
	ID            int64     `json:"id"`
	SnapshotDate  time.Time `json:"snapshot_date"`
	Pair          string    `json:"pair"`
	Exchange      string    `json:"exchange"`
	LotID         string    `json:"lot_id"`
	Quantity      float64   `json:"quantity"`
	EntryPrice    float64   `json:"entry_price"`
	MarkPrice     float64   `json:"mark_price"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	ExitState     string    `json:"exit_state"`
	StopPrice     float64   `json:"stop_price"`
	CreatedAt     time.Time `json:"created_at"`
}

// SavePositionSnapshot saves a single open-position snapshot. Uses
// ON CONFLICT to upsert if a snapshot for the same date/pair/exchange/lot
// already exists (e.g. a re-run of the position-snapshot job).
func (r *Repository) SavePositionSnapshot(ctx context.Context, snapshot *PositionSnapshot) error {
	query := `
		INSERT INTO position_snapshots (
			snapshot_date, pair, exchange, lot_id, quantity,
			entry_price, mark_price, unrealized_pnl, exit_state, stop_price
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (snapshot_date, pair, exchange, lot_id)
		DO UPDATE SET
			quantity = EXCLUDED.quantity,
			entry_price = EXCLUDED.entry_price,
			mark_price = EXCLUDED.mark_price,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			exit_state = EXCLUDED.exit_state,
			stop_price = EXCLUDED.stop_price
		RETURNING id, created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		snapshot.SnapshotDate,
		snapshot.Pair,
		snapshot.Exchange,
		snapshot.LotID,
		snapshot.Quantity,
		snapshot.EntryPrice,
		snapshot.MarkPrice,
		snapshot.UnrealizedPnL,
		snapshot.ExitState,
		snapshot.StopPrice,
	).Scan(&snapshot.ID, &snapshot.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save position snapshot: %w", err)
	}

	return nil
}

// SavePositionSnapshots saves multiple open-position snapshots atomically.
// Called once per position-snapshot job tick with every position open at that moment.
func (r *Repository) SavePositionSnapshots(ctx context.Context, snapshots []PositionSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO position_snapshots (
			snapshot_date, pair, exchange, lot_id, quantity,
			entry_price, mark_price, unrealized_pnl, exit_state, stop_price
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (snapshot_date, pair, exchange, lot_id)
		DO UPDATE SET
			quantity = EXCLUDED.quantity,
			entry_price = EXCLUDED.entry_price,
			mark_price = EXCLUDED.mark_price,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			exit_state = EXCLUDED.exit_state,
			stop_price = EXCLUDED.stop_price
	`

	for _, snapshot := range snapshots {
		_, err := tx.Exec(ctx, query,
			snapshot.SnapshotDate,
			snapshot.Pair,
			snapshot.Exchange,
			snapshot.LotID,
			snapshot.Quantity,
			snapshot.EntryPrice,
			snapshot.MarkPrice,
			snapshot.UnrealizedPnL,
			snapshot.ExitState,
			snapshot.StopPrice,
		)
		if err != nil {
			return fmt.Errorf("failed to save position snapshot for %s: %w", snapshot.Pair, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// PositionSnapshotsForDate retrieves every open-position snapshot for a
// given date, ordered by pair.
func (r *Repository) PositionSnapshotsForDate(ctx context.Context, snapshotDate time.Time) ([]PositionSnapshot, error) {
	query := `
		SELECT id, snapshot_date, pair, exchange, lot_id, quantity,
			entry_price, mark_price, unrealized_pnl, exit_state, stop_price, created_at
		FROM position_snapshots
		WHERE snapshot_date = $1
		ORDER BY pair, exchange
	`

	rows, err := r.db.Pool.Query(ctx, query, snapshotDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query position snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []PositionSnapshot
	for rows.Next() {
		var s PositionSnapshot
		err := rows.Scan(
			&s.ID, &s.SnapshotDate, &s.Pair, &s.Exchange, &s.LotID,
			&s.Quantity, &s.EntryPrice, &s.MarkPrice, &s.UnrealizedPnL,
			&s.ExitState, &s.StopPrice, &s.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position snapshots: %w", err)
	}

	return snapshots, nil
}

// PositionSnapshotsDateRange retrieves open-position snapshots across a
// date range, used to chart position history for a pair over time.
func (r *Repository) PositionSnapshotsDateRange(ctx context.Context, pair string, startDate, endDate time.Time) ([]PositionSnapshot, error) {
	query := `
		SELECT id, snapshot_date, pair, exchange, lot_id, quantity,
			entry_price, mark_price, unrealized_pnl, exit_state, stop_price, created_at
		FROM position_snapshots
		WHERE pair = $1 AND snapshot_date >= $2 AND snapshot_date <= $3
		ORDER BY snapshot_date
	`

	rows, err := r.db.Pool.Query(ctx, query, pair, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query position snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []PositionSnapshot
	for rows.Next() {
		var s PositionSnapshot
		err := rows.Scan(
			&s.ID, &s.SnapshotDate, &s.Pair, &s.Exchange, &s.LotID,
			&s.Quantity, &s.EntryPrice, &s.MarkPrice, &s.UnrealizedPnL,
			&s.ExitState, &s.StopPrice, &s.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position snapshots: %w", err)
	}

	return snapshots, nil
}

// HasPositionSnapshotForDate checks whether the position-snapshot job already
// ran (and persisted snapshots) for a given date.
func (r *Repository) HasPositionSnapshotForDate(ctx context.Context, snapshotDate time.Time) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM position_snapshots WHERE snapshot_date = $1)`
	var exists bool
	err := r.db.Pool.QueryRow(ctx, query, snapshotDate).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check snapshot existence: %w", err)
	}
	return exists, nil
}

// DeletePositionSnapshotsForDate deletes all snapshots for a specific date.
// Used when re-running the position-snapshot job.
func (r *Repository) DeletePositionSnapshotsForDate(ctx context.Context, snapshotDate time.Time) error {
	query := `DELETE FROM position_snapshots WHERE snapshot_date = $1`
	_, err := r.db.Pool.Exec(ctx, query, snapshotDate)
	if err != nil {
		return fmt.Errorf("failed to delete snapshots: %w", err)
	}
	return nil
}

// LatestPositionSnapshotDate returns the most recent snapshot date on file.
func (r *Repository) LatestPositionSnapshotDate(ctx context.Context) (*time.Time, error) {
	query := `SELECT MAX(snapshot_date) FROM position_snapshots`
	var latestDate *time.Time
	err := r.db.Pool.QueryRow(ctx, query).Scan(&latestDate)
	if err != nil && err != pgx.ErrNoRows {
		return nil, fmt.Errorf("failed to get latest snapshot date: %w", err)
	}
	return latestDate, nil
}
