package scheduling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"kraken-autotrade/internal/accounting"
	"kraken-autotrade/internal/database"
	"kraken-autotrade/internal/exchange"
	"kraken-autotrade/internal/notify"
)

// HeartbeatSource supplies the liveness fields for the periodic heartbeat
// notification. The engine implements this.
type HeartbeatSource interface {
	Uptime() time.Duration
	OpenLotCount() int
	Paused() bool
	RedisHealthy() bool
}

// NewHeartbeatJob publishes a notify.Heartbeat on every tick.
func NewHeartbeatJob(src HeartbeatSource, orch *Publisher) Job {
	return func(ctx context.Context) error {
		orch.Publish(ctx, notify.Heartbeat{
			Uptime:   src.Uptime(),
			OpenLots: src.OpenLotCount(),
			Paused:   src.Paused(),
			RedisOK:  src.RedisHealthy(),
			At:       time.Now(),
		})
		return nil
	}
}

// DailyReportSource supplies the fields for the end-of-day digest. The
// engine implements this from its risk.Admission/risk.Manager/accounting
// state.
type DailyReportSource interface {
	DailyReportData(ctx context.Context, date time.Time) (notify.DailyReport, error)
}

// NewDailyReportJob publishes a notify.DailyReport for "today" in the
// configured operator timezone.
func NewDailyReportJob(src DailyReportSource, orch *Publisher, loc *time.Location) Job {
	return func(ctx context.Context) error {
		today := time.Now().In(loc)
		report, err := src.DailyReportData(ctx, today)
		if err != nil {
			return fmt.Errorf("daily report: %w", err)
		}
		orch.Publish(ctx, report)
		return nil
	}
}

// Publisher is the minimal surface of notify.Orchestrator a scheduled job
// needs to deliver a message.
type Publisher struct {
	publish func(ctx context.Context, msg notify.Context)
}

// NewPublisher adapts a notify.Orchestrator (or any compatible publisher,
// e.g. a test double) for use by scheduled jobs.
func NewPublisher(publish func(ctx context.Context, msg notify.Context)) *Publisher {
	return &Publisher{publish: publish}
}

// Publish delivers msg through the wrapped orchestrator.
func (p *Publisher) Publish(ctx context.Context, msg notify.Context) {
	p.publish(ctx, msg)
}

// PositionSnapshotSource supplies the open-position view for the daily
// snapshot job. The engine implements this from its risk.Manager state.
type PositionSnapshotSource interface {
	OpenPositionSnapshots(ctx context.Context, date time.Time) []database.PositionSnapshot
}

// NewPositionSnapshotJob persists a point-in-time record of every open
// position for "today" in the configured operator timezone, per spec.md §3's
// OpenPosition reporting needs. A re-run on the same day upserts in place
// (see database.Repository.SavePositionSnapshots).
func NewPositionSnapshotJob(src PositionSnapshotSource, repo *database.Repository, loc *time.Location) Job {
	return func(ctx context.Context) error {
		today := time.Now().In(loc)
		snapshots := src.OpenPositionSnapshots(ctx, today)
		if len(snapshots) == 0 {
			return nil
		}
		if err := repo.SavePositionSnapshots(ctx, snapshots); err != nil {
			return fmt.Errorf("position snapshot: %w", err)
		}
		return nil
	}
}

// SyncSource is the exchange fills feed and the accountant the daily FIFO
// sync job replays confirmed fills into.
type SyncSource struct {
	Exchange   exchange.Exchange
	Accountant *accounting.Accountant
	Repo       *database.Repository
}

// NewDailySyncJob pulls every fill since the exchange's last recorded sync
// cursor, replays it through the accountant in executedAt order (per
// spec.md §5), and persists the resulting sync-run summary and any new
// fills/disposals.
func NewDailySyncJob(src SyncSource, orch *Publisher) Job {
	return func(ctx context.Context) error {
		venue := src.Exchange.Name()
		since := time.Now().Add(-48 * time.Hour)
		if last, err := src.Repo.LastSyncRun(ctx, venue); err == nil && last != nil {
			since = last.SyncedTo
		}

		fetchedAt := time.Now()
		fills, err := src.Exchange.ListFills(ctx, since)
		if err != nil {
			orch.Publish(ctx, notify.FiscoSyncSummary{Exchange: venue, Err: err.Error(), At: fetchedAt})
			return fmt.Errorf("daily sync: list fills for %s: %w", venue, err)
		}

		sort.SliceStable(fills, func(i, j int) bool { return fills[i].ExecutedAt.Before(fills[j].ExecutedAt) })

		var lotsCreated, disposalsCreated int
		for _, f := range fills {
			disposals, err := src.Accountant.ApplyFill(accounting.Fill{
				FillID:     f.FillID,
				Exchange:   venue,
				Asset:      f.Pair,
				Side:       string(f.Side),
				PriceEur:   f.Price,
				Quantity:   f.Amount,
				FeeEur:     f.Fee,
				ExecutedAt: f.ExecutedAt,
			})
			if err != nil {
				return fmt.Errorf("daily sync: apply fill %s: %w", f.FillID, err)
			}
			disposalsCreated += len(disposals)
			if f.Side == exchange.SideBuy {
				lotsCreated++
			}
		}

		warnings := src.Accountant.Warnings()

		run := &database.FiscoSyncHistory{
			SyncRunID:        uuid.NewString(),
			Exchange:         venue,
			SyncedFrom:       since,
			SyncedTo:         fetchedAt,
			FillsFetched:     len(fills),
			LotsCreated:      lotsCreated,
			DisposalsCreated: disposalsCreated,
			Warnings:         len(warnings),
		}
		if err := src.Repo.CreateSyncRun(ctx, run); err != nil {
			return fmt.Errorf("daily sync: persist sync run: %w", err)
		}

		orch.Publish(ctx, notify.FiscoSyncSummary{
			Exchange:         venue,
			FillsFetched:     len(fills),
			LotsCreated:      lotsCreated,
			DisposalsCreated: disposalsCreated,
			Warnings:         len(warnings),
			At:               fetchedAt,
		})
		return nil
	}
}
