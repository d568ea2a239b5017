package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kraken-autotrade/internal/database"
	"kraken-autotrade/internal/notify"
)

type fakeHeartbeatSource struct {
	uptime   time.Duration
	openLots int
	paused   bool
	redisOK  bool
}

func (f fakeHeartbeatSource) Uptime() time.Duration { return f.uptime }
func (f fakeHeartbeatSource) OpenLotCount() int     { return f.openLots }
func (f fakeHeartbeatSource) Paused() bool          { return f.paused }
func (f fakeHeartbeatSource) RedisHealthy() bool    { return f.redisOK }

type fakeDailyReportSource struct {
	report notify.DailyReport
	err    error
}

func (f fakeDailyReportSource) DailyReportData(ctx context.Context, date time.Time) (notify.DailyReport, error) {
	return f.report, f.err
}

type fakePositionSnapshotSource struct {
	snapshots []database.PositionSnapshot
}

func (f fakePositionSnapshotSource) OpenPositionSnapshots(ctx context.Context, date time.Time) []database.PositionSnapshot {
	return f.snapshots
}

func capturingPublisher() (*Publisher, *[]notify.Context) {
	var got []notify.Context
	return NewPublisher(func(ctx context.Context, msg notify.Context) {
		got = append(got, msg)
	}), &got
}

func TestHeartbeatJobPublishesCurrentLivenessFields(t *testing.T) {
	src := fakeHeartbeatSource{uptime: 5 * time.Minute, openLots: 2, paused: true, redisOK: false}
	pub, got := capturingPublisher()

	job := NewHeartbeatJob(src, pub)
	require.NoError(t, job(context.Background()))

	require.Len(t, *got, 1)
	hb, ok := (*got)[0].(notify.Heartbeat)
	require.True(t, ok)
	assert.Equal(t, 2, hb.OpenLots)
	assert.True(t, hb.Paused)
	assert.False(t, hb.RedisOK)
}

func TestDailyReportJobPropagatesSourceError(t *testing.T) {
	src := fakeDailyReportSource{err: assert.AnError}
	pub, got := capturingPublisher()

	job := NewDailyReportJob(src, pub, time.UTC)
	err := job(context.Background())

	assert.Error(t, err)
	assert.Empty(t, *got)
}

func TestDailyReportJobPublishesReport(t *testing.T) {
	src := fakeDailyReportSource{report: notify.DailyReport{TradesOpened: 3, TradesClosed: 1}}
	pub, got := capturingPublisher()

	job := NewDailyReportJob(src, pub, time.UTC)
	require.NoError(t, job(context.Background()))

	require.Len(t, *got, 1)
	report, ok := (*got)[0].(notify.DailyReport)
	require.True(t, ok)
	assert.Equal(t, 3, report.TradesOpened)
}

func TestPositionSnapshotJobSkipsPersistenceWhenNothingOpen(t *testing.T) {
	src := fakePositionSnapshotSource{snapshots: nil}

	// repo is nil: if the job tried to persist an empty slice it would panic.
	// A clean return here proves the early-exit guard runs first.
	job := NewPositionSnapshotJob(src, nil, time.UTC)
	assert.NoError(t, job(context.Background()))
}
