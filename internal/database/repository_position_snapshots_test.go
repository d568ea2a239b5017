// Unit tests for the position-snapshot repository methods that don't need a
// live database. Repository.SavePositionSnapshot(s)/PositionSnapshotsForDate/
// HasPositionSnapshotForDate/DeletePositionSnapshotsForDate/
// LatestPositionSnapshotDate all issue real SQL and need integration
// coverage against a running Postgres instance (none is run here, following
// the same split the teacher repo uses for repository_settlement_test.go).
package database

import (
	"testing"
	"time"
)

func TestPositionSnapshotDateIsTruncatedToCalendarDay(t *testing.T) {
	snapshotDate := time.Date(2026, 7, 30, 23, 55, 0, 0, time.UTC)
	dayOnly := snapshotDate.Truncate(24 * time.Hour)

	if dayOnly.Hour() != 0 || dayOnly.Minute() != 0 {
		t.Errorf("expected snapshot date truncated to midnight, got %v", dayOnly)
	}
	if dayOnly.Year() != 2026 || dayOnly.Month() != time.July || dayOnly.Day() != 30 {
		t.Errorf("truncation changed the calendar day: got %v", dayOnly)
	}
}

func TestPositionSnapshotUnrealizedPnLSign(t *testing.T) {
	s := PositionSnapshot{EntryPrice: 100, MarkPrice: 95, Quantity: 2, UnrealizedPnL: (95 - 100) * 2}
	if s.UnrealizedPnL >= 0 {
		t.Errorf("expected negative unrealized PnL below entry price, got %v", s.UnrealizedPnL)
	}

	s = PositionSnapshot{EntryPrice: 100, MarkPrice: 110, Quantity: 2, UnrealizedPnL: (110 - 100) * 2}
	if s.UnrealizedPnL <= 0 {
		t.Errorf("expected positive unrealized PnL above entry price, got %v", s.UnrealizedPnL)
	}
}
