package risk

import (
	"fmt"
	"sync"
	"time"
)

// AdmissionConfig holds the caps checked before a new BUY is admitted.
type AdmissionConfig struct {
	MaxPairExposurePct  float64
	MaxTotalExposurePct float64
	DailyLossLimitPct   float64
	CooldownSec         int
}

// Admission evaluates entry gating: per-pair cooldowns, exposure caps, and
// the daily realized-loss kill-switch (spec.md §4.5 "Admission control").
type Admission struct {
	mu            sync.Mutex
	cfg           AdmissionConfig
	cooldownUntil map[string]time.Time
	dailyLossPct  float64
	lossDay       time.Time // UTC day the dailyLossPct accrual applies to
	killSwitch    bool
}

func NewAdmission(cfg AdmissionConfig) *Admission {
	return &Admission{
		cfg:           cfg,
		cooldownUntil: make(map[string]time.Time),
		lossDay:       time.Now().UTC().Truncate(24 * time.Hour),
	}
}

// Cooldown starts (or extends) a pair's cooldown window. Called on the later
// of last fill or last rejection, per spec.
func (a *Admission) Cooldown(pair string, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cooldownUntil[pair] = now.Add(time.Duration(a.cfg.CooldownSec) * time.Second)
}

// RecordRealizedLossPct accrues today's realized loss (as a positive
// percentage of equity) and, once it reaches the daily cap, engages the
// kill-switch for the remainder of the UTC day.
func (a *Admission) RecordRealizedLossPct(now time.Time, lossPct float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rolloverLocked(now)
	if lossPct > 0 {
		a.dailyLossPct += lossPct
	}
	if a.dailyLossPct >= a.cfg.DailyLossLimitPct {
		a.killSwitch = true
	}
}

func (a *Admission) rolloverLocked(now time.Time) {
	today := now.UTC().Truncate(24 * time.Hour)
	if today.After(a.lossDay) {
		a.lossDay = today
		a.dailyLossPct = 0
		a.killSwitch = false
	}
}

// Check runs every admission gate for a candidate BUY. currentExposurePct is
// the pair's existing exposure as a percentage of equity; totalExposurePct
// is the sum across all open positions; pendingBuy reports whether a BUY is
// already in flight for this pair/venue.
func (a *Admission) Check(now time.Time, pair string, currentExposurePct, totalExposurePct float64, pendingBuy bool) (bool, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rolloverLocked(now)

	if a.killSwitch {
		return false, "daily loss limit reached; entries suspended until next UTC day"
	}
	if until, ok := a.cooldownUntil[pair]; ok && now.Before(until) {
		return false, fmt.Sprintf("pair in cooldown until %s", until.Format(time.RFC3339))
	}
	if pendingBuy {
		return false, "a BUY is already pending for this pair on this venue"
	}
	if currentExposurePct+1e-9 >= a.cfg.MaxPairExposurePct {
		return false, fmt.Sprintf("maxPairExposurePct exceeded (%.2f%% >= %.2f%%)", currentExposurePct, a.cfg.MaxPairExposurePct)
	}
	if totalExposurePct+1e-9 >= a.cfg.MaxTotalExposurePct {
		return false, fmt.Sprintf("maxTotalExposurePct exceeded (%.2f%% >= %.2f%%)", totalExposurePct, a.cfg.MaxTotalExposurePct)
	}
	return true, ""
}

// KillSwitchActive reports whether the daily-loss kill-switch is currently
// engaged.
func (a *Admission) KillSwitchActive(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rolloverLocked(now)
	return a.killSwitch
}
