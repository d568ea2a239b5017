// Package scheduling drives the bot's four periodic jobs — heartbeat,
// daily report, daily FIFO sync, and daily position snapshot — on github.com/robfig/cron/v3
// expressions read from config.SchedulingConfig. Grounded on the teacher's
// billing.Scheduler shape (explicit Start/Stop, a running flag, status for
// diagnostics) but delegates the actual timing to cron.Cron rather than
// hand-rolled weekday/hour comparisons, since our jobs are simple
// fire-on-schedule work with no settlement-specific day-of-week logic.
package scheduling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kraken-autotrade/internal/logging"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work. Errors are logged, not propagated —
// a failed daily sync or report must not crash the process; it is expected
// to succeed on the next scheduled run.
type Job func(ctx context.Context) error

// Scheduler owns the cron runtime and the bot's periodic jobs. One instance
// is constructed in main.go and injected, per SPEC_FULL.md §10's
// no-package-level-singletons note.
type Scheduler struct {
	cron *cron.Cron
	log  *logging.Logger

	mu      sync.Mutex
	running bool
	status  map[string]JobStatus
}

// JobStatus records the most recent run of a named job, surfaced on
// /diagnostics.
type JobStatus struct {
	LastRunAt   time.Time
	LastErr     string
	SuccessRuns int
	FailedRuns  int
}

// New constructs an empty Scheduler. Jobs are registered with AddJob before
// Start.
func New(log *logging.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		log:    log.WithComponent("scheduling"),
		status: make(map[string]JobStatus),
	}
}

// AddJob registers a named job on a standard 5-field cron expression
// ("minute hour day-of-month month day-of-week"). Must be called before
// Start.
func (s *Scheduler) AddJob(name, cronExpr string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduling: cannot add job %q after Start", name)
	}

	_, err := s.cron.AddFunc(cronExpr, func() {
		s.runOnce(name, job)
	})
	if err != nil {
		return fmt.Errorf("scheduling: invalid cron expression %q for job %q: %w", cronExpr, name, err)
	}
	s.status[name] = JobStatus{}
	return nil
}

func (s *Scheduler) runOnce(name string, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	err := job(ctx)

	s.mu.Lock()
	st := s.status[name]
	st.LastRunAt = time.Now()
	if err != nil {
		st.LastErr = err.Error()
		st.FailedRuns++
	} else {
		st.LastErr = ""
		st.SuccessRuns++
	}
	s.status[name] = st
	s.mu.Unlock()

	if err != nil {
		s.log.Error("scheduled job failed", "job", name, "error", err.Error())
	} else {
		s.log.Info("scheduled job completed", "job", name)
	}
}

// Start begins running registered jobs on their schedules.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
}

// Stop waits for any in-flight job invocation to return, then halts the
// cron runtime.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of every registered job's last-run outcome.
func (s *Scheduler) Status() map[string]JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]JobStatus, len(s.status))
	for k, v := range s.status {
		out[k] = v
	}
	return out
}
