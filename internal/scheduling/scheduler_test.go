package scheduling

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"kraken-autotrade/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "ERROR", Output: "stdout", Component: "test", JSONFormat: true})
}

func TestAddJobRejectsInvalidCronExpression(t *testing.T) {
	s := New(testLogger())
	err := s.AddJob("bad", "not a cron expr !!", func(ctx context.Context) error { return nil })
	assert.Error(t, err)
}

func TestAddJobRejectsAfterStart(t *testing.T) {
	s := New(testLogger())
	s.Start()
	defer s.Stop(context.Background())

	err := s.AddJob("late", "* * * * *", func(ctx context.Context) error { return nil })
	assert.Error(t, err)
}

func TestRunOnceRecordsSuccessAndFailure(t *testing.T) {
	s := New(testLogger())

	var calls int32
	s.runOnce("ok", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	s.runOnce("bad", func(ctx context.Context) error {
		return errors.New("boom")
	})

	status := s.Status()
	require.Contains(t, status, "ok")
	require.Contains(t, status, "bad")
	assert.Equal(t, 1, status["ok"].SuccessRuns)
	assert.Equal(t, "", status["ok"].LastErr)
	assert.Equal(t, 1, status["bad"].FailedRuns)
	assert.Equal(t, "boom", status["bad"].LastErr)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestStopIsIdempotentWhenNeverStarted(t *testing.T) {
	s := New(testLogger())
	assert.NoError(t, s.Stop(context.Background()))
}

func TestStartThenStopDrainsCleanly(t *testing.T) {
	s := New(testLogger())
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
