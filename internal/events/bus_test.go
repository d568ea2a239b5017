package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishAssignsTimestampAndEventID(t *testing.T) {
	b := NewBusWithBuffer(4)
	b.Info(TypeHeartbeat, "BTC/USD", "ok", nil)

	evt := <-b.Events()
	assert.Equal(t, LevelInfo, evt.Level)
	assert.Equal(t, TypeHeartbeat, evt.Type)
	assert.Equal(t, "BTC/USD", evt.Pair)
	assert.NotEmpty(t, evt.EventID)
	assert.False(t, evt.Timestamp.IsZero())
}

func TestWarnAndErrorLevels(t *testing.T) {
	b := NewBusWithBuffer(4)
	b.Warn(TypeAdmissionRejected, "ETH/USD", "cooldown active", nil)
	b.Error(TypeError, "", "exchange unreachable", map[string]interface{}{"code": 500})

	warn := <-b.Events()
	assert.Equal(t, LevelWarn, warn.Level)
	assert.Equal(t, TypeAdmissionRejected, warn.Type)

	errEvt := <-b.Events()
	assert.Equal(t, LevelError, errEvt.Level)
	assert.Equal(t, 500, errEvt.Meta["code"])
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	b := NewBusWithBuffer(1)
	b.Info(TypeHeartbeat, "", "first", nil)
	b.Info(TypeHeartbeat, "", "second, should be dropped", nil) // non-blocking: full channel drops (and logs)

	evt := <-b.Events()
	assert.Equal(t, "first", evt.Message)

	select {
	case <-b.Events():
		t.Fatal("expected no second event, the bus should have dropped it")
	default:
	}
}

func TestNewBusWithBufferFallsBackToDefaultOnInvalidSize(t *testing.T) {
	b := NewBusWithBuffer(0)
	assert.Equal(t, defaultBufferSize, cap(b.events))
}
