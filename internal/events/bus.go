// Package events provides the one-way BotEvent stream from the engine and
// the circuit breaker to the WebSocket API, per
// spec.md §9's Design Note on avoiding cyclic broadcast references: no
// global singleton, no subscriber callback registry — a single bounded
// channel fed by its publishers and drained by whoever was constructed with it.
package events

import (
	"log"
	"time"

	"github.com/google/uuid"
)

// Level is the severity of a BotEvent.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Type names the kind of event, matching internal/database.BotEvent.Type.
type Type string

const (
	TypeTradeBuy          Type = "trade_buy"
	TypeTradeSell         Type = "trade_sell"
	TypeEntryIntent       Type = "entry_intent"
	TypeExitStateChange   Type = "exit_state_change"
	TypeAdmissionRejected Type = "admission_rejected"
	TypeKillSwitch        Type = "kill_switch"
	TypeCircuitBreaker    Type = "circuit_breaker"
	TypeSyncCompleted     Type = "sync_completed"
	TypeSyncFailed        Type = "sync_failed"
	TypeBotStarted        Type = "bot_started"
	TypeBotStopped        Type = "bot_stopped"
	TypeHeartbeat         Type = "heartbeat"
	TypeError             Type = "error"
	TypeGridLevels        Type = "grid_levels"
)

// BotEvent is the single event shape emitted by the engine (spec.md §3):
// level, type, message, and an open meta bag for type-specific fields.
type BotEvent struct {
	EventID   string                 `json:"event_id"`
	Level     Level                  `json:"level"`
	Type      Type                   `json:"type"`
	Pair      string                 `json:"pair,omitempty"`
	Message   string                 `json:"message"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// defaultBufferSize bounds the channel so a stalled consumer cannot block
// the engine tick loop indefinitely; events are dropped (and logged) past
// this depth rather than backing up into the trading hot path.
const defaultBufferSize = 256

// Bus is a single bounded channel of BotEvent, constructed once in main.go
// and passed by reference to the engine and the circuit breaker (publishers)
// and to the WS server (consumer).
type Bus struct {
	events chan BotEvent
}

// NewBus creates a Bus with the default buffer size.
func NewBus() *Bus {
	return NewBusWithBuffer(defaultBufferSize)
}

// NewBusWithBuffer creates a Bus with a custom buffer size, mainly for tests.
func NewBusWithBuffer(size int) *Bus {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Bus{events: make(chan BotEvent, size)}
}

// Publish emits an event. Non-blocking: if the channel is full the event is
// dropped and logged rather than stalling the caller (the engine tick
// loop). Timestamp and EventID are assigned here if unset.
func (b *Bus) Publish(evt BotEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}

	select {
	case b.events <- evt:
	default:
		log.Printf("[EVENTS] bus full (%d), dropping event type=%s pair=%s", cap(b.events), evt.Type, evt.Pair)
	}
}

// Info publishes an info-level event.
func (b *Bus) Info(typ Type, pair, message string, meta map[string]interface{}) {
	b.Publish(BotEvent{Level: LevelInfo, Type: typ, Pair: pair, Message: message, Meta: meta})
}

// Warn publishes a warn-level event.
func (b *Bus) Warn(typ Type, pair, message string, meta map[string]interface{}) {
	b.Publish(BotEvent{Level: LevelWarn, Type: typ, Pair: pair, Message: message, Meta: meta})
}

// Error publishes an error-level event.
func (b *Bus) Error(typ Type, pair, message string, meta map[string]interface{}) {
	b.Publish(BotEvent{Level: LevelError, Type: typ, Pair: pair, Message: message, Meta: meta})
}

// Events returns the receive-only channel for consumers to range over.
func (b *Bus) Events() <-chan BotEvent {
	return b.events
}
