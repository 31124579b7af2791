// Package events defines the domain events emitted after an operation commits and the sinks
// that deliver them.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names an event.
type Type string

const (
	TypeProtocolInitialized     Type = "protocol_initialized"
	TypePoolRegistered          Type = "pool_registered"
	TypePoolUpdated             Type = "pool_updated"
	TypeFeesUpdated             Type = "fees_updated"
	TypeProtocolPaused          Type = "protocol_paused"
	TypeProtocolResumed         Type = "protocol_resumed"
	TypeDepositInitiated        Type = "deposit_initiated"
	TypeStableDeposited         Type = "stable_deposited"
	TypeConversionExecuted      Type = "conversion_executed"
	TypeConversionRecordCreated Type = "conversion_record_created"
	TypeConversionCancelled     Type = "conversion_cancelled"
	TypeConversionExpired       Type = "conversion_expired"
	TypeNavUpdated              Type = "nav_updated"
	TypeWithdrawalExecuted      Type = "withdrawal_executed"
	TypeYieldClaimed            Type = "yield_claimed"
)

// Event is one committed state change.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// New creates an event with a fresh ID.
func New(t Type, now time.Time, data any) Event {
	return Event{ID: uuid.New().String(), Type: t, Timestamp: now, Data: data}
}

// Sink receives committed events. Publish must not block the caller for long.
type Sink interface {
	Publish(ctx context.Context, events ...Event)
}

// LogSink writes each event as one structured log line.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, events ...Event) {
	for _, e := range events {
		s.logger.InfoContext(ctx, "event", "type", e.Type, "id", e.ID, "data", e.Data)
	}
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, events ...Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the types of everything published so far, in order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]Type, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}

// Fanout publishes to every sink in order.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, events ...Event) {
	for _, s := range f {
		s.Publish(ctx, events...)
	}
}
