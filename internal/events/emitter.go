// Package events decouples editor and services from whatever surface
// consumes their notifications.
package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter
// ─────────────────────────────────────────────────────────────

// EventEmitter delivers named events to the embedding surface. Components
// take this interface so they can be tested with a MockEmitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(context.Context, string, any) {}

// OrNop returns e, or Nop when e is nil.
func OrNop(e EventEmitter) EventEmitter {
	if e == nil {
		return Nop{}
	}
	return e
}

// LogEmitter writes events to a zap logger at debug level. Used when there
// is no interactive surface, e.g. the MCP server and the CLI.
type LogEmitter struct {
	Logger *zap.Logger
}

func (l LogEmitter) Emit(_ context.Context, event string, data any) {
	if l.Logger == nil {
		return
	}
	l.Logger.Debug("event", zap.String("event", event), zap.Any("data", data))
}

// Multi fans an event out to several emitters in order.
type Multi []EventEmitter

func (m Multi) Emit(ctx context.Context, event string, data any) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, event, data)
		}
	}
}

// ─────────────────────────────────────────────────────────────
// MockEmitter
// ─────────────────────────────────────────────────────────────

// MockEmitter is a test-friendly EventEmitter that records all calls. It is
// safe for use from upload goroutines.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Snapshot returns a copy of the recorded events.
func (m *MockEmitter) Snapshot() []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmittedEvent(nil), m.Events...)
}

// Named returns the recorded events with the given name, in order.
func (m *MockEmitter) Named(event string) []EmittedEvent {
	var out []EmittedEvent
	for _, e := range m.Snapshot() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// Last returns the most recent event, if any.
func (m *MockEmitter) Last() (EmittedEvent, bool) {
	evs := m.Snapshot()
	if len(evs) == 0 {
		return EmittedEvent{}, false
	}
	return evs[len(evs)-1], true
}

// Reset drops all recorded events.
func (m *MockEmitter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = nil
}
