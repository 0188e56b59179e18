// Package events provides in-process pub/sub for booking lifecycle events.
package events

import (
	"sync"
	"time"
)

// Event types published by the booking engine.
const (
	TypeBookingCommitted = "booking.committed"
	TypeBookingCancelled = "booking.cancelled"
	TypeBookingConflict  = "booking.conflict"
	TypeBookingFailed    = "booking.failed"
	TypeCancelFailed     = "cancel.failed"
)

// Event describes one booking lifecycle occurrence.
type Event struct {
	Type       string
	BookingID  string
	LeadID     string
	ResourceID string
	Date       string
	StartTime  string
	EndTime    string
	Actor      string
	Message    string
	At         time.Time
}

// Handler reacts to an event.
type Handler func(event Event)

// Bus provides in-process pub/sub for events.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for every event type the engine publishes.
func (b *Bus) SubscribeAll(handler Handler) {
	for _, t := range []string{TypeBookingCommitted, TypeBookingCancelled, TypeBookingConflict, TypeBookingFailed, TypeCancelFailed} {
		b.Subscribe(t, handler)
	}
}

// Publish notifies subscribers of the event type. Handlers run synchronously;
// the caller decides the concurrency model.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.At.IsZero() {
		event.At = time.Now()
	}
	for _, handler := range handlers {
		handler(event)
	}
}
