// Package events carries run lifecycle notifications from the services to
// subscribers such as the websocket stream.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies an event.
type EventType string

const (
	RunStarted       EventType = "run.started"
	RunCompleted     EventType = "run.completed"
	RunFailed        EventType = "run.failed"
	CandlesRefreshed EventType = "candles.refreshed"
	TokensRefreshed  EventType = "tokens.refreshed"
	JobStarted       EventType = "job.started"
	JobCompleted     EventType = "job.completed"
	JobFailed        EventType = "job.failed"
	ErrorOccurred    EventType = "error"
)

// AllTypes lists every event type a subscriber can ask for.
var AllTypes = []EventType{
	RunStarted,
	RunCompleted,
	RunFailed,
	CandlesRefreshed,
	TokensRefreshed,
	JobStarted,
	JobCompleted,
	JobFailed,
	ErrorOccurred,
}

// Event is a published event.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// Handler receives events. Handlers run on the emitting goroutine and must not block.
type Handler func(*Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is an in-process publish/subscribe hub.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[EventType][]subscription
	log    zerolog.Logger
}

// NewBus creates an event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[EventType][]subscription),
		log:  log.With().Str("service", "events").Logger(),
	}
}

// Subscribe registers handler for the given types (all types when none are
// given) and returns a function removing the subscription.
func (b *Bus) Subscribe(handler Handler, types ...EventType) func() {
	if len(types) == 0 {
		types = AllTypes
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	for _, t := range types {
		b.subs[t] = append(b.subs[t], subscription{id: id, handler: handler})
	}
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, t := range types {
			subs := b.subs[t]
			kept := subs[:0]
			for _, s := range subs {
				if s.id != id {
					kept = append(kept, s)
				}
			}
			b.subs[t] = kept
		}
	}
}

// Emit publishes data to every subscriber of its type.
func (b *Bus) Emit(module string, data EventData) {
	event := &Event{
		Type:      data.EventType(),
		Timestamp: time.Now(),
		Module:    module,
		Data:      data,
	}

	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[event.Type]...)
	b.mu.RUnlock()

	b.log.Debug().
		Str("event_type", string(event.Type)).
		Str("module", module).
		Int("subscribers", len(subs)).
		Msg("Event emitted")

	for _, s := range subs {
		s.handler(event)
	}
}

// SubscriberCount returns the number of handlers registered for t.
func (b *Bus) SubscriberCount(t EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[t])
}
