// Package bus provides an internal event bus for component communication
package bus

import (
	"sync"
	"time"
)

// EventType identifies different event types
type EventType string

// Event types for SignSynth
const (
	// Signing session events
	EventTypeSigningStarted   EventType = "signing.started"
	EventTypeSigningPose      EventType = "signing.pose"
	EventTypeSigningSlide     EventType = "signing.slide"
	EventTypeSigningSkipped   EventType = "signing.skipped"
	EventTypeSigningCompleted EventType = "signing.completed"
	EventTypeSigningStopped   EventType = "signing.stopped"
	EventTypeStatus           EventType = "signing.status"

	// Pose library events
	EventTypeLibraryReloaded EventType = "poses.reloaded"

	// Speech events
	EventTypeTranscript EventType = "speech.transcript"

	// Media events
	EventTypeMediaStateChanged EventType = "media.state_changed"

	// Log events
	EventTypeLog EventType = "log.entry"
)

// AllEventTypes lists every event type, for subscribers that want everything
var AllEventTypes = []EventType{
	EventTypeSigningStarted,
	EventTypeSigningPose,
	EventTypeSigningSlide,
	EventTypeSigningSkipped,
	EventTypeSigningCompleted,
	EventTypeSigningStopped,
	EventTypeStatus,
	EventTypeLibraryReloaded,
	EventTypeTranscript,
	EventTypeMediaStateChanged,
	EventTypeLog,
}

// Event represents a bus event
type Event struct {
	Type EventType      `json:"type"`
	Time time.Time      `json:"time"`
	Data map[string]any `json:"data,omitempty"`
}

// NewEvent stamps an event with the current time
func NewEvent(t EventType, data map[string]any) Event {
	return Event{Type: t, Time: time.Now(), Data: data}
}

// Handler is a function that handles events
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[EventType][]subscription
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]subscription),
	}
}

// Subscribe adds a handler for an event type. The returned function removes it.
func (b *EventBus) Subscribe(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: handler})

	return func() { b.unsubscribe(eventType, id) }
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) func() {
	cancels := make([]func(), 0, len(eventTypes))
	for _, et := range eventTypes {
		cancels = append(cancels, b.Subscribe(et, handler))
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

func (b *EventBus) unsubscribe(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[eventType]
	for i, s := range subs {
		if s.id == id {
			b.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

func (b *EventBus) snapshot(eventType EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := b.handlers[eventType]
	handlers := make([]Handler, len(subs))
	for i, s := range subs {
		handlers[i] = s.handler
	}
	return handlers
}

// Publish sends an event to all subscribed handlers
func (b *EventBus) Publish(event Event) {
	for _, handler := range b.snapshot(event.Type) {
		// Call handlers in goroutines to avoid blocking
		go handler(event)
	}
}

// PublishSync sends an event and waits for all handlers to complete
func (b *EventBus) PublishSync(event Event) {
	handlers := b.snapshot(event.Type)

	var wg sync.WaitGroup
	for _, handler := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(event)
		}(handler)
	}
	wg.Wait()
}
