// Package events carries the engine's notifications to external indexers.
// Delivery is best effort and never affects order state.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Aidin1998/triggerbook/pkg/logger"
)

// Event is the envelope for everything published on the bus
type Event struct {
	ID        uuid.UUID   `json:"id"`
	Topic     string      `json:"topic"`
	Type      string      `json:"type"`
	Pair      string      `json:"pair"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// EventHandler handles an event. It runs on the publisher's goroutine, so it
// should be fast; a panic is recovered and logged.
type EventHandler func(Event)

// Publisher is the sending half of a bus.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// EventBus is the interface for publishing and subscribing to events
type EventBus interface {
	Publisher
	Subscribe(topic string, handler EventHandler)
}

// EventBusMetrics counts bus activity.
type EventBusMetrics struct {
	Published int64
	Delivered int64
	Failed    int64
}

// InMemoryEventBus delivers events synchronously to topic subscribers.
type InMemoryEventBus struct {
	logger    *zap.Logger
	mu        sync.RWMutex
	subs      map[string][]EventHandler
	published atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(log *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		logger: logger.OrNop(log),
		subs:   make(map[string][]EventHandler),
	}
}

// Publish delivers an event to all subscribers of the topic
func (bus *InMemoryEventBus) Publish(_ context.Context, event Event) {
	bus.published.Add(1)
	bus.mu.RLock()
	handlers := append([]EventHandler(nil), bus.subs[event.Topic]...)
	bus.mu.RUnlock()

	for _, h := range handlers {
		bus.deliver(h, event)
	}
}

func (bus *InMemoryEventBus) deliver(h EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			bus.logger.Error("Event handler panic", zap.Any("recover", r), zap.String("topic", event.Topic), zap.String("type", event.Type))
			bus.failed.Add(1)
		}
	}()
	h(event)
	bus.delivered.Add(1)
}

// Subscribe registers a handler for a topic
func (bus *InMemoryEventBus) Subscribe(topic string, handler EventHandler) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.subs[topic] = append(bus.subs[topic], handler)
	bus.logger.Debug("Subscribed handler to topic", zap.String("topic", topic))
}

// Metrics returns current event bus metrics
func (bus *InMemoryEventBus) Metrics() EventBusMetrics {
	return EventBusMetrics{
		Published: bus.published.Load(),
		Delivered: bus.delivered.Load(),
		Failed:    bus.failed.Load(),
	}
}

// MultiPublisher fans an event out to several publishers in order.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, event Event) {
	for _, p := range m {
		p.Publish(ctx, event)
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
