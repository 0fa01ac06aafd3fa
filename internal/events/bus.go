// Package events provides a small synchronous pub/sub bus carrying
// pipeline outputs to the API layer. State and risk events are published
// once a tick's state is composed, so handlers never observe a half-built
// state; fill events are published as each fill is applied to the portfolio.
package events

import (
	"sync"

	"go.uber.org/zap"
)

// Topic identifies an event stream.
type Topic string

const (
	TopicState Topic = "state"
	TopicRisk  Topic = "risk"
	TopicFill  Topic = "fill"
)

// Handler consumes a published payload.
type Handler func(payload any)

// Bus is a synchronous publish/subscribe fan-out.
type Bus struct {
	logger *zap.Logger
	mu     sync.RWMutex
	subs   map[Topic][]Handler
}

// NewBus creates an event bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger: logger.Named("events"),
		subs:   make(map[Topic][]Handler),
	}
}

// Subscribe registers a handler for a topic.
func (b *Bus) Subscribe(topic Topic, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], h)
}

// Publish delivers the payload to every subscriber, in subscription order.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.RLock()
	handlers := b.subs[topic]
	b.mu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
}
