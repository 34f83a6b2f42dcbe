package jobs

import (
	"sync"
	"time"
)

const subscriberBuffer = 256

// EventBus stores recent events, provides incremental reads and fans events
// out to live subscribers in publish order.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
	subs      map[*subscriber]struct{}

	// publishMu serializes deliveries so every subscriber sees seq order.
	publishMu sync.Mutex
}

type subscriber struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
		subs:      make(map[*subscriber]struct{}),
	}
}

// Publish appends one event, assigns sequence and timestamp, and delivers it
// to every subscriber. Delivery blocks while a subscriber's buffer is full.
func (b *EventBus) Publish(event Event) Event {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.Lock()
	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	subs := make([]*subscriber, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- event:
		case <-sub.done:
		}
	}
	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Subscribe registers a receiver for events published from now on. The
// returned func unsubscribes and closes the channel; it is safe to call more
// than once.
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	sub := &subscriber{
		ch:   make(chan Event, subscriberBuffer),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub.ch, func() { b.unsubscribe(sub) }
}

// Close unsubscribes every receiver.
func (b *EventBus) Close() {
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		b.unsubscribe(sub)
	}
}

func (b *EventBus) unsubscribe(sub *subscriber) {
	sub.once.Do(func() {
		close(sub.done)

		b.publishMu.Lock()
		defer b.publishMu.Unlock()

		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		close(sub.ch)
	})
}
