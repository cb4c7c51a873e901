// Package events implements the bounded event broadcast described by
// SubscribeEvents (spec §4.6, §6 "Event stream payload"): an ordered
// sequence of {session_id, node_id, kind, timestamp, payload} delivered to
// every subscriber, dropping for subscribers that fall behind rather than
// blocking the node whose state transition or stats delta triggered the
// event (spec §3 TelemetryEvent: "broadcast through bounded subscriber
// channels; dropped for slow subscribers").
package events

import (
	"sync"
	"time"
)

// Kind discriminates an Event's payload shape.
type Kind string

const (
	KindState     Kind = "state"
	KindStats     Kind = "stats"
	KindTelemetry Kind = "telemetry"
)

// Event is one entry of a SubscribeEvents stream.
type Event struct {
	SessionID string
	NodeID    string
	Kind      Kind
	Timestamp time.Time
	Payload   any
}

// Broadcaster fans Events out to any number of bounded subscriber channels.
// Unlike the fabric.Distributor used on the data plane, a full subscriber
// channel causes that subscriber's oldest queued event to be dropped rather
// than suspending the publisher: telemetry must never apply backpressure to the
// data plane (spec §4.3 "telemetry/event channels drop-oldest instead").
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBroadcaster constructs an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber with the given channel capacity and
// returns the channel plus an unsubscribe function.
func (b *Broadcaster) Subscribe(capacity int) (<-chan Event, func()) {
	if capacity <= 0 {
		capacity = 64
	}
	ch := make(chan Event, capacity)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}
}

// Publish delivers ev to every current subscriber. For a subscriber whose
// channel is full, the oldest queued event is discarded to make room for ev.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// slow subscriber; drop its oldest event rather than block the
			// publisher, then try once more.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// Close closes every subscriber channel, used when a session is destroyed.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
