// Package fabric implements the two data-plane primitives of spec §4.3: a
// bounded packet queue (single-producer, single-consumer, cancel-safe FIFO)
// and a per-output-pin distributor that fans a packet out to every
// subscribed input queue, suspending at any subscriber whose queue is full
// so that backpressure propagates upstream with no packet drop.
package fabric

import (
	"context"

	"streamkit.dev/core/internal/packet"
)

// Queue is a bounded, cancel-safe FIFO of packets. Push suspends the caller
// when full; Pop suspends when empty. Both ends observe ctx cancellation.
type Queue struct {
	ch chan packet.Packet
	n  int
}

// NewQueue allocates a queue of the given capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{ch: make(chan packet.Packet, capacity), n: capacity}
}

// Push enqueues p, suspending while the queue is full.
func (q *Queue) Push(ctx context.Context, p packet.Packet) error {
	select {
	case q.ch <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop dequeues the next packet, suspending while the queue is empty.
func (q *Queue) Pop(ctx context.Context) (packet.Packet, error) {
	select {
	case p := <-q.ch:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryPop dequeues without suspending; ok is false if the queue is empty.
func (q *Queue) TryPop() (p packet.Packet, ok bool) {
	select {
	case p = <-q.ch:
		return p, true
	default:
		return nil, false
	}
}

// Len reports the number of packets currently queued.
func (q *Queue) Len() int { return len(q.ch) }

// Cap reports the queue's configured capacity.
func (q *Queue) Cap() int { return q.n }

// Chan exposes the underlying channel for use in select statements that
// need to wait on several queues and a control inbox simultaneously (the
// node runtime's wait_for_any step, spec §4.5).
func (q *Queue) Chan() <-chan packet.Packet { return q.ch }
