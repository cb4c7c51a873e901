package fabric

import (
	"context"
	"sync"

	"streamkit.dev/core/internal/packet"
	"streamkit.dev/core/internal/telemetry"
)

// Subscriber identifies one downstream input queue fed by a Distributor,
// kept for logging/stats attribution.
type Subscriber struct {
	NodeID string
	Pin    string
	Queue  *Queue
}

// Distributor is the per-output-pin fan-out object of spec §4.3. It owns a
// list of downstream subscriber queues and forwards every packet it
// receives to each of them, in subscription order, suspending at any
// subscriber whose queue is full. A second bounded queue of capacity D sits
// in front so the producer can keep going briefly while fan-out is in
// progress.
//
// Per spec §5, a dedicated fan-out task is only spawned when a distributor
// has two or more subscribers; with exactly one, Send forwards directly
// into that subscriber's queue with no extra hop.
type Distributor struct {
	producerID string
	pin        string
	subs       []Subscriber
	inbound    *Queue

	logger  telemetry.Logger
	metrics telemetry.Metrics

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// NewDistributor constructs a Distributor for one output pin. inboundCapacity
// is the pinDistributorCapacity knob (spec §6); it is only consulted when
// there are two or more subscribers, since a single-subscriber distributor
// never spawns a background task or uses the inbound queue.
func NewDistributor(producerID, pin string, inboundCapacity int, subs []Subscriber, logger telemetry.Logger, metrics telemetry.Metrics) *Distributor {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	d := &Distributor{
		producerID: producerID,
		pin:        pin,
		subs:       subs,
		logger:     logger,
		metrics:    metrics,
	}
	if len(subs) >= 2 {
		d.inbound = NewQueue(inboundCapacity)
	}
	return d
}

// Start spawns the background fan-out task when the distributor has two or
// more subscribers. It is a no-op for zero or one subscriber. Start must be
// called once before the first Send.
func (d *Distributor) Start(ctx context.Context) {
	if d.inbound == nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.run(runCtx)
}

func (d *Distributor) run(ctx context.Context) {
	defer close(d.done)
	for {
		p, err := d.inbound.Pop(ctx)
		if err != nil {
			return
		}
		d.fanOut(ctx, p)
	}
}

func (d *Distributor) fanOut(ctx context.Context, p packet.Packet) {
	for _, s := range d.subs {
		if err := s.Queue.Push(ctx, p); err != nil {
			return
		}
		d.metrics.IncCounter("streamkit_distributor_forwarded_total", 1, "pin", d.pin, "consumer", s.NodeID)
	}
}

// Send delivers p to every subscriber. With zero subscribers the packet is
// simply dropped (an output pin with no outgoing edges, legal under the
// broadcast arity of invariant 3). With exactly one subscriber, Send
// forwards directly and may suspend the caller if that subscriber's queue
// is full — this is how backpressure reaches the producer node with no
// intervening task. With two or more, Send enqueues into the bounded
// inbound queue; the background fan-out task does the actual forwarding,
// letting the producer continue briefly even if a subscriber is slow.
func (d *Distributor) Send(ctx context.Context, p packet.Packet) error {
	switch len(d.subs) {
	case 0:
		return nil
	case 1:
		return d.subs[0].Queue.Push(ctx, p)
	default:
		return d.inbound.Push(ctx, p)
	}
}

// Stop cancels the background fan-out task, if one was started, and waits
// for it to exit.
func (d *Distributor) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
		<-d.done
	}
}

// Subscribers returns the distributor's subscriber list, used by the
// supervisor when building a QueryGraph snapshot.
func (d *Distributor) Subscribers() []Subscriber { return d.subs }
