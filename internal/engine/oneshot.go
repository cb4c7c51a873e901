package engine

import (
	"context"
	"fmt"
	"time"

	"streamkit.dev/core/internal/fabric"
	"streamkit.dev/core/internal/graph"
	"streamkit.dev/core/internal/packet"
)

// OneshotProfile returns base with the larger capacities of the oneshot
// execution profile: 256-packet per-edge queues (the media_channel_capacity
// role), 256-packet distributor inbound queues, and a batch size of 32. No
// separate capacity is applied at the I/O boundary: the io.input feeder and
// the output collector use the same 256-packet per-edge queues.
func OneshotProfile(base Profile) Profile {
	p := base
	p.Graph.NodeInputCapacity = 256
	p.Graph.PinDistributorCapacity = 256
	p.Task.BatchSize = 32
	return p
}

// RunOneshot builds a plan, feeds input into the description's
// distinguished "input" node, collects output from the distinguished
// "output" node, and returns once the output side observes EndOfStream or
// an error occurs (spec §4.6). Both the description's "input" and "output"
// node kinds must be "io.input" and "io.output" respectively; CreateSession
// callers that don't need I/O boundary nodes simply omit them.
func (s *Supervisor) RunOneshot(ctx context.Context, desc graph.Description, input <-chan packet.Packet) ([]packet.Packet, error) {
	desc.Mode = graph.ModeOneshot
	profile := OneshotProfile(s.profile)

	plan, err := graph.Build(ctx, s.reg, desc, profile.Graph)
	if err != nil {
		return nil, err
	}
	if plan.InputNode == "" || plan.OutputNode == "" {
		return nil, errOneshotMissingIONode
	}

	sess := newSession(fmt.Sprintf("oneshot-%s", plan.Name), plan)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	inRec := plan.Nodes[plan.InputNode]
	outRec := plan.Nodes[plan.OutputNode]

	// The collector below, not the io.output node's own task, drains the
	// io.output input queue: detach the queue from the node before spawning
	// so the two never compete for the same packets. The node is then
	// zero-input and externally driven, and waits for the session to end.
	outQueue := firstInputQueue(outRec)
	outRec.Inputs = map[string]*fabric.Queue{}
	outRec.InputOrder = nil
	outRec.ExternallyFed = true

	sess.spawn(runCtx, profile.Task, profile.ShutdownGrace)

	// The io.input node has no declared input pins; the feeder writes
	// straight into its sole output distributor, which then flows through
	// the rest of the plan exactly as if a real source node had emitted it.
	var collected []packet.Packet
	done := make(chan error, 1)

	go func() {
		for p := range input {
			if err := pushToPlanInput(runCtx, inRec, p); err != nil {
				done <- err
				return
			}
		}
		done <- pushEndOfStream(runCtx, inRec)
	}()

	collectDone := make(chan struct{})
	go func() {
		defer close(collectDone)
		collected = collectFromPlanOutput(runCtx, outQueue)
	}()

	select {
	case err := <-done:
		if err != nil {
			sess.shutdown(profile.ShutdownGrace)
			return nil, err
		}
	case <-runCtx.Done():
		sess.shutdown(profile.ShutdownGrace)
		return nil, runCtx.Err()
	}

	select {
	case <-collectDone:
	case <-time.After(profile.ShutdownGrace):
		return nil, fmt.Errorf("engine: oneshot output collection timed out")
	}

	sess.shutdown(profile.ShutdownGrace)
	return collected, nil
}

func firstInputQueue(rec *graph.NodeRecord) *fabric.Queue {
	for _, pin := range rec.InputOrder {
		return rec.Inputs[pin]
	}
	return nil
}

func pushToPlanInput(ctx context.Context, inRec *graph.NodeRecord, p packet.Packet) error {
	dist, ok := soleOutput(inRec)
	if !ok {
		return fmt.Errorf("engine: io.input node %q declares no output pin", inRec.ID)
	}
	return dist.Send(ctx, p)
}

func pushEndOfStream(ctx context.Context, inRec *graph.NodeRecord) error {
	dist, ok := soleOutput(inRec)
	if !ok {
		return nil
	}
	return dist.Send(ctx, packet.EndOfStream{})
}

func soleOutput(rec *graph.NodeRecord) (*fabric.Distributor, bool) {
	for _, d := range rec.Outputs {
		return d, true
	}
	return nil, false
}

func collectFromPlanOutput(ctx context.Context, q *fabric.Queue) []packet.Packet {
	if q == nil {
		return nil
	}
	var out []packet.Packet
	for {
		p, err := q.Pop(ctx)
		if err != nil {
			return out
		}
		if _, isEOS := p.(packet.EndOfStream); isEOS {
			return out
		}
		out = append(out, p)
	}
}
