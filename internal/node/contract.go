// Package node implements the node contract (spec §4.2) and the per-node
// cooperative runtime loop (spec §4.5): the state machine, batch draining,
// parameter updates, flush/cleanup, and failure reporting. It has no
// knowledge of the graph builder or the registry; it only knows how to run
// one already-materialized instance against the queues wired to its pins.
package node

import (
	"context"

	"streamkit.dev/core/internal/packet"
)

// Direction is the pin direction.
type Direction int

const (
	DirIn Direction = iota
	DirOut
)

// Arity is the pin cardinality (spec §3 Pin entity, invariant 3).
type Arity int

const (
	// ArityOne: at most one incoming edge (inputs).
	ArityOne Arity = iota
	// ArityBroadcast: zero or more outgoing edges (outputs).
	ArityBroadcast
)

// Pin is a named input or output port on a node kind, immutable for the
// node's lifetime once declared.
type Pin struct {
	Name     string
	Dir      Direction
	Arity    Arity
	Accepted []packet.TypeDescriptor // meaningful for DirIn; wildcards per packet.Compatible
	Produces packet.TypeDescriptor   // meaningful for DirOut; the concrete type a Produced() packet must match
}

// EmitFunc is the capability a node's Process/Flush step uses to push a
// packet onto a named output pin. All suspension (the channel send itself)
// happens in the runtime loop, never inside node logic (spec §9 design
// note): EmitFunc only enqueues into the runtime's internal emit buffer,
// which the loop then drains into the real pin distributors between steps.
type EmitFunc func(outPin string, p packet.Packet)

// Severity classifies the outcome of Process (spec §4.2, §7).
type Severity int

const (
	SeverityOK Severity = iota
	SeveritySoft
	SeverityFatal
)

// Result is returned by Process and Flush.
type Result struct {
	Severity Severity
	Err      error
}

// OK is the zero-value success result.
func OK() Result { return Result{Severity: SeverityOK} }

// Soft wraps a recoverable error (spec §7 runtime soft errors).
func Soft(err error) Result { return Result{Severity: SeveritySoft, Err: err} }

// Fatal wraps a terminal error (spec §7 runtime fatal errors).
func Fatal(err error) Result { return Result{Severity: SeverityFatal, Err: err} }

// Instance is the five-operation node contract every registered kind
// implements (spec §4.2). The runtime guarantees serial invocation: Init
// runs once before any Process, Cleanup runs exactly once last, and
// UpdateParams is only ever called between Process invocations, never
// during one.
type Instance interface {
	// Init performs one-time setup. May block briefly for resource
	// acquisition; blocking I/O beyond that must go through the handoff
	// executor (spec §4.2, §5).
	Init(ctx context.Context, params map[string]any) Result

	// Process consumes one packet from the named input pin and may call
	// emit zero or more times. Must be deterministic in its parameters
	// except for explicitly stateful nodes.
	Process(ctx context.Context, inPin string, p packet.Packet, emit EmitFunc) Result

	// UpdateParams applies a partial parameter patch. Only properties
	// declared tunable in the kind's schema may change; the runtime
	// enforces this before calling UpdateParams, so an implementation can
	// assume patch only contains tunable keys.
	UpdateParams(ctx context.Context, patch map[string]any) Result

	// Flush drains internal buffers and emits residual output. Called when
	// EndOfStream arrives, and once for a node with no input pins that is
	// not externally fed. A node that stops for any other reason
	// (cancellation, a StopRequest, a fatal error) reaches Cleanup without
	// a Flush.
	Flush(ctx context.Context, emit EmitFunc) Result

	// Cleanup releases resources. Always called exactly once during
	// shutdown, even after a fatal error.
	Cleanup(ctx context.Context)
}
