package graph

import (
	"streamkit.dev/core/internal/fabric"
	"streamkit.dev/core/internal/node"
)

// NodeRecord is one materialized node in a sealed Plan.
type NodeRecord struct {
	ID       string
	Kind     string
	Instance node.Instance
	Params   map[string]any
	Tunable  map[string]bool
	Needs    NeedsMode

	Inputs     map[string]*fabric.Queue
	InputOrder []string
	Outputs    map[string]*fabric.Distributor

	// ExternallyFed marks a zero-input node whose output is driven by code
	// outside the node runtime rather than by its own Flush (the oneshot
	// "io.input" boundary: RunOneshot writes straight into its distributor).
	// The runtime must not treat such a node as a source to auto-flush.
	// RunOneshot also sets it on the io.output boundary after detaching that
	// node's input queue, whose packets it collects itself.
	ExternallyFed bool
}

// EdgeRecord is one resolved, type-checked wire in a sealed Plan.
type EdgeRecord struct {
	FromNode, FromPin string
	ToNode, ToPin     string
}

// Plan is the builder's sealed output (spec §4.4 step 8): every instance,
// every edge, every allocated queue, and one valid topological order. A
// Plan carries no side effects of its own; the engine supervisor is what
// spawns tasks against it.
type Plan struct {
	Name  string
	Mode  Mode
	Nodes map[string]*NodeRecord
	Edges []EdgeRecord
	// Order is a topological linearization of Nodes, used to start tasks
	// and, in reverse, to shut them down (spec §4.4 step 6, §4.6).
	Order []string
	// InputNode and OutputNode name the distinguished nodes RunOneshot
	// feeds input into and collects output from (spec §4.6), resolved
	// from nodes of kind "io.input"/"io.output" if present.
	InputNode  string
	OutputNode string
}
