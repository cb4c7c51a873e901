// Package graph implements the Graph Builder (spec §4.4): it takes an
// already-parsed pipeline description, resolves it against the node
// registry, type-checks every edge, checks acyclicity, and seals a runnable
// Plan. The builder is a pure function of its inputs: on any failure it
// returns an error and leaves no side effects (no factory call's instance
// escapes, no queue is wired into anything visible to the caller).
package graph

// Mode selects the execution profile a Description targets (spec §4.6).
type Mode string

const (
	ModeDynamic Mode = "dynamic"
	ModeOneshot Mode = "oneshot"
)

// NeedsMode governs how a side-branch failure is treated (spec §6 "optional
// needs references ... mode of best_effort or required").
type NeedsMode string

const (
	NeedsRequired   NeedsMode = "required"
	NeedsBestEffort NeedsMode = "best_effort"
)

// NodeSpec is one entry in a parsed description's node map (or one step of
// its chain shorthand).
type NodeSpec struct {
	ID     string
	Kind   string
	Params map[string]any
	Needs  NeedsMode
}

// EdgeSpec names one explicit wire between two pins.
type EdgeSpec struct {
	FromNode string
	FromPin  string
	ToNode   string
	ToPin    string
}

// Description is the parsed, structurally validated graph description the
// builder consumes (spec §6 "Graph description format"). Transports and the
// YAML/JSON layer that produce this value are out of scope; the builder
// only ever sees this already-resolved shape.
type Description struct {
	Name string
	Mode Mode

	// Steps is the chain shorthand: an ordered list whose consecutive
	// entries are auto-wired step[i].out -> step[i+1].in when both
	// declare exactly one output/input pin of compatible type. When Steps
	// is non-empty, Nodes is ignored and any Edges are kept alongside the
	// chain's auto-wired edges; resolveChain lowers Steps into the
	// Nodes/Edges form before the rest of the pipeline runs.
	Steps []NodeSpec

	// Nodes and Edges are the explicit form.
	Nodes map[string]NodeSpec
	Edges []EdgeSpec
}
