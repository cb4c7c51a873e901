package graph

import "fmt"

// UnknownKindError is returned when a node spec names a kind the registry
// does not carry or that has no Factory (spec §4.4 step 1, §7 build errors),
// and, with Kind "?", when an edge names a node id the description lacks.
type UnknownKindError struct {
	Node string
	Kind string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("graph: node %q: unknown kind %q", e.Node, e.Kind)
}

// UnknownPinError is returned when an edge names a pin its node does not
// declare (spec §4.4 step 3).
type UnknownPinError struct {
	Node string
	Pin  string
	Dir  string
}

func (e *UnknownPinError) Error() string {
	return fmt.Sprintf("graph: node %q: unknown %s pin %q", e.Node, e.Dir, e.Pin)
}

// TypeMismatchError is returned when an edge's producer type is not
// compatible with its consumer's accepted set (spec §4.4 step 4, §7).
type TypeMismatchError struct {
	FromNode, FromPin string
	ToNode, ToPin     string
	Detail            string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("graph: edge %s.%s -> %s.%s: %s", e.FromNode, e.FromPin, e.ToNode, e.ToPin, e.Detail)
}

// CycleError is returned when the graph contains a strongly connected
// component larger than one node with an edge outside a bidirectional
// node's self-reference (spec §4.4 step 5, invariant 2).
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("graph: cycle detected among nodes %v", e.Nodes)
}

// InvalidParamError is returned when a node's parameter map fails its
// kind's JSON Schema (spec §7).
type InvalidParamError struct {
	Node   string
	Reason string
}

func (e *InvalidParamError) Error() string {
	return fmt.Sprintf("graph: node %q: invalid params: %s", e.Node, e.Reason)
}

// ArityViolationError is returned when two edges target the same input pin
// (spec §4.4 step 7, invariant 3: "each input pin has arity one: at most
// one incoming edge"). The second edge's producer is included since it is
// the one a caller needs to remove or reroute.
type ArityViolationError struct {
	Node, Pin      string
	FirstFromNode  string
	FirstFromPin   string
	SecondFromNode string
	SecondFromPin  string
}

func (e *ArityViolationError) Error() string {
	return fmt.Sprintf(
		"graph: node %q: input pin %q already has an incoming edge from %s.%s, cannot also accept %s.%s",
		e.Node, e.Pin, e.FirstFromNode, e.FirstFromPin, e.SecondFromNode, e.SecondFromPin,
	)
}
