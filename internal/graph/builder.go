package graph

import (
	"context"
	"fmt"

	"streamkit.dev/core/internal/fabric"
	"streamkit.dev/core/internal/node"
	"streamkit.dev/core/internal/packet"
	"streamkit.dev/core/internal/registry"
	"streamkit.dev/core/internal/telemetry"
)

// Config carries the allocation knobs of spec §6 consulted by Allocate.
type Config struct {
	NodeInputCapacity      int
	PinDistributorCapacity int
	Logger                 telemetry.Logger
	Metrics                telemetry.Metrics
}

func (c Config) withDefaults() Config {
	if c.NodeInputCapacity <= 0 {
		c.NodeInputCapacity = 32
	}
	if c.PinDistributorCapacity <= 0 {
		c.PinDistributorCapacity = 16
	}
	if c.Logger == nil {
		c.Logger = telemetry.NewNoopLogger()
	}
	if c.Metrics == nil {
		c.Metrics = telemetry.NewNoopMetrics()
	}
	return c
}

type materializedNode struct {
	id     string
	kind   *registry.Kind
	spec   NodeSpec
	inst   node.Instance
}

// Build runs the eight-step algorithm of spec §4.4 against a parsed
// Description, consulting reg for kinds and applying cfg's capacity knobs.
// It is a pure function of its inputs: on error, no factory-produced
// instance or allocated queue is reachable from the caller.
func Build(ctx context.Context, reg *registry.Manager, d Description, cfg Config) (*Plan, error) {
	cfg = cfg.withDefaults()

	// Step 1 + 2: register (lookup) and materialize.
	nodeSpecs, edgeSpecs, declOrder, err := resolveChain(d)
	if err != nil {
		return nil, err
	}

	materialized := make(map[string]*materializedNode, len(nodeSpecs))
	for _, id := range declOrder {
		spec := nodeSpecs[id]
		k, err := reg.Lookup(ctx, spec.Kind)
		if err != nil {
			return nil, &UnknownKindError{Node: id, Kind: spec.Kind}
		}
		if k.Factory == nil {
			return nil, &UnknownKindError{Node: id, Kind: spec.Kind}
		}
		if k.Schema != nil {
			if err := k.Schema.Validate(spec.Params); err != nil {
				return nil, &InvalidParamError{Node: id, Reason: err.Error()}
			}
		}
		materialized[id] = &materializedNode{id: id, kind: k, spec: spec, inst: k.Factory()}
	}

	// Step 3: resolve edges, including chain-shorthand pin inference (an
	// edge with an empty FromPin/ToPin means "the node's sole pin of that
	// direction").
	resolved := make([]EdgeRecord, 0, len(edgeSpecs))
	type pinKey struct{ node, pin string }
	inboundEdge := make(map[pinKey]EdgeRecord, len(edgeSpecs))
	for _, e := range edgeSpecs {
		fromNode, ok := materialized[e.FromNode]
		if !ok {
			return nil, &UnknownKindError{Node: e.FromNode, Kind: "?"}
		}
		toNode, ok := materialized[e.ToNode]
		if !ok {
			return nil, &UnknownKindError{Node: e.ToNode, Kind: "?"}
		}

		fromPin := e.FromPin
		if fromPin == "" {
			fromPin, err = solePin(fromNode.kind.Outputs, node.DirOut)
			if err != nil {
				return nil, &UnknownPinError{Node: e.FromNode, Pin: "", Dir: "output"}
			}
		}
		toPin := e.ToPin
		if toPin == "" {
			toPin, err = solePin(toNode.kind.Inputs, node.DirIn)
			if err != nil {
				return nil, &UnknownPinError{Node: e.ToNode, Pin: "", Dir: "input"}
			}
		}

		outPin, ok := fromNode.kind.Pin(fromPin, node.DirOut)
		if !ok {
			return nil, &UnknownPinError{Node: e.FromNode, Pin: fromPin, Dir: "output"}
		}
		inPin, ok := toNode.kind.Pin(toPin, node.DirIn)
		if !ok {
			return nil, &UnknownPinError{Node: e.ToNode, Pin: toPin, Dir: "input"}
		}

		// Step 4: type-check.
		if !packet.Compatible(outPin.Produces, inPin.Accepted) {
			return nil, &TypeMismatchError{
				FromNode: e.FromNode, FromPin: fromPin,
				ToNode: e.ToNode, ToPin: toPin,
				Detail: packet.Diff(outPin.Produces, inPin.Accepted),
			}
		}

		// Invariant 3: each input pin has arity one, at most one incoming edge.
		key := pinKey{e.ToNode, toPin}
		if first, exists := inboundEdge[key]; exists {
			return nil, &ArityViolationError{
				Node: e.ToNode, Pin: toPin,
				FirstFromNode: first.FromNode, FirstFromPin: first.FromPin,
				SecondFromNode: e.FromNode, SecondFromPin: fromPin,
			}
		}

		rec := EdgeRecord{FromNode: e.FromNode, FromPin: fromPin, ToNode: e.ToNode, ToPin: toPin}
		inboundEdge[key] = rec
		resolved = append(resolved, rec)
	}

	// Step 5: acyclicity, excluding bidirectional nodes' self-reference.
	if err := checkAcyclic(materialized, resolved); err != nil {
		return nil, err
	}

	// Step 6: topological order.
	order, err := topoSort(materialized, resolved)
	if err != nil {
		return nil, err
	}

	// Step 7 + 8: allocate and seal.
	plan := allocate(d, materialized, resolved, order, cfg)
	return plan, nil
}

func solePin(pins []node.Pin, dir node.Direction) (string, error) {
	if len(pins) != 1 {
		return "", fmt.Errorf("graph: chain auto-wire requires exactly one pin, found %d", len(pins))
	}
	return pins[0].Name, nil
}

func allocate(d Description, nodes map[string]*materializedNode, edges []EdgeRecord, order []string, cfg Config) *Plan {
	records := make(map[string]*NodeRecord, len(nodes))
	for id, mn := range nodes {
		records[id] = &NodeRecord{
			ID:            id,
			Kind:          mn.spec.Kind,
			Instance:      mn.inst,
			Params:        mn.spec.Params,
			Tunable:       mn.kind.Schema.Tunable(),
			Needs:         mn.spec.Needs,
			Inputs:        map[string]*fabric.Queue{},
			Outputs:       map[string]*fabric.Distributor{},
			ExternallyFed: mn.spec.Kind == "io.input",
		}
	}

	// One queue per edge, owned by the consumer's input pin.
	edgeQueues := make([]*fabric.Queue, len(edges))
	for i, e := range edges {
		q := fabric.NewQueue(cfg.NodeInputCapacity)
		edgeQueues[i] = q
		rec := records[e.ToNode]
		if _, exists := rec.Inputs[e.ToPin]; !exists {
			rec.InputOrder = append(rec.InputOrder, e.ToPin)
		}
		rec.Inputs[e.ToPin] = q
	}

	// One distributor per (producer, out pin), fed by every edge off it.
	type distKey struct{ node, pin string }
	subsByPin := map[distKey][]fabric.Subscriber{}
	for i, e := range edges {
		key := distKey{e.FromNode, e.FromPin}
		subsByPin[key] = append(subsByPin[key], fabric.Subscriber{
			NodeID: e.ToNode, Pin: e.ToPin, Queue: edgeQueues[i],
		})
	}
	for key, subs := range subsByPin {
		records[key.node].Outputs[key.pin] = fabric.NewDistributor(
			key.node, key.pin, cfg.PinDistributorCapacity, subs, cfg.Logger, cfg.Metrics)
	}
	// Output pins with zero outgoing edges still get a distributor so
	// Process can emit into them without a nil check (spec invariant 3:
	// an output pin may have zero outgoing edges).
	for id, mn := range nodes {
		for _, p := range mn.kind.Outputs {
			if _, ok := records[id].Outputs[p.Name]; !ok {
				records[id].Outputs[p.Name] = fabric.NewDistributor(id, p.Name, cfg.PinDistributorCapacity, nil, cfg.Logger, cfg.Metrics)
			}
		}
	}

	plan := &Plan{
		Name:  d.Name,
		Mode:  d.Mode,
		Nodes: records,
		Edges: edges,
		Order: order,
	}
	for id, mn := range nodes {
		switch mn.spec.Kind {
		case "io.input":
			plan.InputNode = id
		case "io.output":
			plan.OutputNode = id
		}
	}
	return plan
}
