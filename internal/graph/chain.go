package graph

import "fmt"

// resolveChain lowers the Steps shorthand into the explicit Nodes/Edges
// form (spec §4.4: "A shorthand 'chain' form auto-wires step i.out ->
// (i+1).in"). Each step receives a generated id if it did not declare one.
func resolveChain(d Description) (map[string]NodeSpec, []EdgeSpec, []string, error) {
	if len(d.Steps) == 0 {
		order := make([]string, 0, len(d.Nodes))
		for id := range d.Nodes {
			order = append(order, id)
		}
		return d.Nodes, d.Edges, order, nil
	}

	nodes := make(map[string]NodeSpec, len(d.Steps))
	order := make([]string, 0, len(d.Steps))
	ids := make([]string, len(d.Steps))
	for i, step := range d.Steps {
		id := step.ID
		if id == "" {
			id = fmt.Sprintf("step%d", i)
		}
		if _, dup := nodes[id]; dup {
			return nil, nil, nil, fmt.Errorf("graph: duplicate step id %q", id)
		}
		step.ID = id
		nodes[id] = step
		order = append(order, id)
		ids[i] = id
	}

	edges := make([]EdgeSpec, 0, len(ids)-1)
	edges = append(edges, d.Edges...)
	for i := 0; i < len(ids)-1; i++ {
		edges = append(edges, EdgeSpec{FromNode: ids[i], FromPin: "", ToNode: ids[i+1], ToPin: ""})
	}
	return nodes, edges, order, nil
}
