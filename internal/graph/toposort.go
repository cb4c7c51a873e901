package graph

import "sort"

// topoSort produces one valid linearization of nodes consistent with edges
// (spec §4.4 step 6), used to start tasks and, reversed, to shut them down
// (spec §4.6). Self-loops (bidirectional nodes) are ignored since they do
// not constrain ordering between distinct nodes. Ties are broken
// alphabetically by node id so that building the same description twice
// yields the same order (spec §8 round-trip property).
func topoSort(nodes map[string]*materializedNode, edges []EdgeRecord) ([]string, error) {
	indegree := make(map[string]int, len(nodes))
	adj := map[string][]string{}
	for id := range nodes {
		indegree[id] = 0
	}
	for _, e := range edges {
		if e.FromNode == e.ToNode {
			continue
		}
		adj[e.FromNode] = append(adj[e.FromNode], e.ToNode)
		indegree[e.ToNode]++
	}

	var ready []string
	for id, d := range indegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(nodes))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)

		var newlyReady []string
		for _, to := range adj[n] {
			indegree[to]--
			if indegree[to] == 0 {
				newlyReady = append(newlyReady, to)
			}
		}
		sort.Strings(newlyReady)
		ready = mergeSorted(ready, newlyReady)
	}

	if len(order) != len(nodes) {
		// checkAcyclic should already have rejected this, but guard
		// against it independently in case acyclicity passed only
		// because every cycle node was a self-loop.
		var stuck []string
		for id, d := range indegree {
			if d > 0 {
				stuck = append(stuck, id)
			}
		}
		return nil, &CycleError{Nodes: stuck}
	}
	return order, nil
}

func mergeSorted(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	out := append(a, b...)
	sort.Strings(out)
	return out
}
