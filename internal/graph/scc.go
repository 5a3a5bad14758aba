package graph

// tarjan runs Tarjan's strongly-connected-components algorithm over
// g, visiting nodes in g.Nodes order (already sorted) so that ties in
// the algorithm's own nondeterminism never leak into the result,
// keeping SCC discovery itself deterministic (§4.7, testable property
// 6). Returns SCCs in reverse topological order of discovery, which
// tarjanState.sccs already is — callers condense and then topo-sort
// the condensation explicitly rather than relying on this order.
func tarjan(g *Graph) [][]string {
	st := &tarjanState{
		index:   make(map[string]int),
		lowlink: make(map[string]int),
		onStack: make(map[string]bool),
	}
	for _, n := range g.Nodes {
		if _, visited := st.index[n]; !visited {
			st.strongconnect(g, n)
		}
	}
	return st.sccs
}

type tarjanState struct {
	counter int
	index   map[string]int
	lowlink map[string]int
	onStack map[string]bool
	stack   []string
	sccs    [][]string
}

func (st *tarjanState) strongconnect(g *Graph, v string) {
	st.index[v] = st.counter
	st.lowlink[v] = st.counter
	st.counter++
	st.stack = append(st.stack, v)
	st.onStack[v] = true

	for _, edge := range g.EdgesFrom(v) {
		w := edge.To
		if _, visited := st.index[w]; !visited {
			st.strongconnect(g, w)
			if st.lowlink[w] < st.lowlink[v] {
				st.lowlink[v] = st.lowlink[w]
			}
		} else if st.onStack[w] {
			if st.index[w] < st.lowlink[v] {
				st.lowlink[v] = st.index[w]
			}
		}
	}

	if st.lowlink[v] == st.index[v] {
		var scc []string
		for {
			n := len(st.stack) - 1
			w := st.stack[n]
			st.stack = st.stack[:n]
			st.onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		st.sccs = append(st.sccs, scc)
	}
}

// isCyclic reports whether an SCC is a "cyclic group" per §4.7: size
// > 1, or size 1 with a self-edge.
func isCyclic(g *Graph, scc []string) bool {
	if len(scc) > 1 {
		return true
	}
	node := scc[0]
	for _, e := range g.EdgesFrom(node) {
		if e.To == node {
			return true
		}
	}
	return false
}
