package graph

import (
	"sort"

	"github.com/lucernlabs/recordflow/internal/schema"
)

// ExecutionPlan is the planner's output, per §3: an ordered list of
// tiers, each entity's deferred field names, and a tail list of
// many-to-many associations grouped by relationship name.
type ExecutionPlan struct {
	Tiers          [][]string
	DeferredFields map[string][]string
	M2M            []schema.Relationship
}

// Plan builds the ExecutionPlan for s: condenses the lookup-edge
// graph into strongly-connected components, assigns each component
// the lowest tier consistent with its predecessors, and selects
// deferred fields within every cyclic group, per §4.7. Two calls on
// an identical schema produce byte-identical plans (testable property
// 6 / scenario S6): every ordering decision below is a deterministic
// sort, never map iteration order.
func Plan(s *schema.Schema) *ExecutionPlan {
	g := Build(s)
	sccs := tarjan(g)

	compOf := make(map[string]int, len(g.Nodes))
	for i, scc := range sccs {
		for _, n := range scc {
			compOf[n] = i
		}
	}

	compEdges := make(map[int]map[int]bool)
	compPreds := make(map[int]map[int]bool)
	for _, e := range g.Edges {
		cf, ct := compOf[e.From], compOf[e.To]
		if cf == ct {
			continue
		}
		// The dependency (ct) must be written before the dependent (cf),
		// so the condensed edge runs ct -> cf.
		if compEdges[ct] == nil {
			compEdges[ct] = make(map[int]bool)
		}
		compEdges[ct][cf] = true
		if compPreds[cf] == nil {
			compPreds[cf] = make(map[int]bool)
		}
		compPreds[cf][ct] = true
	}

	tiers := assignTiers(len(sccs), compEdges, compPreds)

	maxTier := 0
	for _, t := range tiers {
		if t > maxTier {
			maxTier = t
		}
	}
	tierEntities := make([][]string, maxTier+1)
	for i, scc := range sccs {
		t := tiers[i]
		tierEntities[t] = append(tierEntities[t], scc...)
	}
	for _, entities := range tierEntities {
		sort.Strings(entities)
	}

	deferred := make(map[string][]string)
	for _, scc := range sccs {
		if !isCyclic(g, scc) {
			continue
		}
		selectDeferredFields(g, scc, deferred)
	}

	return &ExecutionPlan{
		Tiers:          tierEntities,
		DeferredFields: deferred,
		M2M:            s.ManyToManyRelationships(),
	}
}

// assignTiers computes, for each component index, the lowest tier
// index consistent with all its predecessors being in an earlier
// tier: tier(c) = 0 if c has no predecessors, else
// 1 + max(tier(p)) over predecessors p. Processed via Kahn's
// algorithm so every predecessor is resolved before its successors;
// the queue's own pop order is irrelevant to the resulting tier
// values, only to average performance.
func assignTiers(n int, edges map[int]map[int]bool, preds map[int]map[int]bool) []int {
	indegree := make([]int, n)
	for c, set := range preds {
		indegree[c] = len(set)
	}

	tier := make([]int, n)
	queue := make([]int, 0, n)
	for c := 0; c < n; c++ {
		if indegree[c] == 0 {
			queue = append(queue, c)
		}
	}
	sort.Ints(queue)

	processed := 0
	for len(queue) > 0 {
		sort.Ints(queue)
		c := queue[0]
		queue = queue[1:]
		processed++

		for to := range edges[c] {
			if tier[to] < tier[c]+1 {
				tier[to] = tier[c] + 1
			}
			indegree[to]--
			if indegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}
	return tier
}

// orderKey returns the deterministic ordering used within a cyclic
// group: lex by logical name, tie-broken by descending in-degree
// (§4.7). Names are already unique per schema, so the tie-break is a
// safety net rather than a live path.
func orderKey(g *Graph, members []string) []string {
	ordered := append([]string(nil), members...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i] != ordered[j] {
			return ordered[i] < ordered[j]
		}
		return g.InDegree(ordered[i]) > g.InDegree(ordered[j])
	})
	return ordered
}

// selectDeferredFields implements §4.7's per-cyclic-group rule: for
// every intra-group edge X→Y where X precedes Y in the deterministic
// ordering, the field producing that edge is deferred on X.
// Self-edges are always deferred regardless of position.
func selectDeferredFields(g *Graph, scc []string, deferred map[string][]string) {
	ordered := orderKey(g, scc)
	position := make(map[string]int, len(ordered))
	for i, n := range ordered {
		position[n] = i
	}
	inGroup := make(map[string]bool, len(scc))
	for _, n := range scc {
		inGroup[n] = true
	}

	for _, from := range scc {
		for _, e := range g.EdgesFrom(from) {
			if !inGroup[e.To] {
				continue
			}
			if e.To == from || position[from] < position[e.To] {
				deferred[from] = append(deferred[from], e.FieldName)
			}
		}
	}
	for k := range deferred {
		if inGroup[k] {
			sort.Strings(deferred[k])
		}
	}
}
