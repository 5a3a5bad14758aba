// Package graph builds the lookup-edge dependency graph over a
// schema and plans its tiered execution order (C7): Tarjan SCC
// condensation, topological tiering, and deterministic deferred-field
// selection within cyclic groups, per spec §4.7.
package graph

import (
	"sort"
	"strings"

	"github.com/lucernlabs/recordflow/internal/schema"
)

// EdgeKind mirrors the schema field type that produced the edge. Per
// DESIGN.md's Open Question decision, it carries no weight in SCC/
// tiering logic beyond edge presence; it is kept for diagnostics.
type EdgeKind string

const (
	EdgeLookup   EdgeKind = "lookup"
	EdgeOwner    EdgeKind = "owner"
	EdgeCustomer EdgeKind = "customer"
	EdgeParent   EdgeKind = "parent"
)

// Edge is one Dependency Edge, per §3.
type Edge struct {
	From      string // entity logical name (lowercased)
	To        string
	FieldName string
	Kind      EdgeKind
}

// Graph is the dependency graph: nodes are entity logical names
// (lowercased), edges as produced by lookup-like fields. RecordCounts
// is optional, for load estimation (§3).
type Graph struct {
	Nodes        []string
	Edges        []Edge
	RecordCounts map[string]int

	adjacency map[string][]Edge
	inDegree  map[string]int
}

// Build constructs a Graph from s: one node per entity, one edge per
// lookup-like field targeting another entity in the schema. A field
// targeting an entity absent from the schema is skipped — the schema
// reader's "entities/fields must already exist" contract is enforced
// by the importer's Phase A, not here.
func Build(s *schema.Schema) *Graph {
	g := &Graph{
		adjacency: make(map[string][]Edge),
		inDegree:  make(map[string]int),
	}
	for _, e := range s.Entities {
		name := strings.ToLower(e.LogicalName)
		g.Nodes = append(g.Nodes, name)
		g.inDegree[name] = 0
	}
	sort.Strings(g.Nodes)

	for _, e := range s.Entities {
		from := strings.ToLower(e.LogicalName)
		for _, f := range e.Fields {
			if !f.Type.IsLookupLike() {
				continue
			}
			to := strings.ToLower(f.TargetEntity)
			if _, ok := s.EntityByName(to); !ok {
				continue
			}
			edge := Edge{From: from, To: to, FieldName: f.LogicalName, Kind: edgeKindOf(f.Type)}
			g.Edges = append(g.Edges, edge)
			g.adjacency[from] = append(g.adjacency[from], edge)
			g.inDegree[to]++
		}
	}
	return g
}

func edgeKindOf(t schema.FieldType) EdgeKind {
	switch t {
	case schema.FieldOwner:
		return EdgeOwner
	case schema.FieldCustomer:
		return EdgeCustomer
	case schema.FieldParent:
		return EdgeParent
	default:
		return EdgeLookup
	}
}

// EdgesFrom returns every edge originating at node, in schema field
// order.
func (g *Graph) EdgesFrom(node string) []Edge {
	return g.adjacency[node]
}

// InDegree returns the number of edges terminating at node, used by
// the deferred-field ordering key's tie-break rule.
func (g *Graph) InDegree(node string) int {
	return g.inDegree[node]
}
