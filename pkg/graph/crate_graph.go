package graph

import (
	"fmt"

	"gonum.org/v1/gonum/graph/simple"

	"depsentry/pkg/crates"
)

// DepKind classifies a dependency edge.
type DepKind int

const (
	DepNormal DepKind = iota
	DepDev
	DepBuild
)

// String returns the edge label used in rendered trees. Normal edges render
// as the empty string.
func (k DepKind) String() string {
	switch k {
	case DepDev:
		return "dev"
	case DepBuild:
		return "build"
	default:
		return ""
	}
}

// ParseDepKind parses a dependency kind from its metadata form.
func ParseDepKind(s string) (DepKind, error) {
	switch s {
	case "", "normal":
		return DepNormal, nil
	case "dev":
		return DepDev, nil
	case "build":
		return DepBuild, nil
	}
	return DepNormal, fmt.Errorf("unknown dependency kind: %q", s)
}

// Consumer is one incoming edge of a node: the consuming node plus the kind
// of the dependency it declares.
type Consumer struct {
	Node int64
	Kind DepKind
}

// CrateGraph is a resolved dependency graph. Edges run consumer->dependency.
// Node ids are assigned in insertion order, which doubles as the graph's
// canonical enumeration order. The graph is treated as an immutable snapshot
// once built; queries never mutate it.
type CrateGraph struct {
	dg     *simple.DirectedGraph
	crates []*crates.Crate      // index == node id, canonical order
	byName map[string][]int64   // crate name -> node ids, ascending
	kinds  map[[2]int64]DepKind // (from, to) -> edge kind
}

// NewCrateGraph creates an empty crate graph.
func NewCrateGraph() *CrateGraph {
	return &CrateGraph{
		dg:     simple.NewDirectedGraph(),
		byName: make(map[string][]int64),
		kinds:  make(map[[2]int64]DepKind),
	}
}

// Add appends a crate as a new node and returns its node id.
func (g *CrateGraph) Add(c *crates.Crate) int64 {
	id := int64(len(g.crates))
	g.crates = append(g.crates, c)
	g.byName[c.Name] = append(g.byName[c.Name], id)
	g.dg.AddNode(simple.Node(id))
	return id
}

// AddDependency records that from depends on to, with the given kind.
func (g *CrateGraph) AddDependency(from, to int64, kind DepKind) {
	if from == to {
		return
	}
	if !g.dg.HasEdgeFromTo(from, to) {
		g.dg.SetEdge(g.dg.NewEdge(simple.Node(from), simple.Node(to)))
	}
	g.kinds[[2]int64{from, to}] = kind
}

// Len returns the number of nodes.
func (g *CrateGraph) Len() int {
	return len(g.crates)
}

// Crates returns all crates in canonical enumeration order.
// The returned slice is shared; callers must not modify it.
func (g *CrateGraph) Crates() []*crates.Crate {
	return g.crates
}

// Crate returns the crate at the given node id.
func (g *CrateGraph) Crate(id int64) *crates.Crate {
	return g.crates[id]
}

// NodeFor resolves a crate identity to the first node, in canonical order,
// whose name matches and whose version satisfies the identity's constraint.
func (g *CrateGraph) NodeFor(id crates.ID) (int64, bool) {
	for _, nid := range g.byName[id.Name] {
		if id.Version.Matches(g.crates[nid].Version) {
			return nid, true
		}
	}
	return 0, false
}

// NodesFor resolves a crate identity to every matching node in canonical
// order.
func (g *CrateGraph) NodesFor(id crates.ID) []int64 {
	var out []int64
	for _, nid := range g.byName[id.Name] {
		if id.Version.Matches(g.crates[nid].Version) {
			out = append(out, nid)
		}
	}
	return out
}

// Consumers returns the incoming edges of a node: every node that depends on
// it, with the declaring edge's kind. The order is unspecified.
func (g *CrateGraph) Consumers(id int64) []Consumer {
	var out []Consumer
	it := g.dg.To(id)
	for it.Next() {
		from := it.Node().ID()
		out = append(out, Consumer{Node: from, Kind: g.kinds[[2]int64{from, id}]})
	}
	return out
}

// Dependencies returns the outgoing edges of a node. The order is
// unspecified.
func (g *CrateGraph) Dependencies(id int64) []Consumer {
	var out []Consumer
	it := g.dg.From(id)
	for it.Next() {
		to := it.Node().ID()
		out = append(out, Consumer{Node: to, Kind: g.kinds[[2]int64{id, to}]})
	}
	return out
}
