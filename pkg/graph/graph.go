package graph

import (
	"errors"
	"slices"
)

var (
	// ErrNilNode is returned when a required node is nil.
	ErrNilNode = errors.New("node must not be nil")

	// ErrEmptyName is returned by [Graph.AddNode] for a node without a name.
	ErrEmptyName = errors.New("node name must not be empty")

	// ErrDuplicateNodeName is returned by [Graph.AddNode] when the graph
	// already holds a node with the same name.
	ErrDuplicateNodeName = errors.New("duplicate node name")

	// ErrNodeNotFound is returned when a node is not a direct node of the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNilAnchor is returned when linking a nil anchor.
	ErrNilAnchor = errors.New("anchor must not be nil")

	// ErrAnchorOccupied is returned when linking an input that already has a
	// producer.
	ErrAnchorOccupied = errors.New("input anchor already linked")

	// ErrNotLinked is returned when unlinking anchors that are not connected.
	ErrNotLinked = errors.New("anchors are not linked")

	// ErrSelfLoop is returned for a control edge from a node to itself.
	ErrSelfLoop = errors.New("control edge must not be a self loop")

	// ErrDuplicateSubgraph is returned when registering a subgraph name twice.
	ErrDuplicateSubgraph = errors.New("duplicate subgraph name")

	// ErrSubgraphNotFound is returned when a subgraph name is not registered.
	ErrSubgraphNotFound = errors.New("subgraph not found")

	// ErrGraphHasCycle is returned by [Graph.TopologicalSort] when the direct
	// nodes do not form a DAG.
	ErrGraphHasCycle = errors.New("graph contains a cycle")

	// ErrUnknownKind is returned when decoding an unknown kind name.
	ErrUnknownKind = errors.New("unknown node kind")

	// ErrUnknownSortMode is returned by [ParseSortMode].
	ErrUnknownSortMode = errors.New("unknown topological sort mode")
)

// Graph is a compute graph: an ordered list of direct nodes plus, on the root
// graph, the table of every subgraph instance in the hierarchy.
//
// Subgraphs are registered on the root and point back to the node invoking
// them (ParentNode) and the graph holding that node (ParentGraph). The zero
// value is not usable - use [New]. A Graph is not safe for concurrent use;
// passes take exclusive ownership for the duration of a call.
type Graph struct {
	name  string
	nodes []*Node
	index map[string]*Node
	attrs Attrs

	subgraphs     map[string]*Graph
	subgraphOrder []string
	parentNode    *Node
	parentGraph   *Graph

	nextID        int64
	unknownShape  bool
	partitioned   bool
	needIteration bool
	sessionID     string
	graphID       uint64
}

// New creates an empty graph.
func New(name string) *Graph {
	return &Graph{
		name:      name,
		index:     make(map[string]*Node),
		attrs:     Attrs{},
		subgraphs: make(map[string]*Graph),
	}
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Attrs returns the graph attributes. The map is never nil.
func (g *Graph) Attrs() Attrs { return g.attrs }

// UnknownShape reports whether the graph is compiled as unknown-shape.
func (g *Graph) UnknownShape() bool { return g.unknownShape }

// SetUnknownShape sets the unknown-shape flag.
func (g *Graph) SetUnknownShape(v bool) { g.unknownShape = v }

// DynamicShapePartitioned reports whether the graph was split by dynamic
// shape partitioning and is compiled for the dynamic executor.
func (g *Graph) DynamicShapePartitioned() bool { return g.partitioned }

// SetDynamicShapePartitioned sets the dynamic-shape-partitioned flag.
func (g *Graph) SetDynamicShapePartitioned(v bool) { g.partitioned = v }

// NeedIteration reports whether the graph runs training-iteration control flow.
func (g *Graph) NeedIteration() bool { return g.needIteration }

// SetNeedIteration sets the need-iteration flag.
func (g *Graph) SetNeedIteration(v bool) { g.needIteration = v }

// SessionID returns the session the graph belongs to.
func (g *Graph) SessionID() string { return g.sessionID }

// SetSessionID sets the session id.
func (g *Graph) SetSessionID(id string) { g.sessionID = id }

// GraphID returns the graph id within its session.
func (g *Graph) GraphID() uint64 { return g.graphID }

// SetGraphID sets the graph id.
func (g *Graph) SetGraphID(id uint64) { g.graphID = id }

// CopyFlagsFrom copies the flags and attributes of other onto g.
func (g *Graph) CopyFlagsFrom(other *Graph) {
	g.unknownShape = other.unknownShape
	g.partitioned = other.partitioned
	g.needIteration = other.needIteration
	g.sessionID = other.sessionID
	g.graphID = other.graphID
	for k, v := range other.attrs {
		g.attrs[k] = v
	}
}

// AddNode appends n to the direct nodes and assigns it the next id of g.
// The node keeps its edges, so moving a node between graphs is RemoveNode on
// the old owner followed by AddNode on the new one.
func (g *Graph) AddNode(n *Node) error {
	if n == nil {
		return ErrNilNode
	}
	if n.name == "" {
		return ErrEmptyName
	}
	if _, exists := g.index[n.name]; exists {
		return ErrDuplicateNodeName
	}
	n.id = g.nextID
	g.nextID++
	n.owner = g
	g.nodes = append(g.nodes, n)
	g.index[n.name] = n
	for _, name := range n.subgraphs {
		if sub, ok := g.Subgraph(name); ok {
			sub.parentGraph = g
		}
	}
	return nil
}

// RemoveNode drops n from the direct nodes without touching its edges.
func (g *Graph) RemoveNode(n *Node) error {
	if n == nil {
		return ErrNilNode
	}
	if g.index[n.name] != n {
		return ErrNodeNotFound
	}
	delete(g.index, n.name)
	g.nodes = slices.DeleteFunc(g.nodes, func(x *Node) bool { return x == n })
	if n.owner == g {
		n.owner = nil
	}
	return nil
}

// Nodes returns a snapshot of the direct nodes in order.
func (g *Graph) Nodes() []*Node { return slices.Clone(g.nodes) }

// NodeCount returns the number of direct nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// Node returns the direct node with the given name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.index[name]
	return n, ok
}

// setOrder replaces the node order; order must be a permutation of g.nodes.
func (g *Graph) setOrder(order []*Node) { g.nodes = order }

// ParentNode returns the node invoking this subgraph, or nil for a root.
func (g *Graph) ParentNode() *Node { return g.parentNode }

// ParentGraph returns the graph holding ParentNode, or nil for a root.
func (g *Graph) ParentGraph() *Graph { return g.parentGraph }

// SetParent sets the parent node and parent graph back-references.
func (g *Graph) SetParent(node *Node, graph *Graph) {
	g.parentNode = node
	g.parentGraph = graph
}

// Root returns the root of the graph hierarchy.
func (g *Graph) Root() *Graph {
	r := g
	for r.parentGraph != nil {
		r = r.parentGraph
	}
	return r
}

// IsRoot reports whether g has no parent graph.
func (g *Graph) IsRoot() bool { return g.parentGraph == nil }

// AddSubgraph registers sub in the root's subgraph table as invoked by
// parent. The parent graph back-reference is the parent node's owner.
func (g *Graph) AddSubgraph(sub *Graph, parent *Node) error {
	r := g.Root()
	if _, exists := r.subgraphs[sub.name]; exists {
		return ErrDuplicateSubgraph
	}
	sub.parentNode = parent
	sub.parentGraph = g
	if parent != nil && parent.owner != nil {
		sub.parentGraph = parent.owner
	}
	r.subgraphs[sub.name] = sub
	r.subgraphOrder = append(r.subgraphOrder, sub.name)
	return nil
}

// ReplaceSubgraph swaps the table entry named sub.Name() for sub, keeping
// the parent back-references of the replaced graph.
func (g *Graph) ReplaceSubgraph(sub *Graph) error {
	r := g.Root()
	old, ok := r.subgraphs[sub.name]
	if !ok {
		return ErrSubgraphNotFound
	}
	sub.parentNode = old.parentNode
	sub.parentGraph = old.parentGraph
	r.subgraphs[sub.name] = sub
	return nil
}

// RemoveSubgraph detaches the named subgraph from the root's table.
func (g *Graph) RemoveSubgraph(name string) error {
	r := g.Root()
	if _, ok := r.subgraphs[name]; !ok {
		return ErrSubgraphNotFound
	}
	delete(r.subgraphs, name)
	r.subgraphOrder = slices.DeleteFunc(r.subgraphOrder, func(s string) bool { return s == name })
	return nil
}

// Subgraph looks up a subgraph by name in the root's table.
func (g *Graph) Subgraph(name string) (*Graph, bool) {
	sub, ok := g.Root().subgraphs[name]
	return sub, ok
}

// Subgraphs returns every registered subgraph in registration order. Only
// meaningful on the root.
func (g *Graph) Subgraphs() []*Graph {
	r := g.Root()
	out := make([]*Graph, 0, len(r.subgraphOrder))
	for _, name := range r.subgraphOrder {
		out = append(out, r.subgraphs[name])
	}
	return out
}

// AdoptSubgraphs moves the subgraph table of other onto g. Subgraphs whose
// parent graph was other are re-parented onto g.
func (g *Graph) AdoptSubgraphs(other *Graph) {
	for _, name := range other.subgraphOrder {
		sub := other.subgraphs[name]
		if sub.parentGraph == other {
			sub.parentGraph = g
		}
		if _, exists := g.subgraphs[name]; !exists {
			g.subgraphOrder = append(g.subgraphOrder, name)
		}
		g.subgraphs[name] = sub
	}
	other.subgraphs = make(map[string]*Graph)
	other.subgraphOrder = nil
}

// AllNodes returns the direct nodes of g and, depth first, the nodes of every
// subgraph they own.
func (g *Graph) AllNodes() []*Node {
	var out []*Node
	seen := map[*Graph]bool{}
	var walk func(*Graph)
	walk = func(cur *Graph) {
		seen[cur] = true
		for _, n := range cur.nodes {
			out = append(out, n)
			for _, name := range n.subgraphs {
				if sub, ok := g.Subgraph(name); ok && !seen[sub] {
					walk(sub)
				}
			}
		}
	}
	walk(g)
	return out
}
