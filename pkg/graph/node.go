package graph

import "slices"

// Dimension markers used in [Shape].
const (
	UnknownDim  int64 = -1 // dimension resolved at run time
	UnknownRank int64 = -2 // rank itself resolved at run time
)

// Shape is a tensor shape. Negative dimensions are unresolved.
type Shape []int64

// IsUnknown reports whether any dimension (or the rank) is unresolved.
func (s Shape) IsUnknown() bool {
	for _, d := range s {
		if d < 0 {
			return true
		}
	}
	return false
}

// TensorDesc describes the tensor flowing through an anchor.
type TensorDesc struct {
	Shape Shape
	Attrs Attrs
}

// NoTiling reports whether the tensor is marked for no-tiling execution.
func (d *TensorDesc) NoTiling() bool { return d.Attrs.IsTrue(AttrTensorNoTiling) }

// SetNoTiling marks or clears the tensor's no-tiling flag.
func (d *TensorDesc) SetNoTiling(v bool) {
	if d.Attrs == nil {
		d.Attrs = Attrs{}
	}
	d.Attrs[AttrTensorNoTiling] = v
}

// InAnchor is an indexed data input of a node. It has at most one producer.
type InAnchor struct {
	node  *Node
	index int
	peer  *OutAnchor
	desc  TensorDesc
}

// Node returns the node owning the anchor.
func (a *InAnchor) Node() *Node { return a.node }

// Index returns the anchor's input index.
func (a *InAnchor) Index() int { return a.index }

// Peer returns the producing anchor, or nil when the input is not linked.
func (a *InAnchor) Peer() *OutAnchor { return a.peer }

// Desc returns the tensor descriptor of the input.
func (a *InAnchor) Desc() *TensorDesc { return &a.desc }

// Unlink disconnects the input from its producer, if any.
func (a *InAnchor) Unlink() {
	if a.peer != nil {
		_ = a.peer.Unlink(a)
	}
}

// OutAnchor is an indexed data output of a node. It may feed any number of
// consumers.
type OutAnchor struct {
	node  *Node
	index int
	peers []*InAnchor
	desc  TensorDesc
}

// Node returns the node owning the anchor.
func (a *OutAnchor) Node() *Node { return a.node }

// Index returns the anchor's output index.
func (a *OutAnchor) Index() int { return a.index }

// Desc returns the tensor descriptor of the output.
func (a *OutAnchor) Desc() *TensorDesc { return &a.desc }

// Peers returns a snapshot of the consuming anchors. Relinking while ranging
// over the result is safe.
func (a *OutAnchor) Peers() []*InAnchor { return slices.Clone(a.peers) }

// LinkTo connects the output to in. It fails with [ErrAnchorOccupied] when in
// already has a producer, so a consumer never observes two producers.
func (a *OutAnchor) LinkTo(in *InAnchor) error {
	if a == nil || in == nil {
		return ErrNilAnchor
	}
	if in.peer != nil {
		return ErrAnchorOccupied
	}
	in.peer = a
	a.peers = append(a.peers, in)
	return nil
}

// Unlink disconnects in from the output.
func (a *OutAnchor) Unlink(in *InAnchor) error {
	if in == nil || in.peer != a {
		return ErrNotLinked
	}
	in.peer = nil
	a.peers = slices.DeleteFunc(a.peers, func(p *InAnchor) bool { return p == in })
	return nil
}

// UnlinkAll disconnects every consumer of the output.
func (a *OutAnchor) UnlinkAll() {
	for _, p := range a.peers {
		p.peer = nil
	}
	a.peers = nil
}

// Relink moves the consumer in from its current producer to a. The unlink
// and link happen together, so in is never left without a producer.
func Relink(in *InAnchor, a *OutAnchor) error {
	if in == nil || a == nil {
		return ErrNilAnchor
	}
	if in.peer == a {
		return nil
	}
	in.Unlink()
	return a.LinkTo(in)
}

// Node is an operator in a compute graph.
//
// The zero value is not usable; create nodes with [NewNode] and add them to a
// graph with [Graph.AddNode]. A node is not safe for concurrent use.
type Node struct {
	id        int64
	name      string
	kind      Kind
	opType    string
	attrs     Attrs
	inputs    []*InAnchor
	outputs   []*OutAnchor
	ctrlIn    []*Node
	ctrlOut   []*Node
	owner     *Graph
	subgraphs []string
}

// NewNode creates a detached node with the given number of data anchors.
// The operator type defaults to the kind name.
func NewNode(name string, kind Kind, numInputs, numOutputs int) *Node {
	n := &Node{id: -1, name: name, kind: kind, opType: kind.String(), attrs: Attrs{}}
	for range numInputs {
		n.AddInput()
	}
	for range numOutputs {
		n.AddOutput()
	}
	return n
}

// ID returns the node id assigned by the owning graph.
func (n *Node) ID() int64 { return n.id }

// SetID overrides the node id.
func (n *Node) SetID(id int64) { n.id = id }

// Name returns the node name, unique within its graph.
func (n *Node) Name() string { return n.name }

// Kind returns the operator kind.
func (n *Node) Kind() Kind { return n.kind }

// Type returns the concrete operator type (e.g. "Add").
func (n *Node) Type() string { return n.opType }

// SetType sets the concrete operator type.
func (n *Node) SetType(t string) { n.opType = t }

// Attrs returns the node attributes. The map is never nil.
func (n *Node) Attrs() Attrs { return n.attrs }

// Owner returns the graph the node currently belongs to.
func (n *Node) Owner() *Graph { return n.owner }

// String returns the node name.
func (n *Node) String() string { return n.name }

// AddInput appends a new data input anchor.
func (n *Node) AddInput() *InAnchor {
	a := &InAnchor{node: n, index: len(n.inputs)}
	n.inputs = append(n.inputs, a)
	return a
}

// AddOutput appends a new data output anchor.
func (n *Node) AddOutput() *OutAnchor {
	a := &OutAnchor{node: n, index: len(n.outputs)}
	n.outputs = append(n.outputs, a)
	return a
}

// Input returns input anchor i, or nil when out of range.
func (n *Node) Input(i int) *InAnchor {
	if i < 0 || i >= len(n.inputs) {
		return nil
	}
	return n.inputs[i]
}

// Output returns output anchor i, or nil when out of range.
func (n *Node) Output(i int) *OutAnchor {
	if i < 0 || i >= len(n.outputs) {
		return nil
	}
	return n.outputs[i]
}

// Inputs returns the input anchors in index order.
func (n *Node) Inputs() []*InAnchor { return n.inputs }

// Outputs returns the output anchors in index order.
func (n *Node) Outputs() []*OutAnchor { return n.outputs }

// ControlInputs returns a snapshot of the control predecessors.
func (n *Node) ControlInputs() []*Node { return slices.Clone(n.ctrlIn) }

// ControlOutputs returns a snapshot of the control successors.
func (n *Node) ControlOutputs() []*Node { return slices.Clone(n.ctrlOut) }

// Subgraphs returns the subgraph instance names owned by the node, in index
// order.
func (n *Node) Subgraphs() []string { return slices.Clone(n.subgraphs) }

// AddSubgraph appends a subgraph instance name.
func (n *Node) AddSubgraph(name string) { n.subgraphs = append(n.subgraphs, name) }

// SetSubgraph replaces the subgraph instance name at index i.
func (n *Node) SetSubgraph(i int, name string) {
	if i >= 0 && i < len(n.subgraphs) {
		n.subgraphs[i] = name
	}
}

// InDataNodes returns the distinct producers of the node's data inputs in
// input order.
func (n *Node) InDataNodes() []*Node {
	var out []*Node
	for _, in := range n.inputs {
		if in.peer != nil && !slices.Contains(out, in.peer.node) {
			out = append(out, in.peer.node)
		}
	}
	return out
}

// OutDataNodes returns the distinct consumers of the node's data outputs.
func (n *Node) OutDataNodes() []*Node {
	var out []*Node
	for _, o := range n.outputs {
		for _, p := range o.peers {
			if !slices.Contains(out, p.node) {
				out = append(out, p.node)
			}
		}
	}
	return out
}

// InNodes returns the distinct data and control predecessors.
func (n *Node) InNodes() []*Node {
	out := n.InDataNodes()
	for _, c := range n.ctrlIn {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// OutNodes returns the distinct data and control successors.
func (n *Node) OutNodes() []*Node {
	out := n.OutDataNodes()
	for _, c := range n.ctrlOut {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// HasInputs reports whether any data input is linked or any control
// predecessor exists.
func (n *Node) HasInputs() bool {
	if len(n.ctrlIn) > 0 {
		return true
	}
	for _, in := range n.inputs {
		if in.peer != nil {
			return true
		}
	}
	return false
}

// HasControlEdgeTo reports whether a control edge n→dst exists.
func (n *Node) HasControlEdgeTo(dst *Node) bool { return slices.Contains(n.ctrlOut, dst) }

// Isolate removes every data and control edge of the node.
func (n *Node) Isolate() {
	for _, in := range n.inputs {
		in.Unlink()
	}
	for _, o := range n.outputs {
		o.UnlinkAll()
	}
	for _, p := range n.ControlInputs() {
		RemoveControlEdge(p, n)
	}
	for _, s := range n.ControlOutputs() {
		RemoveControlEdge(n, s)
	}
}

// AddControlEdge adds the control edge src→dst. Adding an existing edge is a
// no-op.
func AddControlEdge(src, dst *Node) error {
	if src == nil || dst == nil {
		return ErrNilNode
	}
	if src == dst {
		return ErrSelfLoop
	}
	if slices.Contains(src.ctrlOut, dst) {
		return nil
	}
	src.ctrlOut = append(src.ctrlOut, dst)
	dst.ctrlIn = append(dst.ctrlIn, src)
	return nil
}

// RemoveControlEdge removes the control edge src→dst if present.
func RemoveControlEdge(src, dst *Node) {
	src.ctrlOut = slices.DeleteFunc(src.ctrlOut, func(n *Node) bool { return n == dst })
	dst.ctrlIn = slices.DeleteFunc(dst.ctrlIn, func(n *Node) bool { return n == src })
}
