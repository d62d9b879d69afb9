package unfold

import (
	"github.com/charmbracelet/log"

	"github.com/hicann/ge-sub098/pkg/errors"
	"github.com/hicann/ge-sub098/pkg/graph"
)

// maxDepth bounds subgraph nesting. Deeper nesting is treated as a malformed
// or cyclic subgraph table.
const maxDepth = 32

// Unfolder inlines the known-shape partitions of a dynamically partitioned
// graph back into a flat graph. An Unfolder is not safe for concurrent use.
type Unfolder struct {
	logger *log.Logger

	// boundary holds the Data and NetOutput nodes already replaced by direct
	// rewiring; they are never copied into the merged graph.
	boundary map[*graph.Node]bool
	inlined  int
}

// New returns an Unfolder logging to logger, or to log.Default() if logger
// is nil.
func New(logger *log.Logger) *Unfolder {
	if logger == nil {
		logger = log.Default()
	}
	return &Unfolder{logger: logger, boundary: make(map[*graph.Node]bool)}
}

// Inlined returns the number of call nodes inlined by the last
// UnfoldSubgraphs call.
func (u *Unfolder) Inlined() int { return u.inlined }

// UnfoldSubgraphs unfolds root with a default Unfolder.
func UnfoldSubgraphs(root *graph.Graph) (*graph.Graph, error) {
	return New(nil).UnfoldSubgraphs(root)
}

// UnfoldSubgraphs returns a new graph holding the nodes of root with every
// inlinable partitioned call replaced by the body of its subgraph. Node ids
// of the result are renumbered 0..N-1 in topological order and every
// remaining subgraph is re-parented onto it.
//
// The nodes of root are moved, not copied. On error root is left partially
// rewritten and must be discarded.
func (u *Unfolder) UnfoldSubgraphs(root *graph.Graph) (*graph.Graph, error) {
	u.boundary = make(map[*graph.Node]bool)
	u.inlined = 0

	merged := graph.New(root.Name())
	if err := u.UnfoldSubgraph(root, root, merged, 0); err != nil {
		return nil, err
	}
	if err := merged.TopologicalSort(graph.SortStable); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStructural, err, "sort unfolded graph %s", root.Name())
	}
	if err := MarkGraphNodeIndex(merged); err != nil {
		return nil, err
	}

	merged.AdoptSubgraphs(root)
	for _, n := range merged.Nodes() {
		for _, name := range n.Subgraphs() {
			if sub, ok := merged.Subgraph(name); ok {
				sub.SetParent(n, merged)
			}
		}
	}
	merged.CopyFlagsFrom(root)

	u.logger.Info("unfolded graph",
		"graph", merged.Name(),
		"inlined", u.inlined,
		"nodes", merged.NodeCount(),
		"subgraphs", len(merged.Subgraphs()))
	return merged, nil
}

// UnfoldSubgraph appends the direct nodes of origin to merged, inlining
// partitioned calls and unfolding nested control-flow subgraphs in place.
// root owns the subgraph table.
func (u *Unfolder) UnfoldSubgraph(root, origin, merged *graph.Graph, depth int) error {
	if depth >= maxDepth {
		return errors.New(errors.ErrCodeTooMuchRecursion,
			"subgraph %s nested %d levels deep", origin.Name(), depth)
	}

	for _, n := range origin.Nodes() {
		if u.boundary[n] {
			continue
		}

		if n.Kind() == graph.KindPartitionedCall {
			sub, err := target(root, n)
			if err != nil {
				return err
			}
			if inlinable(n, sub) {
				if err := u.UnfoldPartitionedCallSubgraph(root, n, sub, merged, depth); err != nil {
					return err
				}
				continue
			}
		}
		if len(n.Subgraphs()) > 0 {
			if err := u.unfoldNested(root, n, depth); err != nil {
				return err
			}
		}

		if err := merged.AddNode(n); err != nil {
			return errors.Wrap(errors.ErrCodeStructural, err, "add %s to %s", n.Name(), merged.Name())
		}
	}
	return nil
}

// unfoldNested unfolds every subgraph of n into a fresh graph and swaps it
// into the subgraph table under the same name.
func (u *Unfolder) unfoldNested(root *graph.Graph, n *graph.Node, depth int) error {
	for _, name := range n.Subgraphs() {
		sub, ok := root.Subgraph(name)
		if !ok {
			return errors.New(errors.ErrCodeStructural, "subgraph %s of %s not found", name, n.Name())
		}
		fresh := graph.New(name)
		fresh.CopyFlagsFrom(sub)
		fresh.SetParent(sub.ParentNode(), sub.ParentGraph())
		if err := u.UnfoldSubgraph(root, sub, fresh, depth+1); err != nil {
			return err
		}
		if err := fresh.TopologicalSort(graph.SortStable); err != nil {
			return errors.Wrap(errors.ErrCodeStructural, err, "sort unfolded subgraph %s", name)
		}
		if err := root.ReplaceSubgraph(fresh); err != nil {
			return errors.Wrap(errors.ErrCodeStructural, err, "replace subgraph %s", name)
		}
		for _, inner := range fresh.Nodes() {
			for _, innerName := range inner.Subgraphs() {
				if s, ok := root.Subgraph(innerName); ok {
					s.SetParent(inner, fresh)
				}
			}
		}
	}
	return nil
}

// UnfoldPartitionedCallSubgraph inlines the body of sub in place of call.
// A call whose subgraph is not dynamically compiled is kept as is.
func (u *Unfolder) UnfoldPartitionedCallSubgraph(root *graph.Graph, call *graph.Node, sub, merged *graph.Graph, depth int) error {
	if !dynamicallyCompiled(sub) {
		if err := merged.AddNode(call); err != nil {
			return errors.Wrap(errors.ErrCodeStructural, err, "add %s to %s", call.Name(), merged.Name())
		}
		return nil
	}

	if stage, ok := call.Attrs()[graph.AttrStageLevel]; ok {
		for _, n := range sub.Nodes() {
			n.Attrs()[graph.AttrStageLevel] = stage
		}
	}
	if err := u.MergeInputNodes(call, sub); err != nil {
		return err
	}
	if err := u.MergeNetOutputNode(call, sub); err != nil {
		return err
	}
	if err := u.UnfoldSubgraph(root, sub, merged, depth+1); err != nil {
		return err
	}

	call.Isolate()
	if err := root.RemoveSubgraph(sub.Name()); err != nil {
		return errors.Wrap(errors.ErrCodeStructural, err, "remove subgraph %s", sub.Name())
	}
	u.inlined++
	u.logger.Debug("inlined partitioned call", "call", call.Name(), "subgraph", sub.Name(), "depth", depth)
	return nil
}

// MergeInputNodes replaces every Data node of sub by a direct link from the
// matching producer of call. The control predecessors of call are attached
// to the nodes of sub left without any input.
func (u *Unfolder) MergeInputNodes(call *graph.Node, sub *graph.Graph) error {
	var roots []*graph.Node
	for _, n := range sub.Nodes() {
		if n.Kind() == graph.KindData {
			if err := u.MergeInputInData(call, n); err != nil {
				return err
			}
			continue
		}
		if n.Kind() != graph.KindNetOutput && !n.HasInputs() {
			roots = append(roots, n)
		}
	}

	for _, pred := range call.ControlInputs() {
		for _, r := range roots {
			if r.Kind().IsControlOnly() || r.Kind().IsConstant() {
				continue
			}
			if err := graph.AddControlEdge(pred, r); err != nil {
				return errors.Wrap(errors.ErrCodeStructural, err, "attach control edge %s -> %s", pred.Name(), r.Name())
			}
		}
	}
	return nil
}

// MergeInputInData rewires the consumers of data to the producer feeding
// the call input named by its parent node index.
func (u *Unfolder) MergeInputInData(call, data *graph.Node) error {
	idx, ok := data.Attrs().Int(graph.AttrParentNodeIndex)
	if !ok {
		return errors.New(errors.ErrCodeMissingAttribute,
			"data node %s has no %s", data.Name(), graph.AttrParentNodeIndex)
	}
	in := call.Input(int(idx))
	if in == nil || in.Peer() == nil {
		return errors.New(errors.ErrCodeStructural,
			"input %d of %s is not connected for data node %s", idx, call.Name(), data.Name())
	}
	src := in.Peer()
	if IsDataNotNeedRefConst(data) {
		u.logger.Debug("data bound to partitioned constant", "data", data.Name(), "const", src.Node().Name())
	}

	for _, o := range data.Outputs() {
		for _, peer := range o.Peers() {
			if err := graph.Relink(peer, src); err != nil {
				return errors.Wrap(errors.ErrCodeStructural, err, "rewire consumer of %s", data.Name())
			}
		}
	}
	producer := src.Node()
	for _, pred := range data.ControlInputs() {
		graph.RemoveControlEdge(pred, data)
		if pred == producer {
			continue
		}
		if err := graph.AddControlEdge(pred, producer); err != nil {
			return errors.Wrap(errors.ErrCodeStructural, err, "move control edge %s -> %s", pred.Name(), data.Name())
		}
	}
	for _, succ := range data.ControlOutputs() {
		graph.RemoveControlEdge(data, succ)
		if succ == producer {
			continue
		}
		if err := graph.AddControlEdge(producer, succ); err != nil {
			return errors.Wrap(errors.ErrCodeStructural, err, "move control edge %s -> %s", data.Name(), succ.Name())
		}
	}
	u.boundary[data] = true
	return nil
}

// MergeNetOutputNode replaces the NetOutput nodes of sub by direct links to
// the consumers of call.
func (u *Unfolder) MergeNetOutputNode(call *graph.Node, sub *graph.Graph) error {
	for _, n := range sub.Nodes() {
		if n.Kind() != graph.KindNetOutput {
			continue
		}
		if err := u.MergeNetOutputInData(call, n); err != nil {
			return err
		}
	}
	return nil
}

// MergeNetOutputInData links each producer feeding out to the consumers of
// the call output named by the input's parent node index, then orders the
// producers before the control successors of call.
func (u *Unfolder) MergeNetOutputInData(call, out *graph.Node) error {
	sources := out.InNodes()
	for _, in := range out.Inputs() {
		src := in.Peer()
		if src == nil {
			continue
		}
		idx, ok := in.Desc().Attrs.Int(graph.AttrParentNodeIndex)
		if !ok {
			return errors.New(errors.ErrCodeMissingAttribute,
				"input %d of %s has no %s", in.Index(), out.Name(), graph.AttrParentNodeIndex)
		}
		callOut := call.Output(int(idx))
		if callOut == nil {
			return errors.New(errors.ErrCodeStructural,
				"%s has no output %d for %s", call.Name(), idx, out.Name())
		}
		in.Unlink()
		for _, peer := range callOut.Peers() {
			if err := graph.Relink(peer, src); err != nil {
				return errors.Wrap(errors.ErrCodeStructural, err, "rewire consumer of %s output %d", call.Name(), idx)
			}
		}
	}

	for _, src := range sources {
		for _, sink := range call.ControlOutputs() {
			if src.HasControlEdgeTo(sink) {
				continue
			}
			if err := graph.AddControlEdge(src, sink); err != nil {
				return errors.Wrap(errors.ErrCodeStructural, err, "restore control edge %s -> %s", src.Name(), sink.Name())
			}
		}
	}
	out.Isolate()
	u.boundary[out] = true
	return nil
}

// IsGraphNeedUnfold reports whether some direct partitioned call of root
// targets a dynamically compiled subgraph that is not scheduled on its own.
func IsGraphNeedUnfold(root *graph.Graph) bool {
	for _, n := range root.Nodes() {
		if n.Kind() != graph.KindPartitionedCall {
			continue
		}
		for _, name := range n.Subgraphs() {
			sub, ok := root.Subgraph(name)
			if ok && dynamicallyCompiled(sub) && !separatelyScheduled(n, sub) {
				return true
			}
		}
	}
	return false
}

// IsDataNotNeedRefConst reports whether n is a subgraph Data node fed by a
// constant that lives in a dynamically partitioned graph. Such inputs need no
// materialized reference constant.
func IsDataNotNeedRefConst(n *graph.Node) bool {
	if n.Kind() != graph.KindData || n.Owner() == nil {
		return false
	}
	call := n.Owner().ParentNode()
	if call == nil {
		return false
	}
	idx, ok := n.Attrs().Int(graph.AttrParentNodeIndex)
	if !ok {
		return false
	}
	in := call.Input(int(idx))
	if in == nil || in.Peer() == nil {
		return false
	}
	producer := in.Peer().Node()
	owner := producer.Owner()
	return producer.Kind().IsConstant() && owner != nil && owner.DynamicShapePartitioned()
}

// MarkGraphNodeIndex renumbers the direct nodes of g 0..N-1 in their current
// order. The current ids must already be non-decreasing in that order.
func MarkGraphNodeIndex(g *graph.Graph) error {
	nodes := g.Nodes()
	for i := 1; i < len(nodes); i++ {
		if nodes[i].ID() < nodes[i-1].ID() {
			return errors.New(errors.ErrCodeContract,
				"node %s (id %d) follows %s (id %d) in %s",
				nodes[i].Name(), nodes[i].ID(), nodes[i-1].Name(), nodes[i-1].ID(), g.Name())
		}
	}
	for i, n := range nodes {
		n.SetID(int64(i))
	}
	return nil
}

func target(root *graph.Graph, call *graph.Node) (*graph.Graph, error) {
	names := call.Subgraphs()
	if len(names) != 1 {
		return nil, errors.New(errors.ErrCodeStructural,
			"partitioned call %s has %d subgraphs, want 1", call.Name(), len(names))
	}
	sub, ok := root.Subgraph(names[0])
	if !ok {
		return nil, errors.New(errors.ErrCodeStructural, "subgraph %s of %s not found", names[0], call.Name())
	}
	return sub, nil
}

// dynamicallyCompiled reports whether sub was produced by, or itself went
// through, dynamic-shape partitioning.
func dynamicallyCompiled(sub *graph.Graph) bool {
	if sub.DynamicShapePartitioned() {
		return true
	}
	parent := sub.ParentGraph()
	return parent != nil && parent.DynamicShapePartitioned()
}

func separatelyScheduled(call *graph.Node, sub *graph.Graph) bool {
	return call.Attrs().IsTrue(graph.AttrSeparatelyScheduled) || sub.Attrs().IsTrue(graph.AttrSeparatelyScheduled)
}

func inlinable(call *graph.Node, sub *graph.Graph) bool {
	return !sub.UnknownShape() && !separatelyScheduled(call, sub)
}
