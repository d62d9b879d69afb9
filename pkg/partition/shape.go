package partition

import (
	"slices"

	"github.com/hicann/ge-sub098/pkg/errors"
	"github.com/hicann/ge-sub098/pkg/graph"
)

// maxSubgraphDepth bounds the walk into nested subgraphs while classifying
// a node.
const maxSubgraphDepth = 32

// Oracle answers the tiling questions the partitioner cannot decide from
// the graph alone.
type Oracle interface {
	// SupportsNoTiling reports whether the operator's engine can run it
	// without a precomputed tiling schedule.
	SupportsNoTiling(n *graph.Node) bool
	// IsTilingDataDependent reports whether tiling depends on the value,
	// not only the shape, of input idx.
	IsTilingDataDependent(n *graph.Node, idx int) bool
	// SupportsHostPlacement reports whether input idx may live in host
	// memory.
	SupportsHostPlacement(n *graph.Node, idx int) bool
}

// NoTilingUnsupported is an Oracle for which no operator supports no-tiling
// execution.
type NoTilingUnsupported struct{}

func (NoTilingUnsupported) SupportsNoTiling(*graph.Node) bool           { return false }
func (NoTilingUnsupported) IsTilingDataDependent(*graph.Node, int) bool { return false }
func (NoTilingUnsupported) SupportsHostPlacement(*graph.Node, int) bool { return false }

// Node attributes read by [AttrOracle].
const (
	AttrNoTilingSupported   = "_no_tiling_supported"
	AttrTilingDependInputs  = "_tiling_depend_inputs"
	AttrHostPlacementInputs = "_host_placement_inputs"
)

// AttrOracle answers from node attributes stamped by an earlier kernel
// selection pass. It is the oracle used for graphs read from files.
type AttrOracle struct{}

func (AttrOracle) SupportsNoTiling(n *graph.Node) bool {
	return n.Attrs().IsTrue(AttrNoTilingSupported)
}

func (AttrOracle) IsTilingDataDependent(n *graph.Node, idx int) bool {
	list, _ := n.Attrs().Ints(AttrTilingDependInputs)
	return slices.Contains(list, int64(idx))
}

func (AttrOracle) SupportsHostPlacement(n *graph.Node, idx int) bool {
	list, _ := n.Attrs().Ints(AttrHostPlacementInputs)
	return slices.Contains(list, int64(idx))
}

// nodeSet is an insertion-ordered node set.
type nodeSet struct {
	order []*graph.Node
	has   map[*graph.Node]bool
}

func (s *nodeSet) add(n *graph.Node) {
	if s.has == nil {
		s.has = make(map[*graph.Node]bool)
	}
	if !s.has[n] {
		s.has[n] = true
		s.order = append(s.order, n)
	}
}

func (s *nodeSet) contains(n *graph.Node) bool { return s.has[n] }
func (s *nodeSet) size() int                   { return len(s.order) }
func (s *nodeSet) nodes() []*graph.Node        { return slices.Clone(s.order) }

func (s *nodeSet) reset() {
	s.order = nil
	clear(s.has)
}

// IsGraphNeedUnknownShapePartition classifies the nodes of unit and reports
// whether it has to be split. Units that are not split are stamped whole:
// known-shape, or unknown-shape when the unit is too small to be worth
// splitting.
func (p *Partitioner) IsGraphNeedUnknownShapePartition(unit *graph.Graph) (bool, error) {
	if p.dynamicBatch {
		p.logger.Debug("dynamic batch enabled, unit kept whole", "unit", unit.Name())
		stampUnit(unit, false)
		return false, nil
	}
	if err := p.MarkUnknownShapeNodes(unit); err != nil {
		return false, err
	}
	if p.unknown.size() == 0 {
		p.logger.Debug("unit is known-shape", "unit", unit.Name(), "no_tiling", p.noTiling.size())
		stampUnit(unit, false)
		return false, nil
	}

	if p.nodeThreshold > 0 {
		known := 0
		special := p.root.NeedIteration()
		for _, n := range unit.Nodes() {
			if !p.unknown.contains(n) {
				known++
			}
			if n.Kind().HasSubgraphs() || n.Kind().IsControlFlow() {
				special = true
			}
		}
		if known < p.nodeThreshold && !special {
			p.logger.Info("unit forced dynamic",
				"unit", unit.Name(),
				"known_nodes", known,
				"threshold", p.nodeThreshold)
			stampUnit(unit, true)
			return false, nil
		}
	}
	return true, nil
}

func stampUnit(unit *graph.Graph, unknown bool) {
	unit.SetUnknownShape(unknown)
	unit.Attrs()[graph.AttrUnknownShape] = unknown
	for _, n := range unit.Nodes() {
		n.Attrs()[graph.AttrOwnerGraphIsUnknown] = unknown
	}
}

// MarkUnknownShapeNodes collects the unknown-shape and no-tiling nodes of
// unit, then spreads the unknown set with CollectSpreadUnknownShapeNodes.
func (p *Partitioner) MarkUnknownShapeNodes(unit *graph.Graph) error {
	p.unknown.reset()
	p.noTiling.reset()
	for _, n := range unit.Nodes() {
		unknown, noTiling, err := p.classify(n, 0)
		if err != nil {
			return err
		}
		switch {
		case unknown:
			p.unknown.add(n)
		case noTiling:
			p.noTiling.add(n)
		}
	}
	p.CollectSpreadUnknownShapeNodes(unit)
	p.logger.Debug("marked unknown-shape nodes",
		"unit", unit.Name(),
		"unknown", p.unknown.size(),
		"no_tiling", p.noTiling.size())
	return nil
}

// CollectSpreadUnknownShapeNodes folds the no-tiling set into the unknown
// set when both are populated, then pulls in constants feeding unknown
// nodes.
func (p *Partitioner) CollectSpreadUnknownShapeNodes(unit *graph.Graph) {
	if p.unknown.size() > 0 && p.noTiling.size() > 0 {
		for _, n := range p.noTiling.nodes() {
			markNoTiling(n, false)
			p.unknown.add(n)
		}
		p.logger.Debug("no-tiling nodes demoted to unknown-shape", "unit", unit.Name(), "count", p.noTiling.size())
		p.noTiling.reset()
	}

	for _, n := range p.unknown.nodes() {
		for _, in := range n.InDataNodes() {
			if in.Kind().IsConstant() && in.Owner() == unit {
				p.unknown.add(in)
			}
		}
	}
}

// IsUnknownShapeNode reports whether n must run in an unknown-shape
// partition. A node with an unresolved tensor that cannot run without
// tiling gets its no-tiling attribute set to false; one that can is marked
// no-tiling and reported known.
func (p *Partitioner) IsUnknownShapeNode(n *graph.Node) (bool, error) {
	unknown, _, err := p.classify(n, 0)
	return unknown, err
}

func (p *Partitioner) classify(n *graph.Node, depth int) (unknown, noTiling bool, err error) {
	if n == nil {
		return false, false, errors.New(errors.ErrCodeStructural, "nil node")
	}
	if n.Attrs().IsTrue(graph.AttrForceUnknownShape) {
		return true, false, nil
	}
	if engine, _ := n.Attrs().String(graph.AttrEngine); engine == graph.EngineHostCPU {
		return true, false, nil
	}
	if hasUnknownTensor(n) {
		if p.supportsNoTiling(n) {
			markNoTiling(n, true)
			return false, true, nil
		}
		n.Attrs()[graph.AttrOpNoTiling] = false
		return true, false, nil
	}
	for _, name := range n.Subgraphs() {
		sub, ok := p.root.Subgraph(name)
		if !ok {
			return false, false, errors.New(errors.ErrCodeStructural, "node %s references missing subgraph %s", n.Name(), name)
		}
		unknown, err := p.subgraphHasUnknown(sub, depth+1)
		if err != nil {
			return false, false, err
		}
		if unknown {
			return true, false, nil
		}
	}
	return false, false, nil
}

func (p *Partitioner) subgraphHasUnknown(sub *graph.Graph, depth int) (bool, error) {
	if depth >= maxSubgraphDepth {
		return false, errors.New(errors.ErrCodeTooMuchRecursion, "subgraph %s nested deeper than %d", sub.Name(), maxSubgraphDepth)
	}
	if sub.UnknownShape() {
		return true, nil
	}
	for _, n := range sub.Nodes() {
		unknown, _, err := p.classify(n, depth)
		if err != nil || unknown {
			return unknown, err
		}
	}
	return false, nil
}

// supportsNoTiling reports whether n can run without a tiling schedule:
// its kind allows it, the oracle confirms it, and every input its tiling
// reads by value can be placed on the host.
func (p *Partitioner) supportsNoTiling(n *graph.Node) bool {
	if !n.Kind().IsNoTilingEligible() || !p.oracle.SupportsNoTiling(n) {
		return false
	}
	for _, in := range n.Inputs() {
		if p.oracle.IsTilingDataDependent(n, in.Index()) && !p.oracle.SupportsHostPlacement(n, in.Index()) {
			return false
		}
	}
	return true
}

func hasUnknownTensor(n *graph.Node) bool {
	for _, in := range n.Inputs() {
		if in.Desc().Shape.IsUnknown() {
			return true
		}
	}
	for _, out := range n.Outputs() {
		if out.Desc().Shape.IsUnknown() {
			return true
		}
	}
	return false
}

func markNoTiling(n *graph.Node, v bool) {
	n.Attrs()[graph.AttrOpNoTiling] = v
	for _, in := range n.Inputs() {
		in.Desc().SetNoTiling(v)
	}
	for _, out := range n.Outputs() {
		out.Desc().SetNoTiling(v)
	}
}
