package partition

import (
	"cmp"
	"slices"

	"github.com/hicann/ge-sub098/pkg/graph"
)

// MarkSubgraphUnknownStatus stamps the unknown-shape flag on every
// subgraph this pass did not split or build, such as control-flow bodies.
// Outer subgraphs are stamped before the ones nested in them.
func (p *Partitioner) MarkSubgraphUnknownStatus() {
	handled := make(map[*graph.Graph]bool)
	for _, unit := range p.compileUnits() {
		handled[unit] = true
	}
	for _, f := range p.frames {
		handled[f.Subgraph] = true
	}

	var pending []*graph.Graph
	for _, sub := range p.root.Subgraphs() {
		if !handled[sub] {
			pending = append(pending, sub)
		}
	}
	slices.SortStableFunc(pending, func(a, b *graph.Graph) int { return cmp.Compare(depth(a), depth(b)) })

	for _, sub := range pending {
		unknown := p.CheckIfSubgraphUnknown(sub)
		stampUnit(sub, unknown)
		p.logger.Debug("marked subgraph", "subgraph", sub.Name(), "unknown", unknown)
	}
}

func depth(g *graph.Graph) int {
	d := 0
	for cur := g; cur.ParentGraph() != nil && d <= maxSubgraphDepth; cur = cur.ParentGraph() {
		d++
	}
	return d
}

// CheckIfSubgraphUnknown reports whether sub runs with unknown shapes: its
// parent node is flagged unknown or lives in an unknown graph, or one of its
// nodes is forced unknown or bound to the host CPU engine.
func (p *Partitioner) CheckIfSubgraphUnknown(sub *graph.Graph) bool {
	if parent := sub.ParentNode(); parent != nil {
		if parent.Attrs().IsTrue(graph.AttrUnknownShape) || parent.Attrs().IsTrue(graph.AttrOwnerGraphIsUnknown) {
			return true
		}
	}
	for _, n := range sub.AllNodes() {
		if n.Attrs().IsTrue(graph.AttrForceUnknownShape) {
			return true
		}
		if engine, _ := n.Attrs().String(graph.AttrEngine); engine == graph.EngineHostCPU {
			return true
		}
	}
	return false
}
