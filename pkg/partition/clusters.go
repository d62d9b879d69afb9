package partition

import (
	"fmt"

	"github.com/hicann/ge-sub098/pkg/cluster"
	"github.com/hicann/ge-sub098/pkg/errors"
	"github.com/hicann/ge-sub098/pkg/graph"
)

// controlFlowGroup lists the nodes sharing one control-flow group id. They
// must end up in the same cluster.
type controlFlowGroup struct {
	id    string
	nodes []*graph.Node
}

// InitClusters builds one cluster per direct node of unit. unit must be
// topologically sorted: producers are looked up among the clusters built
// so far.
func (p *Partitioner) InitClusters(unit *graph.Graph) error {
	p.reg.Reset()
	p.groups = nil
	byID := make(map[string]*controlFlowGroup)

	for _, n := range unit.Nodes() {
		c := p.reg.Add(n, p.clusterType(n))
		for _, in := range n.InNodes() {
			pc, ok := p.reg.Of(in)
			if !ok {
				return errors.Wrap(errors.ErrCodeContract, cluster.ErrUnknownNode,
					"unit %s is not topologically sorted: %s consumes %s", unit.Name(), n.Name(), in.Name())
			}
			p.reg.Connect(pc, c)
		}

		v, ok := n.Attrs()[graph.AttrControlFlowGroup]
		if !ok {
			continue
		}
		id := fmt.Sprint(v)
		g, ok := byID[id]
		if !ok {
			g = &controlFlowGroup{id: id}
			byID[id] = g
			p.groups = append(p.groups, g)
		}
		g.nodes = append(g.nodes, n)
	}

	p.logger.Debug("built clusters", "unit", unit.Name(), "clusters", p.reg.Len(), "groups", len(p.groups))
	return nil
}

func (p *Partitioner) clusterType(n *graph.Node) cluster.Type {
	switch {
	case n.Kind() == graph.KindData:
		return cluster.TypeData
	case n.Kind() == graph.KindNetOutput:
		return cluster.TypeNetOutput
	case isStageCall(n):
		return cluster.TypeStage
	case p.unknown.contains(n):
		return cluster.TypeUnknownShape
	case n.Kind().IsConstant() && !n.HasInputs():
		return cluster.TypeInputNode
	default:
		return cluster.TypeKnownShape
	}
}
