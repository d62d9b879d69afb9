package partition

import (
	stderrors "errors"

	"github.com/hicann/ge-sub098/pkg/cluster"
	"github.com/hicann/ge-sub098/pkg/errors"
	"github.com/hicann/ge-sub098/pkg/graph"
)

// MergeClusters merges the clusters of unit with the configured strategy.
// Every strategy first merges control-flow groups and folds single-input
// reference clusters into their producer.
func (p *Partitioner) MergeClusters(unit *graph.Graph) error {
	if err := p.mergeControlFlowGroups(unit); err != nil {
		return err
	}
	if err := p.mergeRefVariables(); err != nil {
		return err
	}

	var err error
	switch p.strategy {
	case StrategyStableID:
		p.mergeConsecutive()
	case StrategyKnownFirst:
		p.mergeKnownShape()
		if err = p.mergeUnknownShape(); err != nil {
			return err
		}
		p.mergeInputNodes()
		p.demoteSmallKnownShape()
		err = p.mergeUnknownShape()
	default:
		if err = p.mergeUnknownShape(); err != nil {
			return err
		}
		p.mergeKnownShape()
		p.mergeInputNodes()
		p.demoteSmallKnownShape()
		err = p.mergeUnknownShape()
	}
	if err != nil {
		return err
	}

	p.logger.Debug("merged clusters", "unit", unit.Name(), "strategy", p.strategy, "clusters", p.reg.Len())
	return nil
}

func (p *Partitioner) mergeControlFlowGroups(unit *graph.Graph) error {
	for _, g := range p.groups {
		head, _ := p.reg.Of(g.nodes[0])
		for _, n := range g.nodes[1:] {
			c, _ := p.reg.Of(n)
			if c == head {
				continue
			}
			absorbed, err := p.reg.MergeAllPathFrom(head, c)
			if err != nil {
				return errors.Wrap(errors.ErrCodeStructural, err,
					"merge control-flow group %s of unit %s", g.id, unit.Name())
			}
			propagateUnknown(head, absorbed)
		}
	}
	return nil
}

func (p *Partitioner) mergeRefVariables() error {
	for _, c := range p.reg.Clusters() {
		if !c.Alive() || !c.IsRefVariable() {
			continue
		}
		ins := c.Inputs()
		if len(ins) != 1 {
			continue
		}
		producer := ins[0]
		absorbed, err := p.reg.MergeAllPathFrom(producer, c)
		if stderrors.Is(err, cluster.ErrIndependent) {
			continue
		}
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "fold %s into %s", c, producer)
		}
		propagateUnknown(producer, absorbed)
	}
	return nil
}

// propagateUnknown makes target unknown-shape when any cluster it absorbed
// was, so forced merges never put an unknown-shape node in a known frame.
func propagateUnknown(target *cluster.Cluster, absorbed []*cluster.Cluster) {
	if target.IsUnknownShape() {
		return
	}
	for _, c := range absorbed {
		if c.IsUnknownShape() {
			target.SetType(cluster.TypeUnknownShape)
			return
		}
	}
}

// mergeUnknownShape merges every unknown-shape cluster with each of its
// unknown-shape producers along all paths between them.
func (p *Partitioner) mergeUnknownShape() error {
	for _, c := range p.reg.Clusters() {
		if !c.Alive() || !c.IsUnknownShape() {
			continue
		}
		for _, in := range c.Inputs() {
			if !in.Alive() || !in.IsUnknownShape() {
				continue
			}
			_, err := p.reg.MergeAllPathFrom(c, in)
			switch {
			case stderrors.Is(err, cluster.ErrIndependent):
				p.logger.Debug("unknown-shape merge blocked by independent cluster", "into", c, "from", in)
			case err != nil:
				return errors.Wrap(errors.ErrCodeInternal, err, "merge %s into %s", in, c)
			}
		}
	}
	return nil
}

// mergeKnownShape greedily merges adjacent known-shape clusters, skipping
// pairs that a third cluster separates.
func (p *Partitioner) mergeKnownShape() {
	for _, c := range p.reg.Clusters() {
		if !c.Alive() || !c.IsKnownShape() {
			continue
		}
		for _, in := range c.Inputs() {
			if in.Alive() && in.IsKnownShape() {
				p.reg.TryMerge(c, in)
			}
		}
	}
}

func (p *Partitioner) mergeInputNodes() {
	var head *cluster.Cluster
	for _, c := range p.reg.Clusters() {
		if c.Type() != cluster.TypeInputNode {
			continue
		}
		if head == nil {
			head = c
			continue
		}
		p.reg.TryMerge(head, c)
	}
}

func (p *Partitioner) demoteSmallKnownShape() {
	for _, c := range p.reg.Clusters() {
		if c.IsKnownShape() && c.Size() < p.lowerLimit {
			p.logger.Debug("known-shape cluster below lower limit", "cluster", c, "limit", p.lowerLimit)
			c.SetType(cluster.TypeUnknownShape)
		}
	}
}

// mergeConsecutive merges runs of same-type clusters that are adjacent in
// rank order. An undersized known-shape run becomes unknown-shape and joins
// the unknown-shape run before it.
func (p *Partitioner) mergeConsecutive() {
	var runs []*cluster.Cluster
	for _, c := range p.reg.Clusters() {
		if n := len(runs); n > 0 {
			head := runs[n-1]
			if head.Type() == c.Type() && mergeableType(c.Type()) && p.reg.TryMerge(head, c) {
				continue
			}
		}
		runs = append(runs, c)
	}

	var kept []*cluster.Cluster
	for _, run := range runs {
		if run.IsKnownShape() && run.Size() < p.lowerLimit {
			p.logger.Debug("known-shape run below lower limit", "cluster", run, "limit", p.lowerLimit)
			run.SetType(cluster.TypeUnknownShape)
		}
		if n := len(kept); n > 0 && run.IsUnknownShape() && kept[n-1].IsUnknownShape() && p.reg.TryMerge(kept[n-1], run) {
			continue
		}
		kept = append(kept, run)
	}
}

func mergeableType(t cluster.Type) bool {
	return t == cluster.TypeKnownShape || t == cluster.TypeUnknownShape || t == cluster.TypeInputNode
}
