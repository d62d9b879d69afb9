package partition

import (
	"fmt"
	"strings"

	"github.com/hicann/ge-sub098/pkg/cluster"
	"github.com/hicann/ge-sub098/pkg/errors"
	"github.com/hicann/ge-sub098/pkg/graph"
)

// BuildPartitionFrame materializes every known-shape, unknown-shape and
// input-node cluster of unit as a subgraph invoked by a new call node.
// clusters must be in topological order; frames are built one at a time so
// each one sees the call nodes of the frames before it as plain producers.
func (p *Partitioner) BuildPartitionFrame(unit *graph.Graph, clusters []*cluster.Cluster) error {
	for _, c := range clusters {
		if !c.Type().NeedsFrame() {
			continue
		}
		f, err := p.buildFrame(unit, c)
		if err != nil {
			return err
		}
		p.frames = append(p.frames, f)
		p.stats.Frames++
		p.logger.Debug("built partition frame",
			"unit", unit.Name(),
			"subgraph", f.Subgraph.Name(),
			"type", f.Type,
			"nodes", c.Size())
	}

	if err := unit.TopologicalSort(p.sortMode); err != nil {
		return errors.Wrap(errors.ErrCodeStructural, err, "sort partitioned unit %s", unit.Name())
	}
	unit.SetUnknownShape(false)
	unit.Attrs()[graph.AttrUnknownShape] = false
	return nil
}

func frameName(unit *graph.Graph, c *cluster.Cluster) string {
	return fmt.Sprintf("%s_partition_%d_%s", unit.Name(), c.MinRank(), strings.ToLower(c.Type().String()))
}

func (p *Partitioner) buildFrame(unit *graph.Graph, c *cluster.Cluster) (Frame, error) {
	name := frameName(unit, c)
	unknown := c.IsUnknownShape()
	members := c.Nodes()
	inFrame := make(map[*graph.Node]bool, len(members))
	for _, n := range members {
		inFrame[n] = true
	}

	sub := graph.New(name)
	sub.SetUnknownShape(unknown)
	sub.Attrs()[graph.AttrUnknownShape] = unknown

	call := graph.NewNode(name+"_call", graph.KindPartitionedCall, 0, 0)
	call.AddSubgraph(name)
	call.Attrs()[graph.AttrUnknownShape] = unknown
	if err := unit.AddNode(call); err != nil {
		return Frame{}, errors.Wrap(errors.ErrCodeStructural, err, "add call node %s", call.Name())
	}
	if err := unit.AddSubgraph(sub, call); err != nil {
		return Frame{}, errors.Wrap(errors.ErrCodeStructural, err, "register subgraph %s", name)
	}

	var args []*graph.Node
	argOf := make(map[*graph.OutAnchor]*graph.Node)
	for _, n := range members {
		for _, in := range n.Inputs() {
			src := in.Peer()
			if src == nil || inFrame[src.Node()] {
				continue
			}
			data, ok := argOf[src]
			if !ok {
				idx := len(args)
				data = graph.NewNode(fmt.Sprintf("%s_arg_%d", name, idx), graph.KindData, 0, 1)
				data.Attrs()[graph.AttrParentNodeIndex] = int64(idx)
				data.Output(0).Desc().Shape = src.Desc().Shape
				callIn := call.AddInput()
				callIn.Desc().Shape = src.Desc().Shape
				if err := src.LinkTo(callIn); err != nil {
					return Frame{}, errors.Wrap(errors.ErrCodeStructural, err, "link input %d of %s", idx, call.Name())
				}
				argOf[src] = data
				args = append(args, data)
			}
			if err := graph.Relink(in, data.Output(0)); err != nil {
				return Frame{}, errors.Wrap(errors.ErrCodeStructural, err, "relink %s input %d", n.Name(), in.Index())
			}
		}
	}

	out := graph.NewNode(name+"_out", graph.KindNetOutput, 0, 0)
	for _, n := range members {
		for _, o := range n.Outputs() {
			var external []*graph.InAnchor
			for _, peer := range o.Peers() {
				if !inFrame[peer.Node()] {
					external = append(external, peer)
				}
			}
			if len(external) == 0 {
				continue
			}
			idx := len(out.Inputs())
			callOut := call.AddOutput()
			callOut.Desc().Shape = o.Desc().Shape
			for _, peer := range external {
				if err := graph.Relink(peer, callOut); err != nil {
					return Frame{}, errors.Wrap(errors.ErrCodeStructural, err, "relink consumer of %s", n.Name())
				}
			}
			netIn := out.AddInput()
			netIn.Desc().Shape = o.Desc().Shape
			netIn.Desc().Attrs = graph.Attrs{graph.AttrParentNodeIndex: int64(idx)}
			if err := o.LinkTo(netIn); err != nil {
				return Frame{}, errors.Wrap(errors.ErrCodeStructural, err, "link output %d of %s", idx, name)
			}
		}
	}

	for _, n := range members {
		for _, pred := range n.ControlInputs() {
			if !inFrame[pred] {
				graph.RemoveControlEdge(pred, n)
				if err := graph.AddControlEdge(pred, call); err != nil {
					return Frame{}, errors.Wrap(errors.ErrCodeStructural, err, "redirect control edge %s -> %s", pred.Name(), n.Name())
				}
			}
		}
		for _, succ := range n.ControlOutputs() {
			if !inFrame[succ] {
				graph.RemoveControlEdge(n, succ)
				if err := graph.AddControlEdge(call, succ); err != nil {
					return Frame{}, errors.Wrap(errors.ErrCodeStructural, err, "redirect control edge %s -> %s", n.Name(), succ.Name())
				}
			}
		}
	}

	for _, data := range args {
		if err := sub.AddNode(data); err != nil {
			return Frame{}, errors.Wrap(errors.ErrCodeStructural, err, "add %s", data.Name())
		}
	}
	for _, n := range members {
		if err := unit.RemoveNode(n); err != nil {
			return Frame{}, errors.Wrap(errors.ErrCodeStructural, err, "move %s out of %s", n.Name(), unit.Name())
		}
		if err := sub.AddNode(n); err != nil {
			return Frame{}, errors.Wrap(errors.ErrCodeStructural, err, "move %s into %s", n.Name(), name)
		}
		n.Attrs()[graph.AttrOwnerGraphIsUnknown] = unknown
	}
	if err := sub.AddNode(out); err != nil {
		return Frame{}, errors.Wrap(errors.ErrCodeStructural, err, "add %s", out.Name())
	}

	return Frame{Unit: unit, Subgraph: sub, Call: call, Type: c.Type()}, nil
}
