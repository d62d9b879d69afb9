package io

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hicann/ge-sub098/pkg/errors"
	"github.com/hicann/ge-sub098/pkg/graph"
)

type graphDoc struct {
	Name      string        `json:"name"`
	Flags     flagsDoc      `json:"flags"`
	Attrs     graph.Attrs   `json:"attrs,omitempty"`
	Nodes     []nodeDoc     `json:"nodes"`
	Edges     []edgeDoc     `json:"edges,omitempty"`
	Control   []edgeDoc     `json:"control_edges,omitempty"`
	Subgraphs []subgraphDoc `json:"subgraphs,omitempty"`
}

type subgraphDoc struct {
	graphDoc
	ParentNode  string `json:"parent_node"`
	ParentGraph string `json:"parent_graph"`
}

type flagsDoc struct {
	UnknownShape bool   `json:"unknown_shape,omitempty"`
	Partitioned  bool   `json:"dynamic_shape_partitioned,omitempty"`
	NeedIterate  bool   `json:"need_iteration,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	GraphID      uint64 `json:"graph_id,omitempty"`
}

type nodeDoc struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Kind      string      `json:"kind"`
	Type      string      `json:"type,omitempty"`
	Inputs    []tensorDoc `json:"inputs,omitempty"`
	Outputs   []tensorDoc `json:"outputs,omitempty"`
	Attrs     graph.Attrs `json:"attrs,omitempty"`
	Subgraphs []string    `json:"subgraphs,omitempty"`
}

type tensorDoc struct {
	Shape graph.Shape `json:"shape,omitempty"`
	Attrs graph.Attrs `json:"attrs,omitempty"`
}

// edgeDoc is a data edge between "node:index" endpoints, or a control edge
// between plain node names.
type edgeDoc struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// WriteJSON encodes g and every subgraph in its subgraph table as JSON and
// writes it to w. The output can be read back with [ReadJSON].
func WriteJSON(g *graph.Graph, w io.Writer) error {
	doc := encodeGraph(g)
	for _, sub := range g.Subgraphs() {
		sd := subgraphDoc{graphDoc: encodeGraph(sub)}
		if p := sub.ParentNode(); p != nil {
			sd.ParentNode = p.Name()
		}
		if p := sub.ParentGraph(); p != nil {
			sd.ParentGraph = p.Name()
		}
		doc.Subgraphs = append(doc.Subgraphs, sd)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode graph %s", g.Name())
	}
	return nil
}

// ExportJSON writes g to a JSON file at path.
func ExportJSON(g *graph.Graph, path string) error {
	if err := errors.ValidatePath(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "create %s", path)
	}
	defer f.Close()
	return WriteJSON(g, f)
}

func encodeGraph(g *graph.Graph) graphDoc {
	doc := graphDoc{
		Name: g.Name(),
		Flags: flagsDoc{
			UnknownShape: g.UnknownShape(),
			Partitioned:  g.DynamicShapePartitioned(),
			NeedIterate:  g.NeedIteration(),
			SessionID:    g.SessionID(),
			GraphID:      g.GraphID(),
		},
		Nodes: make([]nodeDoc, 0, g.NodeCount()),
	}
	if len(g.Attrs()) > 0 {
		doc.Attrs = g.Attrs()
	}

	for _, n := range g.Nodes() {
		nd := nodeDoc{
			ID:        n.ID(),
			Name:      n.Name(),
			Kind:      n.Kind().String(),
			Type:      n.Type(),
			Subgraphs: n.Subgraphs(),
		}
		if len(n.Attrs()) > 0 {
			nd.Attrs = n.Attrs()
		}
		for _, in := range n.Inputs() {
			nd.Inputs = append(nd.Inputs, tensorDoc{Shape: in.Desc().Shape, Attrs: in.Desc().Attrs})
		}
		for _, o := range n.Outputs() {
			nd.Outputs = append(nd.Outputs, tensorDoc{Shape: o.Desc().Shape, Attrs: o.Desc().Attrs})
			for _, peer := range o.Peers() {
				if peer.Node().Owner() != g {
					continue
				}
				doc.Edges = append(doc.Edges, edgeDoc{
					From: endpoint(n.Name(), o.Index()),
					To:   endpoint(peer.Node().Name(), peer.Index()),
				})
			}
		}
		for _, succ := range n.ControlOutputs() {
			if succ.Owner() == g {
				doc.Control = append(doc.Control, edgeDoc{From: n.Name(), To: succ.Name()})
			}
		}
		doc.Nodes = append(doc.Nodes, nd)
	}
	return doc
}

func endpoint(node string, index int) string {
	return fmt.Sprintf("%s:%d", node, index)
}
