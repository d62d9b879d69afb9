package io

import (
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hicann/ge-sub098/pkg/errors"
	"github.com/hicann/ge-sub098/pkg/graph"
)

// ReadJSON decodes a JSON compute graph from r.
//
// The input is a graph object with "name", "nodes", "edges" and optional
// "control_edges", "flags", "attrs" and "subgraphs". Data edges connect
// "node:index" endpoints; control edges connect node names. Every entry of
// "subgraphs" is a graph object of the same shape plus "parent_node" and
// "parent_graph", which name the node owning it and the graph holding that
// node.
//
// Node ids in the input are informational: ids are reassigned in node order.
// ReadJSON does not close r.
func ReadJSON(r io.Reader) (*graph.Graph, error) {
	var doc graphDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode graph")
	}

	root, err := decodeGraph(&doc)
	if err != nil {
		return nil, err
	}

	graphs := map[string]*graph.Graph{root.Name(): root}
	subs := make([]*graph.Graph, len(doc.Subgraphs))
	for i := range doc.Subgraphs {
		sub, err := decodeGraph(&doc.Subgraphs[i].graphDoc)
		if err != nil {
			return nil, err
		}
		if _, dup := graphs[sub.Name()]; dup {
			return nil, errors.New(errors.ErrCodeInvalidInput, "duplicate graph name %q", sub.Name())
		}
		graphs[sub.Name()] = sub
		subs[i] = sub
	}

	for i, sd := range doc.Subgraphs {
		pg, ok := graphs[sd.ParentGraph]
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput,
				"subgraph %s: unknown parent graph %q", sd.Name, sd.ParentGraph)
		}
		pn, ok := pg.Node(sd.ParentNode)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput,
				"subgraph %s: parent node %q not in %s", sd.Name, sd.ParentNode, sd.ParentGraph)
		}
		if err := root.AddSubgraph(subs[i], pn); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "subgraph %s", sd.Name)
		}
	}
	return root, nil
}

// ImportJSON reads a JSON compute graph from the file at path.
func ImportJSON(path string) (*graph.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "open %s", path)
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "open %s", path)
	}
	defer f.Close()
	return ReadJSON(f)
}

func decodeGraph(doc *graphDoc) (*graph.Graph, error) {
	if err := errors.ValidateName(doc.Name); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "graph name")
	}
	g := graph.New(doc.Name)
	g.SetUnknownShape(doc.Flags.UnknownShape)
	g.SetDynamicShapePartitioned(doc.Flags.Partitioned)
	g.SetNeedIteration(doc.Flags.NeedIterate)
	g.SetSessionID(doc.Flags.SessionID)
	g.SetGraphID(doc.Flags.GraphID)
	for k, v := range doc.Attrs {
		g.Attrs()[k] = v
	}

	for _, nd := range doc.Nodes {
		if err := errors.ValidateName(nd.Name); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "node in %s", doc.Name)
		}
		kind, ok := graph.ParseKind(nd.Kind)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput, "node %s: unknown kind %q", nd.Name, nd.Kind)
		}
		n := graph.NewNode(nd.Name, kind, len(nd.Inputs), len(nd.Outputs))
		if nd.Type != "" {
			n.SetType(nd.Type)
		}
		for k, v := range nd.Attrs {
			n.Attrs()[k] = v
		}
		for i, td := range nd.Inputs {
			*n.Input(i).Desc() = graph.TensorDesc{Shape: td.Shape, Attrs: td.Attrs}
		}
		for i, td := range nd.Outputs {
			*n.Output(i).Desc() = graph.TensorDesc{Shape: td.Shape, Attrs: td.Attrs}
		}
		for _, s := range nd.Subgraphs {
			n.AddSubgraph(s)
		}
		if err := g.AddNode(n); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "node %s in %s", nd.Name, doc.Name)
		}
	}

	for _, e := range doc.Edges {
		src, si, err := parseEndpoint(g, e.From)
		if err != nil {
			return nil, err
		}
		dst, di, err := parseEndpoint(g, e.To)
		if err != nil {
			return nil, err
		}
		out, in := src.Output(si), dst.Input(di)
		if out == nil || in == nil {
			return nil, errors.New(errors.ErrCodeInvalidInput, "edge %s->%s: anchor out of range", e.From, e.To)
		}
		if err := out.LinkTo(in); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "edge %s->%s", e.From, e.To)
		}
	}

	for _, e := range doc.Control {
		src, ok := g.Node(e.From)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput, "control edge %s->%s: unknown node %q", e.From, e.To, e.From)
		}
		dst, ok := g.Node(e.To)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput, "control edge %s->%s: unknown node %q", e.From, e.To, e.To)
		}
		if err := graph.AddControlEdge(src, dst); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "control edge %s->%s", e.From, e.To)
		}
	}
	return g, nil
}

func parseEndpoint(g *graph.Graph, s string) (*graph.Node, int, error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return nil, 0, errors.New(errors.ErrCodeInvalidInput, "edge endpoint %q is not node:index", s)
	}
	idx, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return nil, 0, errors.Wrap(errors.ErrCodeInvalidInput, err, "edge endpoint %q", s)
	}
	n, ok := g.Node(s[:i])
	if !ok {
		return nil, 0, errors.New(errors.ErrCodeInvalidInput, "edge endpoint %q: unknown node in %s", s, g.Name())
	}
	return n, idx, nil
}
