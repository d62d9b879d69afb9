package dot

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/hicann/ge-sub098/pkg/errors"
	"github.com/hicann/ge-sub098/pkg/graph"
)

// Options configures DOT generation.
type Options struct {
	// Detailed adds the operator type, output shapes and attributes to node
	// labels. When false only the node name is shown.
	Detailed bool

	// Flat draws only the direct nodes of the root graph.
	Flat bool
}

// Format is an output format supported by [Render].
type Format = graphviz.Format

// Output formats.
const (
	SVG = graphviz.SVG
	PNG = graphviz.PNG
)

const (
	knownFill   = "#dbeafe"
	unknownFill = "#fed7aa"
)

// ToDOT converts g to Graphviz DOT source. Every subgraph in the subgraph
// table is drawn as a cluster nested in the cluster of its parent graph and
// linked to its parent node by a dotted edge. Known-shape and unknown-shape
// graphs are filled in different colors. Control edges are dashed.
func ToDOT(g *graph.Graph, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  compound=true;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.4;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	children := make(map[*graph.Graph][]*graph.Graph)
	if !opts.Flat {
		for _, sub := range g.Subgraphs() {
			if p := sub.ParentGraph(); p != nil {
				children[p] = append(children[p], sub)
			}
		}
	}

	w := &writer{buf: &buf, opts: opts, children: children}
	w.nodes(g, "  ")
	buf.WriteString("\n")
	w.edges(g)
	buf.WriteString("}\n")
	return buf.String()
}

type writer struct {
	buf      *bytes.Buffer
	opts     Options
	children map[*graph.Graph][]*graph.Graph
	visited  []*graph.Graph
}

func (w *writer) nodes(g *graph.Graph, indent string) {
	w.visited = append(w.visited, g)
	for _, n := range g.Nodes() {
		fmt.Fprintf(w.buf, "%s%q [%s];\n", indent, nodeID(n), strings.Join(fmtAttrs(n, w.opts.Detailed), ", "))
	}
	for _, sub := range w.children[g] {
		if slices.Contains(w.visited, sub) {
			continue
		}
		fill := knownFill
		if sub.UnknownShape() {
			fill = unknownFill
		}
		fmt.Fprintf(w.buf, "%ssubgraph %q {\n", indent, "cluster_"+sub.Name())
		fmt.Fprintf(w.buf, "%s  label=%q;\n", indent, sub.Name())
		fmt.Fprintf(w.buf, "%s  style=\"rounded,filled\";\n", indent)
		fmt.Fprintf(w.buf, "%s  fillcolor=%q;\n", indent, fill)
		w.nodes(sub, indent+"  ")
		fmt.Fprintf(w.buf, "%s}\n", indent)
	}
}

func (w *writer) edges(root *graph.Graph) {
	for _, g := range w.visited {
		for _, n := range g.Nodes() {
			for _, o := range n.Outputs() {
				for _, peer := range o.Peers() {
					fmt.Fprintf(w.buf, "  %q -> %q [taillabel=%q, headlabel=%q];\n",
						nodeID(n), nodeID(peer.Node()), strconv.Itoa(o.Index()), strconv.Itoa(peer.Index()))
				}
			}
			for _, succ := range n.ControlOutputs() {
				fmt.Fprintf(w.buf, "  %q -> %q [style=dashed];\n", nodeID(n), nodeID(succ))
			}
		}
		if g == root {
			continue
		}
		if p := g.ParentNode(); p != nil && g.NodeCount() > 0 {
			fmt.Fprintf(w.buf, "  %q -> %q [style=dotted, arrowhead=odot, lhead=%q];\n",
				nodeID(p), nodeID(g.Nodes()[0]), "cluster_"+g.Name())
		}
	}
}

// nodeID qualifies n by its owner graph; node names are only unique within
// one graph.
func nodeID(n *graph.Node) string {
	if n.Owner() == nil {
		return n.Name()
	}
	return n.Owner().Name() + "/" + n.Name()
}

func fmtLabel(n *graph.Node, detailed bool) string {
	if !detailed {
		return n.Name()
	}

	parts := []string{n.Type()}
	for _, o := range n.Outputs() {
		parts = append(parts, fmt.Sprintf("out%d: %v", o.Index(), o.Desc().Shape))
	}
	attrs := n.Attrs()
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		parts = append(parts, fmt.Sprintf("%s: %v", k, attrs[k]))
	}
	return n.Name() + "\n" + strings.Join(parts, "\n")
}

func fmtAttrs(n *graph.Node, detailed bool) []string {
	attrs := []string{fmt.Sprintf("label=%q", fmtLabel(n, detailed))}
	switch {
	case n.Kind().IsBoundary():
		attrs = append(attrs, "shape=ellipse")
	case n.Kind().HasSubgraphs():
		attrs = append(attrs, "shape=box3d")
	case n.Kind().IsControlOnly():
		attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fillcolor=lightgrey")
	}
	if n.Attrs().IsTrue(graph.AttrUnknownShape) || n.Attrs().IsTrue(graph.AttrForceUnknownShape) {
		attrs = append(attrs, fmt.Sprintf("fillcolor=%q", unknownFill))
	}
	return attrs
}

// RenderSVG renders DOT source to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	out, err := Render(ctx, dot, SVG)
	if err != nil {
		return nil, err
	}
	return normalizeViewBox(out), nil
}

// Render renders DOT source in the given format using Graphviz.
func Render(ctx context.Context, dot string, format Format) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "init graphviz")
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "parse DOT")
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, format, &buf); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "render %s", format)
	}
	return buf.Bytes(), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces the Graphviz svg tag with one sized from its
// viewBox so the image scales in browsers.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	tag := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`, w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(tag))
}
