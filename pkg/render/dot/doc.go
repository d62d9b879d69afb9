// Package dot draws compute graphs as Graphviz node-link diagrams.
//
// [ToDOT] produces DOT source in which every subgraph of the subgraph table
// becomes a cluster nested inside its parent graph, so the known-shape and
// unknown-shape partitions of a partitioned graph appear as colored boxes
// around their members:
//
//	src := dot.ToDOT(g, dot.Options{Detailed: true})
//	svg, err := dot.RenderSVG(ctx, src)
//
// Rendering runs Graphviz in-process through [github.com/goccy/go-graphviz];
// no external binary is needed.
package dot
