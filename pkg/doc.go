// Package pkg holds the libraries behind gepart, a compiler pass pipeline
// that partitions compute graphs by shape dynamism.
//
// # Overview
//
// A compute graph mixes operators whose output shapes are known at compile
// time with operators whose shapes are only known at run time. Known-shape
// regions can be compiled statically; unknown-shape regions must run through
// a dynamic executor. The packages split a graph along that boundary and can
// fold the static regions back in afterwards:
//
//	JSON graph document
//	         ↓
//	    [io] decode (nodes, anchors, control edges, subgraph table)
//	         ↓
//	    [partition] cluster and materialize partitions as subgraphs
//	         ↓
//	    [unfold] inline known-shape partitions and nested control flow
//	         ↓
//	    [io] / [render/dot] JSON, DOT, SVG, PNG
//
// # Packages
//
//   - [graph]: compute graph model with typed node kinds, anchors, control
//     edges, a root-owned subgraph table and topological sorting.
//   - [cluster]: clusters of nodes with union-find merging and reachability
//     checks that keep the cluster graph acyclic.
//   - [partition]: the dynamic-shape partitioner.
//   - [unfold]: the subgraph unfolder.
//   - [options]: string-keyed pass options loaded from TOML.
//   - [errors]: coded errors shared by every package.
//   - [pipeline]: parse, compile and render with caching.
//   - [cache]: file-backed result cache keyed by content hash.
//   - [observability]: hooks for pass and cache events.
//
// # Quick Start
//
//	g, err := pipeline.Parse(data)
//	if err != nil {
//	    return err
//	}
//	out, err := pipeline.Compile(ctx, g, pipeline.Options{
//	    Input:  data,
//	    Unfold: true,
//	})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(pipeline.Summarize(out.Graph))
//
// [graph]: https://pkg.go.dev/github.com/hicann/ge-sub098/pkg/graph
// [cluster]: https://pkg.go.dev/github.com/hicann/ge-sub098/pkg/cluster
// [partition]: https://pkg.go.dev/github.com/hicann/ge-sub098/pkg/partition
// [unfold]: https://pkg.go.dev/github.com/hicann/ge-sub098/pkg/unfold
// [options]: https://pkg.go.dev/github.com/hicann/ge-sub098/pkg/options
// [errors]: https://pkg.go.dev/github.com/hicann/ge-sub098/pkg/errors
// [pipeline]: https://pkg.go.dev/github.com/hicann/ge-sub098/pkg/pipeline
// [cache]: https://pkg.go.dev/github.com/hicann/ge-sub098/pkg/cache
// [observability]: https://pkg.go.dev/github.com/hicann/ge-sub098/pkg/observability
// [io]: https://pkg.go.dev/github.com/hicann/ge-sub098/pkg/io
// [render/dot]: https://pkg.go.dev/github.com/hicann/ge-sub098/pkg/render/dot
package pkg
