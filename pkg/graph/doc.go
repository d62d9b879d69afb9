// Package graph provides the compute graph model consumed by the partitioning
// and unfolding passes.
//
// # Overview
//
// A [Graph] is an ordered list of direct [Node] values. Nodes exchange tensors
// through indexed anchors: each [OutAnchor] feeds any number of [InAnchor]
// consumers, and each input has at most one producer at any time. Control
// edges order nodes without carrying data.
//
// Call-like nodes (PartitionedCall, If, Case, While) reference subgraphs by
// instance name. All subgraphs of a hierarchy are registered on the root
// graph; each subgraph points back to the node invoking it and the graph that
// node belongs to:
//
//	root := graph.New("root")
//	call := graph.NewNode("call", graph.KindPartitionedCall, 1, 1)
//	_ = root.AddNode(call)
//	body := graph.New("body")
//	call.AddSubgraph(body.Name())
//	_ = root.AddSubgraph(body, call)
//
// # Kinds
//
// Operator categories form the closed [Kind] set. Passes query capabilities
// ([Kind.HasSubgraphs], [Kind.IsControlFlow], [Kind.IsNoTilingEligible], ...)
// rather than comparing operator type strings.
//
// # Ordering
//
// [Graph.TopologicalSort] supports breadth-first, depth-first and stable
// orders. The stable order keeps an already sorted graph unchanged, which
// makes downstream decisions a pure function of the original node order.
package graph
