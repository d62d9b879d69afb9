// Package unfold flattens partitioned compute graphs.
//
// [UnfoldSubgraphs] walks the root graph and replaces every PartitionedCall
// whose subgraph is known-shape and was produced by dynamic-shape
// partitioning with the subgraph body. The subgraph's Data and NetOutput
// boundary nodes disappear: their consumers and producers are linked
// directly to the producers and consumers of the call, found through the
// _parent_node_index attribute. Control-flow subgraphs (If, Case, While
// bodies) are unfolded recursively into fresh graphs that replace them in
// the subgraph table.
//
// The result is a new graph; the nodes of the input are moved into it and
// the input must not be used afterwards.
package unfold
