// Package partition splits compute graphs into known-shape and unknown-shape
// partitions.
//
// Each compile unit (the root graph and every pipeline-stage subgraph) goes
// through the same steps:
//
//  1. Mark: classify every node as known-shape, unknown-shape or no-tiling
//     capable. Constants feeding unknown-shape nodes follow them.
//  2. Build: create one cluster per node, typed from the node kind and its
//     classification.
//  3. Merge: grow clusters with the selected [Strategy]. Merges never make
//     cluster adjacency cyclic.
//  4. Sort and materialize: every surviving known-shape, unknown-shape and
//     input-node cluster becomes a subgraph invoked by a PartitionedCall
//     node named "<subgraph>_call".
//
// An external [Repartitioner] may ask for the merge to be redone from
// scratch. The number of rounds is capped by the ge.maxRepartitionRounds
// option.
//
// # Usage
//
//	p := partition.New(root, partition.Config{Options: opts})
//	if err := p.Partition(ctx); err != nil {
//	    return err // root is half rewritten; discard it
//	}
//	for _, f := range p.Frames() {
//	    fmt.Println(f.Subgraph.Name(), f.Type)
//	}
package partition
