// Package io provides JSON import and export for compute graphs.
//
// # JSON Format
//
// A document is one graph object. The root object also lists every
// subgraph of its subgraph table:
//
//	{
//	  "name": "root",
//	  "flags": {"dynamic_shape_partitioned": true},
//	  "nodes": [
//	    {"name": "x", "kind": "Data", "outputs": [{"shape": [-1, 16]}]},
//	    {"name": "call", "kind": "PartitionedCall", "inputs": [{}], "outputs": [{}],
//	     "subgraphs": ["body"]},
//	    {"name": "out", "kind": "NetOutput", "inputs": [{}]}
//	  ],
//	  "edges": [
//	    {"from": "x:0", "to": "call:0"},
//	    {"from": "call:0", "to": "out:0"}
//	  ],
//	  "subgraphs": [
//	    {"name": "body", "parent_node": "call", "parent_graph": "root",
//	     "nodes": [...], "edges": [...]}
//	  ]
//	}
//
// # Node Fields
//
// Required:
//   - name: unique within its graph
//   - kind: one of the graph kinds ("Op", "Data", "NetOutput", "Const",
//     "Variable", "PartitionedCall", "If", "Case", "While", "StreamActive",
//     "StreamSwitch", "NoOp"), case-insensitive
//
// Optional:
//   - type: concrete operator type, defaulting to the kind name
//   - inputs, outputs: one tensor descriptor per anchor with "shape" (-1 for
//     an unresolved dimension, -2 for unresolved rank) and "attrs"
//   - attrs: free-form attributes such as _is_unknown_shape or
//     _parent_node_index
//   - subgraphs: names of the subgraph instances the node owns
//   - id: written on export, ignored on import
//
// Edges between "node:index" endpoints are data edges. Entries of
// "control_edges" connect plain node names.
//
// # Import
//
// Use [ImportJSON] to read a graph from a file path, or [ReadJSON] to read
// from any io.Reader. Both validate names, kinds, anchor indices and
// subgraph parents. Errors carry an [errors.Code] from pkg/errors.
//
// # Export
//
// [ExportJSON] and [WriteJSON] write the graph and its whole subgraph table,
// so a partitioned graph can be re-imported and unfolded later.
package io
