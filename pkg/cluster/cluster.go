// Package cluster implements mergeable node clusters and the registry that
// merges them without ever making cluster adjacency cyclic.
package cluster

import (
	"fmt"
	"slices"

	"github.com/hicann/ge-sub098/pkg/graph"
)

// Type classifies what a cluster becomes after partitioning.
type Type int

const (
	// TypeData holds a graph input; it stays in the partitioned graph.
	TypeData Type = iota
	// TypeInputNode holds source constants; all of them share one frame.
	TypeInputNode
	// TypeNetOutput holds the graph output; it stays in the partitioned graph.
	TypeNetOutput
	// TypeStage holds a pipeline-stage call; it is never merged.
	TypeStage
	// TypeKnownShape clusters compile as static partitions.
	TypeKnownShape
	// TypeUnknownShape clusters compile as dynamic partitions.
	TypeUnknownShape
)

var typeNames = [...]string{
	TypeData:         "DATA",
	TypeInputNode:    "INPUT_NODE",
	TypeNetOutput:    "NETOUTPUT",
	TypeStage:        "STAGE",
	TypeKnownShape:   "KNOWN_SHAPE",
	TypeUnknownShape: "UNKNOWN_SHAPE",
}

// String returns the upper-case type name.
func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

// NeedsFrame reports whether clusters of this type are materialized as a
// subgraph plus call node.
func (t Type) NeedsFrame() bool {
	return t == TypeKnownShape || t == TypeUnknownShape || t == TypeInputNode
}

// Cluster is a mergeable set of nodes. Clusters are created one per node by
// [Registry.Add] and shrink in number as the registry merges them.
type Cluster struct {
	id      int
	minRank int
	maxRank int
	typ     Type
	nodes   []*graph.Node
	in      []*Cluster
	out     []*Cluster
	alive   bool
}

// ID returns the creation rank of the cluster. It is stable across merges:
// the surviving cluster keeps its own id.
func (c *Cluster) ID() int { return c.id }

// MinRank returns the lowest node rank in the cluster.
func (c *Cluster) MinRank() int { return c.minRank }

// MaxRank returns the highest node rank in the cluster.
func (c *Cluster) MaxRank() int { return c.maxRank }

// Type returns the cluster type.
func (c *Cluster) Type() Type { return c.typ }

// SetType changes the cluster type.
func (c *Cluster) SetType(t Type) { c.typ = t }

// Nodes returns the member nodes in rank order.
func (c *Cluster) Nodes() []*graph.Node { return slices.Clone(c.nodes) }

// Size returns the number of member nodes.
func (c *Cluster) Size() int { return len(c.nodes) }

// Inputs returns the producer clusters.
func (c *Cluster) Inputs() []*Cluster { return slices.Clone(c.in) }

// Outputs returns the consumer clusters.
func (c *Cluster) Outputs() []*Cluster { return slices.Clone(c.out) }

// Alive reports whether the cluster has not been absorbed by another.
func (c *Cluster) Alive() bool { return c.alive }

// IsKnownShape reports whether the cluster type is TypeKnownShape.
func (c *Cluster) IsKnownShape() bool { return c.typ == TypeKnownShape }

// IsUnknownShape reports whether the cluster type is TypeUnknownShape.
func (c *Cluster) IsUnknownShape() bool { return c.typ == TypeUnknownShape }

// IsIndependent reports whether the cluster must never be merged.
func (c *Cluster) IsIndependent() bool { return c.typ == TypeStage }

// IsRefVariable reports whether the cluster is a single reference-producing
// node such as a Variable.
func (c *Cluster) IsRefVariable() bool {
	return len(c.nodes) == 1 && c.nodes[0].Kind().IsRef()
}

// String returns a compact description, e.g. "KNOWN_SHAPE#3(5)".
func (c *Cluster) String() string {
	return fmt.Sprintf("%s#%d(%d)", c.typ, c.id, len(c.nodes))
}

func (c *Cluster) hasOutput(o *Cluster) bool { return slices.Contains(c.out, o) }

func (c *Cluster) addOutput(o *Cluster) {
	if o == c || c.hasOutput(o) {
		return
	}
	c.out = append(c.out, o)
	o.in = append(o.in, c)
}

func (c *Cluster) removeOutput(o *Cluster) {
	c.out = slices.DeleteFunc(c.out, func(x *Cluster) bool { return x == o })
	o.in = slices.DeleteFunc(o.in, func(x *Cluster) bool { return x == c })
}
