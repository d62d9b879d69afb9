package cluster

import (
	"cmp"
	"container/heap"
	"errors"
	"slices"

	"github.com/hicann/ge-sub098/pkg/graph"
)

var (
	// ErrCycle is returned when a merge would make cluster adjacency cyclic.
	ErrCycle = errors.New("merge would create a cluster cycle")
	// ErrIndependent is returned when a merge would absorb a cluster that
	// must stay on its own.
	ErrIndependent = errors.New("merge would absorb an independent cluster")
	// ErrDead is returned when a merge names an absorbed cluster.
	ErrDead = errors.New("cluster was already absorbed")
	// ErrUnknownNode is returned when a node has no cluster.
	ErrUnknownNode = errors.New("node has no cluster")
)

// MergeFunc observes a committed merge. into survives, from is absorbed.
type MergeFunc func(into, from *Cluster)

// Registry owns every cluster of one compile unit.
//
// Nodes must be added in topological order: a node's rank is its insertion
// position, so every edge goes from a lower rank to a higher one. Cluster
// member lists and the tie-break of Sorted follow that rank.
//
// Merged clusters are not rank-contiguous, so reachability is an explicit
// search over the live adjacency rather than an interval test.
//
// A Registry is not safe for concurrent use.
type Registry struct {
	clusters []*Cluster
	parent   []int
	rank     map[*graph.Node]int
	onMerge  MergeFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rank: make(map[*graph.Node]int)}
}

// OnMerge installs fn to be called after every committed merge.
func (r *Registry) OnMerge(fn MergeFunc) { r.onMerge = fn }

// Add creates a single-node cluster for n.
func (r *Registry) Add(n *graph.Node, t Type) *Cluster {
	if c, ok := r.Of(n); ok {
		return c
	}
	id := len(r.clusters)
	c := &Cluster{id: id, minRank: id, maxRank: id, typ: t, nodes: []*graph.Node{n}, alive: true}
	r.clusters = append(r.clusters, c)
	r.parent = append(r.parent, id)
	r.rank[n] = id
	return c
}

// Connect records that from produces something consumed by to.
func (r *Registry) Connect(from, to *Cluster) { from.addOutput(to) }

// Rank returns the insertion rank of n.
func (r *Registry) Rank(n *graph.Node) (int, bool) {
	i, ok := r.rank[n]
	return i, ok
}

// Of returns the live cluster that currently holds n.
func (r *Registry) Of(n *graph.Node) (*Cluster, bool) {
	i, ok := r.rank[n]
	if !ok {
		return nil, false
	}
	return r.clusters[r.find(i)], true
}

func (r *Registry) find(i int) int {
	for r.parent[i] != i {
		r.parent[i] = r.parent[r.parent[i]]
		i = r.parent[i]
	}
	return i
}

// Len returns the number of live clusters.
func (r *Registry) Len() int {
	n := 0
	for _, c := range r.clusters {
		if c.alive {
			n++
		}
	}
	return n
}

// Clusters returns the live clusters ordered by min rank.
func (r *Registry) Clusters() []*Cluster {
	var out []*Cluster
	for _, c := range r.clusters {
		if c.alive {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b *Cluster) int { return cmp.Compare(a.minRank, b.minRank) })
	return out
}

// Reset drops every cluster so the registry can be rebuilt.
func (r *Registry) Reset() {
	r.clusters = nil
	r.parent = nil
	clear(r.rank)
}

// Reaches reports whether there is a path from a to b. With indirect set,
// the direct edge a→b does not count; only paths through at least one
// other cluster do.
func (r *Registry) Reaches(a, b *Cluster, indirect bool) bool {
	if a == b {
		return false
	}
	seen := map[*Cluster]bool{a: true}
	stack := make([]*Cluster, 0, len(a.out))
	for _, o := range a.out {
		if o == b && indirect {
			continue
		}
		stack = append(stack, o)
	}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if c == b {
			return true
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		stack = append(stack, c.out...)
	}
	return false
}

// CanMerge reports whether a and b can become one cluster without creating
// a cycle: neither may reach the other through a third cluster.
func (r *Registry) CanMerge(a, b *Cluster) bool {
	if a == b || !a.alive || !b.alive {
		return false
	}
	return !r.Reaches(a, b, true) && !r.Reaches(b, a, true)
}

// TryMerge merges from into into when CanMerge allows it.
func (r *Registry) TryMerge(into, from *Cluster) bool {
	if into.IsIndependent() || from.IsIndependent() || !r.CanMerge(into, from) {
		return false
	}
	r.absorb(into, from)
	return true
}

// Merge merges from into into, failing with ErrCycle when the pair is
// separated by a third cluster.
func (r *Registry) Merge(into, from *Cluster) error {
	if !into.alive || !from.alive {
		return ErrDead
	}
	if into == from {
		return nil
	}
	if into.IsIndependent() || from.IsIndependent() {
		return ErrIndependent
	}
	if !r.CanMerge(into, from) {
		return ErrCycle
	}
	r.absorb(into, from)
	return nil
}

// MergeAllPathFrom merges from, and every cluster on a path between from
// and target, into target. Contracting a whole path set never creates a
// cycle, so the only refusal is an independent cluster on the path, which
// fails with ErrIndependent and leaves the registry untouched.
//
// The returned slice lists the absorbed clusters in rank order.
func (r *Registry) MergeAllPathFrom(target, from *Cluster) ([]*Cluster, error) {
	if !target.alive || !from.alive {
		return nil, ErrDead
	}
	if target == from {
		return nil, nil
	}

	var path []*Cluster
	switch {
	case r.Reaches(from, target, false):
		path = r.between(from, target)
	case r.Reaches(target, from, false):
		path = r.between(target, from)
	default:
		path = []*Cluster{from}
	}

	path = slices.DeleteFunc(path, func(c *Cluster) bool { return c == target })
	if target.IsIndependent() {
		return nil, ErrIndependent
	}
	for _, c := range path {
		if c.IsIndependent() {
			return nil, ErrIndependent
		}
	}

	slices.SortFunc(path, func(a, b *Cluster) int { return cmp.Compare(a.minRank, b.minRank) })
	for _, c := range path {
		r.absorb(target, c)
	}
	return path, nil
}

// between returns src, dst and every cluster that is both a descendant of
// src and an ancestor of dst.
func (r *Registry) between(src, dst *Cluster) []*Cluster {
	down := map[*Cluster]bool{src: true}
	stack := []*Cluster{src}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, o := range c.out {
			if down[o] {
				continue
			}
			down[o] = true
			stack = append(stack, o)
		}
	}

	path := []*Cluster{src, dst}
	up := map[*Cluster]bool{dst: true}
	stack = append(stack[:0], dst)
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, i := range c.in {
			if up[i] {
				continue
			}
			up[i] = true
			if down[i] && i != src {
				path = append(path, i)
			}
			stack = append(stack, i)
		}
	}
	return path
}

func (r *Registry) absorb(into, from *Cluster) {
	for _, p := range from.Inputs() {
		p.removeOutput(from)
		if p != into {
			p.addOutput(into)
		}
	}
	for _, s := range from.Outputs() {
		from.removeOutput(s)
		if s != into {
			into.addOutput(s)
		}
	}

	into.nodes = append(into.nodes, from.nodes...)
	slices.SortFunc(into.nodes, func(a, b *graph.Node) int { return cmp.Compare(r.rank[a], r.rank[b]) })
	into.minRank = min(into.minRank, from.minRank)
	into.maxRank = max(into.maxRank, from.maxRank)

	r.parent[from.id] = into.id
	from.alive = false
	from.nodes = nil

	if r.onMerge != nil {
		r.onMerge(into, from)
	}
}

// Sorted returns the live clusters in topological order of their
// adjacency, breaking ties by min rank. It fails with ErrCycle if the
// adjacency is not acyclic.
func (r *Registry) Sorted() ([]*Cluster, error) {
	live := r.Clusters()
	indeg := make(map[*Cluster]int, len(live))
	q := &rankQueue{}
	for _, c := range live {
		indeg[c] = len(c.in)
		if indeg[c] == 0 {
			heap.Push(q, c)
		}
	}

	out := make([]*Cluster, 0, len(live))
	for q.Len() > 0 {
		c := heap.Pop(q).(*Cluster)
		out = append(out, c)
		for _, s := range c.out {
			indeg[s]--
			if indeg[s] == 0 {
				heap.Push(q, s)
			}
		}
	}
	if len(out) != len(live) {
		return nil, ErrCycle
	}
	return out, nil
}

type rankQueue []*Cluster

func (q rankQueue) Len() int           { return len(q) }
func (q rankQueue) Less(i, j int) bool { return q[i].minRank < q[j].minRank }
func (q rankQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *rankQueue) Push(x any)        { *q = append(*q, x.(*Cluster)) }
func (q *rankQueue) Pop() any {
	old := *q
	c := old[len(old)-1]
	*q = old[:len(old)-1]
	return c
}
