package graph

import (
	"container/heap"
	"fmt"
	"strings"
)

// SortMode selects the traversal used by [Graph.TopologicalSort].
type SortMode int

const (
	// SortBFS releases ready nodes first-in first-out.
	SortBFS SortMode = iota
	// SortDFS releases the most recently readied node first, keeping
	// producer/consumer chains together.
	SortDFS
	// SortStable always releases the ready node with the lowest current
	// position. An already topological order is returned unchanged, so the
	// result depends only on the original linear order.
	SortStable
)

var sortModeNames = map[string]SortMode{
	"bfs":    SortBFS,
	"dfs":    SortDFS,
	"stable": SortStable,
}

// ParseSortMode parses "bfs", "dfs" or "stable" (case-insensitive).
func ParseSortMode(s string) (SortMode, error) {
	if m, ok := sortModeNames[strings.ToLower(s)]; ok {
		return m, nil
	}
	return SortBFS, fmt.Errorf("%w: %q", ErrUnknownSortMode, s)
}

// String returns the mode name.
func (m SortMode) String() string {
	for name, v := range sortModeNames {
		if v == m {
			return name
		}
	}
	return fmt.Sprintf("SortMode(%d)", int(m))
}

// TopologicalSort reorders the direct nodes so every data or control
// producer precedes its consumers. Edges to nodes owned by other graphs are
// ignored. Node ids are not modified.
//
// Returns [ErrGraphHasCycle] if the direct nodes contain a cycle; the order is
// left untouched in that case.
func (g *Graph) TopologicalSort(mode SortMode) error {
	pos := make(map[*Node]int, len(g.nodes))
	for i, n := range g.nodes {
		pos[n] = i
	}

	indeg := make([]int, len(g.nodes))
	for i, n := range g.nodes {
		for _, p := range n.InNodes() {
			if _, ok := pos[p]; ok {
				indeg[i]++
			}
		}
	}

	ready := &readyQueue{mode: mode}
	for i := range g.nodes {
		if indeg[i] == 0 {
			ready.push(i)
		}
	}
	ready.init()

	order := make([]*Node, 0, len(g.nodes))
	for ready.Len() > 0 {
		i := ready.pop()
		n := g.nodes[i]
		order = append(order, n)
		var released []int
		for _, s := range n.OutNodes() {
			j, ok := pos[s]
			if !ok {
				continue
			}
			indeg[j]--
			if indeg[j] == 0 {
				released = append(released, j)
			}
		}
		if mode == SortDFS {
			// Reverse so the first consumer is popped first from the stack.
			for l, r := 0, len(released)-1; l < r; l, r = l+1, r-1 {
				released[l], released[r] = released[r], released[l]
			}
		}
		for _, j := range released {
			ready.add(j)
		}
	}

	if len(order) != len(g.nodes) {
		return ErrGraphHasCycle
	}
	g.setOrder(order)
	return nil
}

// readyQueue holds positions of nodes whose predecessors are all emitted.
type readyQueue struct {
	mode  SortMode
	items []int
}

func (q *readyQueue) Len() int { return len(q.items) }

func (q *readyQueue) Less(i, j int) bool { return q.items[i] < q.items[j] }

func (q *readyQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *readyQueue) Push(x any) { q.items = append(q.items, x.(int)) }

func (q *readyQueue) Pop() any {
	last := q.items[len(q.items)-1]
	q.items = q.items[:len(q.items)-1]
	return last
}

// push seeds the queue before init.
func (q *readyQueue) push(i int) { q.items = append(q.items, i) }

func (q *readyQueue) init() {
	switch q.mode {
	case SortStable:
		heap.Init(q)
	case SortDFS:
		// Seeds are popped from the back; keep the first source on top.
		for l, r := 0, len(q.items)-1; l < r; l, r = l+1, r-1 {
			q.items[l], q.items[r] = q.items[r], q.items[l]
		}
	}
}

func (q *readyQueue) add(i int) {
	if q.mode == SortStable {
		heap.Push(q, i)
		return
	}
	q.items = append(q.items, i)
}

func (q *readyQueue) pop() int {
	switch q.mode {
	case SortStable:
		return heap.Pop(q).(int)
	case SortDFS:
		return q.Pop().(int)
	default:
		first := q.items[0]
		q.items = q.items[1:]
		return first
	}
}
