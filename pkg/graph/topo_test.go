package graph

import (
	"errors"
	"testing"
)

func names(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name()
	}
	return out
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// diamond builds a graph whose direct order is d, c, b, a for the edges
// a→b, a→c, b→d, c→d.
func diamond(t *testing.T) *Graph {
	t.Helper()
	g := New("g")
	d := mustAdd(t, g, NewNode("d", KindOp, 2, 0))
	c := mustAdd(t, g, NewNode("c", KindOp, 1, 1))
	b := mustAdd(t, g, NewNode("b", KindOp, 1, 1))
	a := mustAdd(t, g, NewNode("a", KindOp, 0, 1))
	mustLink(t, a, 0, b, 0)
	mustLink(t, a, 0, c, 0)
	mustLink(t, b, 0, d, 0)
	mustLink(t, c, 0, d, 1)
	return g
}

func TestTopologicalSortModes(t *testing.T) {
	tests := []struct {
		mode SortMode
		want []string
	}{
		{SortBFS, []string{"a", "b", "c", "d"}},
		{SortStable, []string{"a", "c", "b", "d"}},
		{SortDFS, []string{"a", "b", "c", "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			g := diamond(t)
			if err := g.TopologicalSort(tt.mode); err != nil {
				t.Fatalf("TopologicalSort() error = %v", err)
			}
			if got := names(g.Nodes()); !equalNames(got, tt.want) {
				t.Errorf("TopologicalSort(%s) = %v, want %v", tt.mode, got, tt.want)
			}
		})
	}
}

func TestTopologicalSortStableKeepsSortedOrder(t *testing.T) {
	g := New("g")
	x := mustAdd(t, g, NewNode("x", KindOp, 0, 1))
	y := mustAdd(t, g, NewNode("y", KindOp, 0, 1))
	z := mustAdd(t, g, NewNode("z", KindOp, 2, 0))
	mustLink(t, x, 0, z, 0)
	mustLink(t, y, 0, z, 1)
	before := names(g.Nodes())

	if err := g.TopologicalSort(SortStable); err != nil {
		t.Fatalf("TopologicalSort() error = %v", err)
	}
	if got := names(g.Nodes()); !equalNames(got, before) {
		t.Errorf("stable sort changed sorted order: %v, want %v", got, before)
	}
}

func TestTopologicalSortControlEdges(t *testing.T) {
	g := New("g")
	b := mustAdd(t, g, NewNode("b", KindOp, 0, 0))
	a := mustAdd(t, g, NewNode("a", KindOp, 0, 0))
	_ = AddControlEdge(a, b)

	if err := g.TopologicalSort(SortStable); err != nil {
		t.Fatalf("TopologicalSort() error = %v", err)
	}
	if got := names(g.Nodes()); !equalNames(got, []string{"a", "b"}) {
		t.Errorf("TopologicalSort() = %v, want [a b]", got)
	}
}

func TestTopologicalSortCycle(t *testing.T) {
	g := New("g")
	a := mustAdd(t, g, NewNode("a", KindOp, 1, 1))
	b := mustAdd(t, g, NewNode("b", KindOp, 1, 1))
	mustLink(t, a, 0, b, 0)
	mustLink(t, b, 0, a, 0)

	if err := g.TopologicalSort(SortBFS); !errors.Is(err, ErrGraphHasCycle) {
		t.Errorf("TopologicalSort() error = %v, want ErrGraphHasCycle", err)
	}
	if got := names(g.Nodes()); !equalNames(got, []string{"a", "b"}) {
		t.Errorf("order changed on failure: %v", got)
	}
}

func TestParseSortMode(t *testing.T) {
	tests := []struct {
		in      string
		want    SortMode
		wantErr bool
	}{
		{"bfs", SortBFS, false},
		{"DFS", SortDFS, false},
		{"stable", SortStable, false},
		{"rdfs", SortBFS, true},
	}

	for _, tt := range tests {
		got, err := ParseSortMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSortMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSortMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
