package unfold

import (
	"context"
	"io"
	"slices"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/hicann/ge-sub098/pkg/errors"
	"github.com/hicann/ge-sub098/pkg/graph"
	"github.com/hicann/ge-sub098/pkg/options"
	"github.com/hicann/ge-sub098/pkg/partition"
)

func quietLogger() *log.Logger { return log.New(io.Discard) }

func add(t *testing.T, g *graph.Graph, name string, kind graph.Kind, nIn, nOut int) *graph.Node {
	t.Helper()
	n := graph.NewNode(name, kind, nIn, nOut)
	if err := g.AddNode(n); err != nil {
		t.Fatalf("AddNode(%s) error = %v", name, err)
	}
	return n
}

func link(t *testing.T, src *graph.Node, si int, dst *graph.Node, di int) {
	t.Helper()
	if err := src.Output(si).LinkTo(dst.Input(di)); err != nil {
		t.Fatalf("link %s:%d -> %s:%d error = %v", src.Name(), si, dst.Name(), di, err)
	}
}

func control(t *testing.T, src, dst *graph.Node) {
	t.Helper()
	if err := graph.AddControlEdge(src, dst); err != nil {
		t.Fatalf("AddControlEdge(%s, %s) error = %v", src.Name(), dst.Name(), err)
	}
}

// callFixture is Data x -> call(body: Data d -> Add add -> NetOutput ret) ->
// NetOutput out, with root marked as dynamically partitioned.
type callFixture struct {
	root, body      *graph.Graph
	x, call, out    *graph.Node
	d, addNode, ret *graph.Node
}

func newCallFixture(t *testing.T) *callFixture {
	t.Helper()
	f := &callFixture{root: graph.New("root"), body: graph.New("body")}
	f.root.SetDynamicShapePartitioned(true)

	f.x = add(t, f.root, "x", graph.KindData, 0, 1)
	f.call = add(t, f.root, "call", graph.KindPartitionedCall, 1, 1)
	f.out = add(t, f.root, "out", graph.KindNetOutput, 1, 0)
	link(t, f.x, 0, f.call, 0)
	link(t, f.call, 0, f.out, 0)

	f.call.AddSubgraph("body")
	if err := f.root.AddSubgraph(f.body, f.call); err != nil {
		t.Fatalf("AddSubgraph() error = %v", err)
	}
	f.d = add(t, f.body, "d", graph.KindData, 0, 1)
	f.d.Attrs()[graph.AttrParentNodeIndex] = int64(0)
	f.addNode = add(t, f.body, "add", graph.KindOp, 1, 1)
	f.ret = add(t, f.body, "ret", graph.KindNetOutput, 1, 0)
	f.ret.Input(0).Desc().Attrs = graph.Attrs{graph.AttrParentNodeIndex: int64(0)}
	link(t, f.d, 0, f.addNode, 0)
	link(t, f.addNode, 0, f.ret, 0)
	return f
}

func nodeNames(g *graph.Graph) []string {
	var out []string
	for _, n := range g.Nodes() {
		out = append(out, n.Name())
	}
	return out
}

func ids(g *graph.Graph) []int64 {
	var out []int64
	for _, n := range g.Nodes() {
		out = append(out, n.ID())
	}
	return out
}

func TestUnfoldSubgraphsInlinesCall(t *testing.T) {
	f := newCallFixture(t)

	u := New(quietLogger())
	merged, err := u.UnfoldSubgraphs(f.root)
	if err != nil {
		t.Fatalf("UnfoldSubgraphs() error = %v", err)
	}

	if got, want := nodeNames(merged), []string{"x", "add", "out"}; !slices.Equal(got, want) {
		t.Errorf("nodes = %v, want %v", got, want)
	}
	if got, want := ids(merged), []int64{0, 1, 2}; !slices.Equal(got, want) {
		t.Errorf("ids = %v, want %v", got, want)
	}
	if f.addNode.Input(0).Peer().Node() != f.x {
		t.Errorf("add input = %v, want x", f.addNode.Input(0).Peer().Node())
	}
	if f.out.Input(0).Peer().Node() != f.addNode {
		t.Errorf("out input = %v, want add", f.out.Input(0).Peer().Node())
	}
	if f.addNode.Owner() != merged {
		t.Error("add is not owned by the merged graph")
	}
	if len(merged.Subgraphs()) != 0 {
		t.Errorf("Subgraphs() = %d, want 0", len(merged.Subgraphs()))
	}
	if f.call.HasInputs() || len(f.call.Output(0).Peers()) != 0 {
		t.Error("call node is still connected")
	}
	if !merged.DynamicShapePartitioned() {
		t.Error("merged graph lost the partitioned flag")
	}
	if u.Inlined() != 1 {
		t.Errorf("Inlined() = %d, want 1", u.Inlined())
	}
}

func TestUnfoldPreservesOtherConsumers(t *testing.T) {
	f := newCallFixture(t)
	y := add(t, f.root, "y", graph.KindOp, 1, 1)
	link(t, f.x, 0, y, 0)

	if _, err := New(quietLogger()).UnfoldSubgraphs(f.root); err != nil {
		t.Fatalf("UnfoldSubgraphs() error = %v", err)
	}

	var consumers []string
	for _, p := range f.x.Output(0).Peers() {
		consumers = append(consumers, p.Node().Name())
	}
	slices.Sort(consumers)
	if want := []string{"add", "y"}; !slices.Equal(consumers, want) {
		t.Errorf("x consumers = %v, want %v", consumers, want)
	}
}

func TestUnfoldKeepsCall(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *callFixture)
	}{
		{"unknown shape", func(f *callFixture) { f.body.SetUnknownShape(true) }},
		{"not partitioned", func(f *callFixture) { f.root.SetDynamicShapePartitioned(false) }},
		{"separately scheduled", func(f *callFixture) { f.body.Attrs()[graph.AttrSeparatelyScheduled] = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCallFixture(t)
			tt.setup(f)

			merged, err := New(quietLogger()).UnfoldSubgraphs(f.root)
			if err != nil {
				t.Fatalf("UnfoldSubgraphs() error = %v", err)
			}
			if got, want := nodeNames(merged), []string{"x", "call", "out"}; !slices.Equal(got, want) {
				t.Errorf("nodes = %v, want %v", got, want)
			}
			body, ok := merged.Subgraph("body")
			if !ok {
				t.Fatal("body subgraph was dropped")
			}
			if body.ParentGraph() != merged || body.ParentNode() != f.call {
				t.Errorf("body parent = %v/%v, want merged/call", body.ParentGraph(), body.ParentNode())
			}
			if got, want := nodeNames(body), []string{"d", "add", "ret"}; !slices.Equal(got, want) {
				t.Errorf("body nodes = %v, want %v", got, want)
			}
			if f.addNode.Owner() != body {
				t.Error("body node is not owned by the body subgraph")
			}
		})
	}
}

func TestIsGraphNeedUnfold(t *testing.T) {
	f := newCallFixture(t)
	if !IsGraphNeedUnfold(f.root) {
		t.Error("IsGraphNeedUnfold() = false, want true")
	}

	f.call.Attrs()[graph.AttrSeparatelyScheduled] = true
	if IsGraphNeedUnfold(f.root) {
		t.Error("IsGraphNeedUnfold() = true for separately scheduled subgraph")
	}

	plain := newCallFixture(t)
	plain.root.SetDynamicShapePartitioned(false)
	if IsGraphNeedUnfold(plain.root) {
		t.Error("IsGraphNeedUnfold() = true for static graph")
	}
}

func TestMissingParentIndex(t *testing.T) {
	t.Run("data", func(t *testing.T) {
		f := newCallFixture(t)
		delete(f.d.Attrs(), graph.AttrParentNodeIndex)
		_, err := New(quietLogger()).UnfoldSubgraphs(f.root)
		if !errors.Is(err, errors.ErrCodeMissingAttribute) {
			t.Errorf("UnfoldSubgraphs() error = %v, want MISSING_ATTRIBUTE", err)
		}
	})
	t.Run("net output", func(t *testing.T) {
		f := newCallFixture(t)
		f.ret.Input(0).Desc().Attrs = nil
		_, err := New(quietLogger()).UnfoldSubgraphs(f.root)
		if !errors.Is(err, errors.ErrCodeMissingAttribute) {
			t.Errorf("UnfoldSubgraphs() error = %v, want MISSING_ATTRIBUTE", err)
		}
	})
}

func TestControlEdgesTransferred(t *testing.T) {
	f := newCallFixture(t)
	before := add(t, f.root, "before", graph.KindNoOp, 0, 0)
	after := add(t, f.root, "after", graph.KindNoOp, 0, 0)
	control(t, before, f.call)
	control(t, f.call, after)

	gen := add(t, f.body, "gen", graph.KindOp, 0, 1)
	k := add(t, f.body, "k", graph.KindConst, 0, 1)
	mul := add(t, f.body, "mul", graph.KindOp, 2, 1)
	link(t, gen, 0, mul, 0)
	link(t, k, 0, mul, 1)
	control(t, mul, f.ret)
	if err := f.root.TopologicalSort(graph.SortStable); err != nil {
		t.Fatalf("TopologicalSort() error = %v", err)
	}

	merged, err := New(quietLogger()).UnfoldSubgraphs(f.root)
	if err != nil {
		t.Fatalf("UnfoldSubgraphs() error = %v", err)
	}

	if !before.HasControlEdgeTo(gen) {
		t.Error("call predecessor not attached to root node gen")
	}
	if before.HasControlEdgeTo(k) {
		t.Error("call predecessor attached to constant")
	}
	if before.HasControlEdgeTo(f.addNode) {
		t.Error("call predecessor attached to a node with inputs")
	}
	for _, src := range []*graph.Node{f.addNode, mul} {
		if !src.HasControlEdgeTo(after) {
			t.Errorf("%s does not precede the call successor", src.Name())
		}
	}
	if _, ok := merged.Node("call"); ok {
		t.Error("call node survived")
	}
	if len(after.ControlInputs()) != 2 {
		t.Errorf("after control inputs = %v, want add and mul", after.ControlInputs())
	}
}

func TestStageLevelPropagated(t *testing.T) {
	f := newCallFixture(t)
	f.call.Attrs()[graph.AttrStageLevel] = int64(2)

	if _, err := New(quietLogger()).UnfoldSubgraphs(f.root); err != nil {
		t.Fatalf("UnfoldSubgraphs() error = %v", err)
	}
	if got, _ := f.addNode.Attrs().Int(graph.AttrStageLevel); got != 2 {
		t.Errorf("add stage level = %d, want 2", got)
	}
}

func TestNestedControlFlowUnfolded(t *testing.T) {
	outer := graph.New("outer")
	outer.SetDynamicShapePartitioned(true)
	cond := add(t, outer, "cond", graph.KindIf, 0, 0)
	cond.AddSubgraph("then")
	then := graph.New("then")
	if err := outer.AddSubgraph(then, cond); err != nil {
		t.Fatalf("AddSubgraph(then) error = %v", err)
	}
	inner := add(t, then, "inner", graph.KindOp, 0, 0)

	merged, err := New(quietLogger()).UnfoldSubgraphs(outer)
	if err != nil {
		t.Fatalf("UnfoldSubgraphs() error = %v", err)
	}
	got, ok := merged.Subgraph("then")
	if !ok {
		t.Fatal("then subgraph missing")
	}
	if got == then {
		t.Error("then subgraph was not replaced by its unfolded copy")
	}
	if got.ParentNode() != cond || got.ParentGraph() != merged {
		t.Errorf("then parent = %v/%v, want cond/merged", got.ParentNode(), got.ParentGraph())
	}
	if inner.Owner() != got {
		t.Error("inner is not owned by the unfolded branch")
	}
}

func TestKeptCallBodyUnfolded(t *testing.T) {
	f := newCallFixture(t)
	f.body.SetUnknownShape(true)
	loop := add(t, f.body, "loop", graph.KindWhile, 0, 0)
	loop.AddSubgraph("loop_body")
	loopBody := graph.New("loop_body")
	if err := f.root.AddSubgraph(loopBody, loop); err != nil {
		t.Fatalf("AddSubgraph(loop_body) error = %v", err)
	}
	step := add(t, loopBody, "step", graph.KindOp, 0, 0)

	merged, err := New(quietLogger()).UnfoldSubgraphs(f.root)
	if err != nil {
		t.Fatalf("UnfoldSubgraphs() error = %v", err)
	}
	if _, ok := merged.Node("call"); !ok {
		t.Fatal("unknown-shape call was inlined")
	}
	body, ok := merged.Subgraph("body")
	if !ok {
		t.Fatal("body subgraph missing")
	}
	if body == f.body {
		t.Error("body of kept call was not unfolded")
	}
	got, ok := merged.Subgraph("loop_body")
	if !ok {
		t.Fatal("loop_body subgraph missing")
	}
	if got == loopBody {
		t.Error("loop_body was not replaced by its unfolded copy")
	}
	if got.ParentNode() != loop || got.ParentGraph() != body {
		t.Errorf("loop_body parent = %v/%v, want loop/body", got.ParentNode(), got.ParentGraph())
	}
	if step.Owner() != got {
		t.Error("step is not owned by the unfolded loop body")
	}
}

func TestTooMuchRecursion(t *testing.T) {
	root := graph.New("root")
	loop := add(t, root, "loop", graph.KindWhile, 0, 0)
	loop.AddSubgraph("body")
	body := graph.New("body")
	if err := root.AddSubgraph(body, loop); err != nil {
		t.Fatalf("AddSubgraph() error = %v", err)
	}
	// The body invokes itself.
	again := add(t, body, "again", graph.KindWhile, 0, 0)
	again.AddSubgraph("body")

	_, err := New(quietLogger()).UnfoldSubgraphs(root)
	if !errors.Is(err, errors.ErrCodeTooMuchRecursion) {
		t.Errorf("UnfoldSubgraphs() error = %v, want TOO_MUCH_RECURSION", err)
	}
}

func TestMarkGraphNodeIndex(t *testing.T) {
	g := graph.New("g")
	a := add(t, g, "a", graph.KindOp, 0, 0)
	b := add(t, g, "b", graph.KindOp, 0, 0)
	c := add(t, g, "c", graph.KindOp, 0, 0)
	a.SetID(3)
	b.SetID(3)
	c.SetID(10)

	if err := MarkGraphNodeIndex(g); err != nil {
		t.Fatalf("MarkGraphNodeIndex() error = %v", err)
	}
	if got, want := ids(g), []int64{0, 1, 2}; !slices.Equal(got, want) {
		t.Errorf("ids = %v, want %v", got, want)
	}
	if err := MarkGraphNodeIndex(g); err != nil {
		t.Fatalf("second MarkGraphNodeIndex() error = %v", err)
	}
	if got, want := ids(g), []int64{0, 1, 2}; !slices.Equal(got, want) {
		t.Errorf("ids after second pass = %v, want %v", got, want)
	}

	b.SetID(7)
	err := MarkGraphNodeIndex(g)
	if !errors.Is(err, errors.ErrCodeContract) {
		t.Errorf("MarkGraphNodeIndex() error = %v, want CONTRACT_VIOLATION", err)
	}
	if got, want := ids(g), []int64{0, 7, 2}; !slices.Equal(got, want) {
		t.Errorf("ids after rejection = %v, want %v", got, want)
	}
}

func TestIsDataNotNeedRefConst(t *testing.T) {
	f := newCallFixture(t)
	if IsDataNotNeedRefConst(f.d) {
		t.Error("IsDataNotNeedRefConst() = true for data fed by Data")
	}

	k := add(t, f.root, "k", graph.KindConst, 0, 1)
	f.x.Output(0).UnlinkAll()
	link(t, k, 0, f.call, 0)
	if !IsDataNotNeedRefConst(f.d) {
		t.Error("IsDataNotNeedRefConst() = false for data fed by partitioned constant")
	}

	f.root.SetDynamicShapePartitioned(false)
	if IsDataNotNeedRefConst(f.d) {
		t.Error("IsDataNotNeedRefConst() = true for static owner")
	}
	if IsDataNotNeedRefConst(f.addNode) {
		t.Error("IsDataNotNeedRefConst() = true for non-data node")
	}
}

func TestUnfoldAfterPartition(t *testing.T) {
	root := graph.New("root")
	x := add(t, root, "x", graph.KindData, 0, 1)
	a := add(t, root, "a", graph.KindOp, 1, 1)
	u := add(t, root, "u", graph.KindOp, 1, 1)
	out := add(t, root, "out", graph.KindNetOutput, 1, 0)
	for _, n := range []*graph.Node{x, a, u} {
		n.Output(0).Desc().Shape = graph.Shape{2, 2}
	}
	u.Attrs()[graph.AttrForceUnknownShape] = true
	link(t, x, 0, a, 0)
	link(t, a, 0, u, 0)
	link(t, u, 0, out, 0)

	p := partition.New(root, partition.Config{Options: options.New(nil), Logger: quietLogger()})
	if err := p.Partition(context.Background()); err != nil {
		t.Fatalf("Partition() error = %v", err)
	}

	merged, err := New(quietLogger()).UnfoldSubgraphs(root)
	if err != nil {
		t.Fatalf("UnfoldSubgraphs() error = %v", err)
	}
	want := []string{"x", "a", "root_partition_2_unknown_shape_call", "out"}
	if got := nodeNames(merged); !slices.Equal(got, want) {
		t.Errorf("nodes = %v, want %v", got, want)
	}
	if a.Input(0).Peer().Node() != x {
		t.Errorf("a input = %v, want x", a.Input(0).Peer().Node())
	}
	subs := merged.Subgraphs()
	if len(subs) != 1 || subs[0].Name() != "root_partition_2_unknown_shape" {
		t.Fatalf("Subgraphs() = %v, want the unknown frame only", subs)
	}
	if subs[0].ParentGraph() != merged {
		t.Error("unknown frame is not parented on the merged graph")
	}
	if u.Owner() != subs[0] {
		t.Error("u left its unknown frame")
	}
}
