package partition

import (
	"context"
	"io"
	"slices"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/hicann/ge-sub098/pkg/cluster"
	"github.com/hicann/ge-sub098/pkg/errors"
	"github.com/hicann/ge-sub098/pkg/graph"
	"github.com/hicann/ge-sub098/pkg/options"
)

type builder struct {
	t *testing.T
	g *graph.Graph
}

func newBuilder(t *testing.T, name string) *builder {
	t.Helper()
	return &builder{t: t, g: graph.New(name)}
}

func (b *builder) node(name string, kind graph.Kind, nIn, nOut int) *graph.Node {
	b.t.Helper()
	n := graph.NewNode(name, kind, nIn, nOut)
	for _, o := range n.Outputs() {
		o.Desc().Shape = graph.Shape{2, 2}
	}
	if err := b.g.AddNode(n); err != nil {
		b.t.Fatalf("AddNode(%s) error = %v", name, err)
	}
	return n
}

func (b *builder) data(name string) *graph.Node { return b.node(name, graph.KindData, 0, 1) }

func (b *builder) op(name string, nIn int) *graph.Node { return b.node(name, graph.KindOp, nIn, 1) }

func (b *builder) unknown(name string, nIn int) *graph.Node {
	n := b.op(name, nIn)
	n.Output(0).Desc().Shape = graph.Shape{graph.UnknownDim, 2}
	return n
}

func (b *builder) link(src *graph.Node, si int, dst *graph.Node, di int) {
	b.t.Helper()
	if err := src.Output(si).LinkTo(dst.Input(di)); err != nil {
		b.t.Fatalf("link %s:%d -> %s:%d error = %v", src.Name(), si, dst.Name(), di, err)
	}
}

// chain links each node's output 0 to the next node's input 0.
func (b *builder) chain(nodes ...*graph.Node) {
	b.t.Helper()
	for i := 1; i < len(nodes); i++ {
		b.link(nodes[i-1], 0, nodes[i], 0)
	}
}

func quietLogger() *log.Logger { return log.New(io.Discard) }

func run(t *testing.T, g *graph.Graph, kv map[string]string) *Partitioner {
	t.Helper()
	p := New(g, Config{Options: options.New(kv), Logger: quietLogger()})
	if err := p.Partition(context.Background()); err != nil {
		t.Fatalf("Partition() error = %v", err)
	}
	if p.State() != StateDone {
		t.Fatalf("State() = %s, want done", p.State())
	}
	return p
}

// members returns the names of the non-boundary nodes of each frame, keyed
// by frame type.
func members(frames []Frame) map[cluster.Type][][]string {
	out := make(map[cluster.Type][][]string)
	for _, f := range frames {
		var names []string
		for _, n := range f.Subgraph.Nodes() {
			if !n.Kind().IsBoundary() {
				names = append(names, n.Name())
			}
		}
		out[f.Type] = append(out[f.Type], names)
	}
	return out
}

func frameOf(t *testing.T, frames []Frame, node string) Frame {
	t.Helper()
	for _, f := range frames {
		if _, ok := f.Subgraph.Node(node); ok {
			return f
		}
	}
	t.Fatalf("no frame holds %s", node)
	return Frame{}
}

func TestIsUnknownShapeNode(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(n *graph.Node)
		oracle   Oracle
		want     bool
		noTiling any
	}{
		{
			name:     "known shape",
			setup:    func(n *graph.Node) {},
			want:     false,
			noTiling: nil,
		},
		{
			name:     "forced",
			setup:    func(n *graph.Node) { n.Attrs()[graph.AttrForceUnknownShape] = true },
			want:     true,
			noTiling: nil,
		},
		{
			name:     "host cpu engine",
			setup:    func(n *graph.Node) { n.Attrs()[graph.AttrEngine] = graph.EngineHostCPU },
			want:     true,
			noTiling: nil,
		},
		{
			name:     "unresolved dim without no-tiling support",
			setup:    func(n *graph.Node) { n.Output(0).Desc().Shape = graph.Shape{graph.UnknownDim} },
			want:     true,
			noTiling: false,
		},
		{
			name: "unresolved dim with no-tiling support",
			setup: func(n *graph.Node) {
				n.Output(0).Desc().Shape = graph.Shape{graph.UnknownDim}
				n.Attrs()[AttrNoTilingSupported] = true
			},
			oracle:   AttrOracle{},
			want:     false,
			noTiling: true,
		},
		{
			name: "data dependent input not host placeable",
			setup: func(n *graph.Node) {
				n.Output(0).Desc().Shape = graph.Shape{graph.UnknownRank}
				n.Attrs()[AttrNoTilingSupported] = true
				n.Attrs()[AttrTilingDependInputs] = []any{float64(0)}
			},
			oracle:   AttrOracle{},
			want:     true,
			noTiling: false,
		},
		{
			name: "data dependent input on host",
			setup: func(n *graph.Node) {
				n.Output(0).Desc().Shape = graph.Shape{graph.UnknownRank}
				n.Attrs()[AttrNoTilingSupported] = true
				n.Attrs()[AttrTilingDependInputs] = []any{float64(0)}
				n.Attrs()[AttrHostPlacementInputs] = []int64{0}
			},
			oracle:   AttrOracle{},
			want:     false,
			noTiling: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBuilder(t, "root")
			n := b.op("n", 1)
			tt.setup(n)
			p := New(b.g, Config{Oracle: tt.oracle, Logger: quietLogger()})

			got, err := p.IsUnknownShapeNode(n)
			if err != nil {
				t.Fatalf("IsUnknownShapeNode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("IsUnknownShapeNode() = %v, want %v", got, tt.want)
			}
			if v := n.Attrs()[graph.AttrOpNoTiling]; v != tt.noTiling {
				t.Errorf("%s = %v, want %v", graph.AttrOpNoTiling, v, tt.noTiling)
			}
			if tt.noTiling == true && !n.Output(0).Desc().NoTiling() {
				t.Error("output tensor not marked no-tiling")
			}
		})
	}
}

func TestIsUnknownShapeNodeSubgraph(t *testing.T) {
	b := newBuilder(t, "root")
	ifNode := b.node("if", graph.KindIf, 1, 1)
	ifNode.AddSubgraph("then")

	then := graph.New("then")
	inner := graph.NewNode("inner", graph.KindOp, 0, 1)
	inner.Attrs()[graph.AttrForceUnknownShape] = true
	if err := then.AddNode(inner); err != nil {
		t.Fatal(err)
	}
	if err := b.g.AddSubgraph(then, ifNode); err != nil {
		t.Fatal(err)
	}

	p := New(b.g, Config{Logger: quietLogger()})
	if got, err := p.IsUnknownShapeNode(ifNode); err != nil || !got {
		t.Errorf("IsUnknownShapeNode(if) = %v, %v, want true", got, err)
	}

	ifNode.AddSubgraph("missing")
	inner.Attrs()[graph.AttrForceUnknownShape] = false
	if _, err := p.IsUnknownShapeNode(ifNode); !errors.Is(err, errors.ErrCodeStructural) {
		t.Errorf("IsUnknownShapeNode() error = %v, want STRUCTURAL", err)
	}
}

func TestNoTilingDemotedWhenMixed(t *testing.T) {
	b := newBuilder(t, "root")
	x := b.data("x")
	nt := b.unknown("nt", 1)
	nt.Attrs()[AttrNoTilingSupported] = true
	u := b.unknown("u", 1)
	out := b.node("out", graph.KindNetOutput, 1, 0)
	b.chain(x, nt, u, out)

	p := New(b.g, Config{Oracle: AttrOracle{}, Logger: quietLogger()})
	if err := p.MarkUnknownShapeNodes(b.g); err != nil {
		t.Fatal(err)
	}
	if !p.unknown.contains(nt) {
		t.Error("no-tiling node should be demoted into the unknown set")
	}
	if nt.Attrs().IsTrue(graph.AttrOpNoTiling) || nt.Output(0).Desc().NoTiling() {
		t.Error("demoted node keeps its no-tiling marks")
	}
	if p.noTiling.size() != 0 {
		t.Errorf("no-tiling set size = %d, want 0", p.noTiling.size())
	}
}

func TestConstFeedingUnknownJoinsIt(t *testing.T) {
	b := newBuilder(t, "root")
	c := b.node("c", graph.KindConst, 0, 1)
	k := b.node("k", graph.KindConst, 0, 1)
	u := b.unknown("u", 1)
	a := b.op("a", 1)
	b.link(c, 0, u, 0)
	b.link(k, 0, a, 0)

	p := New(b.g, Config{Logger: quietLogger()})
	if err := p.MarkUnknownShapeNodes(b.g); err != nil {
		t.Fatal(err)
	}
	if !p.unknown.contains(c) {
		t.Error("const feeding an unknown node should be unknown")
	}
	if p.unknown.contains(k) {
		t.Error("const feeding a known node should stay known")
	}
}

func TestAdjacentKnownNodesMerge(t *testing.T) {
	b := newBuilder(t, "root")
	x := b.data("x")
	a := b.op("a", 1)
	c := b.op("c", 1)
	u := b.unknown("u", 1)
	out := b.node("out", graph.KindNetOutput, 1, 0)
	b.chain(x, a, c, u, out)

	p := run(t, b.g, nil)

	got := members(p.Frames())
	if want := [][]string{{"a", "c"}}; !equalGroups(got[cluster.TypeKnownShape], want) {
		t.Errorf("known frames = %v, want %v", got[cluster.TypeKnownShape], want)
	}
	if want := [][]string{{"u"}}; !equalGroups(got[cluster.TypeUnknownShape], want) {
		t.Errorf("unknown frames = %v, want %v", got[cluster.TypeUnknownShape], want)
	}
}

func TestUnrelatedUnknownChainsStayApart(t *testing.T) {
	b := newBuilder(t, "root")
	x := b.data("x")
	y := b.data("y")
	u1 := b.unknown("u1", 1)
	u2 := b.unknown("u2", 1)
	v1 := b.unknown("v1", 1)
	v2 := b.unknown("v2", 1)
	out := b.node("out", graph.KindNetOutput, 2, 0)
	b.chain(x, u1, u2)
	b.chain(y, v1, v2)
	b.link(u2, 0, out, 0)
	b.link(v2, 0, out, 1)

	p := run(t, b.g, nil)

	got := members(p.Frames())[cluster.TypeUnknownShape]
	if want := [][]string{{"u1", "u2"}, {"v1", "v2"}}; !equalGroups(got, want) {
		t.Errorf("unknown frames = %v, want %v", got, want)
	}
}

func TestSmallKnownClusterDemoted(t *testing.T) {
	b := newBuilder(t, "root")
	x := b.data("x")
	a := b.op("a", 1)
	u := b.unknown("u", 1)
	c := b.op("c", 1)
	d := b.op("d", 1)
	out := b.node("out", graph.KindNetOutput, 1, 0)
	b.chain(x, a, u, c, d, out)

	p := run(t, b.g, map[string]string{options.StaticModelOpsLowerLimit: "2"})

	got := members(p.Frames())
	if want := [][]string{{"a", "u"}}; !equalGroups(got[cluster.TypeUnknownShape], want) {
		t.Errorf("unknown frames = %v, want %v", got[cluster.TypeUnknownShape], want)
	}
	for _, names := range got[cluster.TypeKnownShape] {
		if len(names) < 2 {
			t.Errorf("known frame %v is below the lower limit", names)
		}
	}
}

func TestRefVariableFoldsIntoProducer(t *testing.T) {
	tests := []struct {
		name string
		kv   map[string]string
	}{
		{"normal", nil},
		{"known first", map[string]string{options.MergeKnownFirst: "true", options.StaticModelOpsLowerLimit: "1"}},
		{"stable id", map[string]string{options.TopoSortingMode: "stable"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBuilder(t, "root")
			x := b.data("x")
			u := b.unknown("u", 1)
			v := b.node("v", graph.KindVariable, 1, 1)
			k := b.op("k", 1)
			out := b.node("out", graph.KindNetOutput, 1, 0)
			b.chain(x, u, v, k, out)

			p := run(t, b.g, tt.kv)

			fu := frameOf(t, p.Frames(), "u")
			if _, ok := fu.Subgraph.Node("v"); !ok {
				t.Errorf("variable v is not in the frame of its producer u")
			}
		})
	}
}

func TestUnknownRefVariableMakesFrameUnknown(t *testing.T) {
	tests := []struct {
		name string
		kv   map[string]string
	}{
		{"normal", nil},
		{"known first", map[string]string{options.MergeKnownFirst: "true", options.StaticModelOpsLowerLimit: "1"}},
		{"stable id", map[string]string{options.TopoSortingMode: "stable"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBuilder(t, "root")
			x := b.data("x")
			k := b.op("k", 1)
			v := b.node("v", graph.KindVariable, 1, 1)
			v.Attrs()[graph.AttrForceUnknownShape] = true
			k2 := b.op("k2", 1)
			out := b.node("out", graph.KindNetOutput, 1, 0)
			b.chain(x, k, v, k2, out)

			p := run(t, b.g, tt.kv)

			fv := frameOf(t, p.Frames(), "v")
			if fv.Type != cluster.TypeUnknownShape {
				t.Errorf("frame of v type = %s, want %s", fv.Type, cluster.TypeUnknownShape)
			}
			if _, ok := fv.Subgraph.Node("k"); !ok {
				t.Errorf("variable v is not in the frame of its producer k")
			}
		})
	}
}

func TestStableIDStrategy(t *testing.T) {
	b := newBuilder(t, "root")
	x := b.data("x")
	a := b.op("a", 1)
	c := b.op("c", 1)
	u := b.unknown("u", 1)
	d := b.op("d", 1)
	out := b.node("out", graph.KindNetOutput, 1, 0)
	b.chain(x, a, c, u, d, out)

	p := run(t, b.g, map[string]string{
		options.TopoSortingMode:          "stable",
		options.StaticModelOpsLowerLimit: "2",
	})

	if p.Strategy() != StrategyStableID {
		t.Fatalf("Strategy() = %s, want stable-id", p.Strategy())
	}
	got := members(p.Frames())
	if want := [][]string{{"a", "c"}}; !equalGroups(got[cluster.TypeKnownShape], want) {
		t.Errorf("known frames = %v, want %v", got[cluster.TypeKnownShape], want)
	}
	if want := [][]string{{"u", "d"}}; !equalGroups(got[cluster.TypeUnknownShape], want) {
		t.Errorf("unknown frames = %v, want %v", got[cluster.TypeUnknownShape], want)
	}
}

func TestControlFlowGroupForcedTogether(t *testing.T) {
	b := newBuilder(t, "root")
	x := b.data("x")
	s := b.op("s", 1)
	m := b.unknown("m", 1)
	out := b.node("out", graph.KindNetOutput, 2, 0)
	b.link(x, 0, s, 0)
	b.link(x, 0, m, 0)
	b.link(s, 0, out, 0)
	b.link(m, 0, out, 1)
	s.Attrs()[graph.AttrControlFlowGroup] = int64(7)
	m.Attrs()[graph.AttrControlFlowGroup] = int64(7)

	p := run(t, b.g, nil)

	got := members(p.Frames())
	if len(got[cluster.TypeKnownShape]) != 0 {
		t.Errorf("known frames = %v, want none", got[cluster.TypeKnownShape])
	}
	if want := [][]string{{"s", "m"}}; !equalGroups(got[cluster.TypeUnknownShape], want) {
		t.Errorf("unknown frames = %v, want %v", got[cluster.TypeUnknownShape], want)
	}
}

func TestControlFlowGroupAbsorbsUnknownPath(t *testing.T) {
	b := newBuilder(t, "root")
	x := b.data("x")
	a := b.op("a", 1)
	u := b.unknown("u", 1)
	c := b.op("c", 1)
	out := b.node("out", graph.KindNetOutput, 1, 0)
	b.chain(x, a, u, c, out)
	a.Attrs()[graph.AttrControlFlowGroup] = int64(1)
	c.Attrs()[graph.AttrControlFlowGroup] = int64(1)

	p := run(t, b.g, nil)

	if got := frameOf(t, p.Frames(), "u").Type; got != cluster.TypeUnknownShape {
		t.Errorf("frame of u type = %s, want %s", got, cluster.TypeUnknownShape)
	}
	got := members(p.Frames())
	if len(got[cluster.TypeKnownShape]) != 0 {
		t.Errorf("known frames = %v, want none", got[cluster.TypeKnownShape])
	}
	if want := [][]string{{"a", "u", "c"}}; !equalGroups(got[cluster.TypeUnknownShape], want) {
		t.Errorf("unknown frames = %v, want %v", got[cluster.TypeUnknownShape], want)
	}
}

func TestFrameStructure(t *testing.T) {
	b := newBuilder(t, "root")
	x := b.data("x")
	a := b.op("a", 1)
	u := b.unknown("u", 1)
	out := b.node("out", graph.KindNetOutput, 1, 0)
	b.chain(x, a, u, out)

	p := run(t, b.g, nil)
	frames := p.Frames()
	if len(frames) != 2 {
		t.Fatalf("Frames() = %d, want 2", len(frames))
	}

	known, unknown := frames[0], frames[1]
	if got, want := known.Subgraph.Name(), "root_partition_1_known_shape"; got != want {
		t.Errorf("known frame name = %q, want %q", got, want)
	}
	if got, want := unknown.Subgraph.Name(), "root_partition_2_unknown_shape"; got != want {
		t.Errorf("unknown frame name = %q, want %q", got, want)
	}
	if got, want := known.Call.Name(), "root_partition_1_known_shape_call"; got != want {
		t.Errorf("call name = %q, want %q", got, want)
	}

	arg, ok := known.Subgraph.Node("root_partition_1_known_shape_arg_0")
	if !ok {
		t.Fatal("known frame has no arg_0 data node")
	}
	if idx, _ := arg.Attrs().Int(graph.AttrParentNodeIndex); idx != 0 {
		t.Errorf("arg_0 parent index = %d, want 0", idx)
	}
	if a.Input(0).Peer().Node() != arg {
		t.Error("a is not fed by the frame's data node")
	}
	if known.Call.Input(0).Peer().Node() != x {
		t.Error("known call is not fed by x")
	}
	if peers := known.Call.Output(0).Peers(); len(peers) != 1 || peers[0].Node() != unknown.Call {
		t.Error("known call does not feed the unknown call")
	}
	if out.Input(0).Peer().Node() != unknown.Call {
		t.Error("graph output is not fed by the unknown call")
	}

	netOut, ok := known.Subgraph.Node("root_partition_1_known_shape_out")
	if !ok {
		t.Fatal("known frame has no NetOutput")
	}
	if idx, ok := netOut.Input(0).Desc().Attrs.Int(graph.AttrParentNodeIndex); !ok || idx != 0 {
		t.Errorf("NetOutput input parent index = %d, %v, want 0", idx, ok)
	}

	if a.Owner() != known.Subgraph || u.Owner() != unknown.Subgraph {
		t.Error("members were not moved into their frames")
	}
	if !u.Attrs().IsTrue(graph.AttrOwnerGraphIsUnknown) || a.Attrs().IsTrue(graph.AttrOwnerGraphIsUnknown) {
		t.Error("owner-graph-is-unknown flags are wrong")
	}
	if !unknown.Subgraph.UnknownShape() || known.Subgraph.UnknownShape() {
		t.Error("frame unknown-shape flags are wrong")
	}
	if !unknown.Call.Attrs().IsTrue(graph.AttrUnknownShape) {
		t.Error("unknown call is not flagged unknown-shape")
	}
	if sub, ok := b.g.Subgraph(known.Subgraph.Name()); !ok || sub.ParentNode() != known.Call || sub.ParentGraph() != b.g {
		t.Error("frame subgraph is not registered on the root with its call node")
	}
	if !b.g.DynamicShapePartitioned() || !b.g.Attrs().IsTrue(graph.AttrDynamicShapePartitioned) {
		t.Error("root is not flagged dynamic-shape-partitioned")
	}

	var rootNames []string
	for _, n := range b.g.Nodes() {
		rootNames = append(rootNames, n.Name())
	}
	want := []string{"x", known.Call.Name(), unknown.Call.Name(), "out"}
	if !slices.Equal(rootNames, want) {
		t.Errorf("root nodes = %v, want %v", rootNames, want)
	}

	st := p.Stats()
	if st.Units != 1 || st.Frames != 2 || st.Rounds != 1 || st.Split != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestControlEdgesRedirectedToCall(t *testing.T) {
	b := newBuilder(t, "root")
	x := b.data("x")
	a := b.op("a", 1)
	u := b.unknown("u", 1)
	out := b.node("out", graph.KindNetOutput, 1, 0)
	b.chain(x, a, out)
	b.link(x, 0, u, 0)
	if err := graph.AddControlEdge(a, u); err != nil {
		t.Fatal(err)
	}

	p := run(t, b.g, nil)
	fa := frameOf(t, p.Frames(), "a")
	fu := frameOf(t, p.Frames(), "u")
	if !fa.Call.HasControlEdgeTo(fu.Call) {
		t.Error("control edge a -> u was not redirected to the call nodes")
	}
	if len(u.ControlInputs()) != 0 || len(a.ControlOutputs()) != 0 {
		t.Error("crossing control edge left on the members")
	}
}

func TestUnitKeptWhole(t *testing.T) {
	build := func(t *testing.T) *builder {
		b := newBuilder(t, "root")
		x := b.data("x")
		a := b.op("a", 1)
		u := b.unknown("u", 1)
		out := b.node("out", graph.KindNetOutput, 1, 0)
		b.chain(x, a, u, out)
		return b
	}

	t.Run("known only", func(t *testing.T) {
		b := newBuilder(t, "root")
		x := b.data("x")
		a := b.op("a", 1)
		b.chain(x, a)
		p := run(t, b.g, nil)
		if len(p.Frames()) != 0 || b.g.UnknownShape() {
			t.Errorf("known graph split into %d frames, unknown=%v", len(p.Frames()), b.g.UnknownShape())
		}
	})

	t.Run("dynamic batch", func(t *testing.T) {
		b := build(t)
		p := run(t, b.g, map[string]string{options.DynamicBatchEnabled: "true"})
		if len(p.Frames()) != 0 || b.g.UnknownShape() {
			t.Errorf("dynamic batch graph split into %d frames", len(p.Frames()))
		}
	})

	t.Run("below node threshold", func(t *testing.T) {
		b := build(t)
		p := run(t, b.g, map[string]string{options.DynamicNodeThreshold: "10"})
		if len(p.Frames()) != 0 {
			t.Errorf("tiny graph split into %d frames", len(p.Frames()))
		}
		if !b.g.UnknownShape() {
			t.Error("tiny graph should be forced fully dynamic")
		}
		a, _ := b.g.Node("a")
		if !a.Attrs().IsTrue(graph.AttrOwnerGraphIsUnknown) {
			t.Error("nodes of a forced-dynamic graph should be flagged")
		}
	})
}

func TestStageSubgraphIsCompileUnit(t *testing.T) {
	b := newBuilder(t, "root")
	x := b.data("x")
	call := b.node("stage", graph.KindPartitionedCall, 1, 1)
	call.Attrs()[graph.AttrStageLevel] = int64(0)
	call.AddSubgraph("stage0")
	out := b.node("out", graph.KindNetOutput, 1, 0)
	b.chain(x, call, out)

	sb := &builder{t: t, g: graph.New("stage0")}
	arg := sb.data("arg")
	arg.Attrs()[graph.AttrParentNodeIndex] = int64(0)
	u := sb.unknown("u", 1)
	k := sb.op("k", 1)
	ret := sb.node("ret", graph.KindNetOutput, 1, 0)
	sb.chain(arg, u, k, ret)
	if err := b.g.AddSubgraph(sb.g, call); err != nil {
		t.Fatal(err)
	}

	p := run(t, b.g, nil)

	if st := p.Stats(); st.Units != 2 || st.Frames != 2 {
		t.Errorf("Stats() = %+v, want 2 units and 2 frames", st)
	}
	for _, f := range p.Frames() {
		if f.Unit != sb.g {
			t.Errorf("frame %s built in %s, want stage0", f.Subgraph.Name(), f.Unit.Name())
		}
	}
	if call.Owner() != b.g {
		t.Error("stage call must stay in the root")
	}
	if !sb.g.DynamicShapePartitioned() {
		t.Error("stage unit is not flagged dynamic-shape-partitioned")
	}
}

func TestMarkSubgraphUnknownStatus(t *testing.T) {
	b := newBuilder(t, "root")
	x := b.data("x")
	loop := b.node("loop", graph.KindWhile, 1, 1)
	loop.AddSubgraph("body")
	out := b.node("out", graph.KindNetOutput, 1, 0)
	b.chain(x, loop, out)
	loop.Output(0).Desc().Shape = graph.Shape{graph.UnknownDim}

	body := graph.New("body")
	if err := body.AddNode(graph.NewNode("step", graph.KindOp, 0, 1)); err != nil {
		t.Fatal(err)
	}
	if err := b.g.AddSubgraph(body, loop); err != nil {
		t.Fatal(err)
	}

	run(t, b.g, nil)

	if !loop.Attrs().IsTrue(graph.AttrOwnerGraphIsUnknown) {
		t.Fatal("loop should sit in an unknown-shape frame")
	}
	if !body.UnknownShape() {
		t.Error("body of a node in an unknown frame should be unknown")
	}
	if body.ParentGraph() != loop.Owner() {
		t.Error("body parent graph not updated after the move")
	}
}

type roundsRepartitioner struct {
	want  int
	calls int
}

func (r *roundsRepartitioner) NeedRepartition(*graph.Graph, []*cluster.Cluster) (bool, error) {
	r.calls++
	return r.want < 0 || r.calls < r.want, nil
}

func TestRepartitionLoop(t *testing.T) {
	build := func(t *testing.T) *graph.Graph {
		b := newBuilder(t, "root")
		x := b.data("x")
		u := b.unknown("u", 1)
		out := b.node("out", graph.KindNetOutput, 1, 0)
		b.chain(x, u, out)
		return b.g
	}

	t.Run("converges", func(t *testing.T) {
		r := &roundsRepartitioner{want: 3}
		p := New(build(t), Config{Repartitioner: r, Logger: quietLogger()})
		if err := p.Partition(context.Background()); err != nil {
			t.Fatalf("Partition() error = %v", err)
		}
		if got := p.Stats().Rounds; got != 3 {
			t.Errorf("Rounds = %d, want 3", got)
		}
	})

	t.Run("iteration limit", func(t *testing.T) {
		r := &roundsRepartitioner{want: -1}
		p := New(build(t), Config{
			Options:       options.New(map[string]string{options.MaxRepartitionRounds: "4"}),
			Repartitioner: r,
			Logger:        quietLogger(),
		})
		err := p.Partition(context.Background())
		if !errors.Is(err, errors.ErrCodeIterationLimit) {
			t.Fatalf("Partition() error = %v, want ITERATION_LIMIT", err)
		}
		if r.calls != 4 {
			t.Errorf("NeedRepartition calls = %d, want 4", r.calls)
		}
		if p.State() != StateError {
			t.Errorf("State() = %s, want error", p.State())
		}
		if err := p.Partition(context.Background()); !errors.Is(err, errors.ErrCodeInvalidState) {
			t.Errorf("second Partition() error = %v, want INVALID_STATE", err)
		}
	})
}

func TestInitializeRejectsBadOptions(t *testing.T) {
	tests := []struct {
		name string
		kv   map[string]string
	}{
		{"lower limit not a number", map[string]string{options.StaticModelOpsLowerLimit: "abc"}},
		{"lower limit zero", map[string]string{options.StaticModelOpsLowerLimit: "0"}},
		{"sort mode", map[string]string{options.TopoSortingMode: "random"}},
		{"rounds", map[string]string{options.MaxRepartitionRounds: "0"}},
		{"batch flag", map[string]string{options.DynamicBatchEnabled: "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBuilder(t, "root")
			x := b.data("x")
			u := b.unknown("u", 1)
			b.chain(x, u)

			p := New(b.g, Config{Options: options.New(tt.kv), Logger: quietLogger()})
			err := p.Partition(context.Background())
			if !errors.Is(err, errors.ErrCodeInvalidOption) {
				t.Fatalf("Partition() error = %v, want INVALID_OPTION", err)
			}
			if b.g.NodeCount() != 2 || u.Owner() != b.g {
				t.Error("graph was mutated before options were validated")
			}
		})
	}
}

func TestLowerLimitDefaults(t *testing.T) {
	tests := []struct {
		kv   map[string]string
		want int
	}{
		{nil, 1},
		{map[string]string{options.MergeKnownFirst: "true"}, 4},
		{map[string]string{options.MergeKnownFirst: "true", options.StaticModelOpsLowerLimit: "2"}, 2},
	}
	for _, tt := range tests {
		p := New(graph.New("g"), Config{Options: options.New(tt.kv), Logger: quietLogger()})
		if err := p.Initialize(); err != nil {
			t.Fatal(err)
		}
		if got := p.LowerLimit(); got != tt.want {
			t.Errorf("LowerLimit() with %v = %d, want %d", tt.kv, got, tt.want)
		}
	}
}

func equalGroups(got, want [][]string) bool {
	if len(got) != len(want) {
		return false
	}
	for _, w := range want {
		if !slices.ContainsFunc(got, func(g []string) bool { return sameSet(g, w) }) {
			return false
		}
	}
	return true
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, s := range b {
		if !slices.Contains(a, s) {
			return false
		}
	}
	return true
}
