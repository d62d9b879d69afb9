package partition

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hicann/ge-sub098/pkg/cluster"
	"github.com/hicann/ge-sub098/pkg/errors"
	"github.com/hicann/ge-sub098/pkg/graph"
	"github.com/hicann/ge-sub098/pkg/observability"
	"github.com/hicann/ge-sub098/pkg/options"
)

// State is the lifecycle position of a [Partitioner].
type State int

const (
	StateInit State = iota
	StateMarkUnknown
	StateBuildClusters
	StateMergeClusters
	StateSort
	StateBuildFrames
	StateDone
	StateError
)

var stateNames = [...]string{
	StateInit:          "init",
	StateMarkUnknown:   "mark-unknown",
	StateBuildClusters: "build-clusters",
	StateMergeClusters: "merge-clusters",
	StateSort:          "sort",
	StateBuildFrames:   "build-frames",
	StateDone:          "done",
	StateError:         "error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Strategy selects how clusters are merged.
type Strategy int

const (
	// StrategyNormal merges unknown-shape clusters first.
	StrategyNormal Strategy = iota
	// StrategyKnownFirst merges known-shape clusters first.
	StrategyKnownFirst
	// StrategyStableID merges runs of consecutive same-type clusters in
	// node id order.
	StrategyStableID
)

func (s Strategy) String() string {
	switch s {
	case StrategyKnownFirst:
		return "known-first"
	case StrategyStableID:
		return "stable-id"
	default:
		return "normal"
	}
}

const (
	defaultLowerLimit           = 1
	defaultKnownFirstLowerLimit = 4
	defaultMaxRounds            = 16
)

// Repartitioner is an external pass that inspects merged clusters and may
// ask for another round, typically after adjusting node attributes.
type Repartitioner interface {
	NeedRepartition(unit *graph.Graph, clusters []*cluster.Cluster) (bool, error)
}

// Config configures a [Partitioner].
type Config struct {
	Options       options.Options
	Oracle        Oracle        // nil: no operator supports no-tiling
	Repartitioner Repartitioner // nil: a single round per unit
	Logger        *log.Logger   // nil: log.Default()
}

// Frame is a materialized partition: a subgraph and the call node invoking
// it from its compile unit.
type Frame struct {
	Unit     *graph.Graph
	Subgraph *graph.Graph
	Call     *graph.Node
	Type     cluster.Type
}

// Stats summarizes a partitioning run.
type Stats struct {
	Units    int // compile units visited
	Split    int // units that were split into frames
	Clusters int // clusters left after merging, over all split units
	Frames   int // frames materialized
	Rounds   int // merge rounds, re-partition rounds included
}

// Partitioner splits every compile unit of a root graph into known-shape
// and unknown-shape partitions.
//
// A Partitioner runs once. Any failure moves it to [StateError]; the graph
// is then partially rewritten and must be discarded together with the
// partitioner. A Partitioner is not safe for concurrent use.
type Partitioner struct {
	root   *graph.Graph
	cfg    Config
	oracle Oracle
	logger *log.Logger

	state       State
	initialized bool

	lowerLimit    int
	strategy      Strategy
	sortMode      graph.SortMode
	dynamicBatch  bool
	nodeThreshold int
	maxRounds     int

	reg      *cluster.Registry
	unknown  nodeSet
	noTiling nodeSet
	groups   []*controlFlowGroup

	frames []Frame
	stats  Stats
}

// New creates a partitioner for root.
func New(root *graph.Graph, cfg Config) *Partitioner {
	p := &Partitioner{
		root:   root,
		cfg:    cfg,
		oracle: cfg.Oracle,
		logger: cfg.Logger,
		reg:    cluster.NewRegistry(),
	}
	if p.oracle == nil {
		p.oracle = NoTilingUnsupported{}
	}
	if p.logger == nil {
		p.logger = log.Default()
	}
	return p
}

// State returns the current lifecycle state.
func (p *Partitioner) State() State { return p.state }

// Frames returns the frames built so far.
func (p *Partitioner) Frames() []Frame { return append([]Frame(nil), p.frames...) }

// Stats returns the run statistics.
func (p *Partitioner) Stats() Stats { return p.stats }

// Strategy returns the merge strategy selected by Initialize.
func (p *Partitioner) Strategy() Strategy { return p.strategy }

// LowerLimit returns the minimum size of a surviving known-shape cluster.
func (p *Partitioner) LowerLimit() int { return p.lowerLimit }

// Initialize reads the options. Malformed values fail before any graph
// mutation. Partition calls Initialize when it has not been called.
func (p *Partitioner) Initialize() error {
	if p.state != StateInit {
		return errors.New(errors.ErrCodeInvalidState, "partitioner is in state %s", p.state)
	}
	if p.root == nil {
		return p.fail(errors.New(errors.ErrCodeStructural, "root graph is nil"))
	}
	opts := p.cfg.Options

	knownFirst, err := opts.Bool(options.MergeKnownFirst, false)
	if err != nil {
		return p.fail(err)
	}
	def := defaultLowerLimit
	if knownFirst {
		def = defaultKnownFirstLowerLimit
	}
	if p.lowerLimit, err = opts.IntAtLeast(options.StaticModelOpsLowerLimit, def, 1); err != nil {
		return p.fail(err)
	}

	mode := opts.String(options.TopoSortingMode, graph.SortBFS.String())
	if p.sortMode, err = graph.ParseSortMode(mode); err != nil {
		return p.fail(errors.Wrap(errors.ErrCodeInvalidOption, err, "option %s=%q", options.TopoSortingMode, mode))
	}
	switch {
	case p.sortMode == graph.SortStable:
		p.strategy = StrategyStableID
	case knownFirst:
		p.strategy = StrategyKnownFirst
	default:
		p.strategy = StrategyNormal
	}

	if p.dynamicBatch, err = opts.Bool(options.DynamicBatchEnabled, false); err != nil {
		return p.fail(err)
	}
	if p.nodeThreshold, err = opts.IntAtLeast(options.DynamicNodeThreshold, 0, 0); err != nil {
		return p.fail(err)
	}
	if p.maxRounds, err = opts.IntAtLeast(options.MaxRepartitionRounds, defaultMaxRounds, 1); err != nil {
		return p.fail(err)
	}

	p.initialized = true
	p.logger.Debug("partitioner initialized",
		"strategy", p.strategy,
		"lower_limit", p.lowerLimit,
		"sort", p.sortMode,
		"max_rounds", p.maxRounds)
	return nil
}

// Partition runs the pass over the root graph and every pipeline-stage
// subgraph. On success the root carries the dynamic-shape-partitioned flag.
func (p *Partitioner) Partition(ctx context.Context) (err error) {
	if p.state != StateInit {
		return errors.New(errors.ErrCodeInvalidState, "partitioner is in state %s", p.state)
	}
	if !p.initialized {
		if err := p.Initialize(); err != nil {
			return err
		}
	}

	start := time.Now()
	observability.Pass().OnPassStart(ctx, "partition", p.root.Name())
	defer func() {
		observability.Pass().OnPassComplete(ctx, "partition", p.root.Name(), time.Since(start), err)
	}()

	var unit *graph.Graph
	p.reg.OnMerge(func(into, from *cluster.Cluster) {
		p.logger.Debug("merged clusters", "unit", unit.Name(), "into", into, "from", from)
		observability.Pass().OnClusterMerge(ctx, unit.Name(), into.String(), from.String())
	})

	for _, unit = range p.compileUnits() {
		if err := p.partitionUnit(unit); err != nil {
			return p.fail(err)
		}
		unit.SetDynamicShapePartitioned(true)
		p.stats.Units++
	}

	p.MarkSubgraphUnknownStatus()
	p.root.SetDynamicShapePartitioned(true)
	p.root.Attrs()[graph.AttrDynamicShapePartitioned] = true
	p.state = StateDone

	p.logger.Info("partitioned graph",
		"graph", p.root.Name(),
		"units", p.stats.Units,
		"frames", p.stats.Frames,
		"rounds", p.stats.Rounds)
	return nil
}

func (p *Partitioner) fail(err error) error {
	p.state = StateError
	return err
}

// compileUnits returns the root followed by every pipeline-stage subgraph.
func (p *Partitioner) compileUnits() []*graph.Graph {
	units := []*graph.Graph{p.root}
	for _, sub := range p.root.Subgraphs() {
		if parent := sub.ParentNode(); parent != nil && isStageCall(parent) {
			units = append(units, sub)
		}
	}
	return units
}

func isStageCall(n *graph.Node) bool {
	return n.Kind() == graph.KindPartitionedCall && n.Attrs().Has(graph.AttrStageLevel)
}

func (p *Partitioner) partitionUnit(unit *graph.Graph) error {
	p.state = StateMarkUnknown
	if err := unit.TopologicalSort(p.sortMode); err != nil {
		return errors.Wrap(errors.ErrCodeStructural, err, "sort unit %s", unit.Name())
	}

	for round := 1; ; round++ {
		if round > p.maxRounds {
			return errors.New(errors.ErrCodeIterationLimit,
				"unit %s still needs re-partitioning after %d rounds", unit.Name(), p.maxRounds)
		}
		p.stats.Rounds++

		p.state = StateMarkUnknown
		need, err := p.IsGraphNeedUnknownShapePartition(unit)
		if err != nil {
			return err
		}
		if !need {
			return nil
		}

		p.state = StateBuildClusters
		if err := p.InitClusters(unit); err != nil {
			return err
		}

		p.state = StateMergeClusters
		if err := p.MergeClusters(unit); err != nil {
			return err
		}

		if p.cfg.Repartitioner == nil {
			break
		}
		again, err := p.cfg.Repartitioner.NeedRepartition(unit, p.reg.Clusters())
		if err != nil {
			return err
		}
		if !again {
			break
		}
		p.logger.Debug("re-partitioning unit", "unit", unit.Name(), "round", round+1)
	}

	p.state = StateSort
	sorted, err := p.reg.Sorted()
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "order clusters of %s", unit.Name())
	}
	p.stats.Clusters += len(sorted)

	p.state = StateBuildFrames
	if err := p.BuildPartitionFrame(unit, sorted); err != nil {
		return err
	}
	p.stats.Split++
	return nil
}
