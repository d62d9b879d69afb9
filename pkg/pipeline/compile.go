package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hicann/ge-sub098/pkg/graph"
	"github.com/hicann/ge-sub098/pkg/observability"
	"github.com/hicann/ge-sub098/pkg/partition"
	"github.com/hicann/ge-sub098/pkg/unfold"
)

// Compiled is the output of [Compile].
type Compiled struct {
	Graph     *graph.Graph
	Partition partition.Stats
	Inlined   int
}

// Compile runs the passes over g. Partitioning rewrites g in place; unfolding
// returns a new root, so callers must use Compiled.Graph afterwards.
//
// A graph without a session id gets a fresh one, which names the run in
// logs and in the exported document.
func Compile(ctx context.Context, g *graph.Graph, opts Options) (*Compiled, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	if g.SessionID() == "" {
		g.SetSessionID(uuid.NewString())
	}
	logger := opts.Logger.With("session", g.SessionID())

	out := &Compiled{Graph: g}
	if !opts.SkipPartition {
		p := partition.New(g, partition.Config{
			Options:       opts.Pass,
			Oracle:        opts.Oracle,
			Repartitioner: opts.Repartitioner,
			Logger:        logger,
		})
		if err := p.Partition(ctx); err != nil {
			return nil, err
		}
		out.Partition = p.Stats()
	}

	if !opts.Unfold {
		return out, nil
	}
	if !unfold.IsGraphNeedUnfold(g) {
		logger.Debug("graph needs no unfolding", "graph", g.Name())
		return out, nil
	}

	start := time.Now()
	observability.Pass().OnPassStart(ctx, "unfold", g.Name())
	u := unfold.New(logger)
	merged, err := u.UnfoldSubgraphs(g)
	observability.Pass().OnPassComplete(ctx, "unfold", g.Name(), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	out.Graph = merged
	out.Inlined = u.Inlined()
	return out, nil
}
