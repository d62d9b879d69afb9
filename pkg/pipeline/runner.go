package pipeline

import (
	"bytes"
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hicann/ge-sub098/pkg/cache"
	"github.com/hicann/ge-sub098/pkg/graph"
	gio "github.com/hicann/ge-sub098/pkg/io"
	"github.com/hicann/ge-sub098/pkg/observability"
)

// Runner executes the pipeline with caching.
//
// The Runner holds no per-run state besides the cache and logger, so one
// Runner may serve concurrent runs with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner. A nil keyer means [cache.DefaultKeyer]; a nil
// cache disables caching.
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Cache: c, Keyer: keyer, Logger: logger}
}

// Execute runs parse, compile and render.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}

	result := &Result{InputHash: cache.Hash(opts.Input)}

	start := time.Now()
	compiled, doc, hit, err := r.CompileWithCacheInfo(ctx, opts)
	if err != nil {
		return nil, err
	}
	result.Graph = compiled.Graph
	result.Document = doc
	result.Partition = compiled.Partition
	result.Inlined = compiled.Inlined
	result.Summary = Summarize(compiled.Graph)
	result.CacheInfo.CompileHit = hit
	result.Stats.CompileTime = time.Since(start)

	r.Logger.Info("compiled graph",
		"graph", compiled.Graph.Name(),
		"nodes", result.Summary.TotalNodes,
		"subgraphs", result.Summary.Subgraphs,
		"cached", hit,
		"duration", result.Stats.CompileTime)

	start = time.Now()
	artifacts, hit, err := r.RenderWithCacheInfo(ctx, compiled.Graph, doc, opts)
	if err != nil {
		return nil, err
	}
	result.Artifacts = artifacts
	result.CacheInfo.RenderHit = hit
	result.Stats.RenderTime = time.Since(start)

	r.Logger.Info("rendered outputs",
		"formats", opts.Formats,
		"cached", hit,
		"duration", result.Stats.RenderTime)
	return result, nil
}

// CompileWithCacheInfo parses and compiles opts.Input and returns the
// compiled graph, its exported document and whether it came from cache.
//
// The cached value is the exported document; on a hit it is decoded again,
// so partition statistics are zero.
func (r *Runner) CompileWithCacheInfo(ctx context.Context, opts Options) (*Compiled, []byte, bool, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, nil, false, err
	}

	key := r.Keyer.CompileKey(cache.Hash(opts.Input), opts.CompileKeyOpts())
	if !opts.Refresh {
		if data, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
			if g, err := gio.ReadJSON(bytes.NewReader(data)); err == nil {
				observability.Cache().OnCacheHit(ctx, "compile")
				return &Compiled{Graph: g}, data, true, nil
			}
			r.Logger.Warn("discarding unreadable cache entry", "key", key)
		}
	}
	observability.Cache().OnCacheMiss(ctx, "compile")

	parseStart := time.Now()
	g, err := Parse(opts.Input)
	if err != nil {
		return nil, nil, false, err
	}
	r.Logger.Debug("parsed graph",
		"graph", g.Name(),
		"nodes", g.NodeCount(),
		"subgraphs", len(g.Subgraphs()),
		"duration", time.Since(parseStart))

	compiled, err := Compile(ctx, g, opts)
	if err != nil {
		return nil, nil, false, err
	}

	doc, err := encode(compiled.Graph)
	if err != nil {
		return nil, nil, false, err
	}
	if err := r.Cache.Set(ctx, key, doc, TTLCompile); err != nil {
		r.Logger.Warn("cache write failed", "key", key, "err", err)
	} else {
		observability.Cache().OnCacheSet(ctx, "compile", len(doc))
	}
	return compiled, doc, false, nil
}

// RenderWithCacheInfo produces the requested artifacts and reports whether
// all of them came from cache.
func (r *Runner) RenderWithCacheInfo(ctx context.Context, g *graph.Graph, doc []byte, opts Options) (map[string][]byte, bool, error) {
	r.applyLogger(&opts)
	if err := ValidateFormats(opts.Formats); err != nil {
		return nil, false, err
	}

	docHash := cache.Hash(doc)
	artifacts := make(map[string][]byte, len(opts.Formats))
	if !opts.Refresh {
		for _, format := range opts.Formats {
			data, hit, err := r.Cache.Get(ctx, r.Keyer.ArtifactKey(docHash, opts.ArtifactKeyOpts(format)))
			if err != nil || !hit {
				break
			}
			artifacts[format] = data
		}
		if len(artifacts) == len(opts.Formats) {
			observability.Cache().OnCacheHit(ctx, "artifact")
			return artifacts, true, nil
		}
	}
	observability.Cache().OnCacheMiss(ctx, "artifact")

	rendered, err := Render(ctx, g, doc, opts)
	if err != nil {
		return nil, false, err
	}
	for format, data := range rendered {
		key := r.Keyer.ArtifactKey(docHash, opts.ArtifactKeyOpts(format))
		if err := r.Cache.Set(ctx, key, data, TTLArtifact); err == nil {
			observability.Cache().OnCacheSet(ctx, "artifact", len(data))
		}
	}
	return rendered, false, nil
}

// Close releases the cache.
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}

func encode(g *graph.Graph) ([]byte, error) {
	var buf bytes.Buffer
	if err := gio.WriteJSON(g, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
