// Package pipeline runs the compile pipeline shared by every gepart command.
//
// The pipeline has three stages:
//
//  1. Parse: decode a JSON graph document and sort every graph.
//  2. Compile: run dynamic-shape partitioning and, on request, unfold the
//     known-shape partitions back into the root graph.
//  3. Render: produce the requested artifacts (JSON, DOT, SVG, PNG).
//
// Compile and render results are cached by content hash, so re-running the
// same input with the same options is a cache read.
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    Input:   data,
//	    Pass:    opts,
//	    Unfold:  true,
//	    Formats: []string{pipeline.FormatJSON, pipeline.FormatSVG},
//	})
//	if err != nil {
//	    return err
//	}
//	os.WriteFile("out.svg", result.Artifacts[pipeline.FormatSVG], 0o644)
package pipeline

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hicann/ge-sub098/pkg/cache"
	"github.com/hicann/ge-sub098/pkg/errors"
	"github.com/hicann/ge-sub098/pkg/graph"
	"github.com/hicann/ge-sub098/pkg/options"
	"github.com/hicann/ge-sub098/pkg/partition"
)

// TTLs of cached stage results.
const (
	TTLCompile  = 7 * 24 * time.Hour
	TTLArtifact = 7 * 24 * time.Hour
)

// Output formats.
const (
	FormatJSON = "json"
	FormatDOT  = "dot"
	FormatSVG  = "svg"
	FormatPNG  = "png"
)

// ValidFormats is the set of supported output formats.
var ValidFormats = map[string]bool{
	FormatJSON: true,
	FormatDOT:  true,
	FormatSVG:  true,
	FormatPNG:  true,
}

// ValidateFormat checks that format is supported.
func ValidateFormat(format string) error {
	if !ValidFormats[format] {
		return errors.New(errors.ErrCodeInvalidInput,
			"invalid format: %q (must be one of: json, dot, svg, png)", format)
	}
	return nil
}

// ValidateFormats checks every format.
func ValidateFormats(formats []string) error {
	for _, f := range formats {
		if err := ValidateFormat(f); err != nil {
			return err
		}
	}
	return nil
}

// Options configures one pipeline run.
type Options struct {
	// Input is the JSON graph document.
	Input []byte

	// Pass holds the partitioner options.
	Pass options.Options

	// SkipPartition skips dynamic-shape partitioning, for inputs that were
	// partitioned by an earlier run.
	SkipPartition bool

	// Unfold inlines known-shape partitions after partitioning.
	Unfold bool

	// Formats lists the artifacts to produce. Defaults to json.
	Formats []string

	// Detailed and Flat tune DOT-based artifacts.
	Detailed bool
	Flat     bool

	// Refresh bypasses cached results and overwrites them.
	Refresh bool

	// Repartitioner is consulted after each merge round.
	Repartitioner partition.Repartitioner

	// Oracle answers tiling questions. Defaults to partition.AttrOracle.
	Oracle partition.Oracle

	Logger *log.Logger

	validated bool
}

// ValidateAndSetDefaults checks required fields and applies defaults. It is
// idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if len(o.Input) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "input graph is required")
	}
	if len(o.Formats) == 0 {
		o.Formats = []string{FormatJSON}
	}
	if err := ValidateFormats(o.Formats); err != nil {
		return err
	}
	if o.Oracle == nil {
		o.Oracle = partition.AttrOracle{}
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}

// CompileKeyOpts returns cache key options for the compile stage.
func (o *Options) CompileKeyOpts() cache.CompileKeyOpts {
	kv := o.Pass.Map()
	if kv == nil {
		kv = map[string]string{}
	}
	if o.SkipPartition {
		kv["pipeline.skipPartition"] = "true"
	}
	return cache.CompileKeyOpts{Options: kv, Unfold: o.Unfold}
}

// ArtifactKeyOpts returns cache key options for one rendered format.
func (o *Options) ArtifactKeyOpts(format string) cache.ArtifactKeyOpts {
	return cache.ArtifactKeyOpts{Format: format, Detailed: o.Detailed, Flat: o.Flat}
}

// Result holds the outputs of a pipeline run.
type Result struct {
	// Graph is the compiled graph.
	Graph *graph.Graph

	// Document is the exported JSON of Graph.
	Document []byte

	// InputHash is the content hash of the input document.
	InputHash string

	// Summary describes Graph.
	Summary Summary

	// Partition holds partitioner statistics. It is zero on a cache hit.
	Partition partition.Stats

	// Inlined counts the partitioned calls removed by unfolding.
	Inlined int

	// Artifacts holds rendered outputs keyed by format.
	Artifacts map[string][]byte

	Stats     Stats
	CacheInfo CacheInfo
}

// Stats holds stage timings.
type Stats struct {
	CompileTime time.Duration // parse included
	RenderTime  time.Duration
}

// CacheInfo records which stages were served from cache.
type CacheInfo struct {
	CompileHit bool
	RenderHit  bool
}

// Summary counts the contents of a compiled graph.
type Summary struct {
	Nodes            int // direct nodes of the root
	TotalNodes       int // nodes of the root and every subgraph
	Subgraphs        int
	UnknownSubgraphs int
	Partitioned      bool
	SessionID        string
}

// Summarize counts the contents of g.
func Summarize(g *graph.Graph) Summary {
	s := Summary{
		Nodes:       g.NodeCount(),
		TotalNodes:  len(g.AllNodes()),
		Partitioned: g.DynamicShapePartitioned(),
		SessionID:   g.SessionID(),
	}
	for _, sub := range g.Subgraphs() {
		s.Subgraphs++
		if sub.UnknownShape() {
			s.UnknownSubgraphs++
		}
	}
	return s
}
