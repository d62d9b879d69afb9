package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hicann/ge-sub098/pkg/errors"
	"github.com/hicann/ge-sub098/pkg/pipeline"
)

// compileFlags are shared by partition, unfold and render.
type compileFlags struct {
	config   string   // TOML options file
	sets     []string // key=value option overrides
	output   string   // output file (single format) or base path (multiple)
	formats  string   // comma-separated output formats
	noCache  bool
	refresh  bool
	detailed bool
	flat     bool
}

func (f *compileFlags) register(cmd *cobra.Command, defFormat string) {
	cmd.Flags().StringVarP(&f.config, "config", "c", "", "options file (TOML)")
	cmd.Flags().StringArrayVar(&f.sets, "set", nil, "set an option, e.g. --set ge.mergeKnownFirst=true (repeatable)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output file (single format) or base path (multiple)")
	cmd.Flags().StringVarP(&f.formats, "format", "f", "", "output format(s): json, dot, svg, png (comma-separated, default "+defFormat+")")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&f.refresh, "refresh", false, "recompute and overwrite cached results")
	cmd.Flags().BoolVar(&f.detailed, "detailed", false, "show operator types, shapes and attributes in diagrams")
	cmd.Flags().BoolVar(&f.flat, "flat", false, "draw only the root graph in diagrams")
}

func (c *CLI) partitionCommand() *cobra.Command {
	var f compileFlags
	cmd := &cobra.Command{
		Use:   "partition [graph.json]",
		Short: "Split a graph into known-shape and unknown-shape partitions",
		Long: `Split a graph into known-shape and unknown-shape partitions.

Every compile unit (the root graph and each pipeline-stage subgraph) is
clustered, and each cluster becomes a subgraph invoked by a PartitionedCall
node. The result is written as <input>.partitioned.json unless -o is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runCompile(cmd.Context(), args[0], f, pipeline.Options{}, pipeline.FormatJSON, ".partitioned")
		},
	}
	f.register(cmd, pipeline.FormatJSON)
	return cmd
}

func (c *CLI) unfoldCommand() *cobra.Command {
	var (
		f    compileFlags
		skip bool
	)
	cmd := &cobra.Command{
		Use:   "unfold [graph.json]",
		Short: "Partition a graph and inline its known-shape partitions",
		Long: `Partition a graph and inline its known-shape partitions.

Calls to known-shape partitions are replaced by the partition bodies, and
nested control-flow subgraphs are unfolded recursively. Unknown-shape
partitions stay behind their call nodes. Use --skip-partition for inputs that
were already partitioned.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := pipeline.Options{Unfold: true, SkipPartition: skip}
			return c.runCompile(cmd.Context(), args[0], f, opts, pipeline.FormatJSON, ".unfolded")
		},
	}
	f.register(cmd, pipeline.FormatJSON)
	cmd.Flags().BoolVar(&skip, "skip-partition", false, "input is already partitioned")
	return cmd
}

func (c *CLI) renderCommand() *cobra.Command {
	var (
		f         compileFlags
		partition bool
	)
	cmd := &cobra.Command{
		Use:   "render [graph.json]",
		Short: "Draw a graph and its subgraphs with Graphviz",
		Long: `Draw a graph and its subgraphs with Graphviz.

Subgraphs are drawn as nested clusters, known-shape ones in blue and
unknown-shape ones in orange. Pass --partition to partition the graph first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := pipeline.Options{SkipPartition: !partition}
			return c.runCompile(cmd.Context(), args[0], f, opts, pipeline.FormatSVG, "")
		},
	}
	f.register(cmd, pipeline.FormatSVG)
	cmd.Flags().BoolVar(&partition, "partition", false, "partition the graph before drawing it")
	return cmd
}

// runCompile runs the pipeline on input and writes the artifacts. suffix is
// appended to the input base name when no output path is given.
func (c *CLI) runCompile(ctx context.Context, input string, f compileFlags, opts pipeline.Options, defFormat, suffix string) error {
	data, err := readInput(input)
	if err != nil {
		return err
	}
	pass, err := loadPassOptions(f.config, f.sets)
	if err != nil {
		return err
	}

	opts.Input = data
	opts.Pass = pass
	opts.Formats = parseFormats(f.formats, defFormat)
	opts.Detailed = f.detailed
	opts.Flat = f.flat
	opts.Refresh = f.refresh
	opts.Logger = c.Logger
	if err := pipeline.ValidateFormats(opts.Formats); err != nil {
		return err
	}

	runner, err := c.newRunner(f.noCache)
	if err != nil {
		return err
	}
	defer runner.Close()

	prog := newProgress(c.Logger)
	result, err := runner.Execute(ctx, opts)
	if err != nil {
		return err
	}
	prog.done("compiled " + filepath.Base(input))

	printResult(result)
	paths, err := writeArtifacts(result.Artifacts, opts.Formats, input, f.output, suffix)
	if err != nil {
		return err
	}
	for _, p := range paths {
		printFile(p)
	}
	return nil
}

// writeArtifacts writes one file per format and returns the paths in format
// order.
//
// With a single format, output is the file path. Otherwise, or when output
// is empty, files are named <base>.<format>, where base is output or the
// input path without extension plus suffix.
func writeArtifacts(artifacts map[string][]byte, formats []string, input, output, suffix string) ([]string, error) {
	base := output
	if output == "" {
		base = strings.TrimSuffix(input, filepath.Ext(input)) + suffix
	}

	paths := make([]string, 0, len(formats))
	for _, format := range formats {
		path := base + "." + format
		if output != "" && len(formats) == 1 {
			path = output
		}
		if filepath.Clean(path) == filepath.Clean(input) {
			return nil, errors.New(errors.ErrCodeInvalidPath, "refusing to overwrite input %s; use -o", input)
		}
		if err := errors.ValidatePath(path); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, artifacts[format], 0o644); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "write %s", path)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
