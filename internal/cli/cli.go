// Package cli implements the gepart command-line interface.
package cli

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/hicann/ge-sub098/pkg/buildinfo"
	"github.com/hicann/ge-sub098/pkg/cache"
	"github.com/hicann/ge-sub098/pkg/errors"
	"github.com/hicann/ge-sub098/pkg/options"
	"github.com/hicann/ge-sub098/pkg/pipeline"
)

const appName = "gepart"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a CLI logging to w at level.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "gepart partitions compute graphs by shape dynamism",
		Long: `gepart splits compute graphs into known-shape and unknown-shape partitions,
materializes each partition as a subgraph called from its compile unit, and
can unfold the known-shape partitions back into a flat graph.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}
	root.SetVersionTemplate(buildinfo.Template())

	root.AddCommand(c.partitionCommand())
	root.AddCommand(c.unfoldCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.inspectCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())
	return root
}

// newRunner creates a pipeline runner whose cache keys are scoped to this
// build.
func (c *CLI) newRunner(noCache bool) (*pipeline.Runner, error) {
	store, err := newCache(noCache)
	if err != nil {
		return nil, err
	}
	keyer := cache.NewScopedKeyer(cache.NewDefaultKeyer(), buildinfo.CacheScope())
	return pipeline.NewRunner(store, keyer, c.Logger), nil
}

func newCache(noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	dir, err := cacheDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// cacheDir returns the compile cache directory ($XDG_CACHE_HOME/gepart on
// Linux).
func cacheDir() (string, error) {
	return cache.DefaultDir()
}

// loadPassOptions reads the options file at path, if any, and applies
// key=value overrides on top.
func loadPassOptions(path string, sets []string) (options.Options, error) {
	var opts options.Options
	if path != "" {
		loaded, err := options.Load(path)
		if err != nil {
			return options.Options{}, err
		}
		opts = loaded
	}
	for _, kv := range sets {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return options.Options{}, errors.New(errors.ErrCodeInvalidOption, "--set %q: want key=value", kv)
		}
		opts = opts.With(key, strings.TrimSpace(value))
	}
	return opts, nil
}

// parseFormats splits a comma-separated format list. An empty list yields
// def.
func parseFormats(s, def string) []string {
	if s == "" {
		return []string{def}
	}
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func readInput(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "read %s", path)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "read %s", path)
	}
	return data, nil
}
