// Package options provides the string-keyed option table read by the
// compiler passes.
//
// Options are plain strings, as they arrive from session configuration.
// Typed getters parse on demand and report malformed values as
// INVALID_OPTION errors so a pass can fail before touching the graph.
//
// Option files are TOML; nested tables flatten to dotted keys:
//
//	[ge]
//	staticModelOpsLowerLimit = 4
//	topoSortingMode = "stable"
//
// yields "ge.staticModelOpsLowerLimit" = "4" and "ge.topoSortingMode" = "stable".
package options

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/hicann/ge-sub098/pkg/errors"
)

// Recognized option keys.
const (
	// StaticModelOpsLowerLimit is the minimum node count a known-shape
	// cluster needs to stay a separate static partition.
	StaticModelOpsLowerLimit = "ge.staticModelOpsLowerLimit"

	// MergeKnownFirst merges known-shape clusters before unknown-shape ones.
	MergeKnownFirst = "ge.mergeKnownFirst"

	// TopoSortingMode selects bfs, dfs or stable ordering. Stable ordering
	// also selects the stable-id merge strategy.
	TopoSortingMode = "ge.topoSortingMode"

	// DynamicBatchEnabled reports that shape variance is handled by batch
	// gears, so units are not split.
	DynamicBatchEnabled = "ge.dynamicBatchEnabled"

	// DynamicNodeThreshold forces units with fewer known nodes than this to
	// run fully dynamic. Zero disables the rule.
	DynamicNodeThreshold = "ge.dynamicNodeThreshold"

	// MaxRepartitionRounds caps the re-partition loop.
	MaxRepartitionRounds = "ge.maxRepartitionRounds"
)

// Options is an immutable string-keyed option table.
// The zero value is an empty table.
type Options struct {
	values map[string]string
}

// New creates options from kv. The map is copied.
func New(kv map[string]string) Options {
	return Options{values: maps.Clone(kv)}
}

// With returns a copy of o with key set to value.
func (o Options) With(key, value string) Options {
	values := maps.Clone(o.values)
	if values == nil {
		values = make(map[string]string)
	}
	values[key] = value
	return Options{values: values}
}

// Get returns the raw value of key.
func (o Options) Get(key string) (string, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Keys returns the set keys in sorted order.
func (o Options) Keys() []string {
	return slices.Sorted(maps.Keys(o.values))
}

// Map returns a copy of the table.
func (o Options) Map() map[string]string {
	return maps.Clone(o.values)
}

// String returns the value of key, or def when unset.
func (o Options) String(key, def string) string {
	if v, ok := o.values[key]; ok {
		return v
	}
	return def
}

// Int parses key as a base-10 integer, returning def when unset.
func (o Options) Int(key string, def int) (int, error) {
	v, ok := o.values[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeInvalidOption, err, "option %s=%q is not an integer", key, v)
	}
	return n, nil
}

// IntAtLeast parses key like Int and rejects values below lower.
func (o Options) IntAtLeast(key string, def, lower int) (int, error) {
	n, err := o.Int(key, def)
	if err != nil {
		return 0, err
	}
	if n < lower {
		return 0, errors.New(errors.ErrCodeInvalidOption, "option %s=%d is below the minimum %d", key, n, lower)
	}
	return n, nil
}

// Bool parses key as a boolean ("1", "true", "0", "false", ...), returning
// def when unset.
func (o Options) Bool(key string, def bool) (bool, error) {
	v, ok := o.values[key]
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeInvalidOption, err, "option %s=%q is not a boolean", key, v)
	}
	return b, nil
}

// Parse decodes TOML data into options.
func Parse(data []byte) (Options, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Options{}, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode options")
	}
	values := make(map[string]string)
	flatten("", raw, values)
	return Options{values: values}, nil
}

// Load reads a TOML options file.
func Load(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Options{}, errors.Wrap(errors.ErrCodeFileNotFound, err, "options file %s", path)
	}
	if err != nil {
		return Options{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data)
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if table, ok := v.(map[string]any); ok {
			flatten(key, table, out)
			continue
		}
		out[key] = fmt.Sprint(v)
	}
}
