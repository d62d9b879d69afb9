package cache

import "strings"

// CompileKeyOpts holds the inputs that change the result of a compile.
type CompileKeyOpts struct {
	// Options are the pass options as flattened key/value pairs.
	Options map[string]string
	// Unfold is set when the partitioned graph is also unfolded.
	Unfold bool
}

// ArtifactKeyOpts holds the inputs that change a rendered artifact.
type ArtifactKeyOpts struct {
	Format   string
	Detailed bool
	Flat     bool
}

// Keyer derives cache keys.
type Keyer interface {
	// CompileKey returns the key of the compiled form of a graph document.
	CompileKey(graphHash string, opts CompileKeyOpts) string

	// ArtifactKey returns the key of a rendering of a compiled graph.
	ArtifactKey(compiledHash string, opts ArtifactKeyOpts) string
}

// DefaultKeyer hashes every key input into the key.
type DefaultKeyer struct{}

// NewDefaultKeyer returns a DefaultKeyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// CompileKey returns "compile:<sha256>" over the graph hash and options.
func (DefaultKeyer) CompileKey(graphHash string, opts CompileKeyOpts) string {
	return hashKey("compile", graphHash, opts.Options, opts.Unfold)
}

// ArtifactKey returns "artifact:<format>:<sha256>".
func (DefaultKeyer) ArtifactKey(compiledHash string, opts ArtifactKeyOpts) string {
	return hashKey("artifact:"+strings.ToLower(opts.Format), compiledHash, opts.Detailed, opts.Flat)
}

var _ Keyer = DefaultKeyer{}
