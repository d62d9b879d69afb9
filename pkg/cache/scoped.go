package cache

// ScopedKeyer prefixes every key of an inner Keyer. The CLI scopes keys by
// tool version so a new release never reads entries written by an older
// partitioner.
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer returns a keyer that prepends prefix to the keys of inner,
// or of a [DefaultKeyer] if inner is nil.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

// CompileKey returns the prefixed compile key.
func (k *ScopedKeyer) CompileKey(graphHash string, opts CompileKeyOpts) string {
	return k.prefix + k.inner.CompileKey(graphHash, opts)
}

// ArtifactKey returns the prefixed artifact key.
func (k *ScopedKeyer) ArtifactKey(compiledHash string, opts ArtifactKeyOpts) string {
	return k.prefix + k.inner.ArtifactKey(compiledHash, opts)
}
