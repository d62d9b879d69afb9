// Package buildinfo holds build-time version information.
//
// Variables are set via ldflags:
//
//	go build -ldflags "-X github.com/hicann/ge-sub098/pkg/buildinfo.Version=v0.3.0 \
//	    -X github.com/hicann/ge-sub098/pkg/buildinfo.Commit=$(git rev-parse HEAD)"
package buildinfo

import "fmt"

var (
	// Version is the semantic version. It also scopes cache keys, so results
	// compiled by one release are never served to another.
	Version = "dev"

	Commit = "none"
	Date   = "unknown"
)

// String returns the formatted build information.
func String() string {
	return fmt.Sprintf("version: %s\ncommit: %s\nbuilt: %s", Version, Commit, Date)
}

// Template returns the version template for cobra.
func Template() string {
	return fmt.Sprintf("{{.Name}} version %s\ncommit: %s\nbuilt: %s\n", Version, Commit, Date)
}

// CacheScope returns the prefix applied to cache keys.
func CacheScope() string {
	return "gepart-" + Version
}
