// Package version holds build identity, overridden at link time via
// -ldflags "-X github.com/wisbric/adlcgate/internal/version.Version=...".
package version

var (
	Version = "dev"
	Commit  = "unknown"
)
