// Package buildinfo carries version metadata injected at build time via
// -ldflags "-X github.com/aura-assistant/aura-core/internal/buildinfo.Version=...".
package buildinfo

var (
	Version   = "dev"
	Revision  = "unknown"
	BuildDate = "unknown"
)
