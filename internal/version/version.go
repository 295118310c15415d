package version

const (
	Version     = "0.1.0"
	Name        = "Zonewatch"
	Description = "Stage-detection monitoring core for multi-zone industrial heating cycles"
	Copyright   = "© 2026 Zonewatch contributors"
	Developers  = "Zonewatch contributors"
	License     = "Apache-2.0"
	URL         = "https://github.com/kbuckham/zonewatch"
)

// Injected at build time via -ldflags
var (
	GitHash   = "dev"
	BuildTime = "unknown"
)

// FullVersion returns version string with git hash and build time.
func FullVersion() string {
	return Version + " (" + GitHash + ") built " + BuildTime
}
