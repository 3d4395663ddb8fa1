package version

// Version contains the application version information.
// It is set via build-time ldflags in production:
// go build -ldflags "-X git.home.luguber.info/inful/bakery/internal/version.Version=v1.0.0".
var Version = "dev"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the version line printed by `bakery version`.
func String() string {
	return "bakery " + Version + " (commit " + GitCommit + ", built " + BuildTime + ")"
}
