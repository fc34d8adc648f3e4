package version

// Version information for the Ward Contract Index
const (
	// Version is the current semantic version of wci
	Version = "0.2.0"

	// BuildDate is set during build time (use -ldflags)
	BuildDate = "development"

	// GitCommit is set during build time (use -ldflags)
	GitCommit = "unknown"
)

// Info returns version information as a string
func Info() string {
	return Version
}

// FullInfo returns detailed version information
func FullInfo() string {
	return "Ward Contract Index " + Version + " (commit: " + GitCommit + ", built: " + BuildDate + ")"
}

// Producer is the producer string recorded in cache metadata. A cache written
// by a different producer version is still usable as long as the format
// version matches; the string exists for diagnostics, not for gating.
func Producer() string {
	return "wci/" + Version
}
