// Package version holds build information set via ldflags.
package version

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Full returns the version with commit and build time
func Full() string {
	return Version + " (" + GitCommit + ") built at " + BuildTime
}
