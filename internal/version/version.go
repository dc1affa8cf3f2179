// Package version carries build metadata set via -ldflags.
package version

var (
	// Version is the release version.
	Version = "v0.1.0"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)
