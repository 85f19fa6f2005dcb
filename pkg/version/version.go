// Package version exposes build metadata stamped at link time.
package version

// Populated via -ldflags at build time. Defaults identify a source build.
var (
	// Version is the semantic version of the rollgate binary.
	Version = "dev"

	// Commit is the VCS revision the binary was built from.
	Commit = "unknown"

	// Date is the UTC build timestamp.
	Date = "unknown"
)
