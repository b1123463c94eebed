// Package version carries build information (set via ldflags).
package version

import "runtime"

var (
	// GitRelease is the release tag, set at build time.
	GitRelease = "dev"

	// GitCommit is the commit SHA, set at build time.
	GitCommit = "unknown"

	// GitCommitDate is the commit date, set at build time.
	GitCommitDate = "unknown"

	// GoInfo is the Go toolchain that produced the binary.
	GoInfo = runtime.Version()
)
