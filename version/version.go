// Package version holds build metadata injected at link time.
package version

import "runtime"

// Set via -ldflags at build time, e.g.
//
//	go build -ldflags "-X github.com/lectern-dev/lectern/version.GitRelease=v0.2.0"
var (
	// GitRelease is the release tag or "dev" for local builds.
	GitRelease = "dev"

	// GitCommit is the commit hash the binary was built from.
	GitCommit = ""

	// GitCommitDate is the commit date the binary was built from.
	GitCommitDate = ""
)

// GoInfo reports the Go toolchain the binary was built with.
var GoInfo = runtime.Version()
