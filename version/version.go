// Package version holds build metadata injected at link time via
// -ldflags "-X github.com/selmo/docstill/version.GitRelease=...".
package version

import "runtime"

var (
	GitRelease    = "dev"
	GitCommit     = "unknown"
	GitCommitDate = "unknown"
)

// GoInfo reports the toolchain that built the binary.
var GoInfo = runtime.Version()
