// SPDX-License-Identifier: MIT
//
// Package build provides access to build metadata embedded into the binary
// at compile time via linker flags. The application name, build timestamp,
// Git commit hash, and semantic version can all be injected:
//
//	go build -ldflags "-X lfnmon/pkg/build.buildName=lfnmon \
//	    -X lfnmon/pkg/build.buildVersion=0.2.0 ..."
//
// Development builds that omit the flags fall back to "dev" placeholders so
// the binary stays runnable without a release pipeline.
package build

// Info holds the resolved build metadata.
type Info struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// Package-level variables populated by -ldflags during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string

	buildInfo = Info{
		Name:    "lfnmon",
		Time:    "unknown",
		Commit:  "unknown",
		Version: "dev",
	}
)

// Initialize copies any build information provided via ldflags into the
// package state. Call once early in program startup; fields left unset keep
// their development defaults.
func Initialize() {
	if buildName != "" {
		buildInfo.Name = buildName
	}
	if buildTime != "" {
		buildInfo.Time = buildTime
	}
	if buildCommit != "" {
		buildInfo.Commit = buildCommit
	}
	if buildVersion != "" {
		buildInfo.Version = buildVersion
	}
}

// GetBuildInfo returns the current build information. Safe to call before
// Initialize; callers then see the development defaults.
func GetBuildInfo() Info {
	return buildInfo
}
