// SPDX-License-Identifier: MIT
//
// Package build carries the name, version, commit and build time of the
// binary. Release builds set them with -ldflags -X; development builds fall
// back to the module and VCS data the Go toolchain embeds.
package build

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Description is the one-line summary shown in CLI help.
const Description = "Pump audio from files, stdin or an input device into recorders and spectrum analyzers"

const unknown = "unknown"

type ldFlags struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// Set with -ldflags "-X streampump/pkg/build.buildVersion=..." and friends.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:    "streampump",
		Time:    unknown,
		Commit:  unknown,
		Version: unknown,
	}
)

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Initialize fills the build information. Flags set at link time win. Any
// that are missing are taken from the embedded build info where possible and
// reported in the returned error, which callers may treat as a warning.
func Initialize() error {
	var errs []error
	fill := func(dst *string, ldflag, fallback, name string) {
		switch {
		case ldflag != "":
			*dst = ldflag
		case fallback != "":
			*dst = fallback
			errs = append(errs, fmt.Errorf("%s not set at link time, using %q", name, fallback))
		default:
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}

	embedded := embeddedInfo()
	fill(&buildFlags.Name, buildName, "", "BuildName")
	fill(&buildFlags.Time, buildTime, embedded.Time, "BuildTime")
	fill(&buildFlags.Commit, buildCommit, embedded.Commit, "BuildCommit")
	fill(&buildFlags.Version, buildVersion, embedded.Version, "BuildVersion")

	return errors.Join(errs...)
}

// embeddedInfo extracts what the toolchain recorded about the main module.
func embeddedInfo() ldFlags {
	var f ldFlags
	info, ok := readBuildInfo()
	if !ok {
		return f
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		f.Version = v
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			f.Commit = s.Value
		case "vcs.time":
			f.Time = s.Value
		}
	}
	return f
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

// String formats the build information for version output and logs.
func (f *ldFlags) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", f.Name, f.Version, f.Commit, f.Time)
}
