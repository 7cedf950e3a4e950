package build

import "fmt"

// The string variables can be overridden via -ldflags -X at build time; the
// values below are what a `go build` with no flags produces.
var (
	// Commit is the git commit the binary was built from.
	Commit string

	// AppMajor is this build's major version number.
	AppMajor uint = 0

	// AppMinor is this build's minor version number.
	AppMinor uint = 1

	// AppPatch is this build's patch version number.
	AppPatch uint = 0

	// AppPreRelease is appended to the version string for non-release
	// builds, e.g. "beta".
	AppPreRelease = "beta"
)

// Version returns the application version as a properly formed string per
// the semantic versioning 2.0.0 spec (http://semver.org/).
func Version() string {
	version := fmt.Sprintf("%d.%d.%d", AppMajor, AppMinor, AppPatch)
	if AppPreRelease != "" {
		version = fmt.Sprintf("%s-%s", version, AppPreRelease)
	}
	if Commit != "" {
		version = fmt.Sprintf("%s commit=%s", version, Commit)
	}
	return version
}
