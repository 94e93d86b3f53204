// Package version carries the build identity stamped in via -ldflags.
package version

// Version is the semantic version of this build. Release builds overwrite
// it with -X github.com/wastewatch/wastewatch/pkg/version.Version=vX.Y.Z.
var Version = "dev"

// Commit is the short git SHA the binary was built from, when stamped.
var Commit = ""

// AppName is the canonical binary and user-agent name.
const AppName = "wastewatch"

// Full renders "version (commit)" for banners and --version output.
func Full() string {
	if Commit == "" {
		return Version
	}
	return Version + " (" + Commit + ")"
}
