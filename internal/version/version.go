// Package version provides build version information.
package version

import (
	"fmt"
	"runtime"
)

// Set at build time with -ldflags "-X github.com/ctagard/twx-dap/internal/version.Version=..."
var (
	// Version is the current version of twx-dap
	Version = "0.1.0"

	// Commit is the source revision the binary was built from
	Commit = "unknown"
)

// Info describes the running binary
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build information of the running binary
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String renders the version line printed by the version command
func (i Info) String() string {
	return fmt.Sprintf("twx-dap v%s (commit %s, %s, %s)", i.Version, i.Commit, i.GoVersion, i.Platform)
}
