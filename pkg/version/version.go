// Package version exposes the build stamp of the synthesis binary.
package version

import (
	"fmt"
	"runtime"
)

// Stamped through -ldflags "-X .../pkg/version.Version=..." by the
// release build; source builds report dev/unknown.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// BuildInfo is the version block rendered by `version --json`.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// Short returns the bare version string.
func Short() string { return Version }

// String returns the one-line human form.
func String() string {
	return fmt.Sprintf("synthesis %s (commit: %s, built: %s, go: %s)",
		Version, Commit, Date, runtime.Version())
}

func GetInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
