// Package version reports ragdoc build information.
package version

import (
	"fmt"
	"runtime"
)

// Set at build time with
// -ldflags "-X github.com/jaganraajan/rag-document-parser/pkg/version.Version=..."
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// BuildInfo is the JSON form of `ragdoc version --json`.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func GetInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String is the one-line human form.
func String() string {
	return fmt.Sprintf("ragdoc %s (commit: %s, built: %s, go: %s)", Version, Commit, Date, runtime.Version())
}
