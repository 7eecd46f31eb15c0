// Package version reports what build of slidereel is running.
//
// Release builds inject Version, Commit, and Date through ldflags:
//
//	-X github.com/jmylchreest/slidereel/internal/version.Version=1.2.3
//
// Builds straight from `go install` fall back to the VCS metadata the
// toolchain embeds.
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"
)

const appName = "slidereel"

// Injected through ldflags; see the package comment.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

func init() {
	if Commit != "unknown" {
		return
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			Commit = s.Value
		case "vcs.time":
			Date = s.Value
		}
	}
}

// Info is the structured form served by the API.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build information of the running binary.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func shortCommit() string {
	if Commit == "unknown" || len(Commit) < 8 {
		return ""
	}
	return Commit[:8]
}

// Short is the one-line form used for --version.
func Short() string {
	if c := shortCommit(); c != "" {
		return fmt.Sprintf("%s %s (%s)", appName, Version, c)
	}
	return fmt.Sprintf("%s %s", appName, Version)
}

// String is the full human-readable form.
func String() string {
	info := Get()
	if c := shortCommit(); c != "" {
		return fmt.Sprintf("%s version %s (commit: %s, built: %s, %s, %s)",
			appName, info.Version, c, info.Date, info.GoVersion, info.Platform)
	}
	return fmt.Sprintf("%s version %s (%s, %s)", appName, info.Version, info.GoVersion, info.Platform)
}

// JSON renders Get as indented JSON for `slidereel version --json`.
func JSON() string {
	out, err := json.MarshalIndent(Get(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(out)
}
