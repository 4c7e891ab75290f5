// Package version reports which m2m build is running.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Release builds set these at link time, e.g.
//
//	go build -ldflags "-X github.com/pthm/m2m/internal/version.Version=v0.3.0" ./cmd/m2m
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info is the line printed by `m2m version`.
func Info() string {
	return fmt.Sprintf("m2m %s (commit: %s, built: %s) %s",
		Version, Commit, Date, runtime.Version())
}

// FillFromBuildInfo replaces a "dev" version with what the Go toolchain
// embedded in the binary, which is how `go install ...@version` builds end up
// with a version and a commit.
func FillFromBuildInfo() {
	fill(debug.ReadBuildInfo())
}

func fill(info *debug.BuildInfo, ok bool) {
	if Version != "dev" || !ok || info == nil {
		return
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		Version = v
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			Commit = setting.Value
			if len(Commit) > 7 {
				Commit = Commit[:7]
			}
		case "vcs.time":
			Date = setting.Value
		}
	}
}
