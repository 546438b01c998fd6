// Package buildinfo exposes version information stamped at build time.
package buildinfo

import "runtime/debug"

// Stamped via -ldflags on release builds.
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = ""
)

// Properties describes the running binary.
type Properties struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// Get returns the build properties. When no commit was stamped at build time
// it falls back to the VCS revision recorded by the Go toolchain.
func Get() Properties {
	commit := gitCommit
	if commit == "" {
		commit = vcsRevision()
	}
	return Properties{
		Version:   version,
		BuildTime: buildTime,
		GitCommit: commit,
	}
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return "unknown"
}
