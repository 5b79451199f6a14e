// Package buildinfo exposes version metadata for the aegis binary. Values are
// set at build time with -ldflags; Commit and Date fall back to the VCS
// settings the Go toolchain embeds.
package buildinfo

import (
	"runtime/debug"
	"strings"
)

var (
	Version = "dev"
	Commit  = ""
	Date    = ""
	BuiltBy = ""
)

var readBuildInfo = debug.ReadBuildInfo

// vcs returns the embedded revision and commit time, if any.
func vcs() (revision, at string) {
	info, ok := readBuildInfo()
	if !ok {
		return "", ""
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			at = s.Value
		}
	}
	return revision, at
}

// Resolved returns Version, Commit and Date with fallbacks applied.
func Resolved() (version, commit, date string) {
	version, commit, date = Version, Commit, Date
	if version == "" {
		version = "dev"
	}
	if commit == "" || date == "" {
		rev, at := vcs()
		if commit == "" {
			commit = rev
		}
		if date == "" {
			date = at
		}
	}
	return version, commit, date
}

// Summary returns a concise single-line version string.
func Summary() string {
	v, commit, date := Resolved()
	parts := make([]string, 0, 2)
	if commit != "" {
		if len(commit) > 7 {
			commit = commit[:7]
		}
		parts = append(parts, "commit="+commit)
	}
	if date != "" {
		parts = append(parts, "date="+date)
	}
	if len(parts) > 0 {
		v += " (" + strings.Join(parts, ", ") + ")"
	}
	return v
}
