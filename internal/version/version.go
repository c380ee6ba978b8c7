// Package version reports what binary is running.
package version

import (
	"fmt"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/oukeidos/ebt/internal/version.Version=..."
// and likewise for Commit and BuildDate. Unset values are read from the VCS
// stamp the Go toolchain embeds.
var (
	Version   = "0.1.0"
	Commit    = ""
	BuildDate = ""
)

var readBuildInfo = debug.ReadBuildInfo

// Info returns the multi-line text printed by --version.
func Info() string {
	commit, date := Commit, BuildDate
	if commit == "" || date == "" {
		c, d, modified := vcsStamp()
		if commit == "" {
			commit = c
			if modified {
				commit += "-dirty"
			}
		}
		if date == "" {
			date = d
		}
	}
	return fmt.Sprintf("ebt %s\ncommit: %s\nbuild: %s", Version, orUnknown(commit), orUnknown(date))
}

func vcsStamp() (revision, stamp string, modified bool) {
	info, ok := readBuildInfo()
	if !ok {
		return "", "", false
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
			if len(revision) > 12 {
				revision = revision[:12]
			}
		case "vcs.time":
			stamp = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	return revision, stamp, modified
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
