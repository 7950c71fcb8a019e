// Package version reports the build version of jrepl.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/jrepl"

// buildVersion is set via -ldflags "-X pkt.systems/jrepl/internal/version.buildVersion=...".
var buildVersion = ""

var readBuildInfo = debug.ReadBuildInfo

// Info describes the running build.
type Info struct {
	Module    string
	Version   string
	GoVersion string
	Revision  string
	Dirty     bool
}

// String renders the build for `jrepl version` and /version.
func (i Info) String() string {
	out := fmt.Sprintf("%s %s", i.Module, i.Version)
	if i.GoVersion != "" {
		out += " (" + i.GoVersion + ")"
	}
	return out
}

// Read collects build information. Fields fall back to placeholders when
// the binary carries no build info.
func Read() Info {
	info := Info{Module: defaultModule, Version: Current()}
	bi, ok := readBuildInfo()
	if !ok {
		return info
	}
	if path := strings.TrimSpace(bi.Main.Path); path != "" {
		info.Module = path
	}
	info.GoVersion = bi.GoVersion
	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			info.Revision = setting.Value
		case "vcs.modified":
			info.Dirty = setting.Value == "true"
		}
	}
	return info
}

// Current returns the best available version string.
func Current() string {
	if v := strings.TrimSpace(buildVersion); v != "" {
		return strings.TrimSuffix(v, "+dirty")
	}
	if bi, ok := readBuildInfo(); ok {
		if v := strings.TrimSpace(bi.Main.Version); v != "" && v != "(devel)" {
			return strings.TrimSuffix(v, "+dirty")
		}
		if v := pseudoVersion(bi); v != "" {
			return v
		}
	}
	return "v0.0.0-unknown"
}

// pseudoVersion derives a Go style pseudo version from VCS stamps.
func pseudoVersion(bi *debug.BuildInfo) string {
	if bi == nil {
		return ""
	}
	var revision, stamp string
	var modified bool
	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.time":
			stamp = setting.Value
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}
	if revision == "" || stamp == "" {
		return ""
	}
	parsed, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return ""
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	ver := "v0.0.0-" + parsed.UTC().Format("20060102150405") + "-" + revision
	if modified {
		ver += "+dirty"
	}
	return ver
}
