// Package version reports the build identity of the surveyforge binary.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/surveyforge"

// buildVersion is set via -ldflags "-X pkt.systems/surveyforge/internal/version.buildVersion=...".
var buildVersion = ""

// Info describes the running build.
type Info struct {
	Module   string
	Version  string
	Revision string
	Time     time.Time
	Dirty    bool
}

// Get collects build identity from the linker flag and the embedded build info.
func Get() Info {
	info, _ := debug.ReadBuildInfo()
	return fromBuildInfo(info, buildVersion)
}

// Current returns the best available version string.
func Current() string {
	return Get().Version
}

// Module returns the module path from build info when available.
func Module() string {
	return Get().Module
}

// String renders the info as "module version (revision, dirty)".
func (i Info) String() string {
	out := i.Module + " " + i.Version
	var extra []string
	if i.Revision != "" {
		extra = append(extra, shortRevision(i.Revision))
	}
	if i.Dirty {
		extra = append(extra, "dirty")
	}
	if len(extra) > 0 {
		out += fmt.Sprintf(" (%s)", strings.Join(extra, ", "))
	}
	return out
}

func fromBuildInfo(info *debug.BuildInfo, override string) Info {
	out := Info{Module: defaultModule}
	if info != nil {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			out.Module = path
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				out.Revision = setting.Value
			case "vcs.time":
				if parsed, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					out.Time = parsed.UTC()
				}
			case "vcs.modified":
				out.Dirty = setting.Value == "true"
			}
		}
	}
	switch {
	case strings.TrimSpace(override) != "":
		out.Version = strings.TrimSuffix(strings.TrimSpace(override), "+dirty")
	case info != nil && info.Main.Version != "" && info.Main.Version != "(devel)":
		out.Version = strings.TrimSuffix(info.Main.Version, "+dirty")
	case out.Revision != "" && !out.Time.IsZero():
		out.Version = pseudoVersion(out.Revision, out.Time)
	default:
		out.Version = "v0.0.0-unknown"
	}
	return out
}

func pseudoVersion(revision string, at time.Time) string {
	return "v0.0.0-" + at.UTC().Format("20060102150405") + "-" + shortRevision(revision)
}

func shortRevision(revision string) string {
	if len(revision) > 12 {
		return revision[:12]
	}
	return revision
}
