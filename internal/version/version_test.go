package version

import (
	"runtime/debug"
	"testing"
	"time"
)

func TestOverrideWins(t *testing.T) {
	info := &debug.BuildInfo{Main: debug.Module{Path: "example.test/forge", Version: "v0.9.0"}}
	got := fromBuildInfo(info, "v1.2.3+dirty")
	if got.Version != "v1.2.3" {
		t.Fatalf("expected override version, got %q", got.Version)
	}
	if got.Module != "example.test/forge" {
		t.Fatalf("expected module from build info, got %q", got.Module)
	}
}

func TestPseudoVersionFromVCS(t *testing.T) {
	ts := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)
	info := &debug.BuildInfo{
		Main: debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "1234567890abcdef"},
			{Key: "vcs.time", Value: ts.Format(time.RFC3339)},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	got := fromBuildInfo(info, "")
	if got.Version != "v0.0.0-20250102030405-1234567890ab" {
		t.Fatalf("unexpected pseudo version %q", got.Version)
	}
	if !got.Dirty {
		t.Fatalf("expected dirty build")
	}
	if want := "pkt.systems/surveyforge v0.0.0-20250102030405-1234567890ab (1234567890ab, dirty)"; got.String() != want {
		t.Fatalf("String() = %q, want %q", got.String(), want)
	}
}

func TestUnknownWithoutBuildInfo(t *testing.T) {
	got := fromBuildInfo(nil, "")
	if got.Version != "v0.0.0-unknown" || got.Module != defaultModule {
		t.Fatalf("unexpected info %+v", got)
	}
	if got.String() != defaultModule+" v0.0.0-unknown" {
		t.Fatalf("unexpected string %q", got.String())
	}
}
