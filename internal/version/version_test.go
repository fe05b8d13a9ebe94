package version

import (
	"runtime/debug"
	"testing"
)

func TestFromBuildInfo(t *testing.T) {
	savedVersion, savedCommit := Version, Commit
	defer func() { Version, Commit = savedVersion, savedCommit }()

	Version, Commit = "", ""
	fromBuildInfo(func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef"},
			{Key: "vcs.modified", Value: "true"},
			{Key: "vcs.time", Value: "2026-03-01T10:00:00Z"},
		}}, true
	})

	if Commit != "0123456-dirty" {
		t.Errorf("Commit = %q, want %q", Commit, "0123456-dirty")
	}
	if Version != "dev-20260301" {
		t.Errorf("Version = %q, want %q", Version, "dev-20260301")
	}
}

func TestFromBuildInfo_KeepsLdflags(t *testing.T) {
	savedVersion, savedCommit := Version, Commit
	defer func() { Version, Commit = savedVersion, savedCommit }()

	Version, Commit = "v1.0.0", "feedbee"
	fromBuildInfo(func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef"},
		}}, true
	})

	if Full() != "v1.0.0 (commit: feedbee)" {
		t.Errorf("Full() = %q", Full())
	}
}
