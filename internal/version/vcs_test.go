package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestVcsInfo(t *testing.T) {
	info := vcsInfo([]debug.BuildSetting{
		{Key: "vcs.revision", Value: "abc123"},
		{Key: "vcs.modified", Value: "true"},
		{Key: "vcs.time", Value: "2026-10-19T10:00:00Z"},
	})

	if info.Commit != "abc123" || !info.Dirty || info.BuildTime != "2026-10-19T10:00:00Z" {
		t.Fatalf("unexpected vcs info %+v", info)
	}

	info = vcsInfo(nil)
	if info.Commit != "unknown" || info.Dirty || info.BuildTime != "unknown" {
		t.Fatalf("unexpected defaults %+v", info)
	}
}

func TestGetVersionNamesProgram(t *testing.T) {
	if v := GetVersion(); !strings.Contains(v, "iamldap") {
		t.Fatalf("version string %q does not name the program", v)
	}
}
