// SPDX-License-Identifier: MIT
package build

import (
	"os"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origInfo    Info
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	origInfo = buildInfo

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	buildInfo = origInfo

	os.Exit(exitCode)
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildVer    string
		wantName    string
		wantVersion string
	}{
		{"Defaults when unset", "", "", "lfnmon", "dev"},
		{"Ldflags override", "noisebox", "v1.2.3", "noisebox", "v1.2.3"},
		{"Partial override keeps defaults", "", "v0.9.0", "lfnmon", "v0.9.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buildInfo = Info{
				Name:    "lfnmon",
				Time:    "unknown",
				Commit:  "unknown",
				Version: "dev",
			}
			buildName = tt.buildName
			buildVersion = tt.buildVer
			buildTime = ""
			buildCommit = ""

			Initialize()

			got := GetBuildInfo()
			if got.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", got.Name, tt.wantName)
			}
			if got.Version != tt.wantVersion {
				t.Errorf("Version = %q, want %q", got.Version, tt.wantVersion)
			}
		})
	}
}

func TestGetBuildInfo(t *testing.T) {
	expected := Info{
		Name:    "testapp",
		Time:    "2025-04-13",
		Commit:  "abcdef123",
		Version: "v1.0.0",
	}
	buildInfo = expected

	got := GetBuildInfo()
	if got != expected {
		t.Errorf("GetBuildInfo() = %+v, want %+v", got, expected)
	}
}
