package config

import (
	"strings"
	"testing"
)

func TestVersionString(t *testing.T) {
	got := VersionString("blazereport-server")
	if !strings.HasPrefix(got, "blazereport-server "+Version) {
		t.Errorf("VersionString() = %q", got)
	}
}

func TestUserAgent(t *testing.T) {
	if got := UserAgent(); got != "blazereport/"+Version {
		t.Errorf("UserAgent() = %q", got)
	}
}
