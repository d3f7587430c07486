package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestUserAgent(t *testing.T) {
	oldVersion, oldCommit := Version, Commit
	defer func() { Version, Commit = oldVersion, oldCommit }()

	Version = "v1.2.3"
	Commit = "abc1234"

	ua := UserAgent()
	if !strings.HasPrefix(ua, "kvctl/v1.2.3 (") {
		t.Errorf("unexpected user agent prefix: %s", ua)
	}
	if !strings.Contains(ua, runtime.GOOS+"/"+runtime.GOARCH) {
		t.Errorf("user agent %q is missing the platform", ua)
	}
	if !strings.HasSuffix(ua, " abc1234") {
		t.Errorf("user agent %q is missing the commit", ua)
	}
}

func TestBuildInfoString(t *testing.T) {
	s := Get().String()
	for _, want := range []string{"Version:", "Commit:", "Build Date:", "Go Version:", "Platform:"} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %q in %q", want, s)
		}
	}
}
