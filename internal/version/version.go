package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is set during build via ldflags
	Version = "dev"
	// Commit is set during build via ldflags
	Commit = "none"
	// Date is set during build via ldflags
	Date = "unknown"
)

// BuildInfo represents the build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// Get returns the build information
func Get() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String returns a formatted string representation of build info
func (b BuildInfo) String() string {
	return fmt.Sprintf(
		"Version: %s\nCommit: %s\nBuild Date: %s\nGo Version: %s\nPlatform: %s",
		b.Version, b.Commit, b.Date, b.GoVersion, b.Platform,
	)
}

// UserAgent is sent with every API request, e.g. kvctl/v0.3.0 (linux/amd64) abc1234
func UserAgent() string {
	b := Get()
	return fmt.Sprintf("kvctl/%s (%s) %s", b.Version, b.Platform, b.Commit)
}
