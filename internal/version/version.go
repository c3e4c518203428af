// Package version reports build information injected at link time.
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Build metadata, set with -ldflags "-X github.com/mrz1836/estatelink/internal/version.Version=...".
//
//nolint:gochecknoglobals // ldflags targets must be package variables
var (
	Version = ""
	Commit  = ""
	Date    = ""
)

// Info describes a build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the running build's information.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String renders the version line shown by the CLI.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)",
		orDefault(i.Version, "dev"),
		orDefault(i.Commit, "unknown"),
		orDefault(i.Date, "unknown"),
	)
}

// UserAgent is sent with wallet bridge requests.
func UserAgent() string {
	return fmt.Sprintf("estatelink/%s (%s/%s)",
		strings.TrimPrefix(orDefault(Version, "dev"), "v"), runtime.GOOS, runtime.GOARCH)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
