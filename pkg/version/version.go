// Package version provides build version information for gantry.
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the current gantry version, set at build time via ldflags.
	Version = "dev"

	// BuildTime is when the binary was built, set at build time via ldflags.
	BuildTime = "unknown"

	// Commit is the git commit the binary was built from, set via ldflags.
	Commit = "unknown"
)

// Info returns version information as a formatted string.
func Info() string {
	commitID := Commit
	if len(commitID) > 8 {
		commitID = commitID[:8]
	}

	return fmt.Sprintf("gantry %s (%s) - %s %s/%s",
		Version,
		commitID,
		BuildTime,
		runtime.GOOS,
		runtime.GOARCH,
	)
}

// Map returns version information as a map.
func Map() map[string]string {
	return map[string]string{
		"version":   Version,
		"commit":    Commit,
		"buildTime": BuildTime,
		"goVersion": runtime.Version(),
		"os":        runtime.GOOS,
		"arch":      runtime.GOARCH,
	}
}
