package format_2025

import (
	"os"
	"runtime/debug"
	"time"
)

// getBuilderTimestamp reports when the running builder binary was produced,
// for BuildInfo.Timestamp when the caller didn't supply SOURCE_DATE_EPOCH.
// It prefers the VCS commit time baked in by the Go toolchain, falls back to
// the executable's mtime, and only resorts to wall-clock time if neither is
// available.
func getBuilderTimestamp() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key != "vcs.time" {
				continue
			}
			if t, err := time.Parse(time.RFC3339, setting.Value); err == nil {
				return t.UTC().Format(time.RFC3339)
			}
			return setting.Value
		}
	}

	if exePath, err := os.Executable(); err == nil {
		if stat, err := os.Stat(exePath); err == nil {
			return stat.ModTime().UTC().Format(time.RFC3339)
		}
	}

	return time.Now().UTC().Format(time.RFC3339)
}
