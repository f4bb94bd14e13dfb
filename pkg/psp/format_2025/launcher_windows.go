//go:build windows
// +build windows

package format_2025

import (
	"errors"

	"github.com/hashicorp/go-hclog"
)

// execBundleReplace has no Windows equivalent to POSIX process replacement.
// execBundle forces spawn mode on Windows before this would ever be called.
func execBundleReplace(exePath string, args []string, userCwd string, logger hclog.Logger) error {
	return errors.New("exec-mode process replacement is not supported on Windows")
}
