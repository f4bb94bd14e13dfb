//go:build !windows
// +build !windows

package format_2025

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
)

// atomicReplace replaces destPath with sourcePath. os.Rename is already
// atomic on Unix, so no retry logic is needed here (contrast the Windows
// build, which must contend with file locking).
func atomicReplace(sourcePath, destPath string, logger hclog.Logger) error {
	logger.Debug("performing atomic file replacement", "source", sourcePath, "dest", destPath)

	if err := os.Rename(sourcePath, destPath); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}

	logger.Info("atomic file replacement successful", "source", sourcePath, "dest", destPath)
	return nil
}
