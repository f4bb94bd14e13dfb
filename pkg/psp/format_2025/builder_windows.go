//go:build windows
// +build windows

package format_2025

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sys/windows"
)

// replaceMaxAttempts and replaceInitialDelay bound the retry loop
// atomicReplace uses to work around transient Windows file locks (e.g. an
// antivirus scanner holding the destination briefly open).
const (
	replaceMaxAttempts  = 3
	replaceInitialDelay = 50 * time.Millisecond
)

// atomicReplace replaces destPath with sourcePath via MoveFileEx, retrying
// with exponential backoff since Windows can hold a transient lock on the
// destination that a single attempt would fail against.
func atomicReplace(sourcePath, destPath string, logger hclog.Logger) error {
	logger.Debug("performing atomic file replacement", "source", sourcePath, "dest", destPath)

	fromPtr, err := windows.UTF16PtrFromString(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to convert source path to UTF-16: %w", err)
	}
	toPtr, err := windows.UTF16PtrFromString(destPath)
	if err != nil {
		return fmt.Errorf("failed to convert dest path to UTF-16: %w", err)
	}

	const flags = windows.MOVEFILE_REPLACE_EXISTING | windows.MOVEFILE_WRITE_THROUGH
	delay := replaceInitialDelay

	for attempt := 1; attempt <= replaceMaxAttempts; attempt++ {
		err = windows.MoveFileEx(fromPtr, toPtr, flags)
		if err == nil {
			if attempt > 1 {
				logger.Debug("successfully replaced file atomically after retry", "attempt", attempt)
			}
			logger.Info("atomic file replacement successful", "source", sourcePath, "dest", destPath)
			return nil
		}

		if attempt == replaceMaxAttempts {
			logger.Error("failed to replace file atomically after retries", "attempts", replaceMaxAttempts, "error", err)
			return fmt.Errorf("failed after %d attempts (Windows file lock): %w", replaceMaxAttempts, err)
		}

		logger.Debug("retrying atomic file replacement (Windows file lock)", "attempt", attempt, "next_delay_ms", delay.Milliseconds(), "error", err)
		time.Sleep(delay)
		delay *= 2
	}

	return nil
}
