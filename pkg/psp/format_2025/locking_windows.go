//go:build windows
// +build windows

package format_2025

import (
	"golang.org/x/sys/windows"
)

// IsProcessRunning checks if a process with given PID is still running.
// os.FindProcess always succeeds on Windows, so check via OpenProcess instead.
func IsProcessRunning(pid int) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)

	var exitCode uint32
	if err := windows.GetExitCodeProcess(handle, &exitCode); err != nil {
		return false
	}
	return exitCode == uint32(259) // STILL_ACTIVE
}
