//go:build !windows

package format_2025

import "syscall"

// getAvailableDiskSpace reports the free space available to the caller at
// path's filesystem, in bytes.
func getAvailableDiskSpace(path string) (int64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
