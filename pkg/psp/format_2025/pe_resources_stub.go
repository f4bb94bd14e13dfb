//go:build !windows
// +build !windows

package format_2025

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
)

// EmbedPSPFAsResource has no meaning outside PE binaries; Unix builders
// always append PSPF data to EOF instead.
func EmbedPSPFAsResource(exePath string, pspfData []byte, logger hclog.Logger) error {
	return fmt.Errorf("PE resource embedding is only supported on Windows")
}

// ReadPSPFFromResource has no meaning outside PE binaries; Unix launchers
// always read PSPF data from EOF instead.
func ReadPSPFFromResource(exePath string, logger hclog.Logger) ([]byte, error) {
	return nil, fmt.Errorf("PE resource reading is only supported on Windows")
}

// HasPSPFResource is always false outside Windows.
func HasPSPFResource(exePath string, logger hclog.Logger) bool {
	return false
}
