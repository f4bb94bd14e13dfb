// Package permissions provides utilities for parsing and handling file permissions
package permissions

import (
	"fmt"
	"strconv"
	"strings"
)

// Default permission constants (user-only access for security)
const (
	DefaultFilePerms       = 0o600 // Read/write for owner only
	DefaultExecutablePerms = 0o700 // Read/write/execute for owner only
	DefaultDirPerms        = 0o700 // Read/write/execute for owner only
)

// ParseOctalString parses an octal permission string in any of the forms
// "755", "0755", or "0o755" into a uint16. An empty string yields
// DefaultFilePerms rather than an error, since manifests commonly omit
// permissions to mean "use the default".
func ParseOctalString(s string) (uint16, error) {
	if s == "" {
		return DefaultFilePerms, nil
	}

	trimmed := strings.TrimPrefix(s, "0o")
	trimmed = strings.TrimPrefix(trimmed, "0")

	val, err := strconv.ParseUint(trimmed, 8, 16)
	if err != nil {
		return DefaultFilePerms, fmt.Errorf("invalid permission string %q: %w", s, err)
	}
	return uint16(val), nil
}

// FormatOctal renders perm as a "0NNN" octal string.
func FormatOctal(perm uint16) string {
	return fmt.Sprintf("0%o", perm)
}

// IsExecutable reports whether perm grants the owner execute access.
func IsExecutable(perm uint16) bool {
	return perm&0o100 != 0
}

// IsDirectory reports whether perm grants the traverse (execute) bit a
// directory needs to be listable.
func IsDirectory(perm uint16) bool {
	return perm&0o100 != 0
}
