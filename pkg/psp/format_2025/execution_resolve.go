package format_2025

import (
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// windowsExecutableFallbacks maps Unix command names to a Windows
// executable worth trying when the original name isn't found on PATH, so
// packages written with Unix-style commands still have a chance to run.
var windowsExecutableFallbacks = map[string]string{
	"python3":     "python.exe",
	"python3.exe": "python.exe",
	"sh":          "bash.exe",
	"sh.exe":      "bash.exe",
}

// resolveExecutable turns a command name from a package manifest into
// something exec.Command can run on the current platform. Unix absolute
// paths (/usr/bin/python3) are reduced to their basename and looked up on
// PATH; on Windows, a handful of common Unix names fall back to a native
// equivalent if the original name isn't found.
func resolveExecutable(executable string, logger hclog.Logger) string {
	execName := executable
	if strings.HasPrefix(executable, "/") {
		execName = filepath.Base(executable)
		logger.Debug("extracted basename from Unix path", "original", executable, "basename", execName)
	}

	if resolved, err := exec.LookPath(execName); err == nil {
		logger.Debug("resolved executable via PATH", "input", executable, "resolved", resolved)
		return resolved
	}

	if runtime.GOOS == "windows" {
		if fallback, ok := windowsExecutableFallbacks[execName]; ok {
			if resolved, err := exec.LookPath(fallback); err == nil {
				logger.Debug("resolved executable via windows fallback", "input", executable, "fallback", fallback, "resolved", resolved)
				return resolved
			}
		}
	}

	if execName != executable {
		logger.Debug("could not resolve executable, using basename", "input", executable, "basename", execName)
		return execName
	}

	logger.Debug("could not resolve executable in PATH, using as-is", "executable", executable)
	return executable
}
