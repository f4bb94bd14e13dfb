package format_2025

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// copyFile copies src to dst, preserving src's file mode.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}

	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.Chmod(dst, info.Mode())
}

// copyDirAll recursively copies src into dst, merging into dst if it
// already exists rather than failing.
func copyDirAll(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, info.Mode()); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := copyDirAll(srcPath, dstPath); err != nil {
				return err
			}
		} else if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

// looksLikeShebang peeks at a file's first two bytes without reading the
// whole thing, so binaries in bin/ aren't read in full just to be skipped.
func looksLikeShebang(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	header := make([]byte, 2)
	if _, err := f.Read(header); err != nil {
		return false
	}
	return string(header) == "#!"
}

// hasShebangPrefix reports whether a script's content starts with "#!" and
// that first line contains oldPrefix.
func hasShebangPrefix(content, oldPrefix string) bool {
	firstLine, _, _ := strings.Cut(content, "\n")
	return strings.HasPrefix(content, "#!") && strings.Contains(firstLine, oldPrefix)
}

// rewriteShebangPrefix rewrites oldPrefix to newPrefix within a script's
// first line only, leaving the rest of the file untouched.
func rewriteShebangPrefix(content, oldPrefix, newPrefix string) string {
	firstLine, rest, hasRest := strings.Cut(content, "\n")
	newFirstLine := strings.ReplaceAll(firstLine, oldPrefix, newPrefix)
	if hasRest {
		return newFirstLine + "\n" + rest
	}
	return newFirstLine + "\n"
}

// fixShebangs rewrites oldPrefix to newPrefix in the shebang line of every
// script in binDir, needed after slot contents are moved from a temporary
// extraction path to their final workenv location.
func fixShebangs(binDir, oldPrefix, newPrefix string, logger hclog.Logger) error {
	if _, err := os.Stat(binDir); os.IsNotExist(err) {
		return nil
	}

	entries, err := os.ReadDir(binDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		scriptPath := filepath.Join(binDir, entry.Name())
		if !looksLikeShebang(scriptPath) {
			continue
		}

		content, err := os.ReadFile(scriptPath)
		if err != nil {
			continue
		}
		if !hasShebangPrefix(string(content), oldPrefix) {
			continue
		}

		newContent := rewriteShebangPrefix(string(content), oldPrefix, newPrefix)
		if err := os.WriteFile(scriptPath, []byte(newContent), entry.Type().Perm()); err != nil {
			logger.Debug("failed to fix shebang", "script", entry.Name(), "error", err)
		} else {
			logger.Debug("fixed shebang", "script", entry.Name())
		}
	}

	return nil
}

// cleanupLifecycleSlots removes the on-disk slot directory for every slot
// whose lifecycle is "init" — those slots exist only to drive setup and
// have no role once the workenv is ready — and drops them from slotPaths
// so they are never handed to the execution step.
func cleanupLifecycleSlots(workenvDir string, metadata *Metadata, slotPaths map[int]string, logger hclog.Logger) {
	for i, slot := range metadata.Slots {
		if slot.Lifecycle != "init" {
			continue
		}

		slotPath := filepath.Join(workenvDir, slot.ID)
		if err := os.RemoveAll(slotPath); err != nil {
			logger.Debug("failed to remove init slot", "slot", slot.ID, "path", slotPath, "error", err)
		} else {
			logger.Debug("removed init slot", "slot", slot.ID, "path", slotPath)
		}
		delete(slotPaths, i)
	}
}
