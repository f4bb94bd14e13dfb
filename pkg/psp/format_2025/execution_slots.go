package format_2025

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// extractAndMergeSlotsToWorkenv extracts every slot into a temporary
// directory, then moves its contents into the workenv. Slot directories
// (slot_N_*) are merged rather than replaced, since more than one slot can
// target the workenv root, and later renames must not clobber earlier
// ones.
func extractAndMergeSlotsToWorkenv(
	reader *Reader,
	metadata *Metadata,
	paths *WorkenvPaths,
	index *PSPFIndex,
	logger hclog.Logger,
) (map[int]string, error) {
	workenvDir := paths.Workenv()
	tempExtractDir := paths.TempExtraction(os.Getpid())
	if err := os.MkdirAll(tempExtractDir, os.FileMode(DirPerms)); err != nil {
		logger.Error("failed to create temp extraction directory", "error", err)
		return nil, fmt.Errorf("failed to create temp extraction directory: %w", err)
	}
	logger.Info("created temporary extraction directory", "path", tempExtractDir)

	slotPaths, err := extractSlotsToDir(reader, metadata, tempExtractDir, logger)
	if err != nil {
		os.RemoveAll(tempExtractDir)
		return nil, err
	}

	if err := writePackageMetadataSidecar(paths, metadata, logger); err != nil {
		os.RemoveAll(tempExtractDir)
		return nil, err
	}

	logger.Info("moving extracted content to final location")
	if err := mergeExtractedTree(tempExtractDir, workenvDir, logger); err != nil {
		os.RemoveAll(tempExtractDir)
		return nil, err
	}

	binDir := filepath.Join(workenvDir, "bin")
	if _, err := os.Stat(binDir); err == nil {
		logger.Info("fixing shebangs in scripts")
		if err := fixShebangs(binDir, tempExtractDir, workenvDir, logger); err != nil {
			logger.Warn("failed to fix some shebangs", "error", err)
		}
	}

	if err := os.RemoveAll(tempExtractDir); err != nil {
		logger.Debug("failed to remove temp directory", "error", err)
	}
	if err := saveIndexMetadata(paths, index, logger); err != nil {
		logger.Debug("failed to save index metadata", "error", err)
	}
	if err := MarkExtractionComplete(paths, logger); err != nil {
		logger.Debug("failed to mark extraction complete", "error", err)
	}

	return slotPaths, nil
}

// extractSlotsToDir extracts every slot in metadata into dir, reporting
// progress on stderr, and returns each slot's extracted path keyed by slot
// index.
func extractSlotsToDir(reader *Reader, metadata *Metadata, dir string, logger hclog.Logger) (map[int]string, error) {
	logger.Info("extracting slots to temp directory", "count", len(metadata.Slots))
	slotPaths := make(map[int]string, len(metadata.Slots))

	for i, slot := range metadata.Slots {
		logger.Debug("extracting slot", "index", i, "id", slot.ID, "size", slot.Size)
		fmt.Fprintf(os.Stderr, "[%d/%d] Extracting %s...\n", i+1, len(metadata.Slots), slot.ID)

		slotPath, err := reader.ExtractSlot(i, dir)
		if err != nil {
			logger.Error("failed to extract slot, cleaning up", "error", err)
			return nil, fmt.Errorf("%w: %v", ErrSlotExtractionFailed, err)
		}
		logger.Debug("extracted slot", "path", slotPath)
		slotPaths[slot.Slot] = slotPath
	}

	return slotPaths, nil
}

// writePackageMetadataSidecar writes the package's metadata JSON to the
// hidden package metadata directory alongside (not inside) the workenv.
func writePackageMetadataSidecar(paths *WorkenvPaths, metadata *Metadata, logger hclog.Logger) error {
	dir := filepath.Join(paths.Metadata(), "package")
	if err := os.MkdirAll(dir, os.FileMode(DirPerms)); err != nil {
		logger.Error("failed to create package metadata directory", "error", err)
		return fmt.Errorf("failed to create package metadata directory: %w", err)
	}

	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		logger.Error("failed to marshal metadata", "error", err)
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	path := filepath.Join(dir, "psp.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		logger.Error("failed to write metadata", "error", err)
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	logger.Debug("wrote metadata to cache location", "path", path)
	return nil
}

// slotDirIndex reports the slot number N for a "slot_N_*" directory name,
// or -1 if name doesn't match that pattern or isn't a directory.
func slotDirIndex(name string, isDir bool) int {
	if !isDir {
		return -1
	}
	var n int
	if _, err := fmt.Sscanf(name, "slot_%d_", &n); err != nil {
		return -1
	}
	return n
}

// mergeExtractedTree moves every entry of tempDir into workenvDir.
// slot_N_* directories are unpacked into the workenv root (merging with
// anything already there) rather than kept as their own subtree; entries
// are processed highest slot number first, so a lower-numbered slot is
// merged last and its files win on conflict.
func mergeExtractedTree(tempDir, workenvDir string, logger hclog.Logger) error {
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		logger.Error("failed to read temp directory", "error", err)
		return fmt.Errorf("failed to read temp directory: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		si := slotDirIndex(entries[i].Name(), entries[i].IsDir())
		sj := slotDirIndex(entries[j].Name(), entries[j].IsDir())
		if si >= 0 && sj >= 0 {
			return si > sj
		}
		if si >= 0 {
			return true
		}
		if sj >= 0 {
			return false
		}
		return false
	})

	for _, entry := range entries {
		name := entry.Name()
		source := filepath.Join(tempDir, name)

		if entry.IsDir() && strings.HasPrefix(name, "slot_") {
			logger.Debug("moving slot contents to workenv root", "slotDir", name)
			if err := mergeSlotDirInto(source, workenvDir, logger); err != nil {
				return err
			}
			os.RemoveAll(source)
			continue
		}

		dest := filepath.Join(workenvDir, name)
		logger.Debug("moving", "from", source, "to", dest)
		if err := moveEntry(source, dest, entry.IsDir(), logger); err != nil {
			return err
		}
	}

	return nil
}

// mergeSlotDirInto moves every entry inside a slot_N_* directory into
// workenvDir, merging with whatever already exists there.
func mergeSlotDirInto(slotDir, workenvDir string, logger hclog.Logger) error {
	entries, err := os.ReadDir(slotDir)
	if err != nil {
		logger.Error("failed to read slot directory", "error", err)
		return fmt.Errorf("failed to read slot directory: %w", err)
	}

	for _, entry := range entries {
		source := filepath.Join(slotDir, entry.Name())
		dest := filepath.Join(workenvDir, entry.Name())
		logger.Debug("moving slot content", "from", source, "to", dest)
		if err := moveEntry(source, dest, entry.IsDir(), logger); err != nil {
			return err
		}
	}

	return nil
}

// moveEntry relocates source to dest. Directories are merged via
// copyDirAll (which tolerates an existing destination) and the source
// removed afterward; files are renamed, falling back to copy-then-remove
// when rename fails (e.g. across filesystems, or dest already exists).
func moveEntry(source, dest string, isDir bool, logger hclog.Logger) error {
	if isDir {
		if err := copyDirAll(source, dest); err != nil {
			logger.Error("failed to copy directory", "error", err)
			return fmt.Errorf("failed to copy directory: %w", err)
		}
		os.RemoveAll(source)
		return nil
	}

	os.Remove(dest)
	if err := os.Rename(source, dest); err != nil {
		logger.Warn("rename failed, falling back to copy", "error", err)
		if err := copyFile(source, dest); err != nil {
			logger.Error("failed to copy file", "error", err)
			return fmt.Errorf("failed to copy file: %w", err)
		}
		os.Remove(source)
	}
	return nil
}
