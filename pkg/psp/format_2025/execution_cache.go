package format_2025

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// checkDiskSpace confirms the workenv's filesystem has room for extraction.
// Required space is the sum of each slot's on-disk size multiplied by
// DiskSpaceMultiplier, to cover both the compressed bytes staged in tmp/
// and their decompressed form once merged into the workenv. A disk-space
// probe that itself fails is logged and ignored rather than treated as
// fatal — better to attempt extraction and fail there than to block on an
// unreliable free-space query.
func checkDiskSpace(paths *WorkenvPaths, metadata *Metadata, logger hclog.Logger) error {
	var needed int64
	for _, slot := range metadata.Slots {
		needed += slot.Size * DiskSpaceMultiplier
	}

	available, err := getAvailableDiskSpace(paths.Workenv())
	if err != nil {
		logger.Warn("could not check disk space", "error", err)
		return nil
	}

	neededGB := float64(needed) / (1024 * 1024 * 1024)
	availableGB := float64(available) / (1024 * 1024 * 1024)
	logger.Debug("disk space check", "needed_gb", fmt.Sprintf("%.2f", neededGB), "available_gb", fmt.Sprintf("%.2f", availableGB))

	if available < needed {
		logger.Error("insufficient disk space", "needed_gb", fmt.Sprintf("%.2f", neededGB), "available_gb", fmt.Sprintf("%.2f", availableGB))
		return fmt.Errorf("insufficient disk space: need %.2f GB, have %.2f GB", neededGB, availableGB)
	}
	return nil
}

// validatePackageChecksum compares the checksum cached from a prior
// extraction against the package's current index checksum. A missing
// cache file is not an error — it just means there's nothing to validate
// against yet. A mismatch is routed through getValidationLevel so the
// severity of the response (warn vs. refuse) tracks FLAVOR_VALIDATION.
func validatePackageChecksum(paths *WorkenvPaths, currentChecksum uint32, logger hclog.Logger) (bool, error) {
	data, err := os.ReadFile(paths.ChecksumFile())
	if err != nil {
		logger.Debug("no cached checksum available", "reason", err)
		return false, nil
	}

	cached := strings.TrimSpace(string(data))
	current := fmt.Sprintf("%08x", currentChecksum)
	if cached == current {
		logger.Debug("package checksum matches cached version", "checksum", current)
		return true, nil
	}

	return false, reportChecksumMismatch(cached, current, logger)
}

// reportChecksumMismatch logs or rejects a checksum mismatch depending on
// the active validation level, returning a non-nil error only when the
// mismatch must be treated as fatal.
func reportChecksumMismatch(cached, current string, logger hclog.Logger) error {
	level := getValidationLevel()
	switch level {
	case ValidationNone, ValidationMinimal:
		logger.Warn("package checksum mismatch, continuing", "cached", cached, "current", current, "level", level)
		return nil
	case ValidationRelaxed:
		logger.Warn("package checksum mismatch, continuing under relaxed validation", "cached", cached, "current", current)
		return nil
	case ValidationStandard:
		fmt.Fprintf(os.Stderr, "WARNING: package checksum mismatch! cached=%s current=%s (use FLAVOR_VALIDATION=strict to enforce)\n", cached, current)
		logger.Warn("package checksum mismatch, continuing with standard validation", "cached", cached, "current", current)
		return nil
	default: // ValidationStrict
		logger.Error("package checksum mismatch, refusing to continue", "cached", cached, "current", current)
		return fmt.Errorf("package checksum mismatch: cached=%s, current=%s", cached, current)
	}
}

// savePackageChecksum records checksum in the workenv's instance directory,
// syncing the file to disk before returning since the caller may replace
// the current process with syscall.Exec immediately afterward.
func savePackageChecksum(paths *WorkenvPaths, checksum uint32, logger hclog.Logger) error {
	if err := os.MkdirAll(paths.Instance(), os.FileMode(DirPerms)); err != nil {
		return fmt.Errorf("failed to create instance directory: %w", err)
	}

	file, err := os.OpenFile(paths.ChecksumFile(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		logger.Debug("failed to open checksum file", "error", err)
		return err
	}
	defer file.Close()

	if _, err := file.WriteString(fmt.Sprintf("%08x", checksum)); err != nil {
		logger.Debug("failed to write package checksum", "error", err)
		return err
	}
	if err := file.Sync(); err != nil {
		logger.Debug("failed to sync checksum file", "error", err)
		return err
	}

	logger.Debug("saved package checksum", "checksum", fmt.Sprintf("%08x", checksum))
	return nil
}

// IndexMetadata is the JSON-friendly projection of PSPFIndex written to
// the workenv for external inspection (e.g. debugging a stuck cache).
type IndexMetadata struct {
	FormatVersion    uint32 `json:"format_version"`
	PackageSize      uint64 `json:"package_size"`
	LauncherSize     uint64 `json:"launcher_size"`
	MetadataOffset   uint64 `json:"metadata_offset"`
	MetadataSize     uint64 `json:"metadata_size"`
	SlotTableOffset  uint64 `json:"slot_table_offset"`
	SlotTableSize    uint64 `json:"slot_table_size"`
	SlotCount        uint32 `json:"slot_count"`
	Flags            uint32 `json:"flags"`
	IndexChecksum    string `json:"index_checksum"`
	MetadataChecksum string `json:"metadata_checksum"`
	BuildTimestamp   uint64 `json:"build_timestamp"`
	PageSize         uint32 `json:"page_size"`
	Capabilities     uint64 `json:"capabilities"`
	Requirements     uint64 `json:"requirements"`
}

// saveIndexMetadata writes a JSON projection of index into the workenv's
// instance directory for out-of-band inspection tooling.
func saveIndexMetadata(paths *WorkenvPaths, index *PSPFIndex, logger hclog.Logger) error {
	if err := os.MkdirAll(paths.Instance(), os.FileMode(DirPerms)); err != nil {
		return fmt.Errorf("failed to create instance directory: %w", err)
	}

	projection := IndexMetadata{
		FormatVersion:    index.FormatVersion,
		PackageSize:      index.PackageSize,
		LauncherSize:     index.LauncherSize,
		MetadataOffset:   index.MetadataOffset,
		MetadataSize:     index.MetadataSize,
		SlotTableOffset:  index.SlotTableOffset,
		SlotTableSize:    index.SlotTableSize,
		SlotCount:        index.SlotCount,
		Flags:            index.Flags,
		IndexChecksum:    fmt.Sprintf("%08x", index.IndexChecksum),
		MetadataChecksum: fmt.Sprintf("%x", index.MetadataChecksum),
		BuildTimestamp:   index.BuildTimestamp,
		PageSize:         index.PageSize,
		Capabilities:     index.Capabilities,
		Requirements:     index.Requirements,
	}

	jsonData, err := json.MarshalIndent(projection, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index metadata: %w", err)
	}

	path := paths.IndexMetadataFile()
	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		logger.Debug("failed to save index metadata", "error", err)
		return err
	}

	logger.Debug("saved index metadata", "path", path)
	return nil
}

// checkWorkenvValidity reports whether a prior extraction into this
// workenv can be reused: the completion marker must exist, the workenv
// directory must be non-empty, and the cached package checksum must match.
func checkWorkenvValidity(paths *WorkenvPaths, index *PSPFIndex, metadata *Metadata, logger hclog.Logger) (bool, error) {
	if _, err := os.Stat(paths.CompleteFile()); err != nil {
		logger.Debug("no extraction completion marker found")
		return false, nil
	}

	entries, err := os.ReadDir(paths.Workenv())
	if err != nil {
		logger.Debug("workenv directory does not exist or cannot be read")
		return false, nil
	}
	if len(entries) == 0 {
		logger.Debug("workenv directory is empty")
		return false, nil
	}

	return validatePackageChecksum(paths, index.IndexChecksum, logger)
}
