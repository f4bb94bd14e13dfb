package pkg

import (
	"fmt"

	"github.com/pspf-project/pspf/pkg/psp/format_2025"
)

func BuildPackage(manifestPath, outputPath, launcherBin string) {
	format_2025.BuildWithOptions(manifestPath, outputPath, launcherBin, "", "", "")
}

func BuildPackageWithOptions(manifestPath, outputPath, launcherBin, privateKeyPath, publicKeyPath, keySeed string) {
	format_2025.BuildWithOptions(manifestPath, outputPath, launcherBin, privateKeyPath, publicKeyPath, keySeed)
}

func BuildPackageWithLogLevel(manifestPath, outputPath, launcherBin, privateKeyPath, publicKeyPath, keySeed, logLevel string) {
	format_2025.BuildWithLogLevel(manifestPath, outputPath, launcherBin, privateKeyPath, publicKeyPath, keySeed, logLevel)
}

// VerifyPackage checks the MagicTrailer, index checksum, metadata checksum
// and every slot checksum of a bundle, returning false with the first error
// encountered rather than exiting the process (see VerifyBundle for the
// CLI-facing, os.Exit-driven equivalent used by `pspf-builder verify`).
func VerifyPackage(packagePath string) (bool, error) {
	reader, err := format_2025.NewReader(packagePath)
	if err != nil {
		return false, fmt.Errorf("opening package: %w", err)
	}
	defer reader.Close()

	if _, err := reader.VerifyMagicTrailer(); err != nil {
		return false, fmt.Errorf("magic trailer: %w", err)
	}
	if _, err := reader.ReadIndex(); err != nil {
		return false, fmt.Errorf("index: %w", err)
	}
	metadata, err := reader.ReadMetadata()
	if err != nil {
		return false, fmt.Errorf("metadata: %w", err)
	}
	for i, slot := range metadata.Slots {
		if _, err := reader.ReadSlot(i); err != nil {
			return false, fmt.Errorf("slot %d (%s): %w", i, slot.ID, err)
		}
	}
	return true, nil
}
