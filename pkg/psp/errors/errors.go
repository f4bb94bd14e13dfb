// Package errors defines the sentinel errors returned by the PSPF reader,
// builder, and launcher, grouped by the stage of the package lifecycle that
// raises them.
package errors

import "errors"

// failure builds a sentinel error with the package's standard marker prefix,
// so every error defined here reads the same way regardless of which stage
// raised it.
func failure(msg string) error {
	return errors.New("❌ " + msg)
}

// Format errors: the container itself is malformed or was built by an
// incompatible version.
var (
	ErrInvalidMagic      = failure("invalid PSPF magic")
	ErrInvalidVersion    = failure("unsupported PSPF version")
	ErrInvalidIndexSize  = failure("invalid index size")
	ErrChecksumMismatch  = failure("checksum mismatch")
	ErrInvalidEmojiMagic = failure("invalid emoji magic")
)

// Slot errors: a specific slot within an otherwise well-formed container
// could not be located or extracted.
var (
	ErrInvalidSlotIndex     = failure("invalid slot index")
	ErrSlotExtractionFailed = failure("slot extraction failed")
)

// Security errors: the container's integrity or authenticity could not be
// established.
var (
	ErrIntegrityCheckFailed = failure("integrity check failed")
	ErrSignatureInvalid     = failure("invalid signature")
	ErrNoIntegritySeal      = failure("no integrity seal found")
)

// Execution errors: the package was valid but running the resolved payload
// failed.
var (
	ErrExecutionFailed = failure("execution failed")
	ErrMissingSlot     = failure("referenced slot missing")
)
