package format_2025

import (
	"bytes"
	"compress/gzip"
	"crypto/ed25519"
	"fmt"
	"io"
)

// checkTrailerBookends confirms the start and end emoji sequences bracket an
// 8200-byte trailer. The two sequences live at opposite ends of the
// trailer (bytes 0:4 and bytes 8196:8200) — they are not adjacent, so they
// must be checked independently rather than as one 8-byte run.
func checkTrailerBookends(trailer []byte) error {
	if len(trailer) != MagicTrailerSize {
		return fmt.Errorf("trailer must be %d bytes, got %d", MagicTrailerSize, len(trailer))
	}
	if !bytes.Equal(trailer[:4], PackageEmojiBytes) {
		return ErrInvalidEmojiMagic
	}
	if !bytes.Equal(trailer[len(trailer)-4:], MagicWandEmojiBytes) {
		return ErrInvalidEmojiMagic
	}
	return nil
}

// VerifyMagicTrailer confirms the start (📦) and end (🪄) magic bytes of the
// trailing 8200-byte MagicTrailer are both present.
func (r *Reader) VerifyMagicTrailer() (bool, error) {
	if err := r.Open(); err != nil {
		return false, err
	}

	info, err := r.file.Stat()
	if err != nil {
		return false, err
	}

	trailer := make([]byte, MagicTrailerSize)
	if _, err := r.file.ReadAt(trailer, info.Size()-MagicTrailerSize); err != nil {
		return false, err
	}

	if err := checkTrailerBookends(trailer); err != nil {
		return false, err
	}
	return true, nil
}

// VerifyAllChecksums walks every slot in the index and confirms its stored
// checksum matches its bytes on disk, by way of ReadSlot's own verification.
func (r *Reader) VerifyAllChecksums() error {
	index, err := r.ReadIndex()
	if err != nil {
		return err
	}

	for i := 0; i < int(index.SlotCount); i++ {
		if _, err := r.ReadSlot(i); err != nil {
			return fmt.Errorf("slot %d: %w", i, err)
		}
	}

	return nil
}

// ReadEmojiMagic copies the final 16 bytes of the file (the last 12 bytes
// of the index block plus the end magic) into buf, for callers that
// want the raw bookend region rather than a pass/fail verdict.
func (r *Reader) ReadEmojiMagic(buf []byte) error {
	if len(buf) != 16 {
		return fmt.Errorf("buffer must be 16 bytes")
	}

	info, err := r.file.Stat()
	if err != nil {
		return err
	}

	if _, err := r.file.Seek(info.Size()-16, io.SeekStart); err != nil {
		return err
	}

	_, err = r.file.Read(buf)
	return err
}

// VerifyIntegritySeal checks the Ed25519 signature carried in the index
// against the uncompressed metadata JSON, per the format's integrity seal.
func (r *Reader) VerifyIntegritySeal() (bool, error) {
	index, err := r.ReadIndex()
	if err != nil {
		return false, err
	}

	if _, err := r.file.Seek(int64(index.MetadataOffset), io.SeekStart); err != nil {
		return false, err
	}

	compressed := make([]byte, index.MetadataSize)
	if _, err := r.file.Read(compressed); err != nil {
		return false, err
	}

	gr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return false, err
	}
	defer gr.Close()

	plaintext, err := io.ReadAll(gr)
	if err != nil {
		return false, err
	}

	signature := index.IntegritySignature[:64]
	if isZeroed(signature) {
		return false, ErrNoIntegritySeal
	}

	if !ed25519.Verify(index.PublicKey[:], plaintext, signature) {
		return false, ErrSignatureInvalid
	}
	return true, nil
}

// isZeroed reports whether every byte in b is zero.
func isZeroed(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
