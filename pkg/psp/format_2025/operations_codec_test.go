package format_2025

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestParseOperationChain(t *testing.T) {
	testCases := []struct {
		name     string
		expected []uint8
	}{
		{"", []uint8{}},
		{"raw", []uint8{}},
		{"gzip", []uint8{OP_GZIP}},
		{"bzip2", []uint8{OP_BZIP2}},
		{"xz", []uint8{OP_XZ}},
		{"zstd", []uint8{OP_ZSTD}},
		{"tar", []uint8{OP_TAR}},
		{"tar.gz", []uint8{OP_TAR, OP_GZIP}},
		{"TGZ", []uint8{OP_TAR, OP_GZIP}},
		{"tar.bz2", []uint8{OP_TAR, OP_BZIP2}},
		{"tar.xz", []uint8{OP_TAR, OP_XZ}},
		{"tar.zst", []uint8{OP_TAR, OP_ZSTD}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ops, err := ParseOperationChain(tc.name)
			if err != nil {
				t.Fatalf("ParseOperationChain(%q) error: %v", tc.name, err)
			}
			if !equalSlices(ops, tc.expected) {
				t.Errorf("ParseOperationChain(%q) = %v, want %v", tc.name, ops, tc.expected)
			}
		})
	}

	if _, err := ParseOperationChain("lz4"); err == nil {
		t.Error("expected error for unsupported chain name, got nil")
	}
}

func TestApplyReverseCompressionRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 64)

	for _, op := range []uint8{OP_GZIP, OP_BZIP2, OP_XZ, OP_ZSTD} {
		op := op
		t.Run(OperationName(op), func(t *testing.T) {
			compressed, err := applyCompressionOp(op, payload)
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			restored, err := reverseCompressionOp(op, compressed)
			if err != nil {
				t.Fatalf("reverse: %v", err)
			}
			if !bytes.Equal(restored, payload) {
				t.Errorf("round trip mismatch for %s", OperationName(op))
			}
		})
	}
}

func TestApplyOperationsTarThenCompress(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello world"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "inner.txt"), []byte("inner"), 0o644); err != nil {
		t.Fatalf("write nested fixture: %v", err)
	}

	ops, err := ParseOperationChain("tar.zst")
	if err != nil {
		t.Fatalf("parse chain: %v", err)
	}

	packed, err := ApplyOperations(dir, nil, ops)
	if err != nil {
		t.Fatalf("ApplyOperations: %v", err)
	}

	unpacked, err := ReverseOperations(packed, ops)
	if err != nil {
		t.Fatalf("ReverseOperations: %v", err)
	}
	if !isTarball(unpacked) {
		t.Error("expected tar payload after reversing compression layer")
	}
}

func TestApplyOperationsRejectsTarNotFirst(t *testing.T) {
	_, err := ApplyOperations("", []byte("data"), []uint8{OP_GZIP, OP_TAR})
	if err == nil {
		t.Error("expected error when TAR is not the first operation")
	}
}
