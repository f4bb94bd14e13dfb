package format_2025

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// namedOperationChains maps the chain names from the manifest "operations"
// field to their packed operation list, in apply order.
var namedOperationChains = map[string][]uint8{
	"":        {},
	"raw":     {},
	"gzip":    {OP_GZIP},
	"bzip2":   {OP_BZIP2},
	"xz":      {OP_XZ},
	"zstd":    {OP_ZSTD},
	"tar":     {OP_TAR},
	"tar.gz":  {OP_TAR, OP_GZIP},
	"tar.bz2": {OP_TAR, OP_BZIP2},
	"tar.xz":  {OP_TAR, OP_XZ},
	"tar.zst": {OP_TAR, OP_ZSTD},
	"tgz":     {OP_TAR, OP_GZIP},
	"tbz2":    {OP_TAR, OP_BZIP2},
	"txz":     {OP_TAR, OP_XZ},
}

// ParseOperationChain resolves a manifest chain name (e.g. "tar.gz") to its
// ordered operation list. Unknown names are rejected rather than silently
// treated as raw, matching the engine's closed operation table.
func ParseOperationChain(name string) ([]uint8, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if ops, ok := namedOperationChains[key]; ok {
		out := make([]uint8, len(ops))
		copy(out, ops)
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, name)
}

// sourceDateEpoch returns the deterministic build time when SOURCE_DATE_EPOCH
// is set, matching the timestamp resolution in builder.go, or the zero time
// to keep archives reproducible by default.
func sourceDateEpoch() time.Time {
	epochStr := os.Getenv("SOURCE_DATE_EPOCH")
	if epochStr == "" {
		return time.Unix(0, 0).UTC()
	}
	if secs, err := strconv.ParseInt(epochStr, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC()
	}
	if parsed, err := time.Parse(time.RFC3339, epochStr); err == nil {
		return parsed.UTC()
	}
	return time.Unix(0, 0).UTC()
}

// bundleTar walks sourcePath (a file or directory) and produces a POSIX tar
// archive of its contents, preserving modes. A single regular file is stored
// under its base name.
func bundleTar(sourcePath string) ([]byte, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", sourcePath, err)
	}

	modTime := sourceDateEpoch()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	if !info.IsDir() {
		data, err := os.ReadFile(sourcePath)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", sourcePath, err)
		}
		hdr := &tar.Header{
			Name:    filepath.Base(sourcePath),
			Mode:    int64(info.Mode().Perm()),
			Size:    int64(len(data)),
			ModTime: modTime,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("tar header: %w", err)
		}
		if _, err := tw.Write(data); err != nil {
			return nil, fmt.Errorf("tar write: %w", err)
		}
		if err := tw.Close(); err != nil {
			return nil, fmt.Errorf("tar close: %w", err)
		}
		return buf.Bytes(), nil
	}

	walkErr := filepath.Walk(sourcePath, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(sourcePath, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		name := filepath.ToSlash(rel)

		if fi.Mode()&os.ModeSymlink != 0 {
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			hdr, err := tar.FileInfoHeader(fi, link)
			if err != nil {
				return err
			}
			hdr.Name = name
			hdr.ModTime = modTime
			return tw.WriteHeader(hdr)
		}

		hdr, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return err
		}
		hdr.Name = name
		if fi.IsDir() {
			hdr.Name += "/"
		}
		hdr.ModTime = modTime
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if fi.Mode().IsRegular() {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			if _, err := io.Copy(tw, f); err != nil {
				return err
			}
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("bundling %s: %w", sourcePath, walkErr)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("tar close: %w", err)
	}
	return buf.Bytes(), nil
}

// applyCompressionOp compresses data with a single compression-range
// operation. OP_TAR and OP_NONE are handled by the caller.
func applyCompressionOp(op uint8, data []byte) ([]byte, error) {
	switch op {
	case OP_GZIP:
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(data); err != nil {
			return nil, fmt.Errorf("gzip write: %w", err)
		}
		if err := gw.Close(); err != nil {
			return nil, fmt.Errorf("gzip close: %w", err)
		}
		return buf.Bytes(), nil

	case OP_BZIP2:
		var buf bytes.Buffer
		bw, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: 9})
		if err != nil {
			return nil, fmt.Errorf("bzip2 writer: %w", err)
		}
		if _, err := bw.Write(data); err != nil {
			return nil, fmt.Errorf("bzip2 write: %w", err)
		}
		if err := bw.Close(); err != nil {
			return nil, fmt.Errorf("bzip2 close: %w", err)
		}
		return buf.Bytes(), nil

	case OP_XZ:
		var buf bytes.Buffer
		xw, err := xz.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("xz writer: %w", err)
		}
		if _, err := xw.Write(data); err != nil {
			return nil, fmt.Errorf("xz write: %w", err)
		}
		if err := xw.Close(); err != nil {
			return nil, fmt.Errorf("xz close: %w", err)
		}
		return buf.Bytes(), nil

	case OP_ZSTD:
		var buf bytes.Buffer
		zw, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		if _, err := zw.Write(data); err != nil {
			zw.Close()
			return nil, fmt.Errorf("zstd write: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("zstd close: %w", err)
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedOperation, op)
	}
}

// reverseCompressionOp inverts a single compression-range operation.
func reverseCompressionOp(op uint8, data []byte) ([]byte, error) {
	switch op {
	case OP_GZIP:
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer gr.Close()
		return io.ReadAll(gr)

	case OP_BZIP2:
		br, err := bzip2.NewReader(bytes.NewReader(data), &bzip2.ReaderConfig{})
		if err != nil {
			return nil, fmt.Errorf("bzip2 reader: %w", err)
		}
		defer br.Close()
		return io.ReadAll(br)

	case OP_XZ:
		xr, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		return io.ReadAll(xr)

	case OP_ZSTD:
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)

	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedOperation, op)
	}
}

// ApplyOperations runs an operation chain in ascending order against a slot's
// source. sourcePath is consulted only when the chain begins with OP_TAR, in
// which case the file or directory tree at sourcePath is bundled first;
// otherwise raw is the pre-operation payload already read from disk.
func ApplyOperations(sourcePath string, raw []byte, ops []uint8) ([]byte, error) {
	current := raw
	for i, op := range ops {
		switch {
		case op == OP_NONE:
			continue
		case op == OP_TAR:
			if i != 0 {
				return nil, fmt.Errorf("%w: TAR must be first in chain", ErrUnsupportedOperation)
			}
			bundled, err := bundleTar(sourcePath)
			if err != nil {
				return nil, err
			}
			current = bundled
		case IsCompressionOp(op):
			out, err := applyCompressionOp(op, current)
			if err != nil {
				return nil, err
			}
			current = out
		default:
			return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedOperation, op)
		}
	}
	return current, nil
}

// ReverseOperations inverts an operation chain in descending order. OP_TAR is
// left to the caller (ExtractSlot), which detects a tar payload and unpacks
// it directly into the destination tree rather than into memory.
func ReverseOperations(data []byte, ops []uint8) ([]byte, error) {
	current := data
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		switch {
		case op == OP_NONE, op == OP_TAR:
			continue
		case IsCompressionOp(op):
			out, err := reverseCompressionOp(op, current)
			if err != nil {
				return nil, err
			}
			current = out
		default:
			return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedOperation, op)
		}
	}
	return current, nil
}
