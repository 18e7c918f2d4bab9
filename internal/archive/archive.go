// Package archive transparently decompresses uploaded spreadsheet files.
// A source named report.xlsx.gz becomes the source "report.xlsx" once its
// payload is inflated; plain .xlsx files pass through untouched.
package archive

import (
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// ErrTooLarge indicates that a file's decompressed payload exceeds the
// configured size limit. The compressed upload can be tiny while its
// payload is not, so the limit is enforced on the inflated bytes.
var ErrTooLarge = errors.New("sheetmerge: decompressed payload exceeds size limit")

// Type identifies the outer compression of an uploaded file.
type Type int

const (
	None Type = iota
	GZ
	BZ2
	XZ
	ZSTD
)

// Detect inspects a file name and returns its compression type plus the
// name with the compression extension stripped.
func Detect(filename string) (Type, string) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		return GZ, filename[:len(filename)-len(".gz")]
	case strings.HasSuffix(lower, ".bz2"):
		return BZ2, filename[:len(filename)-len(".bz2")]
	case strings.HasSuffix(lower, ".xz"):
		return XZ, filename[:len(filename)-len(".xz")]
	case strings.HasSuffix(lower, ".zst"):
		return ZSTD, filename[:len(filename)-len(".zst")]
	default:
		return None, filename
	}
}

// NewReader wraps r with the decompressor for t. The returned closer must
// be called once the payload has been consumed.
func NewReader(r io.Reader, t Type) (io.Reader, func() error, error) {
	switch t {
	case None:
		return r, func() error { return nil }, nil

	case GZ:
		gzReader, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip reader: %w", err)
		}
		return gzReader, gzReader.Close, nil

	case BZ2:
		// bzip2 readers hold no resources to release.
		return bzip2.NewReader(r), func() error { return nil }, nil

	case XZ:
		xzReader, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("xz reader: %w", err)
		}
		return xzReader, func() error { return nil }, nil

	case ZSTD:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd reader: %w", err)
		}
		return decoder, func() error {
			decoder.Close()
			return nil
		}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported compression type: %v", t)
	}
}

// Decompress reads one uploaded file into memory, inflating it when the
// name carries a compression extension. The inflated payload may be at most
// limit bytes (ErrTooLarge past that); a limit <= 0 means unbounded.
// Returns the bare file name and the raw spreadsheet bytes.
func Decompress(filename string, r io.Reader, limit int64) (string, []byte, error) {
	t, bare := Detect(filename)
	wrapped, closeReader, err := NewReader(r, t)
	if err != nil {
		return "", nil, err
	}
	defer closeReader()

	if limit > 0 {
		// Read one byte past the limit so overflow is detectable.
		wrapped = io.LimitReader(wrapped, limit+1)
	}
	data, err := io.ReadAll(wrapped)
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", filename, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return "", nil, fmt.Errorf("%w: %s inflates past %d bytes", ErrTooLarge, filename, limit)
	}
	return bare, data, nil
}
