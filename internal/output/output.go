// Package output writes the retrieved video index to disk.
package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// DefaultPath is the index file written when no output path is configured.
const DefaultPath = "VideoIndex.json"

// Compression selects how the index is encoded on disk.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	default:
		return "none"
	}
}

// CompressionFor picks the compression from the path suffix (.gz, .zst).
func CompressionFor(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		return CompressionGzip
	case ".zst", ".zstd":
		return CompressionZstd
	default:
		return CompressionNone
	}
}

// Save copies r to path, creating the file or truncating an existing one.
// It returns the number of uncompressed bytes written. A failure mid-copy
// leaves a partial file behind.
func Save(path string, r io.Reader) (int64, error) {
	if path == "" {
		path = DefaultPath
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open output file: %w", err)
	}

	compression := CompressionFor(path)
	n, err := copyCompressed(f, r, compression)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close output file: %w", closeErr)
	}
	if err != nil {
		return n, err
	}

	log.Debug().
		Str("path", path).
		Int64("bytes", n).
		Stringer("compression", compression).
		Msg("Index written")
	return n, nil
}

// copyCompressed streams r into w through the selected encoder.
func copyCompressed(w io.Writer, r io.Reader, c Compression) (int64, error) {
	switch c {
	case CompressionGzip:
		gz := gzip.NewWriter(w)
		n, err := io.Copy(gz, r)
		if err != nil {
			gz.Close()
			return n, fmt.Errorf("failed to write index: %w", err)
		}
		if err := gz.Close(); err != nil {
			return n, fmt.Errorf("failed to finish gzip stream: %w", err)
		}
		return n, nil

	case CompressionZstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return 0, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		n, err := io.Copy(enc, r)
		if err != nil {
			enc.Close()
			return n, fmt.Errorf("failed to write index: %w", err)
		}
		if err := enc.Close(); err != nil {
			return n, fmt.Errorf("failed to finish zstd stream: %w", err)
		}
		return n, nil

	default:
		n, err := io.Copy(w, r)
		if err != nil {
			return n, fmt.Errorf("failed to write index: %w", err)
		}
		return n, nil
	}
}
