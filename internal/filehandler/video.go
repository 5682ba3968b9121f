// Package filehandler inspects the local video file before it is staged for
// analysis. Extension checks are advisory: Video Indexer accepts more
// containers than are listed here, so an unknown extension only warrants a
// warning.
package filehandler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// SupportedVideoExtensions maps known video extensions to MIME types.
var SupportedVideoExtensions = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".mpg":  "video/mpeg",
	".mpeg": "video/mpeg",
	".3gp":  "video/3gpp",
	".ts":   "video/mp2t",
}

// fallbackMIMEType is sent for extensions not listed above.
const fallbackMIMEType = "application/octet-stream"

// VideoFile describes the local input file.
type VideoFile struct {
	Path      string
	Name      string
	MIMEType  string
	Size      int64
	Supported bool

	// Probe is nil when ffprobe is unavailable or failed.
	Probe *VideoProbe
}

// LoadVideoFile stats filePath and classifies it by extension. It fails only
// when the path does not exist or is a directory.
func LoadVideoFile(filePath string) (*VideoFile, error) {
	log.Debug().Str("path", filePath).Msg("Loading video file")

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", filePath)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", filePath)
	}

	ext := filepath.Ext(filePath)
	file := &VideoFile{
		Path:      filePath,
		Name:      filepath.Base(filePath),
		MIMEType:  GetMIMEType(ext),
		Size:      info.Size(),
		Supported: IsVideo(ext),
	}

	if !file.Supported {
		log.Warn().
			Str("path", filePath).
			Str("extension", ext).
			Msg("File extension is not a recognized video format, continuing anyway")
	}

	log.Debug().
		Str("path", filePath).
		Str("mime_type", file.MIMEType).
		Int64("size_bytes", file.Size).
		Msg("Video file loaded")
	return file, nil
}

// GetMIMEType returns the MIME type for ext, or application/octet-stream.
func GetMIMEType(ext string) string {
	if mimeType, ok := SupportedVideoExtensions[strings.ToLower(ext)]; ok {
		return mimeType
	}
	return fallbackMIMEType
}

// IsVideo returns true if the file extension corresponds to a known video format.
func IsVideo(ext string) bool {
	_, ok := SupportedVideoExtensions[strings.ToLower(ext)]
	return ok
}

// DialogPatterns returns glob patterns for the supported extensions, sorted.
func DialogPatterns() []string {
	patterns := make([]string, 0, len(SupportedVideoExtensions))
	for ext := range SupportedVideoExtensions {
		patterns = append(patterns, "*"+ext)
	}
	sort.Strings(patterns)
	return patterns
}
