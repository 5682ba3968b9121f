// Package cli holds helpers shared by the video-analyze command: input
// validation, the file picker, error reporting and summary formatting.
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrInputRequired is returned when no input path was given.
var ErrInputRequired = errors.New("Input path is required")

// ValidateAndResolveFile checks that path names an existing regular file and
// returns its absolute form.
func ValidateAndResolveFile(path string) (string, error) {
	if path == "" {
		return "", ErrInputRequired
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("Input path %s does not exist", path)
		}
		return "", fmt.Errorf("failed to access %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("Input path %s is a directory", path)
	}

	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path, nil
}
