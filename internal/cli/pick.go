package cli

import (
	"errors"
	"fmt"

	"github.com/ncruces/zenity"

	"github.com/mjrousos/video-analysis-exploration/internal/filehandler"
)

// ErrPickCancelled is returned when the file dialog is dismissed.
var ErrPickCancelled = errors.New("no file selected")

// PickVideoFile opens a native file dialog filtered to video files.
func PickVideoFile() (string, error) {
	selected, err := zenity.SelectFile(
		zenity.Title("Select a video to analyze"),
		zenity.FileFilters{
			{
				Name:     "Video files",
				Patterns: filehandler.DialogPatterns(),
			},
			{
				Name:     "All files",
				Patterns: []string{"*"},
			},
		},
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			return "", ErrPickCancelled
		}
		return "", fmt.Errorf("file picker failed: %w", err)
	}
	return selected, nil
}
