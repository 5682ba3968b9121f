package indexer

import (
	"fmt"
)

// UploadState is the processing state Video Indexer reports for a video.
type UploadState int

const (
	StateUploaded UploadState = iota
	StateProcessing
	StateProcessed
	StateFailed
)

// StateUnknownFallback is the state assumed when a poll cannot determine the
// real one (non-success status, unreadable body, unknown state name).
// Treating "unknown" as failed ends the run instead of polling blind.
const StateUnknownFallback = StateFailed

var stateNames = []string{"Uploaded", "Processing", "Processed", "Failed"}

func (s UploadState) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("UploadState(%d)", int(s))
	}
	return stateNames[s]
}

// IsTerminal reports whether polling stops at this state.
func (s UploadState) IsTerminal() bool {
	return s == StateProcessed || s == StateFailed
}

// MarshalText encodes the state as its case-sensitive service name.
func (s UploadState) MarshalText() ([]byte, error) {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return nil, fmt.Errorf("invalid upload state %d", int(s))
	}
	return []byte(stateNames[s]), nil
}

// UnmarshalText decodes a case-sensitive service state name.
func (s *UploadState) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if string(text) == name {
			*s = UploadState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown upload state %q", string(text))
}

// Upload tracks one analysis job. VideoID is assigned by the service and
// stable for the job's lifetime; State is replaced by each poll.
type Upload struct {
	VideoID string      `json:"id"`
	State   UploadState `json:"state"`

	// Polls counts state queries made for this upload.
	Polls int `json:"-"`
}

// uploadResponse mirrors Upload with a nullable state so a missing field
// can be told apart from "Uploaded".
type uploadResponse struct {
	ID    string       `json:"id"`
	State *UploadState `json:"state"`
}

// UploadRequest describes a video to register with the service.
type UploadRequest struct {
	// FilePath is the local file; its base name is the default video name.
	FilePath string
	// VideoURL is a URL the service can download the video from.
	VideoURL    string
	Name        string
	Description string
}
