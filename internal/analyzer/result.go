package analyzer

import (
	"time"

	"github.com/mjrousos/video-analysis-exploration/internal/indexer"
)

// Outcome summarizes how a run ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "Completed"
	case OutcomeFailed:
		return "Failed"
	case OutcomeCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Result describes a run that obtained a video ID.
type Result struct {
	VideoID string
	Name    string
	State   indexer.UploadState
	Outcome Outcome

	// OutputPath and Bytes are set only for OutcomeCompleted.
	OutputPath string
	Bytes      int64

	Polls       int
	UploadStart time.Duration
	Elapsed     time.Duration
}
