package indexer

import (
	"fmt"
)

// Kind identifies which Video Indexer call failed.
type Kind int

const (
	// KindAuthentication wraps an access token failure.
	KindAuthentication Kind = iota
	// KindUpload is a failed or unreadable upload registration.
	KindUpload
	// KindPoll is a failed state query. The poller collapses it into
	// StateUnknownFallback; it only surfaces from VideoState.
	KindPoll
	// KindFetch is a failed index retrieval.
	KindFetch
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindUpload:
		return "upload"
	case KindPoll:
		return "poll"
	case KindFetch:
		return "fetch"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error describes a failed Video Indexer call.
type Error struct {
	Kind       Kind
	VideoID    string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + " failed"
	if e.VideoID != "" {
		msg += " for video " + e.VideoID
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
		if e.Body != "" {
			msg += " (body: " + e.Body + ")"
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}
