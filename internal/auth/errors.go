package auth

import (
	"fmt"
)

// ErrorType categorizes access token failures.
type ErrorType int

const (
	// ErrTypeCredential indicates the ambient Azure credential could not
	// produce an ARM token (not logged in, no managed identity, ...).
	ErrTypeCredential ErrorType = iota
	// ErrTypeExchange indicates the generateAccessToken call failed at the
	// transport level or returned a non-success status.
	ErrTypeExchange
	// ErrTypeResponse indicates the generateAccessToken response could not
	// be parsed or carried no token.
	ErrTypeResponse
)

func (t ErrorType) String() string {
	switch t {
	case ErrTypeCredential:
		return "credential"
	case ErrTypeExchange:
		return "exchange"
	case ErrTypeResponse:
		return "response"
	default:
		return fmt.Sprintf("ErrorType(%d)", int(t))
	}
}

// Error is returned when a Video Indexer access token cannot be obtained.
// Callers treat it as fatal for the current operation.
type Error struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}
