package model

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrNotFound is returned when a checkpoint, item or file is absent
	ErrNotFound = errors.New("not found")

	// ErrCorruptData is returned when a checkpoint exists but cannot be parsed
	ErrCorruptData = errors.New("corrupt data")

	// ErrDuplicate is returned when adding an ordinal that already exists
	ErrDuplicate = errors.New("duplicate ordinal")

	// ErrResolutionFailed is returned when no transfer locator could be found
	ErrResolutionFailed = errors.New("resolution failed")

	// ErrTransferIncomplete is returned when a stream ends before the expected length
	ErrTransferIncomplete = errors.New("transfer incomplete")

	// ErrAttemptsExhausted marks the terminal per-item failure of a run
	ErrAttemptsExhausted = errors.New("attempts exhausted")

	// ErrCheckpointWrite is returned when the checkpoint cannot be persisted
	ErrCheckpointWrite = errors.New("checkpoint write failed")
)

// ServerError is an upstream HTTP failure
type ServerError struct {
	URL        string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *ServerError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("server error: timeout fetching %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("server error: %s returned %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

// InvalidatesLocator reports whether the locator that produced this error should
// be resolved again rather than retried as-is.
func (e *ServerError) InvalidatesLocator() bool {
	if e.Timeout {
		return true
	}
	switch e.StatusCode {
	case http.StatusForbidden, http.StatusNotFound, http.StatusGone, http.StatusRequestTimeout:
		return true
	}
	return false
}

// NewTimeoutError wraps a network timeout as a ServerError
func NewTimeoutError(url string, err error) *ServerError {
	return &ServerError{URL: url, Timeout: true, Err: err}
}

// IsLocatorError reports whether err means the transfer locator went stale
func IsLocatorError(err error) bool {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.InvalidatesLocator()
	}
	return IsTimeout(err)
}

// IsTimeout reports whether err is a network timeout
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsFatal reports whether err means the run cannot make trustworthy progress
func IsFatal(err error) bool {
	return errors.Is(err, ErrCheckpointWrite) || errors.Is(err, ErrCorruptData)
}

// As is a generic errors.As returning the matched target or nil
func As[T error](err error) T {
	var target T
	if errors.As(err, &target) {
		return target
	}
	var zero T
	return zero
}
