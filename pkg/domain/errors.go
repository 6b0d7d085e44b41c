package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConnectivity is returned when the server cannot be reached or the probe fails.
	ErrConnectivity = errors.New("server unreachable")

	// ErrFormat is returned when a workflow source is not well-formed structured data.
	ErrFormat = errors.New("malformed workflow")

	// ErrNotFound is returned when a workflow source does not exist.
	ErrNotFound = errors.New("workflow not found")

	// ErrSubmission is returned when the server rejects a job or omits its identifier.
	ErrSubmission = errors.New("job submission failed")

	// ErrTransport is returned for network-level failures on reads.
	ErrTransport = errors.New("transport failure")

	// ErrUpload is returned when an input asset could not be uploaded.
	ErrUpload = errors.New("asset upload failed")

	// ErrDownload is returned when none of the listed outputs could be retrieved.
	ErrDownload = errors.New("output download failed")

	// ErrNoOutput is returned when a finished job lists no output files.
	ErrNoOutput = errors.New("job produced no outputs")

	// ErrCancelled is returned when the caller interrupts a run.
	ErrCancelled = errors.New("interrupted")

	// ErrPollTimeout is returned when the optional wait ceiling is exceeded.
	ErrPollTimeout = errors.New("gave up waiting for job")

	// ErrClientClosed is returned by any transport call made after Close.
	ErrClientClosed = errors.New("client closed")

	// ErrJobNotFound is returned by ledgers for unknown job identifiers.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidUpdate is returned when a parameter override cannot be parsed.
	ErrInvalidUpdate = errors.New("invalid parameter update")
)

// StatusError describes a non-success HTTP response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Retryable reports whether the status belongs to the transient whitelist
// (rate limited or any 5xx).
func (e *StatusError) Retryable() bool {
	return e.Code == 429 || (e.Code >= 500 && e.Code <= 599)
}

// IsCancelled reports whether err is the result of a caller interrupt rather
// than a failure.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
