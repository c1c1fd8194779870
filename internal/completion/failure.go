package completion

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoEndpoint is returned by New when no primary endpoint is configured.
var ErrNoEndpoint = errors.New("completion: primary endpoint is required")

// Kind classifies a failed completion attempt.
type Kind int

const (
	// KindTerminal failures end the attempt loop for the endpoint immediately.
	KindTerminal Kind = iota
	// KindRetryable failures (429, 503) are retried while budget remains.
	KindRetryable
)

func (k Kind) String() string {
	if k == KindRetryable {
		return "retryable"
	}
	return "terminal"
}

// Failure describes why a completion request could not be served.
type Failure struct {
	Kind       Kind
	Endpoint   string // redacted, without query string
	Status     int    // 0 for transport errors
	RetryAfter string // raw Retry-After header, if any
	Attempts   int
	Body       string
	Err        error
}

func (f *Failure) Error() string {
	if f.Status != 0 {
		return fmt.Sprintf("completion %s failure from %s after %d attempt(s): status %d %s",
			f.Kind, f.Endpoint, f.Attempts, f.Status, http.StatusText(f.Status))
	}
	return fmt.Sprintf("completion %s failure from %s after %d attempt(s): %v", f.Kind, f.Endpoint, f.Attempts, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Retryable reports whether the failure was a rate-limit or unavailability response.
func (f *Failure) Retryable() bool { return f != nil && f.Kind == KindRetryable }

// IsRetryableStatus reports whether an HTTP status may be retried.
func IsRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// Status tags the outcome of an attempt loop.
type Status int

const (
	StatusSuccess Status = iota
	StatusRetryableFailure
	StatusTerminalFailure
)

// Result is the tagged outcome of running the attempt loop against one endpoint.
type Result struct {
	Text    string
	Failure *Failure
}

// Status returns the tag of the result.
func (r Result) Status() Status {
	switch {
	case r.Failure == nil:
		return StatusSuccess
	case r.Failure.Retryable():
		return StatusRetryableFailure
	default:
		return StatusTerminalFailure
	}
}
