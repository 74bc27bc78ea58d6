// Package apierr defines the errors that route handlers translate into HTTP responses.
package apierr

import (
	"fmt"
	"time"
)

// ValidationError is returned when caller input is missing or malformed.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

// UpstreamError is returned when a downstream service responds with a non-2xx status.
type UpstreamError struct {
	Service string
	Status  int
	// Body is the upstream error body, if it should be passed through to the caller.
	Body []byte
}

func (e UpstreamError) Error() string {
	return fmt.Sprintf("%s responded with status %d", e.Service, e.Status)
}

// TimeoutError is returned when a downstream call is aborted by the caller-side timeout.
type TimeoutError struct {
	Service string
	After   time.Duration
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("Request to %s timed out after %s", e.Service, humanDuration(e.After))
}

// TransportError wraps network level failures such as DNS errors or connection resets.
type TransportError struct {
	Service string
	Err     error
}

func (e TransportError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.Service, e.Err)
}

func (e TransportError) Unwrap() error {
	return e.Err
}

func humanDuration(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}
