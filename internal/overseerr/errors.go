package overseerr

import (
	"errors"
	"fmt"

	"github.com/lusk/luskd/internal/retry"
)

// StatusError is a non-2xx response from the media server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned status %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("server returned status %d", e.Code)
}

// IsConnectivityError reports whether err is a transient connectivity
// failure: a transport-level error classified retryable, or a response whose
// status is in the retryable set. Connectivity failures are eligible for
// deferral to the offline queue.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return retry.RetryableStatus(se.Code)
	}
	return retry.RetryableError(err)
}

// IsApplicationError reports whether err is a definitive server rejection
// (a 4xx outside the retryable set, e.g. duplicate request or forbidden).
// Application errors are never retried or deferred.
func IsApplicationError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500 && !retry.RetryableStatus(se.Code)
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not a
// StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
