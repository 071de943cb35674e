// Package retry implements the exponential backoff policy applied to
// outbound calls to the media server. Delays are deterministic (no jitter)
// so retry timing can be asserted exactly in tests.
package retry

import (
	"errors"
	"math"
	"net"
	"strings"
	"time"
)

// Policy configures backoff delays and the retry budget.
type Policy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	Multiplier   float64
}

// DefaultPolicy returns the backoff policy used for media server calls:
// 1s initial delay doubling up to a 10s cap, 3 total attempts.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		MaxAttempts:  3,
		Multiplier:   2.0,
	}
}

// Delay returns the backoff delay before the retry that follows the given
// attempt. Attempt numbers are 1-based: Delay(1) is the wait after the first
// failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exponential := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if exponential > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(exponential)
}

// RetryableStatus reports whether an HTTP status code indicates a transient
// failure worth retrying.
func RetryableStatus(code int) bool {
	switch code {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}

// RetryableError reports whether a transport-level error indicates a
// transient connectivity problem. Timeouts are always retryable; otherwise
// the error message is inspected for connectivity indicators.
func RetryableError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection")
}
