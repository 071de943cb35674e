package retry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Transport is an http.RoundTripper that retries transient failures with
// exponential backoff. It returns the first success or first non-retryable
// outcome immediately; after the attempt budget is exhausted it returns the
// last observed failure so callers can inspect the true cause.
//
// Requests with a body must carry GetBody (true for all requests built by
// http.NewRequest from a byte buffer) so the body can be replayed on retry.
// The backoff sleep blocks only the calling goroutine and honors the request
// context.
type Transport struct {
	base   http.RoundTripper
	policy Policy
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewTransport wraps base with the given backoff policy. A nil base uses
// http.DefaultTransport.
func NewTransport(base http.RoundTripper, policy Policy, logger zerolog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:   base,
		policy: policy,
		logger: logger.With().Str("component", "retry").Logger(),
		sleep:  sleepContext,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var lastErr error

	for attempt := 1; attempt <= t.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := rewindBody(req); err != nil {
				return nil, fmt.Errorf("failed to rewind request body for retry: %w", err)
			}
		}

		resp, lastErr = t.base.RoundTrip(req)

		if lastErr != nil {
			// Non-retryable transport errors propagate immediately,
			// without consuming a backoff sleep.
			if !RetryableError(lastErr) {
				return nil, lastErr
			}
		} else if !RetryableStatus(resp.StatusCode) {
			// Success or terminal failure: first such outcome wins.
			return resp, nil
		}

		if attempt == t.policy.MaxAttempts {
			break
		}

		// Release the retryable response before re-sending.
		if resp != nil {
			io.Copy(io.Discard, resp.Body) //nolint:errcheck
			resp.Body.Close()
			resp = nil
		}

		delay := t.policy.Delay(attempt)
		t.logger.Warn().
			Str("method", req.Method).
			Str("url", req.URL.String()).
			Int("attempt", attempt).
			Int("maxAttempts", t.policy.MaxAttempts).
			Dur("backoff", delay).
			Err(lastErr).
			Msg("transient failure, backing off before retry")

		if err := t.sleep(req.Context(), delay); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}
	}

	return resp, lastErr
}

// rewindBody restores the request body from GetBody for a retry attempt.
func rewindBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return err
	}
	req.Body = body
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
