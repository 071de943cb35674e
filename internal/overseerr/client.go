// Package overseerr is the HTTP client for the remote media-management
// server. All calls go through the retrying transport, so transient failures
// are retried with backoff before an error ever reaches a caller.
package overseerr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/lusk/luskd/internal/config"
	"github.com/lusk/luskd/internal/retry"
)

// Client is a media server API client. Credentials come from configuration
// and are fixed for the client's lifetime; there is no shared mutable auth
// state across calls.
type Client struct {
	httpClient *http.Client
	config     config.OverseerrConfig
	logger     zerolog.Logger
}

// NewClient creates a new media server client wrapping the retrying
// transport.
func NewClient(cfg config.OverseerrConfig, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30
	}
	// The timeout is applied per attempt, on the base transport, not on the
	// http.Client: a Client-level timeout spans the whole RoundTrip including
	// backoff sleeps, so a hanging server would burn the entire budget on the
	// first attempt and leave nothing for retries.
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.ResponseHeaderTimeout = time.Duration(timeout) * time.Second
	return &Client{
		httpClient: &http.Client{
			Transport: retry.NewTransport(base, retry.DefaultPolicy(), logger),
		},
		config: cfg,
		logger: logger.With().Str("component", "overseerr").Logger(),
	}
}

// Ping verifies the server is reachable. Used as the network precondition
// before a drain cycle runs.
func (c *Client) Ping(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, "/api/v1/status", nil, nil)
}

// SubmitMovie submits a movie request and returns the server record.
func (c *Client) SubmitMovie(ctx context.Context, movieID int64, profileID *int64, rootFolder *string) (*MediaRequest, error) {
	body := RequestBody{
		MediaID:    movieID,
		MediaType:  "movie",
		ProfileID:  profileID,
		RootFolder: rootFolder,
	}
	var result MediaRequest
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/request", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SubmitTV submits a TV request for the given seasons and returns the
// server record.
func (c *Client) SubmitTV(ctx context.Context, tvID int64, seasons []int64, profileID *int64, rootFolder *string) (*MediaRequest, error) {
	body := RequestBody{
		MediaID:    tvID,
		MediaType:  "tv",
		Seasons:    seasons,
		ProfileID:  profileID,
		RootFolder: rootFolder,
	}
	var result MediaRequest
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/request", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Requests fetches a page of the user's requests.
func (c *Client) Requests(ctx context.Context, take, skip int) ([]MediaRequest, error) {
	var result RequestList
	path := fmt.Sprintf("/api/v1/request?take=%d&skip=%d", take, skip)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Results, nil
}

// Request fetches a single request record by its server-assigned id.
func (c *Client) Request(ctx context.Context, requestID int64) (*MediaRequest, error) {
	var result MediaRequest
	path := fmt.Sprintf("/api/v1/request/%d", requestID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteRequest cancels a request on the server.
func (c *Client) DeleteRequest(ctx context.Context, requestID int64) error {
	path := fmt.Sprintf("/api/v1/request/%d", requestID)
	return c.doRequest(ctx, http.MethodDelete, path, nil, nil)
}

// QualityProfiles fetches the quality profiles available for submissions.
func (c *Client) QualityProfiles(ctx context.Context) ([]QualityProfile, error) {
	var result []QualityProfile
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/service/profiles", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// RootFolders fetches the root folders available for submissions.
func (c *Client) RootFolders(ctx context.Context) ([]RootFolder, error) {
	var result []RootFolder
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/service/rootfolders", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// doRequest performs one API call. Non-2xx responses become a *StatusError
// carrying the numeric code so callers can classify the failure.
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIKey != "" {
		req.Header.Set("X-Api-Key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp errorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr == nil && errResp.Message != "" {
			c.logger.Warn().
				Int("status", resp.StatusCode).
				Str("path", path).
				Str("message", errResp.Message).
				Msg("server rejected request")
		}
		return &StatusError{Code: resp.StatusCode, Message: errResp.Message}
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
