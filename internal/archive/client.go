package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client fetches grid files from an HTTP(S) PHOENIX archive. File
// identity is the relative key, appended to the base URL.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	// Retry configuration (internal)
	maxRetries int
	backoff    time.Duration
}

// NewClient creates a new archive client. token may be empty for public
// archives.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		maxRetries: 3,               // transient failures only
		backoff:    2 * time.Second, // doubled per attempt
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // grid files can run to gigabytes
		},
	}
}

// WithTimeout overrides the per-request timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.httpClient.Timeout = d
	return c
}

// WithRetries overrides the transient-failure retry budget.
func (c *Client) WithRetries(n int) *Client {
	c.maxRetries = n
	return c
}

// Fetch downloads one grid file. Transient failures (network errors,
// 5xx, 429) are retried with doubling backoff up to the retry budget;
// anything else fails immediately. The caller must close the body.
func (c *Client) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	var lastErr error
	backoff := c.backoff
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			slog.InfoContext(ctx, "retrying archive fetch", "key", key, "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		body, err := c.get(ctx, key)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var apiErr *apiError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, &ClientError{Message: fmt.Sprintf("failed to fetch %s: %v", key, lastErr)}
}

func (c *Client) get(ctx context.Context, key string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/"+key, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		resp.Body.Close() // Cleanup on error
		return nil, &apiError{StatusCode: resp.StatusCode, Message: "fetch failed"}
	}

	// Caller must close this body
	return resp.Body, nil
}
