// Package fetch provides an HTTP downloader with exponential backoff retry
// for transient failures, used to pull finished clips from the generation API.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Static errors for fetch operations.
var (
	// ErrURLRequired is returned when no URL is provided.
	ErrURLRequired = errors.New("fetch: URL is required")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("fetch: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("fetch: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("fetch: request failed")
	// ErrTooLarge is returned when a body exceeds the configured limit.
	ErrTooLarge = errors.New("fetch: response too large")
)

// StatusError carries the HTTP status of a failed, non-retryable request.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s with status %d: %s", ErrRequestFailed, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrRequestFailed
}

// Client downloads resources over HTTP.
type Client struct {
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
	maxBytes    int64
}

// Option is a function that configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(fc *Client) {
		if c != nil {
			fc.httpClient = c
		}
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) Option {
	return func(fc *Client) {
		fc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) Option {
	return func(fc *Client) {
		fc.baseBackoff = d
	}
}

// WithMaxBytes caps the size of a downloaded body.
func WithMaxBytes(n int64) Option {
	return func(fc *Client) {
		if n > 0 {
			fc.maxBytes = n
		}
	}
}

// New creates a new Client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
		maxBytes:    512 << 20,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get downloads url and returns the body. Headers are added to every attempt.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	if url == "" {
		return nil, ErrURLRequired
	}

	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		body, err := c.get(ctx, url, headers)
		if err == nil {
			return body, nil
		}

		if !isRetryable(err) {
			return nil, err
		}

		lastErr = err
	}

	return nil, fmt.Errorf("fetch: max retries exceeded: %w", lastErr)
}

// Download writes the body of url to destPath.
func (c *Client) Download(ctx context.Context, url, destPath string, headers map[string]string) error {
	body, err := c.Get(ctx, url, headers)
	if err != nil {
		return err
	}
	if err := os.WriteFile(destPath, body, 0600); err != nil {
		return fmt.Errorf("fetch: write %s: %w", destPath, err)
	}
	return nil
}

// get performs a single HTTP GET.
func (c *Client) get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch: %w", ctx.Err())
		}
		return nil, &retryableError{err: fmt.Errorf("fetch: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("fetch: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return nil, &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(body))}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(body))}
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if int64(len(body)) > c.maxBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrTooLarge, c.maxBytes)
	}

	return body, nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
