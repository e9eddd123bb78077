package callback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"job-queue-worker/internal/pkg/logger"
)

const (
	DefaultMaxRetries     = 3
	DefaultBaseDelay      = 1 * time.Second
	DefaultMaxDelay       = 10 * time.Second
	DefaultTotalTimeout   = 120 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// ErrRejected is returned when the endpoint answers with a 4xx status.
// Such a callback is never retried.
var ErrRejected = errors.New("callback rejected")

// RequestBody represents the body of a callback request.
type RequestBody struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type CallbackClient struct {
	HTTPClient   *http.Client
	MaxRetries   int           // attempts before giving up
	BaseDelay    time.Duration // first backoff, doubled after every attempt
	MaxDelay     time.Duration // backoff ceiling
	TotalTimeout time.Duration // budget of one Post including retries
	UserAgent    string
}

// New returns a client with the default backoff settings.
func New(maxRetries int, requestTimeout time.Duration) *CallbackClient {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	return &CallbackClient{
		HTTPClient:   &http.Client{Timeout: requestTimeout},
		MaxRetries:   maxRetries,
		BaseDelay:    DefaultBaseDelay,
		MaxDelay:     DefaultMaxDelay,
		TotalTimeout: DefaultTotalTimeout,
		UserAgent:    "job-queue-worker/1.0",
	}
}

// Post sends the callback request to url with retry and timeout logic.
// 2xx returns nil, 4xx returns an error wrapping ErrRejected, anything else
// is retried until MaxRetries attempts were made.
func (c *CallbackClient) Post(ctx context.Context, url string, body *RequestBody) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	logger.InfoCtx(ctx, "starting callback POST to URL: %s", url)

	timeoutCtx := ctx
	if c.TotalTimeout > 0 {
		var cancel context.CancelFunc
		timeoutCtx, cancel = context.WithTimeout(ctx, c.TotalTimeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; attempt <= c.MaxRetries; attempt++ {
		logger.InfoCtx(ctx, "callback attempt %d/%d to URL: %s", attempt, c.MaxRetries, url)

		req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("%w: failed to create request: %s", ErrRejected, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", c.UserAgent)

		start := time.Now()
		resp, err := c.HTTPClient.Do(req)
		duration := time.Since(start)

		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			logger.WarnCtx(ctx, "callback request failed on attempt %d: %v", attempt, err)
		} else {
			resp.Body.Close()
			logger.InfoCtx(ctx, "callback response received in %v, status: %d", duration, resp.StatusCode)
			switch {
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				logger.InfoCtx(ctx, "callback successful on attempt %d", attempt)
				return nil
			case resp.StatusCode >= 400 && resp.StatusCode < 500:
				return fmt.Errorf("%w: status code %d", ErrRejected, resp.StatusCode)
			}
			lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
			logger.WarnCtx(ctx, "callback failed with status %d on attempt %d", resp.StatusCode, attempt)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt < c.MaxRetries {
			delay := c.backoff(attempt)
			logger.InfoCtx(ctx, "retrying callback in %v", delay)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timeoutCtx.Done():
				return fmt.Errorf("callback timed out: %w", lastErr)
			case <-time.After(delay):
			}
		}
	}

	if lastErr == nil {
		lastErr = errors.New("request failed after multiple attempts")
	}
	logger.ErrorCtx(ctx, "callback ultimately failed after %d attempts: %v", c.MaxRetries, lastErr)
	return lastErr
}

func (c *CallbackClient) backoff(attempt int) time.Duration {
	delay := c.BaseDelay << (attempt - 1)
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}
