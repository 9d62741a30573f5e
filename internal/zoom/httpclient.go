package zoom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/curtbushko/zoom-recording-downloader/internal/config"
	"golang.org/x/oauth2"
)

// HTTPClientConfig holds configuration for the retrying API client
type HTTPClientConfig struct {
	Timeout         time.Duration // Request timeout
	MaxRetries      int           // Maximum number of retries
	RetryWaitMin    time.Duration // Minimum wait time between retries
	RetryWaitMax    time.Duration // Maximum wait time between retries
	RetryableStatus []int         // HTTP status codes that should trigger retries
}

// HTTPClientConfigFromDownloadConfig creates HTTPClientConfig from DownloadConfig
func HTTPClientConfigFromDownloadConfig(cfg config.DownloadConfig) HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:         cfg.TimeoutDuration(),
		MaxRetries:      cfg.RetryAttempts,
		RetryWaitMin:    500 * time.Millisecond,
		RetryWaitMax:    5 * time.Second,
		RetryableStatus: []int{429, 500, 502, 503, 504},
	}
}

// APIError represents a Zoom API error response
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zoom API error %d: %s", e.Code, e.Message)
}

// HTTPError represents a general HTTP error
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Status)
}

// RetryHTTPClient is an HTTP client with retry logic and exponential backoff.
// It is used for API listing calls only; recording bodies are never retried in a pass.
type RetryHTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

// NewRetryHTTPClient creates a retrying client. A nil token source leaves requests unauthenticated.
func NewRetryHTTPClient(cfg HTTPClientConfig, ts oauth2.TokenSource) *RetryHTTPClient {
	if cfg.RetryWaitMin == 0 {
		cfg.RetryWaitMin = 500 * time.Millisecond
	}
	if cfg.RetryWaitMax == 0 {
		cfg.RetryWaitMax = 5 * time.Second
	}
	if len(cfg.RetryableStatus) == 0 {
		cfg.RetryableStatus = []int{429, 500, 502, 503, 504}
	}

	var transport http.RoundTripper = http.DefaultTransport
	if ts != nil {
		transport = &oauth2.Transport{Source: ts, Base: http.DefaultTransport}
	}

	return &RetryHTTPClient{
		client: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		config: cfg,
	}
}

// Do executes an HTTP request with retry logic. Non-2xx responses become *APIError or *HTTPError.
func (c *RetryHTTPClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	for attempt := 0; ; attempt++ {
		resp, err := c.client.Do(req.Clone(ctx))
		if err != nil {
			var authErr *AuthError
			if errors.As(err, &authErr) || ctx.Err() != nil || attempt >= c.config.MaxRetries {
				return nil, fmt.Errorf("request failed after %d attempts: %w", attempt+1, err)
			}
			if werr := c.waitForRetry(ctx, attempt, 0); werr != nil {
				return nil, werr
			}
			continue
		}

		if resp.StatusCode < 400 {
			return resp, nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if c.shouldRetry(resp.StatusCode) && attempt < c.config.MaxRetries {
			if werr := c.waitForRetry(ctx, attempt, parseRetryAfter(resp)); werr != nil {
				return nil, werr
			}
			continue
		}

		if apiErr := parseAPIError(resp.StatusCode, body); apiErr != nil {
			return nil, apiErr
		}
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
	}
}

// GetJSON issues a GET and decodes the JSON body into out
func (c *RetryHTTPClient) GetJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *RetryHTTPClient) shouldRetry(statusCode int) bool {
	for _, status := range c.config.RetryableStatus {
		if statusCode == status {
			return true
		}
	}
	return false
}

func parseAPIError(statusCode int, body []byte) *APIError {
	if len(body) == 0 {
		return nil
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return nil
	}
	if apiErr.Code == 0 && apiErr.Message == "" {
		return nil
	}

	apiErr.Status = statusCode
	return &apiErr
}

func parseRetryAfter(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// waitForRetry sleeps with exponential backoff and jitter, or for Retry-After when given
func (c *RetryHTTPClient) waitForRetry(ctx context.Context, attempt int, retryAfter time.Duration) error {
	wait := retryAfter
	if wait <= 0 {
		base := float64(c.config.RetryWaitMin)
		exponential := base * math.Pow(2, float64(attempt))
		jitter := exponential * 0.25 * (rand.Float64()*2 - 1)
		wait = time.Duration(exponential + jitter)
		if wait < c.config.RetryWaitMin {
			wait = c.config.RetryWaitMin
		}
	}
	if wait > c.config.RetryWaitMax {
		wait = c.config.RetryWaitMax
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
