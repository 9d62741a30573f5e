package zoom

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

type serverResponse struct {
	statusCode int
	body       string
}

func testClientConfig(maxRetries int) HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:      5 * time.Second,
		MaxRetries:   maxRetries,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	}
}

// TestRetryHTTPClient tests the retry logic and error mapping
func TestRetryHTTPClient(t *testing.T) {
	tests := []struct {
		name            string
		maxRetries      int
		serverResponses []serverResponse
		expectedError   bool
		expectedCalls   int
		checkErr        func(t *testing.T, err error)
	}{
		{
			name:            "successful request on first try",
			maxRetries:      3,
			serverResponses: []serverResponse{{200, `{}`}},
			expectedCalls:   1,
		},
		{
			name:       "success after transient failures",
			maxRetries: 3,
			serverResponses: []serverResponse{
				{500, `{}`},
				{429, `{}`},
				{200, `{}`},
			},
			expectedCalls: 3,
		},
		{
			name:       "max retries exceeded",
			maxRetries: 2,
			serverResponses: []serverResponse{
				{503, `{"code": 503, "message": "unavailable"}`},
				{503, `{"code": 503, "message": "unavailable"}`},
				{503, `{"code": 503, "message": "unavailable"}`},
			},
			expectedError: true,
			expectedCalls: 3,
		},
		{
			name:            "no retry for client errors",
			maxRetries:      3,
			serverResponses: []serverResponse{{404, `{"code": 1001, "message": "User does not exist"}`}},
			expectedError:   true,
			expectedCalls:   1,
			checkErr: func(t *testing.T, err error) {
				var apiErr *APIError
				if !errors.As(err, &apiErr) {
					t.Fatalf("Expected *APIError, got %T", err)
				}
				if apiErr.Code != 1001 || apiErr.Status != 404 {
					t.Errorf("Unexpected API error: %+v", apiErr)
				}
			},
		},
		{
			name:            "non json error body",
			maxRetries:      0,
			serverResponses: []serverResponse{{403, `forbidden`}},
			expectedError:   true,
			expectedCalls:   1,
			checkErr: func(t *testing.T, err error) {
				var httpErr *HTTPError
				if !errors.As(err, &httpErr) {
					t.Fatalf("Expected *HTTPError, got %T", err)
				}
				if httpErr.StatusCode != 403 || httpErr.Body != "forbidden" {
					t.Errorf("Unexpected HTTP error: %+v", httpErr)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				resp := tt.serverResponses[calls]
				calls++
				w.WriteHeader(resp.statusCode)
				fmt.Fprint(w, resp.body)
			}))
			defer server.Close()

			client := NewRetryHTTPClient(testClientConfig(tt.maxRetries), nil)
			var out map[string]interface{}
			err := client.GetJSON(context.Background(), server.URL, &out)

			if tt.expectedError && err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !tt.expectedError && err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if tt.checkErr != nil {
				tt.checkErr(t, err)
			}
			if calls != tt.expectedCalls {
				t.Errorf("Expected %d calls, got %d", tt.expectedCalls, calls)
			}
		})
	}
}

func TestRetryHTTPClientAddsBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer abc123" {
			t.Errorf("Expected bearer header, got %q", got)
		}
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "abc123", TokenType: "Bearer"})
	client := NewRetryHTTPClient(testClientConfig(0), ts)
	var out map[string]interface{}
	if err := client.GetJSON(context.Background(), server.URL, &out); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestRetryHTTPClientStopsOnCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testClientConfig(5)
	cfg.RetryWaitMin = time.Hour
	cfg.RetryWaitMax = time.Hour
	client := NewRetryHTTPClient(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var out map[string]interface{}
	err := client.GetJSON(ctx, server.URL, &out)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	if got := parseRetryAfter(resp); got != 0 {
		t.Errorf("Expected 0 without header, got %v", got)
	}
	resp.Header.Set("Retry-After", "3")
	if got := parseRetryAfter(resp); got != 3*time.Second {
		t.Errorf("Expected 3s, got %v", got)
	}
	resp.Header.Set("Retry-After", "soon")
	if got := parseRetryAfter(resp); got != 0 {
		t.Errorf("Expected 0 for garbage, got %v", got)
	}
}
