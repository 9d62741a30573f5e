package zoom

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the Zoom REST API v2 root
const DefaultBaseURL = "https://api.zoom.us/v2"

// dateLayout is the from/to format the recordings endpoint expects
const dateLayout = "2006-01-02"

// API defines the Zoom endpoints the downloader consumes
type API interface {
	ListUsers(ctx context.Context, pageNumber int) (*ListUsersResponse, error)
	ListUserRecordings(ctx context.Context, userID string, params ListRecordingsParams) (*ListRecordingsResponse, error)
}

// ListRecordingsParams holds parameters for listing recordings
type ListRecordingsParams struct {
	From          time.Time // Start date for the date range
	To            time.Time // End date for the date range
	PageSize      int       // Number of records per page (default: 300, the API maximum)
	NextPageToken string    // Next page token for pagination
}

// Client implements API over a retrying authenticated HTTP client
type Client struct {
	http    *RetryHTTPClient
	baseURL string
}

// NewClient creates a new Zoom API client
func NewClient(httpClient *RetryHTTPClient, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// ListUsers retrieves one page of account users
func (c *Client) ListUsers(ctx context.Context, pageNumber int) (*ListUsersResponse, error) {
	query := url.Values{}
	if pageNumber > 0 {
		query.Set("page_number", strconv.Itoa(pageNumber))
	}
	endpoint := c.baseURL + "/users"
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var result ListUsersResponse
	if err := c.http.GetJSON(ctx, endpoint, &result); err != nil {
		return nil, fmt.Errorf("failed to list users (page %d): %w", pageNumber, err)
	}
	return &result, nil
}

// ListUserRecordings retrieves one page of cloud recordings for a user
func (c *Client) ListUserRecordings(ctx context.Context, userID string, params ListRecordingsParams) (*ListRecordingsResponse, error) {
	endpoint := fmt.Sprintf("%s/users/%s/recordings", c.baseURL, url.PathEscape(userID))

	query := url.Values{}
	if !params.From.IsZero() {
		query.Set("from", params.From.Format(dateLayout))
	}
	if !params.To.IsZero() {
		query.Set("to", params.To.Format(dateLayout))
	}
	pageSize := params.PageSize
	if pageSize == 0 {
		pageSize = 300
	}
	query.Set("page_size", strconv.Itoa(pageSize))
	if params.NextPageToken != "" {
		query.Set("next_page_token", params.NextPageToken)
	}
	endpoint += "?" + query.Encode()

	var result ListRecordingsResponse
	if err := c.http.GetJSON(ctx, endpoint, &result); err != nil {
		return nil, fmt.Errorf("failed to list recordings for %s: %w", userID, err)
	}
	return &result, nil
}

// AllUsers walks every page of the user list
func AllUsers(ctx context.Context, api API) ([]User, error) {
	first, err := api.ListUsers(ctx, 1)
	if err != nil {
		return nil, err
	}

	users := append([]User(nil), first.Users...)
	for page := 2; page <= first.PageCount; page++ {
		resp, err := api.ListUsers(ctx, page)
		if err != nil {
			return nil, err
		}
		users = append(users, resp.Users...)
	}
	return users, nil
}

// Window is one from/to slice of the recording date range
type Window struct {
	From time.Time
	To   time.Time
}

// Windows splits [start, end) into consecutive windows of at most days days
func Windows(start, end time.Time, days int) []Window {
	if days <= 0 {
		days = 30
	}
	var windows []Window
	for cur := start; cur.Before(end); cur = cur.AddDate(0, 0, days) {
		next := cur.AddDate(0, 0, days)
		if next.After(end) {
			next = end
		}
		windows = append(windows, Window{From: cur, To: next})
	}
	return windows
}

// UserMeetings lists every recorded meeting of a user between start and end,
// querying one window at a time and following next_page_token within each window.
func UserMeetings(ctx context.Context, api API, userID string, start, end time.Time, windowDays int) ([]Meeting, error) {
	var meetings []Meeting
	for _, w := range Windows(start, end, windowDays) {
		params := ListRecordingsParams{From: w.From, To: w.To}
		for {
			if err := ctx.Err(); err != nil {
				return meetings, err
			}
			resp, err := api.ListUserRecordings(ctx, userID, params)
			if err != nil {
				return meetings, err
			}
			meetings = append(meetings, resp.Meetings...)
			if resp.NextPageToken == "" {
				break
			}
			params.NextPageToken = resp.NextPageToken
		}
	}
	return meetings, nil
}
