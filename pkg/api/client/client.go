package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "http://localhost:3000"

// Client provides typed access to the admin console API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// BaseURL reports the normalised API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := extractError(resp.Body)
		apiErr.Status = resp.StatusCode
		return apiErr
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) APIError {
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return APIError{}
	}
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return APIError{Message: strings.TrimSpace(string(data))}
	}
	return APIError{Code: payload.Error.Code, Message: strings.TrimSpace(payload.Error.Message)}
}

// Admin reflects the operator payload returned by the API.
type Admin struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// LoginResponse captures the admin token payload.
type LoginResponse struct {
	Token string `json:"token"`
	Admin Admin  `json:"admin"`
}

// Login exchanges admin credentials for a dashboard token.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	body := map[string]string{
		"username": username,
		"password": password,
	}
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, "/admin/login", body, "", &resp); err != nil {
		return LoginResponse{}, err
	}
	return resp, nil
}

// Request is one captured API request.
type Request struct {
	ID        int64   `json:"id"`
	Timestamp int64   `json:"timestamp"`
	Method    string  `json:"method"`
	Path      string  `json:"path"`
	Status    int     `json:"status"`
	Duration  int64   `json:"duration"`
	IP        string  `json:"ip"`
	UserAgent string  `json:"userAgent"`
	UserID    *string `json:"userId"`
}

// Time converts the capture timestamp.
func (r Request) Time() time.Time { return time.UnixMilli(r.Timestamp) }

// RecentRequests returns captured requests with an id above since, or the
// latest page when since is zero.
func (c *Client) RecentRequests(ctx context.Context, token string, since int64) ([]Request, error) {
	path := "/admin/requests"
	if since > 0 {
		path += "?since=" + strconv.FormatInt(since, 10)
	}
	var resp struct {
		Requests []Request `json:"requests"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, token, &resp); err != nil {
		return nil, err
	}
	return resp.Requests, nil
}

// RPSPoint is one chart bucket.
type RPSPoint struct {
	Timestamp int64   `json:"timestamp"`
	RPS       float64 `json:"rps"`
}

// RPSSnapshot is the chart payload for a lookback window.
type RPSSnapshot struct {
	Data  []RPSPoint `json:"data"`
	Stats struct {
		Current float64 `json:"current"`
		Average float64 `json:"average"`
		Peak    float64 `json:"peak"`
		Total   int64   `json:"total"`
	} `json:"stats"`
	BucketSeconds int `json:"bucketSeconds"`
	WindowMinutes int `json:"windowMinutes"`
}

// RPS fetches the snapshot for window minutes.
func (c *Client) RPS(ctx context.Context, token string, window int) (RPSSnapshot, error) {
	path := "/admin/rps"
	if window > 0 {
		path += "?window=" + strconv.Itoa(window)
	}
	var snap RPSSnapshot
	if err := c.do(ctx, http.MethodGet, path, nil, token, &snap); err != nil {
		return RPSSnapshot{}, err
	}
	return snap, nil
}

// Stats mirrors the dashboard counters.
type Stats struct {
	Users struct {
		Total      int64 `json:"total"`
		Guests     int64 `json:"guests"`
		Registered int64 `json:"registered"`
		Banned     int64 `json:"banned"`
	} `json:"users"`
	KVEntries    int64 `json:"kv_entries"`
	Leaderboards int64 `json:"leaderboards"`
	Scores       int64 `json:"scores"`
}

// Stats fetches aggregate counts.
func (c *Client) Stats(ctx context.Context, token string) (Stats, error) {
	var stats Stats
	if err := c.do(ctx, http.MethodGet, "/admin/stats", nil, token, &stats); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// SetBanned toggles the ban flag of a player.
func (c *Client) SetBanned(ctx context.Context, token, userID string, banned bool) error {
	path := fmt.Sprintf("/admin/users/%s/ban", url.PathEscape(userID))
	return c.do(ctx, http.MethodPatch, path, map[string]bool{"banned": banned}, token, nil)
}
