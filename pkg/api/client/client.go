package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL    = "http://localhost:5173"
	defaultMaxRetries = 3
	baseRetryDelay    = 100 * time.Millisecond
	maxRetryDelay     = 10 * time.Second
)

// Client provides typed access to the Logwell API for tools and services.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	sleep      func(context.Context, time.Duration) error
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

// WithMaxRetries bounds how often a failed ingest is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
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
		maxRetries: defaultMaxRetries,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
	Field   string
}

func (e APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if msg == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, msg)
}

// Retryable reports whether repeating the request may succeed. Only rate
// limiting and server faults qualify.
func (e APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return errors.New("client is nil")
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
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return parseAPIError(resp)
	}
	if v == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseAPIError(resp *http.Response) error {
	apiErr := APIError{Status: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(data) == 0 {
		return apiErr
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Field   string `json:"field"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	apiErr.Code = payload.Error
	apiErr.Message = payload.Message
	apiErr.Field = payload.Field
	return apiErr
}

// LogEntry is one record submitted for ingestion.
type LogEntry struct {
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Timestamp  string         `json:"timestamp,omitempty"`
	Service    string         `json:"service,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	SourceFile string         `json:"sourceFile,omitempty"`
	LineNumber *int           `json:"lineNumber,omitempty"`
	RequestID  string         `json:"requestId,omitempty"`
	UserID     string         `json:"userId,omitempty"`
	IPAddress  string         `json:"ipAddress,omitempty"`
}

// IngestResult acknowledges a stored batch.
type IngestResult struct {
	Inserted int `json:"inserted"`
	Accepted int `json:"accepted"`
	Logs     []struct {
		ID        string    `json:"id"`
		Timestamp time.Time `json:"timestamp"`
	} `json:"logs"`
}

// Ingest submits one batch under a project API key. Network failures, 429
// and 5xx responses are retried with jittered exponential backoff; other
// API errors are returned at once.
func (c *Client) Ingest(ctx context.Context, apiKey string, entries []LogEntry) (IngestResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	body := map[string]any{"logs": entries}
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, backoff(attempt)); err != nil {
				return IngestResult{}, err
			}
		}
		var result IngestResult
		err := c.do(ctx, http.MethodPost, "/v1/ingest", body, apiKey, &result)
		if err == nil {
			return result, nil
		}
		lastErr = err
		var apiErr APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return IngestResult{}, err
		}
		if ctx.Err() != nil {
			return IngestResult{}, ctx.Err()
		}
	}
	return IngestResult{}, lastErr
}

func backoff(attempt int) time.Duration {
	delay := baseRetryDelay << attempt
	if delay > maxRetryDelay || delay <= 0 {
		delay = maxRetryDelay
	}
	jitter := time.Duration(float64(delay) * 0.3 * (rand.Float64()*2 - 1))
	return delay + jitter
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

// Project mirrors the API project payload.
type Project struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	APIKey        string    `json:"apiKey"`
	RetentionDays *int      `json:"retentionDays"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ListProjects returns projects owned by the session user.
func (c *Client) ListProjects(ctx context.Context, token string) ([]Project, error) {
	var projects []Project
	if err := c.do(ctx, http.MethodGet, "/api/projects", nil, token, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// CreateProject registers a project; retentionDays nil selects the server default.
func (c *Client) CreateProject(ctx context.Context, token, name string, retentionDays *int) (Project, error) {
	body := map[string]any{"name": name, "retentionDays": retentionDays}
	var project Project
	if err := c.do(ctx, http.MethodPost, "/api/projects", body, token, &project); err != nil {
		return Project{}, err
	}
	return project, nil
}

// RotateKey issues a new API key; the previous one stops working immediately.
func (c *Client) RotateKey(ctx context.Context, token, projectID string) (string, error) {
	path := fmt.Sprintf("/api/projects/%s/regenerate", url.PathEscape(projectID))
	var resp struct {
		APIKey string `json:"apiKey"`
	}
	if err := c.do(ctx, http.MethodPost, path, nil, token, &resp); err != nil {
		return "", err
	}
	return resp.APIKey, nil
}

// SetRetention updates the retention override of a project.
func (c *Client) SetRetention(ctx context.Context, token, projectID string, retentionDays *int) (Project, error) {
	path := fmt.Sprintf("/api/projects/%s/retention", url.PathEscape(projectID))
	var project Project
	if err := c.do(ctx, http.MethodPut, path, map[string]any{"retentionDays": retentionDays}, token, &project); err != nil {
		return Project{}, err
	}
	return project, nil
}

// DeleteProject removes a project and its logs.
func (c *Client) DeleteProject(ctx context.Context, token, projectID string) error {
	path := fmt.Sprintf("/api/projects/%s", url.PathEscape(projectID))
	return c.do(ctx, http.MethodDelete, path, nil, token, nil)
}

// Log is a stored log record.
type Log struct {
	ID         string          `json:"id"`
	ProjectID  string          `json:"projectId"`
	Level      string          `json:"level"`
	Message    string          `json:"message"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	SourceFile string          `json:"sourceFile,omitempty"`
	LineNumber *int            `json:"lineNumber,omitempty"`
	RequestID  string          `json:"requestId,omitempty"`
	UserID     string          `json:"userId,omitempty"`
	IPAddress  string          `json:"ipAddress,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// LogQuery filters a log listing. Zero values are omitted.
type LogQuery struct {
	Levels []string
	Search string
	From   time.Time
	To     time.Time
	Cursor string
	Limit  int
}

// LogPage is one page of a listing, newest first.
type LogPage struct {
	Logs       []Log   `json:"logs"`
	Total      *int64  `json:"total"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"nextCursor"`
}

// QueryLogs fetches one page of a project's logs.
func (c *Client) QueryLogs(ctx context.Context, token, projectID string, q LogQuery) (LogPage, error) {
	values := url.Values{}
	if len(q.Levels) > 0 {
		values.Set("level", strings.Join(q.Levels, ","))
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		values.Set("search", s)
	}
	if !q.From.IsZero() {
		values.Set("from", q.From.UTC().Format(time.RFC3339Nano))
	}
	if !q.To.IsZero() {
		values.Set("to", q.To.UTC().Format(time.RFC3339Nano))
	}
	if q.Cursor != "" {
		values.Set("cursor", q.Cursor)
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	path := fmt.Sprintf("/api/projects/%s/logs", url.PathEscape(projectID))
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var page LogPage
	if err := c.do(ctx, http.MethodGet, path, nil, token, &page); err != nil {
		return LogPage{}, err
	}
	return page, nil
}
