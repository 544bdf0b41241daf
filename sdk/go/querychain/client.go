// Package querychain is a small client for the QueryChain REST API.
package querychain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the QueryChain REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Step is one executed tool call of an answer.
type Step struct {
	Index     int               `json:"index"`
	Tool      string            `json:"tool"`
	Operation string            `json:"operation"`
	Args      map[string]string `json:"args"`
	Output    string            `json:"output,omitempty"`
	Value     json.RawMessage   `json:"value"`
	Duration  time.Duration     `json:"duration"`
}

// Answer is the response of a synchronous query.
type Answer struct {
	ID         string        `json:"id"`
	Query      string        `json:"query"`
	Normalized string        `json:"normalized"`
	Answer     string        `json:"answer"`
	Outcome    string        `json:"outcome"`
	Pattern    string        `json:"pattern,omitempty"`
	PlanKind   string        `json:"plan_kind,omitempty"`
	Plan       string        `json:"plan,omitempty"`
	Steps      []Step        `json:"steps,omitempty"`
	ErrorCode  string        `json:"error_code,omitempty"`
	ErrorKind  string        `json:"error_kind,omitempty"`
	Duration   time.Duration `json:"duration"`
	CreatedAt  int64         `json:"created_at"`
}

// Answered reports whether the answer came from an executed plan rather than
// a fallback.
func (a Answer) Answered() bool { return a.Outcome == "answered" }

// TaskSubmission is the payload required to create an asynchronous task.
type TaskSubmission struct {
	ID       string         `json:"id,omitempty"`
	Query    string         `json:"query"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TaskResult is the stored answer of a finished task.
type TaskResult struct {
	QueryID    string `json:"query_id"`
	Answer     string `json:"answer"`
	Outcome    string `json:"outcome"`
	Pattern    string `json:"pattern,omitempty"`
	PlanKind   string `json:"plan_kind,omitempty"`
	Normalized string `json:"normalized,omitempty"`
}

// Task is the server-side view of an asynchronous task.
type Task struct {
	ID         string         `json:"id"`
	Query      string         `json:"query"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Status     string         `json:"status"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"max_retries"`
	LastError  string         `json:"last_error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Result     *TaskResult    `json:"result,omitempty"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

// Done reports whether the task will not change any more. A failed task with
// retries left is still in progress.
func (t Task) Done() bool {
	return t.Status == "succeeded" || (t.Status == "failed" && t.Attempts >= t.MaxRetries)
}

// HistoryRecord is one stored answer.
type HistoryRecord struct {
	ID         int64  `json:"id"`
	QueryID    string `json:"query_id"`
	Query      string `json:"query"`
	Normalized string `json:"normalized"`
	Answer     string `json:"answer"`
	Outcome    string `json:"outcome"`
	Pattern    string `json:"pattern,omitempty"`
	PlanKind   string `json:"plan_kind,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	Steps      int    `json:"steps"`
	DurationMS int64  `json:"duration_ms"`
	CreatedAt  int64  `json:"created_at"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("querychain api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("querychain api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the QueryChain API. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.New("querychain: base url must be absolute")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Answer asks a question synchronously.
func (c *Client) Answer(ctx context.Context, query string) (Answer, error) {
	var answer Answer
	if err := c.post(ctx, "/api/v1/answer", map[string]string{"query": query}, &answer); err != nil {
		return Answer{}, err
	}
	return answer, nil
}

// SubmitTask queues a question for asynchronous answering.
func (c *Client) SubmitTask(ctx context.Context, submission TaskSubmission) (Task, error) {
	var task Task
	if err := c.post(ctx, "/api/v1/tasks", submission, &task); err != nil {
		return Task{}, err
	}
	return task, nil
}

// GetTask fetches a task by identifier.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	var task Task
	if err := c.get(ctx, "/api/v1/tasks/"+url.PathEscape(taskID), nil, &task); err != nil {
		return Task{}, err
	}
	return task, nil
}

// WaitForTask polls GetTask every interval until the task is done or ctx
// expires.
func (c *Client) WaitForTask(ctx context.Context, taskID string, interval time.Duration) (Task, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		task, err := c.GetTask(ctx, taskID)
		if err != nil {
			return Task{}, err
		}
		if task.Done() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-ticker.C:
		}
	}
}

// History returns the most recent answers, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]HistoryRecord, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Records []HistoryRecord `json:"records"`
	}
	if err := c.get(ctx, "/api/v1/history", query, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// TaskFilter narrows ListTasks and TaskStats. Zero fields are ignored.
type TaskFilter struct {
	Statuses []string
	Outcomes []string
	Pattern  string
	Search   string
	Limit    int
	Offset   int
}

func (f TaskFilter) values() url.Values {
	query := url.Values{}
	if len(f.Statuses) > 0 {
		query.Set("status", strings.Join(f.Statuses, ","))
	}
	if len(f.Outcomes) > 0 {
		query.Set("outcome", strings.Join(f.Outcomes, ","))
	}
	if f.Pattern != "" {
		query.Set("pattern", f.Pattern)
	}
	if f.Search != "" {
		query.Set("q", f.Search)
	}
	if f.Limit > 0 {
		query.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		query.Set("offset", strconv.Itoa(f.Offset))
	}
	return query
}

// ListTasks returns tasks matching filter, most recently updated first.
func (c *Client) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	var resp struct {
		Tasks []Task `json:"tasks"`
	}
	if err := c.get(ctx, "/api/v1/tasks", filter.values(), &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// TaskStats summarises the tasks matching filter.
type TaskStats struct {
	Total     int            `json:"total"`
	Pending   int            `json:"pending"`
	Running   int            `json:"running"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Outcomes  map[string]int `json:"outcomes"`

	OldestUpdatedAt int64 `json:"oldest_updated_at"`
	NewestUpdatedAt int64 `json:"newest_updated_at"`
}

// Stats fetches task counts by status and outcome. Limit and Offset are ignored.
func (c *Client) Stats(ctx context.Context, filter TaskFilter) (TaskStats, error) {
	filter.Limit, filter.Offset = 0, 0
	var stats TaskStats
	err := c.get(ctx, "/api/v1/tasks/stats", filter.values(), &stats)
	return stats, err
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	if len(query) > 0 {
		rel.RawQuery = query.Encode()
	}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: apiErr})
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
