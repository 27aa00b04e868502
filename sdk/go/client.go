package tasksmssdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal task API client.
type Client struct {
	BaseURL     string
	BasePath    string
	ActorID     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/api",
		Timeout:  10 * time.Second,
	}
}

// Task is the API task resource. Fields absent from the requested projection are empty.
type Task struct {
	GUID        string    `json:"guid"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedOn   string    `json:"created_on,omitempty"`
	ModifiedBy  string    `json:"modified_by,omitempty"`
	ModifiedOn  string    `json:"modified_on,omitempty"`
	Groups      []string  `json:"groups,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	History     []History `json:"history,omitempty"`
}

// History is one audit row.
type History struct {
	ID         int64          `json:"id"`
	EntityType string         `json:"entity_type"`
	EntityGUID string         `json:"entity_guid,omitempty"`
	EventType  string         `json:"event_type"`
	CreatedBy  string         `json:"created_by"`
	CreatedOn  string         `json:"created_on"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// NewTask is the create request body.
type NewTask struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Groups      []string `json:"groups,omitempty"`
}

// PatchOp is one RFC 6902 operation.
type PatchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	From  string `json:"from,omitempty"`
	Value any    `json:"value,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, in NewTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "task", "", in, &resp)
	return resp, err
}

// ListTasks returns every task in summary shape.
func (c *Client) ListTasks(ctx context.Context) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, "task", "", nil, &resp)
	return resp, err
}

// GetTask fetches one task; projection may be empty for the server default.
func (c *Client) GetTask(ctx context.Context, guid, projection string) (Task, error) {
	endpoint := "task/" + url.PathEscape(guid)
	if projection != "" {
		endpoint += "?projection=" + url.QueryEscape(projection)
	}
	var resp Task
	err := c.do(ctx, http.MethodGet, endpoint, "", nil, &resp)
	return resp, err
}

// PatchTask applies a JSON Patch document.
func (c *Client) PatchTask(ctx context.Context, guid string, ops []PatchOp) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, "task/"+url.PathEscape(guid), "application/json-patch+json", ops, &resp)
	return resp, err
}

func (c *Client) DeleteTask(ctx context.Context, guid string) error {
	return c.do(ctx, http.MethodDelete, "task/"+url.PathEscape(guid), "", nil, nil)
}

// TaskHistory returns the audit trail, which outlives the task.
func (c *Client) TaskHistory(ctx context.Context, guid string) ([]History, error) {
	var resp []History
	err := c.do(ctx, http.MethodGet, "task/"+url.PathEscape(guid)+"/history", "", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint, contentType string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/json"
	}
	req.Header.Set("Content-Type", contentType)
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
