package tasklinesdk

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

// Client is a minimal Taskline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model (partial).
type Task struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Status     string   `json:"status"`
	Priority   string   `json:"priority"`
	Tags       []string `json:"tags,omitempty"`
	Due        *string  `json:"due,omitempty"`
	OwnerID    string   `json:"owner_id"`
	AssigneeID *string  `json:"assignee_id,omitempty"`
}

// Comment represents a task comment.
type Comment struct {
	ID       string   `json:"id"`
	TaskID   string   `json:"task_id"`
	AuthorID string   `json:"author_id"`
	Content  string   `json:"content"`
	Mentions []string `json:"mentions,omitempty"`
}

// Rule represents an automation rule.
type Rule struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Trigger        string `json:"trigger"`
	IsActive       bool   `json:"is_active"`
	ExecutionCount int64  `json:"execution_count"`
}

// Webhook represents a registered endpoint. Secret is only present in the
// create response.
type Webhook struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	URL          string   `json:"url"`
	Secret       string   `json:"secret,omitempty"`
	Events       []string `json:"events"`
	IsActive     bool     `json:"is_active"`
	SuccessCount int64    `json:"success_count"`
	FailureCount int64    `json:"failure_count"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Kind       string `json:"kind"`
	ResourceID string `json:"resource_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
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
func (c *Client) CreateTask(ctx context.Context, title, priority string) (Task, error) {
	body := map[string]any{"title": title}
	if priority != "" {
		body["priority"] = priority
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "v0/tasks", body, &resp)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/tasks/%s", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// UpdateTask patches task fields.
func (c *Client) UpdateTask(ctx context.Context, id string, fields map[string]any) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("v0/tasks/%s", url.PathEscape(id)), fields, &resp)
	return resp, err
}

// AddComment adds a comment to a task.
func (c *Client) AddComment(ctx context.Context, taskID, content string) (Comment, error) {
	var resp Comment
	endpoint := fmt.Sprintf("v0/tasks/%s/comments", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"content": content}, &resp)
	return resp, err
}

// CreateRule registers an automation rule.
func (c *Client) CreateRule(ctx context.Context, name, trigger string, conditions, actions []map[string]any) (Rule, error) {
	body := map[string]any{
		"name":       name,
		"trigger":    trigger,
		"conditions": conditions,
		"actions":    actions,
	}
	var resp Rule
	err := c.do(ctx, http.MethodPost, "v0/rules", body, &resp)
	return resp, err
}

// CreateWebhook registers a webhook; the response carries the signing secret.
func (c *Client) CreateWebhook(ctx context.Context, name, endpoint string, events []string) (Webhook, error) {
	body := map[string]any{
		"name":   name,
		"url":    endpoint,
		"events": events,
	}
	var resp Webhook
	err := c.do(ctx, http.MethodPost, "v0/webhooks", body, &resp)
	return resp, err
}

// Events returns event log entries after the cursor.
func (c *Client) Events(ctx context.Context, after int64, kind string) ([]Event, error) {
	endpoint := fmt.Sprintf("v0/events?after=%d", after)
	if kind != "" {
		endpoint += "&kind=" + url.QueryEscape(kind)
	}
	var resp struct {
		Events []Event `json:"events"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Events, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
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
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
