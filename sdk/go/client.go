package relaydesksdk

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

// Client is a minimal RelayDesk HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "v1",
		Timeout:  10 * time.Second,
	}
}

// Task represents the API task model.
type Task struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Description       string   `json:"description,omitempty"`
	Department        string   `json:"department"`
	SubmittedBy       string   `json:"submitted_by"`
	AssignedTeamLeads []string `json:"assigned_teamleads,omitempty"`
	AssignedEmployees []string `json:"assigned_employees,omitempty"`
	CreatedAt         string   `json:"created_at"`
}

// SharedTask represents a delegation record.
type SharedTask struct {
	ID                      string  `json:"id"`
	TaskID                  string  `json:"task_id"`
	SharedBy                *string `json:"shared_by,omitempty"`
	SharedManager           *string `json:"shared_manager,omitempty"`
	SharedTeamlead          *string `json:"shared_teamlead,omitempty"`
	SharedEmployee          *string `json:"shared_employee,omitempty"`
	SharedOperationTeamlead *string `json:"shared_operation_teamlead,omitempty"`
	SharedOperationEmployee *string `json:"shared_operation_employee,omitempty"`
	DelegationStatus        string  `json:"delegation_status"`
	VendorStatus            string  `json:"vendor_status"`
	MachineStatus           string  `json:"machine_status"`
	CreatedAt               string  `json:"created_at"`
	UpdatedAt               string  `json:"updated_at"`
}

// Participant is one member of a shared task's channel.
type Participant struct {
	IdentityKey string `json:"identity_key"`
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	Name        string `json:"name"`
	Department  string `json:"department,omitempty"`
}

// FeedbackEntry is one post on a shared task's thread.
type FeedbackEntry struct {
	ID          string  `json:"id"`
	SharedID    string  `json:"shared_id"`
	AuthorRef   string  `json:"author_ref"`
	AuthorRole  string  `json:"author_role"`
	Text        string  `json:"text"`
	SubmittedAt string  `json:"submitted_at"`
	EditedAt    *string `json:"edited_at,omitempty"`
	Replies     []Reply `json:"replies,omitempty"`
}

type Reply struct {
	ID         string `json:"id"`
	EntryID    string `json:"entry_id"`
	AuthorRef  string `json:"author_ref"`
	AuthorRole string `json:"author_role"`
	Text       string `json:"text"`
	RepliedAt  string `json:"replied_at"`
}

// Notification is one inbox entry.
type Notification struct {
	ID        string `json:"id"`
	FromID    string `json:"from_id"`
	ToID      string `json:"to_id"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Link      string `json:"link,omitempty"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

// APIError carries a non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("relaydesk: status %d: %s", e.StatusCode, e.Body)
}

// Login exchanges a directory email for a bearer token and stores it on the
// client.
func (c *Client) Login(ctx context.Context, email string) error {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "auth/login", map[string]any{"email": email}, &resp); err != nil {
		return err
	}
	c.BearerToken = resp.Token
	return nil
}

// SubmitTask submits an originating task.
func (c *Client) SubmitTask(ctx context.Context, title, department string) (Task, error) {
	body := map[string]any{
		"title":      title,
		"department": department,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", body, &resp)
	return resp, err
}

// ShareTask opens a delegation record over a task.
func (c *Client) ShareTask(ctx context.Context, taskID string) (SharedTask, error) {
	var resp SharedTask
	err := c.do(ctx, http.MethodPost, "shared", map[string]any{"task_id": taskID}, &resp)
	return resp, err
}

// Delegate sets a delegation-chain stage.
func (c *Client) Delegate(ctx context.Context, sharedID, stage, userID string) (SharedTask, error) {
	body := map[string]any{"stage": stage, "user_id": userID}
	var resp SharedTask
	endpoint := fmt.Sprintf("shared/%s/delegate", url.PathEscape(sharedID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// UpdateStatus updates one status axis.
func (c *Client) UpdateStatus(ctx context.Context, sharedID, axis, value string) (SharedTask, error) {
	body := map[string]any{"axis": axis, "value": value}
	var resp SharedTask
	endpoint := fmt.Sprintf("shared/%s/status", url.PathEscape(sharedID))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// Participants resolves the shared task's participant set.
func (c *Client) Participants(ctx context.Context, sharedID string) ([]Participant, error) {
	var resp []Participant
	endpoint := fmt.Sprintf("shared/%s/participants", url.PathEscape(sharedID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AddFeedback posts feedback on a shared task.
func (c *Client) AddFeedback(ctx context.Context, sharedID, text string) (FeedbackEntry, error) {
	var resp FeedbackEntry
	endpoint := fmt.Sprintf("shared/%s/feedback", url.PathEscape(sharedID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"text": text}, &resp)
	return resp, err
}

// ListFeedback returns the thread in submission order.
func (c *Client) ListFeedback(ctx context.Context, sharedID string) ([]FeedbackEntry, error) {
	var resp []FeedbackEntry
	endpoint := fmt.Sprintf("shared/%s/feedback", url.PathEscape(sharedID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Notifications lists the caller's inbox.
func (c *Client) Notifications(ctx context.Context, unreadOnly bool) ([]Notification, error) {
	endpoint := "notifications"
	if unreadOnly {
		endpoint += "?unread=true"
	}
	var resp []Notification
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	req, err := c.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	httpc := c.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: c.Timeout}
		c.HTTPClient = httpc
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	target := strings.TrimRight(c.BaseURL, "/") + "/" +
		strings.Trim(c.BasePath, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	return req, nil
}
