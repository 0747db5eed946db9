// Package api is the HTTP client for the budget server's event and settings
// endpoints. All calls carry bounded timeouts so a dead network fails the
// sync cycle quickly instead of hanging it.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/daehokim/teambudget/internal/event"
)

const requestTimeout = 5 * time.Second

// APIError is a response the server produced: the request arrived and was
// rejected. Transport failures (timeouts, refused connections) surface as
// ordinary errors instead.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server rejected request (%d): %s", e.StatusCode, e.Message)
}

// SyncResponse is the server's answer to a sync-since query.
type SyncResponse struct {
	Events         []event.BudgetEvent `json:"events"`
	LatestSequence int64               `json:"latestSequence"`
	NeedsFullSync  bool                `json:"needsFullSync"`
}

// TeamSettings mirrors the server's settings document.
type TeamSettings struct {
	DefaultMonthlyBudget int64             `json:"defaultMonthlyBudget"`
	Values               map[string]string `json:"values"`
}

// Client talks to the budget server API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates an API client. token may be empty for unauthenticated
// deployments.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// CreateEvent submits one event for sequence assignment. The returned event
// carries the server-assigned sequence and authoritative creation time.
func (c *Client) CreateEvent(ctx context.Context, payload event.CreatePayload) (*event.BudgetEvent, error) {
	var created event.BudgetEvent
	if err := c.do(ctx, http.MethodPost, "/api/v1/events", payload, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// SyncSince fetches every event with sequence strictly greater than since.
func (c *Client) SyncSince(ctx context.Context, since int64) (*SyncResponse, error) {
	path := "/api/v1/events/sync?since=" + strconv.FormatInt(since, 10)
	var resp SyncResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSettings fetches the authoritative team settings.
func (c *Client) GetSettings(ctx context.Context) (*TeamSettings, error) {
	var settings TeamSettings
	if err := c.do(ctx, http.MethodGet, "/api/v1/settings", nil, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// FetchDefaultMonthlyBudget returns the server's configured default monthly
// budget amount.
func (c *Client) FetchDefaultMonthlyBudget(ctx context.Context) (int64, error) {
	settings, err := c.GetSettings(ctx)
	if err != nil {
		return 0, err
	}
	return settings.DefaultMonthlyBudget, nil
}

// BulkCreateEvents re-imports a full local log after the server signalled
// needsFullSync.
func (c *Client) BulkCreateEvents(ctx context.Context, payloads []event.CreatePayload) ([]event.BudgetEvent, error) {
	var created []event.BudgetEvent
	if err := c.do(ctx, http.MethodPost, "/api/v1/events/bulk", payloads, &created); err != nil {
		return nil, err
	}
	return created, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Message: decodeErrorMessage(resp.Body)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func decodeErrorMessage(body io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return "unreadable error body"
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return string(raw)
}

// BaseURL reports the configured server address, for log context.
func (c *Client) BaseURL() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL
	}
	return u.Host
}
