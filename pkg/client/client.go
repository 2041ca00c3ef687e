// Package client is a Go client for the Hearth HTTP API.
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

	"github.com/muaviaUsmani/hearth/internal/automode"
	"github.com/muaviaUsmani/hearth/internal/event"
	"github.com/muaviaUsmani/hearth/internal/metrics"
	"github.com/muaviaUsmani/hearth/internal/status"
)

// Client provides a simple API for managing scheduled events and auto-mode
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// APIError is returned for any non-2xx response
type APIError struct {
	StatusCode int
	Label      string `json:"error"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("hearth api: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("hearth api: HTTP %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is an APIError for a missing resource
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// AutoModeStatus is the current auto-mode resolution
type AutoModeStatus struct {
	Enabled                bool                 `json:"enabled"`
	Mode                   automode.Mode        `json:"mode"`
	ActiveWindow           *automode.TimeWindow `json:"activeWindow,omitempty"`
	NextBoundary           string               `json:"nextBoundaryIso"`
	RecommendedPollSeconds int                  `json:"recommendedPollSeconds"`
}

// RunResult is the outcome of recording a run. Event is nil when a
// one-shot event was deleted.
type RunResult struct {
	Event   *event.Event `json:"event"`
	Deleted bool         `json:"deleted"`
}

// NewClient creates a client for the API served at baseURL
// (e.g. "http://localhost:8080").
func NewClient(baseURL string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}

	return &Client{
		baseURL: u,
		http:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// SetHTTPClient replaces the underlying HTTP client
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.http = hc
}

// CreateEvent schedules a new event. A nil recurring means recurring.
func (c *Client) CreateEvent(ctx context.Context, req event.CreateRequest) (*event.Event, error) {
	var ev event.Event
	if err := c.do(ctx, http.MethodPost, "/events", nil, req, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// ListEvents returns every scheduled event
func (c *Client) ListEvents(ctx context.Context) ([]*event.Event, error) {
	var resp struct {
		Events     []*event.Event `json:"events"`
		TotalCount int            `json:"totalCount"`
	}
	if err := c.do(ctx, http.MethodGet, "/events", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// GetEvent retrieves one event by ID
func (c *Client) GetEvent(ctx context.Context, id string) (*event.Event, error) {
	var ev event.Event
	if err := c.do(ctx, http.MethodGet, "/events/"+url.PathEscape(id), nil, nil, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// CancelEvent deletes an event
func (c *Client) CancelEvent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/events/"+url.PathEscape(id), nil, nil, nil)
}

// RecordRun reports an execution of the event. A zero executedAt means
// the server's current time.
func (c *Client) RecordRun(ctx context.Context, id string, executedAt time.Time) (*RunResult, error) {
	body := map[string]string{}
	if !executedAt.IsZero() {
		iso, err := event.FormatISO(executedAt)
		if err != nil {
			return nil, err
		}
		body["executedAtIso"] = iso
	}

	var res RunResult
	if err := c.do(ctx, http.MethodPost, "/events/"+url.PathEscape(id)+"/runs", nil, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Status returns the engine health report
func (c *Client) Status(ctx context.Context, forceRefresh bool) (*status.Report, error) {
	q := url.Values{}
	if forceRefresh {
		q.Set("forceRefresh", "true")
	}
	var r status.Report
	if err := c.do(ctx, http.MethodGet, "/status", q, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// AutoMode returns the mode in effect now
func (c *Client) AutoMode(ctx context.Context) (*AutoModeStatus, error) {
	var st AutoModeStatus
	if err := c.do(ctx, http.MethodGet, "/automode", nil, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// AutoModeConfig returns the active auto-mode config
func (c *Client) AutoModeConfig(ctx context.Context) (*automode.Config, error) {
	var cfg automode.Config
	if err := c.do(ctx, http.MethodGet, "/automode/config", nil, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpdateAutoModeConfig replaces the auto-mode config and returns it as
// applied, with defaults filled in
func (c *Client) UpdateAutoModeConfig(ctx context.Context, cfg *automode.Config) (*automode.Config, error) {
	var applied automode.Config
	if err := c.do(ctx, http.MethodPut, "/automode/config", nil, cfg, &applied); err != nil {
		return nil, err
	}
	return &applied, nil
}

// Calendar returns the iCalendar feed of runs in the next days days
func (c *Client) Calendar(ctx context.Context, days int) ([]byte, error) {
	q := url.Values{}
	if days > 0 {
		q.Set("days", strconv.Itoa(days))
	}
	resp, err := c.send(ctx, http.MethodGet, "/events/calendar.ics", q, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Metrics returns the API process's counters
func (c *Client) Metrics(ctx context.Context) (*metrics.Metrics, error) {
	var m metrics.Metrics
	if err := c.do(ctx, http.MethodGet, "/metrics", nil, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Health returns nil when the API and its store are reachable
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	resp, err := c.send(ctx, method, path, query, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// send performs the request and converts non-2xx responses into *APIError
func (c *Client) send(ctx context.Context, method, path string, query url.Values, in interface{}) (*http.Response, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(data, apiErr) != nil {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		apiErr.StatusCode = resp.StatusCode
		return nil, apiErr
	}
	return resp, nil
}
