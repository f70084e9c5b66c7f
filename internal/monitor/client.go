package monitor

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

	api "github.com/fyrsmithlabs/runlogd/internal/http"
	"github.com/fyrsmithlabs/runlogd/internal/channel"
)

// Client calls the runlogd control API.
type Client struct {
	baseURL string
	client  *http.Client
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.Code, e.Body)
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// BaseURL returns the server URL.
func (c *Client) BaseURL() string {
	return c.baseURL
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
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func channelPath(key string) string {
	if key == "" {
		key = api.DefaultChannelAlias
	}
	return "/api/v1/channels/" + url.PathEscape(key)
}

// Health fetches /health.
func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var out api.HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

// Submit posts one event.
func (c *Client) Submit(ctx context.Context, req api.SubmitRequest) (api.SubmitResponse, error) {
	var out api.SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/events", req, &out)
	return out, err
}

// RecordLineage records parent as the spawner of child.
func (c *Client) RecordLineage(ctx context.Context, child, parent string) (bool, error) {
	var out api.LineageResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/lineage", api.LineageRequest{Child: child, Parent: parent}, &out)
	return out.Added, err
}

// Channels lists every live channel.
func (c *Client) Channels(ctx context.Context) (api.ChannelsResponse, error) {
	var out api.ChannelsResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/channels", nil, &out)
	return out, err
}

// Channel fetches one channel; the empty key addresses the default channel.
func (c *Client) Channel(ctx context.Context, key string) (channel.Snapshot, error) {
	var out channel.Snapshot
	err := c.do(ctx, http.MethodGet, channelPath(key), nil, &out)
	return out, err
}

// TestCase queries the channel's current test-case state.
func (c *Client) TestCase(ctx context.Context, key string) (channel.TestCaseState, error) {
	var out channel.TestCaseState
	err := c.do(ctx, http.MethodGet, channelPath(key)+"/testcase", nil, &out)
	return out, err
}

// TimeOffset sends the producer clock reading ts for key's channel.
func (c *Client) TimeOffset(ctx context.Context, key string, ts time.Time) (time.Duration, error) {
	var out api.TimeOffsetResponse
	err := c.do(ctx, http.MethodPost, channelPath(key)+"/time-offset", api.TimeOffsetRequest{Timestamp: ts}, &out)
	return time.Duration(out.OffsetMillis) * time.Millisecond, err
}

// Destroy closes one channel.
func (c *Client) Destroy(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodDelete, channelPath(key), nil, nil)
}

// Shutdown destroys every channel.
func (c *Client) Shutdown(ctx context.Context, wait bool) (api.ShutdownResponse, error) {
	var out api.ShutdownResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/shutdown?wait="+strconv.FormatBool(wait), nil, &out)
	return out, err
}
