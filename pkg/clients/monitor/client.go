// Package monitor is a client for the channel monitor REST API.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"frameworks/lookout/pkg/api/lookout"
	"frameworks/lookout/pkg/clients"
)

// DefaultAlertLimit is how many alerts a snapshot asks for.
const DefaultAlertLimit = 200

type APIError struct {
	StatusCode int
	Path       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("monitor API %s returned status: %d", e.Path, e.StatusCode)
}

type Client struct {
	baseURL      string
	client       *http.Client
	httpExecutor failsafe.Executor[*http.Response]
	shouldRetry  func(resp *http.Response, err error) bool
}

type Option func(*Client)

func NewClient(baseURL string, opts ...Option) *Client {
	defaultConfig := clients.DefaultHTTPExecutorConfig()
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       &http.Client{Timeout: 10 * time.Second},
		httpExecutor: clients.NewHTTPExecutor(defaultConfig),
		shouldRetry:  defaultConfig.ShouldRetry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.client = httpClient
		}
	}
}

func WithHTTPExecutorConfig(cfg clients.HTTPExecutorConfig) Option {
	return func(c *Client) {
		c.httpExecutor = clients.NewHTTPExecutor(cfg)
		c.shouldRetry = cfg.ShouldRetry
		if c.shouldRetry == nil {
			c.shouldRetry = clients.DefaultShouldRetry
		}
	}
}

// BaseURL returns the API base the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) doRequest(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	return clients.ExecuteHTTP(ctx, c.httpExecutor, func() (*http.Response, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := c.client.Do(req)
		if c.shouldRetry != nil && c.shouldRetry(resp, err) {
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
		}
		return resp, err
	})
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	resp, err := c.doRequest(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Path: path}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// ListChannels fetches the snapshot of every enabled channel.
func (c *Client) ListChannels(ctx context.Context) ([]lookout.ChannelStatus, error) {
	var out []lookout.ChannelStatus
	if err := c.getJSON(ctx, "/api/v1/channels", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAlerts fetches recent alerts, newest first. An empty status means all.
func (c *Client) ListAlerts(ctx context.Context, status string, limit int) ([]lookout.Alert, error) {
	if limit <= 0 {
		limit = DefaultAlertLimit
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if status != "" {
		q.Set("status", status)
	}

	var out []lookout.Alert
	if err := c.getJSON(ctx, "/api/v1/alerts", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Overview fetches the server-side channel counts by status.
func (c *Client) Overview(ctx context.Context) (lookout.OverviewStats, error) {
	var out lookout.OverviewStats
	err := c.getJSON(ctx, "/api/v1/channels/stats/overview", nil, &out)
	return out, err
}

// AckAlert acknowledges an alert on the server.
func (c *Client) AckAlert(ctx context.Context, alertID int64) (lookout.AckResponse, error) {
	path := fmt.Sprintf("/api/v1/alerts/%d/ack", alertID)
	u := c.baseURL + path

	resp, err := c.doRequest(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader("{}"))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return lookout.AckResponse{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return lookout.AckResponse{}, &APIError{StatusCode: resp.StatusCode, Path: path}
	}

	var out lookout.AckResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return lookout.AckResponse{}, fmt.Errorf("decode ack response: %w", err)
	}
	return out, nil
}
