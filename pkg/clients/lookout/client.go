// Package lookout is a client for the lookout operator API.
package lookout

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

	"github.com/failsafe-go/failsafe-go"

	"frameworks/lookout/pkg/api/lookout"
	"frameworks/lookout/pkg/clients"
)

const apiPrefix = "/api/v1"

// APIError carries the status and, when the server sent one, its error text.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("lookout returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("lookout returned status: %d", e.StatusCode)
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
		client:       &http.Client{Timeout: 15 * time.Second},
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

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	resp, err := clients.ExecuteHTTP(ctx, c.httpExecutor, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.client.Do(req)
		if c.shouldRetry != nil && c.shouldRetry(resp, err) {
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
		}
		return resp, err
	})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var er lookout.ErrorResponse
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096)); readErr == nil && json.Unmarshal(data, &er) == nil {
			apiErr.Message = er.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Status fetches engine, speech and connection state.
func (c *Client) Status(ctx context.Context) (lookout.StatusResponse, error) {
	var out lookout.StatusResponse
	err := c.do(ctx, http.MethodGet, "/status", nil, nil, &out)
	return out, err
}

// Channels lists channels in display order.
func (c *Client) Channels(ctx context.Context) ([]lookout.ChannelStatus, error) {
	var out []lookout.ChannelStatus
	err := c.do(ctx, http.MethodGet, "/channels", nil, nil, &out)
	return out, err
}

// Overview counts channels by status.
func (c *Client) Overview(ctx context.Context) (lookout.OverviewStats, error) {
	var out lookout.OverviewStats
	err := c.do(ctx, http.MethodGet, "/overview", nil, nil, &out)
	return out, err
}

// Alerts lists alerts newest first. Zero values mean no filter.
func (c *Client) Alerts(ctx context.Context, status string, limit int) ([]lookout.Alert, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []lookout.Alert
	err := c.do(ctx, http.MethodGet, "/alerts", q, nil, &out)
	return out, err
}

// Ack acknowledges an alert through lookout.
func (c *Client) Ack(ctx context.Context, alertID int64) (lookout.AckResponse, error) {
	var out lookout.AckResponse
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/alerts/%d/ack", alertID), nil, nil, &out)
	return out, err
}

// SetSpeech flips the master mute and returns the resulting state.
func (c *Client) SetSpeech(ctx context.Context, enabled bool) (bool, error) {
	var out lookout.SpeechToggleResponse
	err := c.do(ctx, http.MethodPut, "/speech", nil, lookout.SpeechToggleRequest{Enabled: &enabled}, &out)
	return out.Enabled, err
}

// TestSpeech asks lookout to speak its self-test phrase.
func (c *Client) TestSpeech(ctx context.Context) (lookout.SpeechTestResponse, error) {
	var out lookout.SpeechTestResponse
	err := c.do(ctx, http.MethodPost, "/speech/test", nil, nil, &out)
	return out, err
}

// ResetSuppression clears the suppression table and reports how many
// entries were dropped.
func (c *Client) ResetSuppression(ctx context.Context) (int, error) {
	var out struct {
		Cleared int `json:"cleared"`
	}
	err := c.do(ctx, http.MethodPost, "/suppression/reset", nil, nil, &out)
	return out.Cleared, err
}
