package panelconfig

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

	"github.com/muurk/hubcfg/internal/logging"
	"github.com/muurk/hubcfg/internal/version"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 10 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for failed requests
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the default delay between retry attempts
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultMaxRetryDelay is the maximum delay for exponential backoff
	DefaultMaxRetryDelay = 10 * time.Second
)

// Client talks to the Configuration Service over its HTTP API.
type Client struct {
	// BaseURL is the service root (e.g., "http://192.168.1.20:8321")
	BaseURL string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// MaxRetries is the maximum number of retry attempts for retryable errors
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts
	RetryDelay time.Duration

	// MaxRetryDelay caps the exponential backoff
	MaxRetryDelay time.Duration

	// UseExponentialBackoff doubles the delay after each attempt
	UseExponentialBackoff bool
}

var _ Service = (*Client)(nil)

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:               strings.TrimRight(baseURL, "/"),
		HTTPClient:            &http.Client{Timeout: DefaultTimeout},
		MaxRetries:            DefaultMaxRetries,
		RetryDelay:            DefaultRetryDelay,
		MaxRetryDelay:         DefaultMaxRetryDelay,
		UseExponentialBackoff: true,
	}
}

// SetRetry configures retry behavior
func (c *Client) SetRetry(maxRetries int, retryDelay time.Duration) {
	c.MaxRetries = maxRetries
	c.RetryDelay = retryDelay
}

// Ping checks that the service answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

// GetConfig fetches the current snapshot.
func (c *Client) GetConfig(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	start := time.Now()
	err := c.withRetry(ctx, func() error {
		return c.do(ctx, http.MethodGet, "/api/config", nil, &snap)
	})
	logging.LogServiceCall(string(OpGetConfig), "", time.Since(start), err)
	if err != nil {
		return nil, annotate(err, OpGetConfig, "")
	}
	snap.normalize()
	return &snap, nil
}

// SwitchProfile asks the service to activate a profile.
func (c *Client) SwitchProfile(ctx context.Context, profile Profile) (bool, error) {
	return c.mutate(ctx, OpSwitchProfile, string(profile), http.MethodPost, "/api/config/profile", ProfileRequest{Name: profile})
}

// Reload asks the service to re-read its sources.
func (c *Client) Reload(ctx context.Context) (bool, error) {
	return c.mutate(ctx, OpReload, "", http.MethodPost, "/api/config/reload", nil)
}

// UpdateEntityTypeFlag sets the dynamic flag of an entity type.
func (c *Client) UpdateEntityTypeFlag(ctx context.Context, entityType EntityType, dynamic bool) (bool, error) {
	path := "/api/config/entity-types/" + url.PathEscape(string(entityType))
	return c.mutate(ctx, OpUpdateEntityType, string(entityType), http.MethodPut, path, FlagRequest{IsDynamic: dynamic})
}

// UpdateDeviceOverride creates or replaces a device override.
func (c *Client) UpdateDeviceOverride(ctx context.Context, deviceID string, dynamic bool) (bool, error) {
	path := "/api/config/overrides/" + url.PathEscape(deviceID)
	return c.mutate(ctx, OpUpdateDeviceOverride, deviceID, http.MethodPut, path, FlagRequest{IsDynamic: dynamic})
}

// RemoveDeviceOverride deletes a device override.
func (c *Client) RemoveDeviceOverride(ctx context.Context, deviceID string) (bool, error) {
	path := "/api/config/overrides/" + url.PathEscape(deviceID)
	return c.mutate(ctx, OpRemoveDeviceOverride, deviceID, http.MethodDelete, path, nil)
}

func (c *Client) mutate(ctx context.Context, op Op, target, method, path string, body any) (bool, error) {
	var ack AckResponse
	start := time.Now()
	err := c.withRetry(ctx, func() error {
		return c.do(ctx, method, path, body, &ack)
	})
	logging.LogServiceCall(string(op), target, time.Since(start), err)
	if err != nil {
		return false, annotate(err, op, target)
	}
	return ack.Success, nil
}

// withRetry runs attempt until it succeeds, fails with a non-retryable error,
// or the retry budget is spent.
func (c *Client) withRetry(ctx context.Context, attempt func() error) error {
	var lastErr error
	currentDelay := c.RetryDelay

	for i := 0; i <= c.MaxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return NewNetworkError("request canceled", ctx.Err())
			case <-time.After(currentDelay):
			}
			if c.UseExponentialBackoff {
				currentDelay *= 2
				if currentDelay > c.MaxRetryDelay {
					currentDelay = c.MaxRetryDelay
				}
			}
		}

		err := attempt()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
	}
	return lastErr
}

// do performs a single request. A nil out discards the response body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return NewParseError("failed to encode request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return NewNetworkError(fmt.Sprintf("failed to create %s request", method), err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return NewNetworkError(fmt.Sprintf("%s %s failed", method, path), err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewNetworkError("failed to read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := statusText(resp.StatusCode)
		var er ErrorResponse
		if json.Unmarshal(data, &er) == nil && er.Error != "" {
			msg = er.Error
		}
		return NewHTTPError(resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return NewParseError("failed to parse JSON response", err)
	}
	return nil
}

func annotate(err error, op Op, target string) error {
	if pe, ok := asPanelError(err); ok {
		return pe.WithOp(op, target)
	}
	return fmt.Errorf("%s: %w", op, err)
}
