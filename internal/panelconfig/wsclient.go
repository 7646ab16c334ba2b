package panelconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/muurk/hubcfg/internal/logging"
	"github.com/muurk/hubcfg/internal/version"
)

// WSRequest is a command frame sent to /api/ws.
type WSRequest struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Name       Profile    `json:"name,omitempty"`
	EntityType EntityType `json:"entity_type,omitempty"`
	DeviceID   string     `json:"device_id,omitempty"`
	IsDynamic  *bool      `json:"is_dynamic,omitempty"`
}

// WSResponse answers a WSRequest with the same id.
type WSResponse struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *WSError        `json:"error,omitempty"`
}

// WSError describes a command that could not be processed.
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WebSocket error codes.
const (
	WSCodeUnknownCommand = "unknown_command"
	WSCodeInvalidFormat  = "invalid_format"
	WSCodeInternal       = "internal_error"
)

// WSClient is a Service over a single WebSocket connection. Requests are
// matched to responses by id, so several calls may be outstanding at once.
type WSClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan WSResponse
	closed  bool
	readErr error
	done    chan struct{}

	closeOnce sync.Once
}

var _ Service = (*WSClient)(nil)

// WSURL converts an http(s) service URL into its WebSocket endpoint.
func WSURL(serviceURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(serviceURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid service URL: %w", err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if !strings.HasSuffix(u.Path, "/api/ws") {
		u.Path += "/api/ws"
	}
	return u.String(), nil
}

// DialWS connects to the service's WebSocket endpoint.
func DialWS(ctx context.Context, serviceURL string) (*WSClient, error) {
	endpoint, err := WSURL(serviceURL)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: DefaultTimeout}
	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())

	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, NewNetworkError("websocket dial failed", err)
	}
	logging.LogConnection(endpoint, "websocket_connected")

	c := &WSClient{
		conn:    conn,
		pending: make(map[string]chan WSResponse),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close shuts the connection; outstanding calls fail.
func (c *WSClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
		<-c.done
	})
	return err
}

func (c *WSClient) readLoop() {
	defer close(c.done)
	for {
		var resp WSResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			c.failPending(err)
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.mu.Unlock()
		if !ok {
			logging.Debug("Dropping unmatched websocket response")
			continue
		}
		ch <- resp
	}
}

func (c *WSClient) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// call sends one command and waits for its response.
func (c *WSClient) call(ctx context.Context, req WSRequest) (WSResponse, error) {
	req.ID = uuid.NewString()
	ch := make(chan WSResponse, 1)

	c.mu.Lock()
	if c.closed {
		err := c.readErr
		c.mu.Unlock()
		return WSResponse{}, NewNetworkError("websocket connection closed", err)
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(req.ID)
		return WSResponse{}, NewNetworkError("websocket write failed", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return WSResponse{}, NewNetworkError("websocket connection closed", c.readErr)
		}
		if !resp.Success {
			return resp, wsError(resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		c.forget(req.ID)
		return WSResponse{}, NewNetworkError("request canceled", ctx.Err())
	}
}

func (c *WSClient) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func wsError(e *WSError) error {
	if e == nil {
		return NewHTTPError(http.StatusInternalServerError, "command failed without detail")
	}
	switch e.Code {
	case WSCodeUnknownCommand, WSCodeInvalidFormat:
		return NewHTTPError(http.StatusBadRequest, e.Message)
	default:
		return NewHTTPError(http.StatusInternalServerError, e.Message)
	}
}

// GetConfig fetches the current snapshot.
func (c *WSClient) GetConfig(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	resp, err := c.call(ctx, WSRequest{Type: OpGetConfig.CommandType()})
	if err == nil {
		var snap *Snapshot
		snap, err = DecodeSnapshot(resp.Result)
		if err == nil {
			logging.LogServiceCall(string(OpGetConfig), "", time.Since(start), nil)
			return snap, nil
		}
		err = NewParseError("failed to parse snapshot", err)
	}
	logging.LogServiceCall(string(OpGetConfig), "", time.Since(start), err)
	return nil, annotate(err, OpGetConfig, "")
}

// SwitchProfile asks the service to activate a profile.
func (c *WSClient) SwitchProfile(ctx context.Context, profile Profile) (bool, error) {
	return c.mutate(ctx, OpSwitchProfile, string(profile), WSRequest{Name: profile})
}

// Reload asks the service to re-read its sources.
func (c *WSClient) Reload(ctx context.Context) (bool, error) {
	return c.mutate(ctx, OpReload, "", WSRequest{})
}

// UpdateEntityTypeFlag sets the dynamic flag of an entity type.
func (c *WSClient) UpdateEntityTypeFlag(ctx context.Context, entityType EntityType, dynamic bool) (bool, error) {
	return c.mutate(ctx, OpUpdateEntityType, string(entityType), WSRequest{EntityType: entityType, IsDynamic: &dynamic})
}

// UpdateDeviceOverride creates or replaces a device override.
func (c *WSClient) UpdateDeviceOverride(ctx context.Context, deviceID string, dynamic bool) (bool, error) {
	return c.mutate(ctx, OpUpdateDeviceOverride, deviceID, WSRequest{DeviceID: deviceID, IsDynamic: &dynamic})
}

// RemoveDeviceOverride deletes a device override.
func (c *WSClient) RemoveDeviceOverride(ctx context.Context, deviceID string) (bool, error) {
	return c.mutate(ctx, OpRemoveDeviceOverride, deviceID, WSRequest{DeviceID: deviceID})
}

func (c *WSClient) mutate(ctx context.Context, op Op, target string, req WSRequest) (bool, error) {
	req.Type = op.CommandType()
	start := time.Now()
	resp, err := c.call(ctx, req)
	var ack bool
	if err == nil {
		if uerr := json.Unmarshal(resp.Result, &ack); uerr != nil {
			err = NewParseError("failed to parse acknowledgment", uerr)
		}
	}
	logging.LogServiceCall(string(op), target, time.Since(start), err)
	if err != nil {
		return false, annotate(err, op, target)
	}
	return ack, nil
}
