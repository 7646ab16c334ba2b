package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/muurk/hubcfg/internal/logging"
	pc "github.com/muurk/hubcfg/internal/panelconfig"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// wsConn serialises writes on one connection.
type wsConn struct {
	conn       *websocket.Conn
	remoteAddr string
	mu         sync.Mutex
}

func (w *wsConn) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return w.conn.WriteJSON(v)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written an error response
		logging.Warn("WebSocket upgrade failed", zap.String("remote_addr", c.RealIP()), zap.Error(err))
		return nil
	}

	remoteAddr := conn.RemoteAddr().String()
	s.track(remoteAddr, conn)
	s.wg.Add(1)
	defer func() {
		_ = conn.Close()
		s.untrack(remoteAddr)
		s.wg.Done()
		logging.LogConnection(remoteAddr, "websocket_closed")
	}()
	logging.LogConnection(remoteAddr, "websocket_upgraded")

	ws := &wsConn{conn: conn, remoteAddr: remoteAddr}
	s.serveWebSocket(c.Request().Context(), ws)
	return nil
}

// serveWebSocket reads commands until the peer goes away. Each command is
// answered in its own goroutine so a slow service call does not block the
// rest of the connection.
func (s *Server) serveWebSocket(ctx context.Context, ws *wsConn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ws.conn.SetReadLimit(maxMessageSize)
	_ = ws.conn.SetReadDeadline(time.Now().Add(pongWait))
	ws.conn.SetPongHandler(func(string) error {
		return ws.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ws.ping(); err != nil {
					return
				}
			}
		}
	}()

	var calls sync.WaitGroup
	defer calls.Wait()

	for {
		msgType, data, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Info("Connection closed with error",
					zap.String("remote_addr", ws.remoteAddr),
					zap.Error(err),
				)
			}
			return
		}
		logging.LogWebSocketMessage(ws.remoteAddr, "received", messageTypeName(msgType), len(data))

		var req pc.WSRequest
		if err := json.Unmarshal(data, &req); err != nil {
			s.reply(ws, failure("", pc.WSCodeInvalidFormat, "message is not valid JSON"))
			continue
		}

		calls.Add(1)
		go func() {
			defer calls.Done()
			s.reply(ws, s.dispatch(ctx, req))
		}()
	}
}

func (s *Server) reply(ws *wsConn, resp pc.WSResponse) {
	if err := ws.writeJSON(resp); err != nil {
		logging.Warn("Failed to send response",
			zap.String("remote_addr", ws.remoteAddr),
			zap.Error(err),
		)
		return
	}
	logging.LogWebSocketMessage(ws.remoteAddr, "sent", resp.Type, 0)
}

// dispatch runs one command against the service.
func (s *Server) dispatch(ctx context.Context, req pc.WSRequest) pc.WSResponse {
	var (
		result any
		err    error
	)

	switch req.Type {
	case pc.OpGetConfig.CommandType():
		result, err = s.service.GetConfig(ctx)

	case pc.OpSwitchProfile.CommandType():
		if req.Name == "" {
			return failure(req.ID, pc.WSCodeInvalidFormat, "missing name")
		}
		result, err = s.service.SwitchProfile(ctx, req.Name)

	case pc.OpReload.CommandType():
		result, err = s.service.Reload(ctx)

	case pc.OpUpdateEntityType.CommandType():
		if req.EntityType == "" || req.IsDynamic == nil {
			return failure(req.ID, pc.WSCodeInvalidFormat, "entity_type and is_dynamic are required")
		}
		result, err = s.service.UpdateEntityTypeFlag(ctx, req.EntityType, *req.IsDynamic)

	case pc.OpUpdateDeviceOverride.CommandType():
		if req.DeviceID == "" || req.IsDynamic == nil {
			return failure(req.ID, pc.WSCodeInvalidFormat, "device_id and is_dynamic are required")
		}
		result, err = s.service.UpdateDeviceOverride(ctx, req.DeviceID, *req.IsDynamic)

	case pc.OpRemoveDeviceOverride.CommandType():
		if req.DeviceID == "" {
			return failure(req.ID, pc.WSCodeInvalidFormat, "device_id is required")
		}
		result, err = s.service.RemoveDeviceOverride(ctx, req.DeviceID)

	default:
		return failure(req.ID, pc.WSCodeUnknownCommand, fmt.Sprintf("unknown command %q", req.Type))
	}

	if err != nil {
		logging.Error("Command failed", zap.String("type", req.Type), zap.Error(err))
		return failure(req.ID, pc.WSCodeInternal, err.Error())
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return failure(req.ID, pc.WSCodeInternal, err.Error())
	}
	return pc.WSResponse{ID: req.ID, Type: "result", Success: true, Result: raw}
}

func failure(id, code, msg string) pc.WSResponse {
	return pc.WSResponse{
		ID:    id,
		Type:  "result",
		Error: &pc.WSError{Code: code, Message: msg},
	}
}

func messageTypeName(t int) string {
	switch t {
	case websocket.TextMessage:
		return "text"
	case websocket.BinaryMessage:
		return "binary"
	default:
		return fmt.Sprintf("type-%d", t)
	}
}
