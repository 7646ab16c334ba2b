package panelconfig

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeWSService answers every frame with handler's response.
func fakeWSService(t *testing.T, handler func(WSRequest) WSResponse) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ws" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req WSRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			resp := handler(req)
			resp.ID = req.ID
			resp.Type = "result"
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}))
}

func TestWSURL(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"http://host:8321", "ws://host:8321/api/ws", false},
		{"https://host/", "wss://host/api/ws", false},
		{"ws://host/api/ws", "ws://host/api/ws", false},
		{"ftp://host", "", true},
	}
	for _, tt := range tests {
		got, err := WSURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("WSURL(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("WSURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWSClient_RoundTrip(t *testing.T) {
	var lastReq WSRequest
	server := fakeWSService(t, func(req WSRequest) WSResponse {
		lastReq = req
		switch req.Type {
		case OpGetConfig.CommandType():
			return WSResponse{Success: true, Result: json.RawMessage(sampleSnapshot)}
		case OpUpdateDeviceOverride.CommandType():
			return WSResponse{Success: true, Result: json.RawMessage("true")}
		case OpRemoveDeviceOverride.CommandType():
			return WSResponse{Success: true, Result: json.RawMessage("false")}
		default:
			return WSResponse{Error: &WSError{Code: WSCodeUnknownCommand, Message: "unknown"}}
		}
	})
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := DialWS(ctx, server.URL)
	if err != nil {
		t.Fatalf("DialWS() error = %v", err)
	}
	defer c.Close()

	snap, err := c.GetConfig(ctx)
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	if len(snap.Devices) != 3 {
		t.Errorf("len(Devices) = %d, want 3", len(snap.Devices))
	}

	ok, err := c.UpdateDeviceOverride(ctx, "9001", true)
	if err != nil || !ok {
		t.Errorf("UpdateDeviceOverride() = %v, %v; want true, nil", ok, err)
	}
	if lastReq.DeviceID != "9001" || lastReq.IsDynamic == nil || !*lastReq.IsDynamic {
		t.Errorf("request = %+v, want device 9001 with is_dynamic=true", lastReq)
	}
	if lastReq.ID == "" {
		t.Error("request id should be set")
	}

	ok, err = c.RemoveDeviceOverride(ctx, "9001")
	if err != nil || ok {
		t.Errorf("RemoveDeviceOverride() = %v, %v; want false, nil", ok, err)
	}

	_, err = c.Reload(ctx)
	if !IsOperationRejected(err) {
		t.Errorf("Reload() error = %v, want OperationRejected", err)
	}
}

func TestWSClient_ClosedConnection(t *testing.T) {
	server := fakeWSService(t, func(req WSRequest) WSResponse {
		return WSResponse{Success: true, Result: json.RawMessage("true")}
	})
	defer server.Close()

	c, err := DialWS(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("DialWS() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Logf("Close() = %v", err)
	}

	_, err = c.Reload(context.Background())
	if !IsServiceUnreachable(err) {
		t.Errorf("Reload() after Close error = %v, want ServiceUnreachable", err)
	}
}
