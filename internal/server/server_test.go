package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/hubcfg/internal/fallback"
	"github.com/muurk/hubcfg/internal/panelconfig"
	"github.com/muurk/hubcfg/internal/profilestore"
)

const inventory = `devices:
  - periph_id: "100"
    name: Lamp
    ha_entity: light.kitchen
    usage_id: 1
  - periph_id: "200"
    name: Fan
    ha_entity: switch.fan
    usage_id: 2
`

func newTestServer(t *testing.T, cfg *Config) (*httptest.Server, *profilestore.Store) {
	t.Helper()
	return newTestServerWithDevices(t, cfg, inventory)
}

func newTestServerWithDevices(t *testing.T, cfg *Config, devices string) (*httptest.Server, *profilestore.Store) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, profilestore.InventoryFile), []byte(devices), 0o644))
	store, err := profilestore.Open(dir)
	require.NoError(t, err)

	if cfg == nil {
		cfg = &Config{}
	}
	s, err := New(cfg, store)
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func request(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestNew_NilService(t *testing.T) {
	_, err := New(&Config{}, nil)
	assert.Error(t, err)
}

func TestHTTP_Health(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	status, body := request(t, http.MethodGet, ts.URL+"/api/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"status":"ok"`)
}

func TestHTTP_GetConfig(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	status, body := request(t, http.MethodGet, ts.URL+"/api/config", "")
	require.Equal(t, http.StatusOK, status)

	snap, err := panelconfig.DecodeSnapshot([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, panelconfig.ProfileDefault, snap.ActiveProfile)
	assert.Len(t, snap.Devices, 2)
}

func TestHTTP_GetConfig_NonCanonicalCategory(t *testing.T) {
	ts, _ := newTestServerWithDevices(t, nil, `devices:
  - periph_id: "300"
    name: Boiler
    ha_entity: sensor.boiler
    usage_id: "007"
  - periph_id: "400"
    name: Blind
    ha_entity: cover.blind
    usage_id: "+5"
`)

	status, body := request(t, http.MethodGet, ts.URL+"/api/config", "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, json.Valid([]byte(body)))
	assert.Contains(t, body, `"usage_id":"007"`)

	snap, err := panelconfig.DecodeSnapshot([]byte(body))
	require.NoError(t, err)
	require.Len(t, snap.Devices, 2)
	assert.Equal(t, panelconfig.CategoryID("007"), snap.Devices[0].CategoryID)
	assert.Equal(t, panelconfig.CategoryID("+5"), snap.Devices[1].CategoryID)
}

func TestHTTP_Mutations(t *testing.T) {
	ts, store := newTestServer(t, nil)
	ctx := context.Background()

	status, body := request(t, http.MethodPut, ts.URL+"/api/config/overrides/200", `{"is_dynamic": false}`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"success": true}`, body)

	status, body = request(t, http.MethodPut, ts.URL+"/api/config/entity-types/sensor", `{"is_dynamic": true}`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"success": true}`, body)

	snap, _ := store.GetConfig(ctx)
	assert.Equal(t, map[string]bool{"200": false}, snap.DeviceOverrides)
	assert.True(t, snap.EntityTypeFlags[panelconfig.EntitySensor])

	status, body = request(t, http.MethodDelete, ts.URL+"/api/config/overrides/200", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"success": true}`, body)

	status, body = request(t, http.MethodDelete, ts.URL+"/api/config/overrides/200", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"success": false}`, body, "nothing left to remove")
}

func TestHTTP_SwitchProfileAndReload(t *testing.T) {
	ts, store := newTestServer(t, nil)

	status, body := request(t, http.MethodPost, ts.URL+"/api/config/profile", `{"name": "custom"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"success": true}`, body)

	status, body = request(t, http.MethodPost, ts.URL+"/api/config/profile", `{"name": "legacy"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"success": false}`, body)

	snap, _ := store.GetConfig(context.Background())
	assert.Equal(t, panelconfig.ProfileCustom, snap.ActiveProfile)

	status, body = request(t, http.MethodPost, ts.URL+"/api/config/reload", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"success": true}`, body)
}

func TestHTTP_BadRequests(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"missing profile name", http.MethodPost, "/api/config/profile", `{}`},
		{"broken json", http.MethodPut, "/api/config/overrides/100", `{"is_dynamic":`},
		{"missing flag", http.MethodPut, "/api/config/entity-types/light", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := request(t, tt.method, ts.URL+tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)

			var er panelconfig.ErrorResponse
			require.NoError(t, json.Unmarshal([]byte(body), &er))
			assert.NotEmpty(t, er.Error)
		})
	}
}

func TestHTTP_UnknownRoute(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	status, body := request(t, http.MethodGet, ts.URL+"/api/nope", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body, `"error"`)
}

func TestHTTP_ClientRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	ctx := context.Background()
	client := panelconfig.NewClient(ts.URL)

	require.NoError(t, client.Ping(ctx))

	ok, err := client.UpdateDeviceOverride(ctx, "100", false)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.UpdateEntityTypeFlag(ctx, "vacuum", true)
	require.NoError(t, err)
	assert.False(t, ok, "unknown entity type is declined")

	snap, err := client.GetConfig(ctx)
	require.NoError(t, err)
	assert.True(t, snap.IsOverridden("100"))
	assert.False(t, snap.EffectiveDynamic(snap.Devices[0]))
}

func TestWebSocket_ClientRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := panelconfig.DialWS(ctx, ts.URL)
	require.NoError(t, err)
	defer client.Close()

	ok, err := client.SwitchProfile(ctx, panelconfig.ProfileCustom)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.UpdateDeviceOverride(ctx, "200", false)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.RemoveDeviceOverride(ctx, "999")
	require.NoError(t, err)
	assert.False(t, ok)

	snap, err := client.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, panelconfig.ProfileCustom, snap.ActiveProfile)
	assert.Equal(t, map[string]bool{"200": false}, snap.DeviceOverrides)
}

func TestWebSocket_Errors(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	wsURL, err := panelconfig.WSURL(ts.URL)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	send := func(raw string) panelconfig.WSResponse {
		t.Helper()
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
		var resp panelconfig.WSResponse
		require.NoError(t, conn.ReadJSON(&resp))
		return resp
	}

	resp := send(`{"id": "1", "type": "hubcfg/explode"}`)
	assert.Equal(t, "1", resp.ID)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, panelconfig.WSCodeUnknownCommand, resp.Error.Code)

	resp = send(`{"id": "2", "type": "hubcfg/update_device_override", "device_id": "100"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, panelconfig.WSCodeInvalidFormat, resp.Error.Code)

	resp = send(`not json`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, panelconfig.WSCodeInvalidFormat, resp.Error.Code)

	resp = send(`{"id": "3", "type": "hubcfg/reload"}`)
	assert.True(t, resp.Success)
	assert.JSONEq(t, `true`, string(resp.Result))
}

func TestFallbackRoute(t *testing.T) {
	var gotQuery string
	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"success": 1}`))
	}))
	defer hub.Close()

	ts, _ := newTestServer(t, &Config{Fallback: &fallback.Config{
		HubHost:   strings.TrimPrefix(hub.URL, "http://"),
		APIUser:   "u",
		APISecret: "s",
	}})

	status, body := request(t, http.MethodGet, ts.URL+"/fallback?device_id=100&value=55", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, `{"success": 1}`, body)
	assert.Contains(t, gotQuery, "periph_id=100")
	assert.Contains(t, gotQuery, "value=55")

	status, body = request(t, http.MethodGet, ts.URL+"/fallback?device_id=100", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Argument manquant ou invalide : value", body)
}

func TestFallbackRoute_DisabledByDefault(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	status, _ := request(t, http.MethodGet, ts.URL+"/fallback?device_id=1&value=1", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_StartAndCancel(t *testing.T) {
	dir := t.TempDir()
	store, err := profilestore.Open(dir)
	require.NoError(t, err)

	s, err := New(&Config{Host: "127.0.0.1", Port: 0}, store)
	require.NoError(t, err)
	s.config.Port = freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + s.Addr() + "/api/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Equal(t, 0, s.GetActiveConnections())
}

func freePort(t *testing.T) int {
	t.Helper()
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.Listener.Addr().(*net.TCPAddr)
	ts.Close()
	return addr.Port
}
