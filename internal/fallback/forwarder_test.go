package fallback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hubCall struct {
	path  string
	query url.Values
}

func fakeHub(t *testing.T, status int, body string) (*httptest.Server, *[]hubCall) {
	t.Helper()
	var calls []hubCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, hubCall{path: r.URL.Path, query: r.URL.Query()})
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func hostOf(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestForward_Success(t *testing.T) {
	hub, calls := fakeHub(t, http.StatusOK, `{"success": 1}`)
	f := New(Config{HubHost: hostOf(hub), APIUser: "user", APISecret: "secret"})

	res := f.Forward(context.Background(), Request{DeviceID: "1269454", Value: "42"})

	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, `{"success": 1}`, string(res.Body))
	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "/api/set", call.path)
	assert.Equal(t, "periph.value", call.query.Get("action"))
	assert.Equal(t, "1269454", call.query.Get("periph_id"))
	assert.Equal(t, "42", call.query.Get("value"))
	assert.Equal(t, "user", call.query.Get("api_user"))
	assert.Equal(t, "secret", call.query.Get("api_secret"))
}

func TestForward_MissingArgument(t *testing.T) {
	f := New(Config{HubHost: "hub.local", APIUser: "u", APISecret: "s"})

	res := f.Forward(context.Background(), Request{DeviceID: "1"})
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "Argument manquant ou invalide : value", string(res.Body))

	res = f.Forward(context.Background(), Request{Value: "1"})
	assert.Equal(t, "Argument manquant ou invalide : device_id", string(res.Body))
}

func TestForward_MissingCredentials(t *testing.T) {
	f := New(Config{})

	res := f.Forward(context.Background(), Request{DeviceID: "1", Value: "1"})
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, MissingArgument("api_host"), string(res.Body))
}

func TestForward_RequestCredentialsWin(t *testing.T) {
	hub, calls := fakeHub(t, http.StatusOK, "ok")
	f := New(Config{HubHost: "unused.invalid", APIUser: "cfg", APISecret: "cfg"})

	res := f.Forward(context.Background(), Request{
		DeviceID: "1", Value: "1",
		HubHost: hostOf(hub), APIUser: "req", APISecret: "req-secret",
	})

	assert.Equal(t, http.StatusOK, res.Status)
	require.Len(t, *calls, 1)
	assert.Equal(t, "req", (*calls)[0].query.Get("api_user"))
}

func TestForward_HubStatusPassedThrough(t *testing.T) {
	hub, _ := fakeHub(t, http.StatusForbidden, "denied")
	f := New(Config{HubHost: hostOf(hub), APIUser: "u", APISecret: "s"})

	res := f.Forward(context.Background(), Request{DeviceID: "1", Value: "1"})

	assert.Equal(t, http.StatusForbidden, res.Status)
	assert.JSONEq(t, `{"success": 0, "error": "HTTP 403"}`, string(res.Body))
}

func TestForward_HubUnreachable(t *testing.T) {
	hub, _ := fakeHub(t, http.StatusOK, "")
	host := hostOf(hub)
	hub.Close()

	f := New(Config{HubHost: host, APIUser: "u", APISecret: "s"})
	res := f.Forward(context.Background(), Request{DeviceID: "1", Value: "1"})

	assert.Equal(t, http.StatusBadGateway, res.Status)
	assert.Contains(t, string(res.Body), `"success": 0`)
}

func TestTransform(t *testing.T) {
	f := New(Config{
		Remap: map[string]map[string]string{"10": {"on": "100", "off": "0"}},
		Clamp: []string{"10", "20"},
	})

	tests := []struct {
		id, in, want string
	}{
		{"10", "on", "100"},
		{"10", "off", "0"},
		{"10", "55", "55"},
		{"20", "140", "100"},
		{"20", "-3", "0"},
		{"20", "warm", "warm"},
		{"30", "140", "140"},
	}
	for _, tt := range tests {
		t.Run(tt.id+"/"+tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Transform(tt.id, tt.in))
		})
	}
}

func TestForward_RateLimitHonoursContext(t *testing.T) {
	hub, _ := fakeHub(t, http.StatusOK, "ok")
	f := New(Config{HubHost: hostOf(hub), APIUser: "u", APISecret: "s", Rate: 0.001, Burst: 1})

	first := f.Forward(context.Background(), Request{DeviceID: "1", Value: "1"})
	require.Equal(t, http.StatusOK, first.Status)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	second := f.Forward(ctx, Request{DeviceID: "1", Value: "1"})
	assert.Equal(t, http.StatusTooManyRequests, second.Status)
}

func TestFailurePayload(t *testing.T) {
	assert.Equal(t, `{"success": 0, "error": "HTTP 500"}`, string(FailurePayload("HTTP 500")))
	assert.JSONEq(t, `{"success": 0, "error": "say \"hi\""}`, string(FailurePayload(`say "hi"`)))
}
