// Package fallback forwards raw device values to the hub's local set-value
// endpoint. It serves hub scripts that need to push a value for a device the
// bridge does not model, optionally remapping or clamping the value first.
package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/muurk/hubcfg/internal/logging"
)

const (
	// DefaultTimeout bounds one call to the hub.
	DefaultTimeout = 10 * time.Second

	// DefaultRate is the sustained number of forwards per second.
	DefaultRate = 5

	// DefaultBurst is the number of forwards allowed at once.
	DefaultBurst = 10
)

// Config configures a Forwarder. Hub credentials given here are used when the
// request does not carry its own.
type Config struct {
	HubHost   string
	APIUser   string
	APISecret string
	Timeout   time.Duration
	Rate      float64
	Burst     int

	// Remap maps device id to a table of incoming value to forwarded value.
	Remap map[string]map[string]string
	// Clamp lists device ids whose numeric values are limited to [0,100].
	Clamp []string
}

// Request is one value to forward.
type Request struct {
	DeviceID  string
	Value     string
	HubHost   string
	APIUser   string
	APISecret string
}

// Result is what goes back to the caller: the hub's body on success, a
// failure payload otherwise.
type Result struct {
	Status int
	Body   []byte
}

// Forwarder sends values to the hub.
type Forwarder struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	clamp   map[string]bool
}

// New creates a Forwarder with defaults filled in.
func New(cfg Config) *Forwarder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	clamp := make(map[string]bool, len(cfg.Clamp))
	for _, id := range cfg.Clamp {
		clamp[id] = true
	}
	return &Forwarder{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		clamp:   clamp,
	}
}

// MissingArgument is the 400 body for a required argument that is absent.
func MissingArgument(name string) string {
	return "Argument manquant ou invalide : " + name
}

// FailurePayload is the JSON body returned when the hub call fails.
func FailurePayload(msg string) []byte {
	quoted, _ := json.Marshal(msg)
	return []byte(fmt.Sprintf(`{"success": 0, "error": %s}`, quoted))
}

// Validate fills the hub settings from the config and reports the first
// missing argument.
func (f *Forwarder) Validate(req *Request) (missing string, ok bool) {
	if req.HubHost == "" {
		req.HubHost = f.cfg.HubHost
	}
	if req.APIUser == "" {
		req.APIUser = f.cfg.APIUser
	}
	if req.APISecret == "" {
		req.APISecret = f.cfg.APISecret
	}
	for _, arg := range []struct{ name, value string }{
		{"value", req.Value},
		{"device_id", req.DeviceID},
		{"api_host", req.HubHost},
		{"api_user", req.APIUser},
		{"api_secret", req.APISecret},
	} {
		if arg.value == "" {
			return arg.name, false
		}
	}
	return "", true
}

// Transform applies the device's remap table, then the clamp.
func (f *Forwarder) Transform(deviceID, value string) string {
	if table, ok := f.cfg.Remap[deviceID]; ok {
		if mapped, ok := table[value]; ok {
			value = mapped
		}
	}
	if f.clamp[deviceID] {
		if n, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			switch {
			case n < 0:
				value = "0"
			case n > 100:
				value = "100"
			}
		}
	}
	return value
}

// SetValueURL builds the hub endpoint for one value.
func SetValueURL(host, deviceID, value, user, secret string) string {
	return fmt.Sprintf("http://%s/api/set?action=periph.value&periph_id=%s&value=%s&api_user=%s&api_secret=%s",
		host,
		url.QueryEscape(deviceID),
		url.QueryEscape(value),
		url.QueryEscape(user),
		url.QueryEscape(secret),
	)
}

// Forward validates req, transforms the value and calls the hub.
func (f *Forwarder) Forward(ctx context.Context, req Request) Result {
	if missing, ok := f.Validate(&req); !ok {
		return Result{Status: http.StatusBadRequest, Body: []byte(MissingArgument(missing))}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return Result{Status: http.StatusTooManyRequests, Body: FailurePayload("rate limit: " + err.Error())}
	}

	value := f.Transform(req.DeviceID, req.Value)
	if value != req.Value {
		logging.Debug("Fallback value transformed",
			zap.String("periph_id", req.DeviceID),
			zap.String("from", req.Value),
			zap.String("to", value),
		)
	}

	target := SetValueURL(req.HubHost, req.DeviceID, value, req.APIUser, req.APISecret)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{Status: http.StatusBadRequest, Body: FailurePayload(err.Error())}
	}

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		logging.Warn("Fallback forward failed", zap.String("periph_id", req.DeviceID), zap.Error(err))
		return Result{Status: http.StatusBadGateway, Body: FailurePayload("Erreur lors de l'appel a setValue")}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Status: http.StatusBadGateway, Body: FailurePayload("Erreur lors de l'appel a setValue")}
	}

	logging.Info("Fallback forwarded",
		zap.String("periph_id", req.DeviceID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		return Result{Status: resp.StatusCode, Body: FailurePayload(fmt.Sprintf("HTTP %d", resp.StatusCode))}
	}
	return Result{Status: http.StatusOK, Body: body}
}
