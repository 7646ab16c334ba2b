package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/muurk/hubcfg/internal/fallback"
	"github.com/muurk/hubcfg/internal/logging"
	"github.com/muurk/hubcfg/internal/panelconfig"
	"github.com/muurk/hubcfg/internal/version"
)

func (s *Server) registerRoutes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.Recover())
	if s.config.HTTPLog {
		e.Use(requestLogger)
	}

	api := e.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/ws", s.handleWebSocket)

	cfg := api.Group("/config")
	cfg.GET("", s.handleGetConfig)
	cfg.POST("/profile", s.handleSwitchProfile)
	cfg.POST("/reload", s.handleReload)
	cfg.PUT("/entity-types/:type", s.handleUpdateEntityType)
	cfg.PUT("/overrides/:id", s.handleUpdateOverride)
	cfg.DELETE("/overrides/:id", s.handleRemoveOverride)

	if s.forwarder != nil {
		e.GET("/fallback", s.handleFallback)
		e.POST("/fallback", s.handleFallback)
	}

	return e
}

// requestLogger writes one line per request through the package logger.
func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		req := c.Request()
		logging.LogHTTPRequest(c.RealIP(), req.Method, req.URL.Path, c.Response().Status, time.Since(start))
		return nil
	}
}

// errorHandler renders every error as {"error": "..."}.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(status)
		}
	}
	if status >= http.StatusInternalServerError {
		logging.Error("Request failed",
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, panelconfig.ErrorResponse{Error: msg})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) handleGetConfig(c echo.Context) error {
	snap, err := s.service.GetConfig(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) handleSwitchProfile(c echo.Context) error {
	var req panelconfig.ProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing profile name")
	}
	ok, err := s.service.SwitchProfile(c.Request().Context(), req.Name)
	return ack(c, ok, err)
}

func (s *Server) handleReload(c echo.Context) error {
	ok, err := s.service.Reload(c.Request().Context())
	return ack(c, ok, err)
}

func (s *Server) handleUpdateEntityType(c echo.Context) error {
	req, err := bindFlag(c)
	if err != nil {
		return err
	}
	ok, err := s.service.UpdateEntityTypeFlag(c.Request().Context(), panelconfig.EntityType(c.Param("type")), req.IsDynamic)
	return ack(c, ok, err)
}

func (s *Server) handleUpdateOverride(c echo.Context) error {
	req, err := bindFlag(c)
	if err != nil {
		return err
	}
	ok, err := s.service.UpdateDeviceOverride(c.Request().Context(), c.Param("id"), req.IsDynamic)
	return ack(c, ok, err)
}

func (s *Server) handleRemoveOverride(c echo.Context) error {
	ok, err := s.service.RemoveDeviceOverride(c.Request().Context(), c.Param("id"))
	return ack(c, ok, err)
}

// bindFlag decodes {"is_dynamic": bool}. The key is required.
func bindFlag(c echo.Context) (panelconfig.FlagRequest, error) {
	var raw struct {
		IsDynamic *bool `json:"is_dynamic"`
	}
	if err := c.Bind(&raw); err != nil {
		return panelconfig.FlagRequest{}, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if raw.IsDynamic == nil {
		return panelconfig.FlagRequest{}, echo.NewHTTPError(http.StatusBadRequest, "missing is_dynamic")
	}
	return panelconfig.FlagRequest{IsDynamic: *raw.IsDynamic}, nil
}

func ack(c echo.Context, ok bool, err error) error {
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, panelconfig.AckResponse{Success: ok})
}

// handleFallback accepts device_id and value from the query string or a form
// body, plus optional hub credentials.
func (s *Server) handleFallback(c echo.Context) error {
	arg := func(name string) string {
		if v := c.QueryParam(name); v != "" {
			return v
		}
		return c.FormValue(name)
	}
	res := s.forwarder.Forward(c.Request().Context(), fallback.Request{
		DeviceID:  arg("device_id"),
		Value:     arg("value"),
		HubHost:   arg("api_host"),
		APIUser:   arg("api_user"),
		APISecret: arg("api_secret"),
	})
	contentType := echo.MIMEApplicationJSON
	if res.Status == http.StatusBadRequest {
		contentType = echo.MIMETextPlainCharsetUTF8
	}
	return c.Blob(res.Status, contentType, res.Body)
}
