package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/muurk/hubcfg/internal/discovery"
	"github.com/muurk/hubcfg/internal/fallback"
	"github.com/muurk/hubcfg/internal/logging"
	"github.com/muurk/hubcfg/internal/panelconfig"
	"github.com/muurk/hubcfg/internal/version"
)

// DefaultPort is the port the API listens on.
const DefaultPort = 8099

// Config holds the server configuration
type Config struct {
	Host     string
	Port     int
	CertPath string // optional, enables HTTPS together with KeyPath
	KeyPath  string
	LogLevel string

	// Advertise registers the service over mDNS under InstanceName.
	Advertise    bool
	InstanceName string

	// Fallback configures the /fallback forwarder. A nil value disables the route.
	Fallback *fallback.Config

	// HTTPLog enables one log line per request.
	HTTPLog bool
}

// Server exposes a panelconfig.Service over HTTP and WebSocket.
type Server struct {
	config    *Config
	service   panelconfig.Service
	forwarder *fallback.Forwarder
	tlsConfig *tls.Config
	echo      *echo.Echo

	httpServer *http.Server
	listener   net.Listener
	advert     *discovery.Advertisement

	wg          sync.WaitGroup
	mu          sync.Mutex
	activeConns map[string]*websocket.Conn
}

// New creates a Server for service.
func New(config *Config, service panelconfig.Service) (*Server, error) {
	if service == nil {
		return nil, errors.New("server: nil service")
	}
	if config.LogLevel != "" {
		if err := logging.Initialize(config.LogLevel); err != nil {
			return nil, fmt.Errorf("failed to initialize logging: %w", err)
		}
	}

	s := &Server{
		config:      config,
		service:     service,
		activeConns: make(map[string]*websocket.Conn),
	}

	if config.CertPath != "" || config.KeyPath != "" {
		tlsConfig, err := NewTLSConfig(config.CertPath, config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		s.tlsConfig = tlsConfig
	}

	if config.Fallback != nil {
		s.forwarder = fallback.New(*config.Fallback)
	}

	s.echo = s.registerRoutes()
	return s, nil
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.port()))
}

func (s *Server) port() int {
	if s.config.Port == 0 {
		return DefaultPort
	}
	return s.config.Port
}

// Start serves until ctx ends, a shutdown signal arrives or the listener
// fails.
func (s *Server) Start(ctx context.Context) error {
	addr := s.Addr()
	logging.Info("Starting hubcfg server",
		zap.String("addr", addr),
		zap.String("version", version.Version),
		zap.Bool("fallback", s.forwarder != nil),
		zap.Any("tls_info", GetTLSInfo(s.tlsConfig)),
	)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if s.tlsConfig != nil {
		listener = tls.NewListener(listener, s.tlsConfig)
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:      s.echo,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	if s.config.Advertise {
		name := s.config.InstanceName
		if name == "" {
			name = defaultInstanceName()
		}
		advert, err := discovery.Advertise(name, s.port(), version.Version)
		if err != nil {
			logging.Warn("mDNS advertisement failed", zap.Error(err))
		} else {
			s.advert = advert
		}
	}

	logging.Info("Server listening for connections", zap.String("addr", listener.Addr().String()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		err := s.httpServer.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errChan <- err
	}()

	select {
	case <-sigChan:
		logging.Info("Shutdown signal received, stopping server...")
	case <-ctx.Done():
		logging.Info("Context canceled, stopping server...")
	case err := <-errChan:
		s.advert.Shutdown()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops the listener, closes WebSocket connections and waits for
// their handlers.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")

	s.advert.Shutdown()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	// hijacked connections are not tracked by http.Server
	s.mu.Lock()
	for addr, conn := range s.activeConns {
		logging.Info("Closing active connection", zap.String("remote_addr", addr))
		_ = conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All connections closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	}

	logging.Sync()
	return err
}

// GetActiveConnections returns the number of open WebSocket connections.
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}

func (s *Server) track(addr string, conn *websocket.Conn) {
	s.mu.Lock()
	s.activeConns[addr] = conn
	s.mu.Unlock()
}

func (s *Server) untrack(addr string) {
	s.mu.Lock()
	delete(s.activeConns, addr)
	s.mu.Unlock()
}

func defaultInstanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "hubcfg"
	}
	return "hubcfg on " + host
}
