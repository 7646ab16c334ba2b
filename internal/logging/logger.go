package logging

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "HUBCFG_LOG_LEVEL"

// LogFileEnvVar redirects log output to a file instead of stdout.
const LogFileEnvVar = "HUBCFG_LOG_FILE"

// Initialize creates a new logger with the specified level writing to stdout.
// If level is empty, it checks HUBCFG_LOG_LEVEL.
// If neither is set, logging is disabled (silent mode).
func Initialize(level string) error {
	return InitializeWithOutput(level, "")
}

// InitializeWithOutput is Initialize with an explicit output path. An empty
// path falls back to HUBCFG_LOG_FILE and then to stdout. The terminal panel
// uses this so that log lines never land on top of the rendered view.
func InitializeWithOutput(level, path string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}
	if level == "" {
		logger = zap.NewNop()
		return nil
	}
	if path == "" {
		path = os.Getenv(LogFileEnvVar)
	}

	output := "stdout"
	encodeLevel := zapcore.CapitalColorLevelEncoder
	if path != "" {
		output = path
		encodeLevel = zapcore.CapitalLevelEncoder
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(parseLevel(level)),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{"stderr"},
	}

	config.EncoderConfig.EncodeLevel = encodeLevel
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	built, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = built
	return nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		// Explicitly set but unrecognised
		return zapcore.InfoLevel
	}
}

// SetLogger replaces the global logger. Tests use it with zaptest/observer.
func SetLogger(l *zap.Logger) {
	logger = l
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// LogServiceCall records one Configuration Service operation.
func LogServiceCall(op, target string, elapsed time.Duration, err error) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.Duration("elapsed", elapsed),
	}
	if target != "" {
		fields = append(fields, zap.String("target", target))
	}
	if err != nil {
		Warn("Service call failed", append(fields, zap.Error(err))...)
		return
	}
	Debug("Service call completed", fields...)
}

// LogNotification records a user-facing failure notification.
func LogNotification(op, target, detail string) {
	Warn("Operation failed",
		zap.String("op", op),
		zap.String("target", target),
		zap.String("detail", detail),
	)
}

// LogConnection logs a connection event
func LogConnection(remoteAddr string, event string) {
	Info("Connection event",
		zap.String("remote_addr", remoteAddr),
		zap.String("event", event),
	)
}

// LogHTTPRequest logs an HTTP request handled by the service
func LogHTTPRequest(remoteAddr, method, path string, status int, elapsed time.Duration) {
	Info("HTTP request",
		zap.String("remote_addr", remoteAddr),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Duration("elapsed", elapsed),
	)
}

// LogWebSocketMessage logs a WebSocket command frame
func LogWebSocketMessage(remoteAddr, direction, msgType string, length int) {
	Debug("WebSocket message",
		zap.String("remote_addr", remoteAddr),
		zap.String("direction", direction),
		zap.String("type", msgType),
		zap.Int("length", length),
	)
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
