// Package logging provides structured logging for hubcfg.
//
// It wraps a global zap logger with convenience functions. Logging is silent
// by default so that CLI output and the terminal panel stay clean; set
// HUBCFG_LOG_LEVEL (debug, info, warn, error) or pass --log-level to enable it.
//
// # Output
//
// The console encoder writes to stdout unless a file is configured via
// --log-file or HUBCFG_LOG_FILE. The terminal panel always needs a file when
// logging is enabled.
//
// # Structured Logging
//
//	logging.Info("Profile switched",
//	    zap.String("profile", "custom"),
//	)
//
// Domain helpers:
//
//	logging.LogServiceCall("update_device_override", "1269454", elapsed, err)
//	logging.LogNotification("remove_device_override", "1269454", "rejected by service")
//	logging.LogHTTPRequest(remote, "PUT", "/api/config/overrides/1269454", 200, elapsed)
//
// Call Sync before the process exits.
package logging
