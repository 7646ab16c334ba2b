// Package ui renders the non-interactive output of the hubcfg CLI.
//
// Components follow a "print once and exit" pattern:
//
//   - Header: command banner with the service and parameters
//   - Result: success, warning and failure boxes with troubleshooting tips
//   - Views: the three panel tabs printed in detailed or compact form
//   - Confirm: a yes/no prompt guarding destructive commands
//
// The interactive panel lives in package tui and shares this package's
// palette.
//
// # Logging Integration
//
// zap logging is silent unless HUBCFG_LOG_LEVEL is set, so the styled
// output is not interleaved with log lines.
package ui
