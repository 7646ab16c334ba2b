// Hubcfg is the client of the hubcfg configuration service.
//
// It shows and edits which hub entities receive dynamic (frequent) state
// updates: one flag per entity type plus per-device overrides, grouped in
// two profiles. Changes go through the configuration service over HTTP or
// WebSocket.
//
// Usage:
//
//	hubcfg [command] [flags]
//
// Running without arguments opens the interactive panel when stdout is a
// terminal and prints the configuration otherwise.
// See 'hubcfg --help' for available commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/muurk/hubcfg/internal/logging"
	"github.com/muurk/hubcfg/internal/version"
)

// errReported marks a failure that has already been rendered.
var errReported = errors.New("failure already reported")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Sync()

	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hubcfg",
	Short: "Hub dynamic-update configuration panel",
	Long: `Configure which hub entities receive dynamic state updates.

Entity types (light, switch, sensor, ...) carry a dynamic flag, and single
devices can override their type. Two profiles exist: "default" and "custom".

If no command is specified, the interactive panel opens when the output is a
terminal; otherwise the configuration is printed.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.InitializeWithOutput(logLevel, logFile)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPanel(cmd, args)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hubcfg %s\n", version.Full())
	},
}
