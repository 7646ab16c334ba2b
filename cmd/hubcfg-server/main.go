// Hubcfg-server serves the hub dynamic-update configuration over HTTP and
// WebSocket.
//
// Profiles are read from and written to YAML files in a data directory. The
// server can announce itself over mDNS and forwards fallback values to the
// hub's set-value API.
//
// Usage:
//
//	hubcfg-server serve [flags]
//
// Every flag can also be set through a HUBCFG_ environment variable, a .env
// file or the YAML file named by CONFIG_FILE.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/muurk/hubcfg/internal/fallback"
	"github.com/muurk/hubcfg/internal/logging"
	"github.com/muurk/hubcfg/internal/profilestore"
	"github.com/muurk/hubcfg/internal/server"
	"github.com/muurk/hubcfg/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Sync()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hubcfg-server",
	Short: "Hub dynamic-update configuration service",
	Long: `Serve the hub dynamic-update configuration to panels and scripts.

The service keeps two profiles. "default" comes from device_mapping.yaml and
is never written; "custom" lives in custom_mapping.yaml and is rewritten on
every change. devices.yaml lists the devices shown by the panel.

Use 'hubcfg' to talk to a running server.`,
	Version:      version.Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initDataCmd)
	rootCmd.AddCommand(versionCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the configuration service",
	Long: `Start the HTTP and WebSocket API.

Settings are resolved in this order: flags, HUBCFG_* environment variables
(also read from a .env file), the YAML file named by CONFIG_FILE, defaults.

The YAML file may also carry fallback value rewriting:

  fallback:
    remap:
      "1269457":
        "0": "eco"
        "1": "comfort"
    clamp: ["1269455"]`,
	Example: `  # Serve ./data on the default port
  hubcfg-server serve

  # Announce over mDNS and forward fallback values to the hub
  hubcfg-server serve --advertise --hub-host 192.168.1.10 --hub-user me --hub-secret s3cret

  # HTTPS with debug logging
  hubcfg-server serve --tls-cert cert.pem --tls-key key.pem --log-level debug

  # Same, from the environment
  HUBCFG_PORT=9000 HUBCFG_DATA_DIR=/var/lib/hubcfg hubcfg-server serve`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("host", "", "Listen address (empty = all interfaces)")
	f.Int("port", server.DefaultPort, "Listen port")
	f.String("data-dir", "data", "Directory holding the profile and device files")
	f.Bool("advertise", false, "Announce the service over mDNS")
	f.String("instance-name", "", "mDNS instance name (default: hubcfg on <hostname>)")
	f.String("hub-host", "", "Hub address for fallback forwarding")
	f.String("hub-user", "", "Hub API user for fallback forwarding")
	f.String("hub-secret", "", "Hub API secret for fallback forwarding")
	f.Bool("disable-fallback", false, "Do not serve the /fallback forwarding route")
	f.String("tls-cert", "", "TLS certificate file (enables HTTPS with --tls-key)")
	f.String("tls-key", "", "TLS private key file")
	f.String("log-level", "", "Log level (debug, info, warn, error)")
	f.Bool("http-log", false, "Log every HTTP request")
}

func initConfig(cmd *cobra.Command) error {
	setConfigDefaults()

	viper.SetEnvPrefix("hubcfg")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	// if defined, load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return fmt.Errorf("config file not found: %s", cfgFile)
		}
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func setConfigDefaults() {
	viper.SetDefault("log-level", "info")
	viper.SetDefault("port", server.DefaultPort)
	viper.SetDefault("data-dir", "data")
	viper.SetDefault("fallback-timeout", fallback.DefaultTimeout)
	viper.SetDefault("fallback-rate", fallback.DefaultRate)
	viper.SetDefault("fallback-burst", fallback.DefaultBurst)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := initConfig(cmd); err != nil {
		return err
	}
	if err := logging.Initialize(viper.GetString("log-level")); err != nil {
		return err
	}
	if used := viper.ConfigFileUsed(); used != "" {
		logging.Info("Using config", zap.String("file", used))
	}

	certPath, keyPath := viper.GetString("tls-cert"), viper.GetString("tls-key")
	if (certPath == "") != (keyPath == "") {
		return fmt.Errorf("both --tls-cert and --tls-key must be provided together, or neither")
	}

	dataDir := viper.GetString("data-dir")
	store, err := profilestore.Open(dataDir)
	if err != nil {
		return fmt.Errorf("failed to open data directory %s: %w", dataDir, err)
	}

	config := &server.Config{
		Host:         viper.GetString("host"),
		Port:         viper.GetInt("port"),
		CertPath:     certPath,
		KeyPath:      keyPath,
		Advertise:    viper.GetBool("advertise"),
		InstanceName: viper.GetString("instance-name"),
		HTTPLog:      viper.GetBool("http-log"),
	}

	if !viper.GetBool("disable-fallback") {
		fb := &fallback.Config{
			HubHost:   viper.GetString("hub-host"),
			APIUser:   viper.GetString("hub-user"),
			APISecret: viper.GetString("hub-secret"),
			Timeout:   viper.GetDuration("fallback-timeout"),
			Rate:      viper.GetFloat64("fallback-rate"),
			Burst:     viper.GetInt("fallback-burst"),
			Clamp:     viper.GetStringSlice("fallback.clamp"),
		}
		if err := viper.UnmarshalKey("fallback.remap", &fb.Remap); err != nil {
			return fmt.Errorf("invalid fallback.remap: %w", err)
		}
		config.Fallback = fb
	}

	logging.Debug("Server configuration",
		zap.String("data_dir", dataDir),
		zap.String("hub_host", viper.GetString("hub-host")),
		zap.Bool("hub_secret_set", viper.GetString("hub-secret") != ""),
	)

	srv, err := server.New(config, store)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Start(cmd.Context())
}

var initDataCmd = &cobra.Command{
	Use:   "init-data [dir]",
	Short: "Write example profile and device files",
	Long: `Write an example device_mapping.yaml and devices.yaml into dir
(default: ./data). Existing files are left untouched.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "data"
		if len(args) == 1 {
			dir = args[0]
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
		written, err := profilestore.WriteExampleData(dir)
		if err != nil {
			return err
		}
		if len(written) == 0 {
			fmt.Printf("Nothing written, %s already holds the data files\n", dir)
			return nil
		}
		for _, path := range written {
			fmt.Printf("Wrote %s\n", path)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hubcfg-server %s\n", version.Full())
	},
}
