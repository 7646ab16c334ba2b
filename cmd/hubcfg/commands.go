package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/hubcfg/internal/cards"
	"github.com/muurk/hubcfg/internal/config"
	"github.com/muurk/hubcfg/internal/controller"
	"github.com/muurk/hubcfg/internal/discovery"
	"github.com/muurk/hubcfg/internal/logging"
	"github.com/muurk/hubcfg/internal/panelconfig"
	"github.com/muurk/hubcfg/internal/tui"
	"github.com/muurk/hubcfg/internal/ui"
	"github.com/muurk/hubcfg/internal/viewmodel"
)

// Global flags
var (
	serviceURL   string
	transport    string
	outputFormat string
	logLevel     string
	logFile      string
)

// Command flags
var (
	showTab       string
	showSearch    string
	scanTimeout   int
	skipConfirm   bool
	panelDiscover bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serviceURL, "service", "", "Configuration service URL (default: saved preference or last scanned service)")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "", "Transport to the service (http, ws)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "detailed", "Output format (detailed, compact, json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when empty")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stdout")

	rootCmd.AddCommand(panelCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(switchProfileCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(setTypeCmd)
	rootCmd.AddCommand(setOverrideCmd)
	rootCmd.AddCommand(removeOverrideCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(cardsCmd)
}

// panelCmd launches the interactive panel
var panelCmd = &cobra.Command{
	Use:   "panel",
	Short: "Open the interactive configuration panel",
	Long: `Open the interactive terminal panel.

The panel has three tabs: entity properties, device overrides and all
devices. Press ? inside the panel for key bindings.

When the output is not a terminal, the configuration is printed instead.`,
	Example: `  # Open the panel on the saved service
  hubcfg panel

  # Pick a service announced on the network first
  hubcfg panel --discover

  # Talk to the service over WebSocket and keep a debug log
  hubcfg panel --transport ws --log-level debug --log-file hubcfg.log`,
	RunE: runPanel,
}

func init() {
	panelCmd.Flags().BoolVar(&panelDiscover, "discover", false, "Choose the service from an mDNS scan")
}

func runPanel(cmd *cobra.Command, args []string) error {
	if !ui.IsTerminal() {
		return runShow(cmd, args)
	}

	// log lines would land on top of the rendered panel
	if logFile == "" && os.Getenv(logging.LogFileEnvVar) == "" {
		logging.SetLogger(zap.NewNop())
	}

	reg := loadRegistry()
	panelCfg := &controller.PanelConfig{Title: tui.AppName, DefaultTab: defaultTab(reg)}

	var app tui.AppModel
	if panelDiscover {
		screen := tui.NewDiscoveryModel(discoverTimeout(reg))
		app = tui.NewDiscoveryApp(panelCfg, screen, func(url string) (panelconfig.Service, error) {
			svc, _, err := connect(cmd.Context(), url, reg.ResolveTransport(transport))
			return svc, err
		})
	} else {
		svc, closeFn, url, err := openService(cmd.Context(), reg)
		if err != nil {
			return err
		}
		defer closeFn()
		logging.Info("Opening panel", zap.String("service", url))
		app = tui.NewPanelApp(panelCfg, svc)
	}

	final, err := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
	if err != nil {
		return fmt.Errorf("panel error: %w", err)
	}

	if m, ok := final.(tui.AppModel); ok && m.Selected != nil {
		reg.RememberService(m.Selected.Instance, m.Selected.BaseURL(), m.Selected.Version())
		saveRegistry(reg)
	}
	return nil
}

// showCmd prints one tab of the configuration
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the configuration",
	Long: `Print one tab of the configuration panel.

Tabs:
  entities   dynamic flag of each entity type
  overrides  per-device overrides with statistics
  devices    every device with its effective state and source badge`,
	Example: `  # Entity type flags
  hubcfg show

  # Overrides matching "kitchen"
  hubcfg show --tab overrides --search kitchen

  # All devices as JSON for scripting
  hubcfg show --tab devices --format json`,
	RunE: runShow,
}

func init() {
	showCmd.Flags().StringVar(&showTab, "tab", "", "Tab to show (entities, overrides, devices)")
	showCmd.Flags().StringVar(&showSearch, "search", "", "Filter devices by name, id or entity")
}

func runShow(cmd *cobra.Command, args []string) error {
	format, err := ui.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	reg := loadRegistry()
	tab := defaultTab(reg)
	if showTab != "" {
		if tab, err = viewmodel.ParseTab(showTab); err != nil {
			return err
		}
	}
	if showSearch != "" {
		if _, ok := tab.Scope(); !ok {
			return fmt.Errorf("--search applies to the overrides and devices tabs only")
		}
	}

	s, err := openSession(cmd.Context(), reg, tab)
	if err != nil {
		return err
	}
	defer s.Close()

	if showSearch != "" {
		s.ctrl.SetSearchTerm(tab, showSearch)
	}
	return s.printTab(tab, format, "Show", "hubcfg show")
}

// switchProfileCmd activates a profile
var switchProfileCmd = &cobra.Command{
	Use:       "switch-profile <default|custom>",
	Short:     "Activate a profile",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(panelconfig.ProfileDefault), string(panelconfig.ProfileCustom)},
	Example:   `  hubcfg switch-profile custom`,
	RunE: func(cmd *cobra.Command, args []string) error {
		profile := panelconfig.Profile(args[0])
		return runMutation(cmd, "Switch Profile", map[string]string{"Profile": args[0]}, viewmodel.TabEntities,
			func(c *controller.Controller) tea.Cmd { return c.SwitchProfile(profile) })
	},
}

// reloadCmd asks the service to re-read its files
var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the profile files on the service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(cmd, "Reload", nil, viewmodel.TabEntities,
			func(c *controller.Controller) tea.Cmd { return c.ReloadFromSource() })
	},
}

// setTypeCmd sets the dynamic flag of an entity type
var setTypeCmd = &cobra.Command{
	Use:   "set-type <entity-type> <on|off>",
	Short: "Set the dynamic flag of an entity type",
	Long: `Set whether entities of a type receive dynamic updates.

Entity types: light, switch, binary_sensor, sensor, climate, cover, select, scene.`,
	Example: `  # Sensors update dynamically
  hubcfg set-type sensor on

  # Covers become static
  hubcfg set-type cover off`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entityType, err := panelconfig.ParseEntityType(args[0])
		if err != nil {
			return err
		}
		dynamic, err := parseSwitch(args[1])
		if err != nil {
			return err
		}
		params := map[string]string{"Entity Type": string(entityType), "Dynamic": fmt.Sprint(dynamic)}
		return runMutation(cmd, "Set Entity Type", params, viewmodel.TabEntities,
			func(c *controller.Controller) tea.Cmd { return c.SetEntityTypeFlag(entityType, dynamic) })
	},
}

// setOverrideCmd creates or replaces a device override
var setOverrideCmd = &cobra.Command{
	Use:     "set-override <device-id> <on|off>",
	Short:   "Pin a device to dynamic or static updates",
	Example: `  hubcfg set-override 1269454 off`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		dynamic, err := parseSwitch(args[1])
		if err != nil {
			return err
		}
		params := map[string]string{"Device": id, "Dynamic": fmt.Sprint(dynamic)}
		return runMutation(cmd, "Set Device Override", params, viewmodel.TabOverrides,
			func(c *controller.Controller) tea.Cmd { return c.SetDeviceOverride(id, dynamic) })
	},
}

// removeOverrideCmd deletes a device override
var removeOverrideCmd = &cobra.Command{
	Use:   "remove-override <device-id>",
	Short: "Remove a device override",
	Long: `Remove the override of a device. The device then follows the flag of
its entity type again.`,
	Example: `  hubcfg remove-override 1269454
  hubcfg remove-override 1269454 --yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		if !skipConfirm {
			ok := ui.Confirm(os.Stdin, os.Stdout, "Remove the override of device "+id,
				[]string{"The device will follow its entity type flag again"})
			if !ok {
				return nil
			}
		}
		return runMutation(cmd, "Remove Device Override", map[string]string{"Device": id}, viewmodel.TabOverrides,
			func(c *controller.Controller) tea.Cmd { return c.RemoveDeviceOverride(id) })
	},
}

func init() {
	removeOverrideCmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "Do not ask for confirmation")
}

// scanCmd browses the network for configuration services
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for configuration services on the network",
	Long: `Browse mDNS for configuration services (` + discovery.ServiceType + `).

Every service found is remembered, so later commands can reach it without
--service.`,
	Example: `  hubcfg scan
  hubcfg scan --timeout 10`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 0, "Scan timeout in seconds (default: saved preference)")
}

func runScan(cmd *cobra.Command, args []string) error {
	reg := loadRegistry()
	timeout := discoverTimeout(reg)
	if scanTimeout > 0 {
		timeout = time.Duration(scanTimeout) * time.Second
	}

	fmt.Printf("Scanning for configuration services (timeout: %s)...\n\n", timeout)

	services, err := discovery.Scan(cmd.Context(), timeout)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	p := ui.NewPrinter(nil)
	if len(services) == 0 {
		p.PrintWarning("No configuration services found", nil)
		fmt.Println("Troubleshooting:")
		fmt.Println("  - Start the server with 'hubcfg-server serve --advertise'")
		fmt.Println("  - Multicast DNS does not cross routed networks")
		fmt.Println("  - Use --service to name the service URL directly")
		return nil
	}

	fmt.Printf("Found %d service(s):\n\n", len(services))
	for i, svc := range services {
		fmt.Printf("%d. %s\n", i+1, svc.Instance)
		fmt.Printf("   URL:     %s\n", svc.BaseURL())
		fmt.Printf("   Version: %s\n", svc.Version())
		fmt.Println()
		reg.RememberService(svc.Instance, svc.BaseURL(), svc.Version())
	}
	saveRegistry(reg)

	fmt.Println("Use 'hubcfg show --service <url>' to view a service's configuration")
	return nil
}

// cardsCmd lists registered panel cards
var cardsCmd = &cobra.Command{
	Use:   "cards",
	Short: "List the registered panel cards",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, c := range cards.All() {
			fmt.Printf("%s\n  %s\n  %s\n", c.Type, c.Name, ui.MutedStyle.Render(c.Description))
		}
	},
}

// session is a controller attached to a service for one command.
type session struct {
	url   string
	ctrl  *controller.Controller
	close func()
	out   *ui.Printer
}

func (s *session) Close() {
	s.ctrl.Close()
	s.close()
}

// openSession connects to the service and loads the first snapshot.
func openSession(ctx context.Context, reg *config.Registry, tab viewmodel.Tab) (*session, error) {
	svc, closeFn, url, err := openService(ctx, reg)
	if err != nil {
		return nil, err
	}

	ctrl := controller.New()
	if _, err := ctrl.SetConfig(&controller.PanelConfig{Title: "hubcfg", DefaultTab: tab}); err != nil {
		closeFn()
		return nil, err
	}
	ctrl.Drive(ctrl.SetHost(controller.StaticHost(svc)))

	s := &session{url: url, ctrl: ctrl, close: closeFn, out: ui.NewPrinter(nil)}
	if n, ok := ctrl.LastNotification(); ok {
		s.reportFailure("Cannot load configuration", n)
		s.Close()
		return nil, errReported
	}
	return s, nil
}

func (s *session) reportFailure(title string, n controller.Notification) {
	err := n.Err
	if err == nil {
		err = errors.New(n.String())
	}
	var tips []string
	if hint := n.Hint(); hint != "" {
		tips = append(tips, hint)
	}
	tips = append(tips, "Service: "+s.url)
	s.out.PrintError(title, err, tips)
}

// printTab prints a tab in format, with a header unless the format is JSON.
func (s *session) printTab(tab viewmodel.Tab, format ui.Format, title, command string) error {
	views := s.ctrl.Views()
	if format == ui.FormatJSON {
		var v any
		switch tab {
		case viewmodel.TabOverrides:
			v = views.Overrides
		case viewmodel.TabDevices:
			v = views.Devices
		default:
			v = views.Entities
		}
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	s.out.PrintHeader(title, command, map[string]string{
		"Service": s.url,
		"Profile": string(s.ctrl.ActiveProfile()),
	})
	s.out.Println(ui.RenderTab(&views, tab, format))
	return nil
}

// runMutation loads the configuration, applies one change through the
// controller and prints the refreshed tab.
func runMutation(cmd *cobra.Command, title string, params map[string]string, tab viewmodel.Tab, change func(*controller.Controller) tea.Cmd) error {
	format, err := ui.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	s, err := openSession(cmd.Context(), loadRegistry(), tab)
	if err != nil {
		return err
	}
	defer s.Close()

	s.ctrl.Drive(change(s.ctrl))

	if n, ok := s.ctrl.LastNotification(); ok {
		s.reportFailure(title+" failed", n)
		return errReported
	}

	if format != ui.FormatJSON {
		details := map[string]string{"Service": s.url}
		for k, v := range params {
			details[k] = v
		}
		s.out.PrintSuccess(title, details)
	}
	return s.printTab(tab, format, title, "hubcfg "+cmd.Name())
}

// openService connects to the resolved service. The returned function
// releases the connection.
func openService(ctx context.Context, reg *config.Registry) (panelconfig.Service, func(), string, error) {
	url := reg.ResolveServiceURL(serviceURL)
	if serviceURL == "" && reg.Preferences.ServiceURL == "" && reg.LastSeenService() == nil && reg.Preferences.AutoDiscover {
		if found := discoverFirst(ctx, reg); found != "" {
			url = found
		}
	}

	svc, closeFn, err := connect(ctx, url, reg.ResolveTransport(transport))
	if err != nil {
		return nil, nil, url, err
	}
	return svc, closeFn, url, nil
}

func connect(ctx context.Context, url, tr string) (panelconfig.Service, func(), error) {
	switch tr {
	case config.TransportWS:
		client, err := panelconfig.DialWS(ctx, url)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to %s: %w", url, err)
		}
		return client, func() { _ = client.Close() }, nil
	case config.TransportHTTP:
		return panelconfig.NewClient(url), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown transport %q (want http or ws)", tr)
}

// discoverFirst remembers the first service to answer on mDNS.
func discoverFirst(ctx context.Context, reg *config.Registry) string {
	logging.Debug("No service configured, browsing mDNS")
	svc, err := discovery.WaitFor(ctx, "", discoverTimeout(reg))
	if err != nil {
		logging.Debug("Discovery found nothing", zap.Error(err))
		return ""
	}
	reg.RememberService(svc.Instance, svc.BaseURL(), svc.Version())
	saveRegistry(reg)
	return svc.BaseURL()
}

func loadRegistry() *config.Registry {
	reg, err := config.LoadRegistry()
	if err != nil {
		logging.Warn("Failed to load preferences, using defaults", zap.Error(err))
		return config.NewRegistry()
	}
	return reg
}

func saveRegistry(reg *config.Registry) {
	if err := reg.Save(); err != nil {
		logging.Warn("Failed to save preferences", zap.Error(err))
	}
}

func defaultTab(reg *config.Registry) viewmodel.Tab {
	if tab, err := viewmodel.ParseTab(reg.Preferences.DefaultTab); err == nil {
		return tab
	}
	return viewmodel.TabEntities
}

func discoverTimeout(reg *config.Registry) time.Duration {
	if reg.Preferences.DiscoverTimeout > 0 {
		return time.Duration(reg.Preferences.DiscoverTimeout) * time.Second
	}
	return discovery.DefaultScanTimeout
}

// parseSwitch accepts on/off style values.
func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1", "dynamic":
		return true, nil
	case "off", "false", "no", "0", "static":
		return false, nil
	}
	return false, fmt.Errorf("invalid value %q (use on or off)", s)
}
