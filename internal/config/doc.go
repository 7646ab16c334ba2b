// Package config manages the hubcfg CLI's user configuration.
//
// A YAML file records the configuration services found by "hubcfg scan" and
// the user's preferences: which service to talk to, over which transport, and
// which tab the panel opens on.
//
// # Configuration File Location
//
//   - $HUBCFG_CONFIG_DIR/config.yaml when the variable is set
//   - Linux: $XDG_CONFIG_HOME/hubcfg/config.yaml or $HOME/.config/hubcfg/config.yaml
//   - macOS: $HOME/.config/hubcfg/config.yaml
//   - Windows: %LOCALAPPDATA%\hubcfg\config.yaml
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    return err
//	}
//	url := registry.ResolveServiceURL(flagService)
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across goroutines.
// File operations are protected by a mutex to ensure atomic writes.
package config
