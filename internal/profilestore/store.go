package profilestore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/muurk/hubcfg/internal/logging"
	"github.com/muurk/hubcfg/internal/panelconfig"
)

// profile is the mutable content of one named profile.
type profile struct {
	flags     map[panelconfig.EntityType]bool
	overrides map[string]bool
}

func (p *profile) clone() *profile {
	c := &profile{
		flags:     make(map[panelconfig.EntityType]bool, len(p.flags)),
		overrides: make(map[string]bool, len(p.overrides)),
	}
	for k, v := range p.flags {
		c.flags[k] = v
	}
	for k, v := range p.overrides {
		c.overrides[k] = v
	}
	return c
}

// Store is the in-process Configuration Service. It serves two profiles,
// default and custom, backed by YAML files in a data directory. Changes made
// while custom is active are written to custom_mapping.yaml; changes to the
// default profile live in memory until the next reload.
type Store struct {
	dir string

	mu        sync.RWMutex
	current   panelconfig.Profile
	profiles  map[panelconfig.Profile]*profile
	inventory []panelconfig.Device
}

var _ panelconfig.Service = (*Store)(nil)

// Open loads the profiles and the inventory from dir.
func Open(dir string) (*Store, error) {
	s := &Store{dir: dir, current: panelconfig.ProfileDefault}
	profiles, inventory, err := s.load()
	if err != nil {
		return nil, err
	}
	s.profiles = profiles
	s.inventory = inventory
	logging.Info("Profile store opened",
		zap.String("dir", dir),
		zap.Int("devices", len(inventory)),
	)
	return s, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// load reads every file. Nothing is changed on error.
func (s *Store) load() (map[panelconfig.Profile]*profile, []panelconfig.Device, error) {
	def, err := s.loadDefault()
	if err != nil {
		return nil, nil, err
	}
	custom, err := s.loadCustom(def)
	if err != nil {
		return nil, nil, err
	}
	var inv inventoryFile
	if _, err := readYAML(s.path(InventoryFile), &inv); err != nil {
		return nil, nil, err
	}
	return map[panelconfig.Profile]*profile{
		panelconfig.ProfileDefault: def,
		panelconfig.ProfileCustom:  custom,
	}, inv.Devices, nil
}

func (s *Store) loadDefault() (*profile, error) {
	var m mappingFile
	found, err := readYAML(s.path(DefaultMappingFile), &m)
	if err != nil {
		return nil, err
	}
	p := &profile{flags: builtinFlags(), overrides: map[string]bool{}}
	if !found || (m.DynamicEntityProperties == nil && m.DeviceOverrides == nil) {
		return p, nil
	}
	if m.DynamicEntityProperties != nil {
		p.flags = toFlags(m.DynamicEntityProperties)
	}
	for k, v := range m.DeviceOverrides {
		p.overrides[k] = v
	}
	return p, nil
}

// loadCustom merges custom_mapping.yaml on top of the default profile.
func (s *Store) loadCustom(def *profile) (*profile, error) {
	p := def.clone()
	var c customFile
	if _, err := readYAML(s.path(CustomMappingFile), &c); err != nil {
		return nil, err
	}
	for k, v := range c.DynamicEntityProperties {
		p.flags[panelconfig.EntityType(k)] = v
	}
	for k, v := range c.DeviceOverrides {
		p.overrides[k] = v
	}
	return p, nil
}

// saveCustom writes the entity flags that differ from the on-disk default and
// all overrides.
func (s *Store) saveCustom(p *profile) error {
	def, err := s.loadDefault()
	if err != nil {
		return err
	}

	out := customFile{
		Version:                 customFileVersion,
		CustomRules:             []any{},
		CustomUsageIDMappings:   map[string]any{},
		CustomNamePatterns:      []any{},
		DynamicEntityProperties: map[string]bool{},
		DeviceOverrides:         map[string]bool{},
	}
	for t, v := range p.flags {
		if dv, ok := def.flags[t]; !ok || dv != v {
			out.DynamicEntityProperties[string(t)] = v
		}
	}
	for id, v := range p.overrides {
		out.DeviceOverrides[id] = v
	}

	if err := writeYAML(s.path(CustomMappingFile), customHeader, out); err != nil {
		return err
	}
	logging.Info("Saved custom profile", zap.String("path", s.path(CustomMappingFile)))
	return nil
}

// GetConfig returns a copy of the active profile and the inventory.
func (s *Store) GetConfig(ctx context.Context) (*panelconfig.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := s.profiles[s.current]
	snap := &panelconfig.Snapshot{
		ActiveProfile:   s.current,
		EntityTypeFlags: make(map[panelconfig.EntityType]bool, len(p.flags)),
		DeviceOverrides: make(map[string]bool, len(p.overrides)),
		Devices:         make([]panelconfig.Device, 0, len(s.inventory)),
	}
	for k, v := range p.flags {
		snap.EntityTypeFlags[k] = v
	}
	for k, v := range p.overrides {
		snap.DeviceOverrides[k] = v
	}
	for _, d := range s.inventory {
		d.DynamicByDefault = p.flags[panelconfig.EntityTypeOf(d.LinkedEntity)]
		snap.Devices = append(snap.Devices, d)
	}
	return snap, nil
}

// SwitchProfile activates a known profile.
func (s *Store) SwitchProfile(ctx context.Context, name panelconfig.Profile) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[name]; !ok {
		logging.Warn("Unknown profile requested", zap.String("profile", string(name)))
		return false, nil
	}
	s.current = name
	logging.Info("Switched profile", zap.String("profile", string(name)))
	return true, nil
}

// Reload re-reads every file. On a read or parse error the previous state is
// kept and false is returned.
func (s *Store) Reload(ctx context.Context) (bool, error) {
	profiles, inventory, err := s.load()
	if err != nil {
		logging.Error("Reload failed", zap.Error(err))
		return false, nil
	}

	s.mu.Lock()
	s.profiles = profiles
	s.inventory = inventory
	s.mu.Unlock()

	logging.Info("Reloaded configuration", zap.Int("devices", len(inventory)))
	return true, nil
}

// UpdateEntityTypeFlag sets the flag of a known entity type on the active
// profile.
func (s *Store) UpdateEntityTypeFlag(ctx context.Context, t panelconfig.EntityType, dynamic bool) (bool, error) {
	if !t.IsKnown() {
		return false, nil
	}
	return s.apply(func(p *profile) bool {
		p.flags[t] = dynamic
		return true
	})
}

// UpdateDeviceOverride sets an override for a device in the inventory.
func (s *Store) UpdateDeviceOverride(ctx context.Context, id string, dynamic bool) (bool, error) {
	if id == "" {
		return false, nil
	}
	s.mu.RLock()
	known := s.knownDevice(id)
	s.mu.RUnlock()
	if !known {
		logging.Warn("Override for unknown device", zap.String("periph_id", id))
		return false, nil
	}
	return s.apply(func(p *profile) bool {
		p.overrides[id] = dynamic
		return true
	})
}

// RemoveDeviceOverride deletes an override. It reports false when there was
// none.
func (s *Store) RemoveDeviceOverride(ctx context.Context, id string) (bool, error) {
	return s.apply(func(p *profile) bool {
		if _, ok := p.overrides[id]; !ok {
			return false
		}
		delete(p.overrides, id)
		return true
	})
}

// knownDevice reports whether id is in the inventory. An empty inventory
// accepts any id. Callers hold s.mu.
func (s *Store) knownDevice(id string) bool {
	if len(s.inventory) == 0 {
		return true
	}
	for _, d := range s.inventory {
		if d.ID == id {
			return true
		}
	}
	return false
}

// apply runs change on a copy of the active profile, persists the copy when
// the custom profile is active and only then swaps it in.
func (s *Store) apply(change func(p *profile) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.profiles[s.current].clone()
	if !change(next) {
		return false, nil
	}
	if s.current == panelconfig.ProfileCustom {
		if err := s.saveCustom(next); err != nil {
			return false, fmt.Errorf("save custom profile: %w", err)
		}
	}
	s.profiles[s.current] = next
	return true, nil
}
