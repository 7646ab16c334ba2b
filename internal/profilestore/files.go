package profilestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/muurk/hubcfg/internal/panelconfig"
)

// File names inside the data directory.
const (
	DefaultMappingFile = "device_mapping.yaml"
	CustomMappingFile  = "custom_mapping.yaml"
	InventoryFile      = "devices.yaml"
)

// customFileVersion is written to custom_mapping.yaml.
const customFileVersion = 1.0

// fileMutex serialises writes into the data directory.
var fileMutex sync.Mutex

// mappingFile is the layout of device_mapping.yaml. Only the keys the panel
// manages are read; everything else in the file is ignored.
type mappingFile struct {
	DynamicEntityProperties map[string]bool `yaml:"dynamic_entity_properties"`
	DeviceOverrides         map[string]bool `yaml:"specific_device_dynamic_overrides"`
}

// customFile is the layout of custom_mapping.yaml.
type customFile struct {
	Version                 float64         `yaml:"version"`
	CustomRules             []any           `yaml:"custom_rules"`
	CustomUsageIDMappings   map[string]any  `yaml:"custom_usage_id_mappings"`
	CustomNamePatterns      []any           `yaml:"custom_name_patterns"`
	DynamicEntityProperties map[string]bool `yaml:"custom_dynamic_entity_properties"`
	DeviceOverrides         map[string]bool `yaml:"custom_specific_device_dynamic_overrides"`
}

// inventoryFile is the layout of devices.yaml.
type inventoryFile struct {
	Devices []panelconfig.Device `yaml:"devices"`
}

// builtinFlags is used when device_mapping.yaml is missing or empty.
func builtinFlags() map[panelconfig.EntityType]bool {
	return map[panelconfig.EntityType]bool{
		panelconfig.EntityLight:        true,
		panelconfig.EntitySwitch:       true,
		panelconfig.EntityBinarySensor: true,
		panelconfig.EntitySensor:       false,
		panelconfig.EntityClimate:      false,
		panelconfig.EntityCover:        true,
		panelconfig.EntitySelect:       false,
		panelconfig.EntityScene:        false,
	}
}

// readYAML decodes path into out. A missing or empty file reports false.
func readYAML(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

// writeYAML writes v to path through a temporary file and a rename.
func writeYAML(path, header string, v any) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if header != "" {
		data = append([]byte(header), data...)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save %s: %w", filepath.Base(path), err)
	}
	return nil
}

func toFlags(m map[string]bool) map[panelconfig.EntityType]bool {
	out := make(map[panelconfig.EntityType]bool, len(m))
	for k, v := range m {
		out[panelconfig.EntityType(k)] = v
	}
	return out
}

func fromFlags(m map[panelconfig.EntityType]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

const customHeader = `# hubcfg custom profile
# Entity type flags that differ from device_mapping.yaml and every
# per-device override. Rewritten by the panel on each change.

`

// WriteExampleData seeds dir with a default mapping and a small inventory.
// Existing files are left alone.
func WriteExampleData(dir string) ([]string, error) {
	var written []string

	mapping := filepath.Join(dir, DefaultMappingFile)
	if _, err := os.Stat(mapping); errors.Is(err, fs.ErrNotExist) {
		m := mappingFile{
			DynamicEntityProperties: fromFlags(builtinFlags()),
			DeviceOverrides:         map[string]bool{},
		}
		if err := writeYAML(mapping, "# Default dynamic-update profile\n\n", m); err != nil {
			return written, err
		}
		written = append(written, mapping)
	}

	inventory := filepath.Join(dir, InventoryFile)
	if _, err := os.Stat(inventory); errors.Is(err, fs.ErrNotExist) {
		inv := inventoryFile{Devices: []panelconfig.Device{
			{ID: "1269454", Name: "Kitchen Lamp", LinkedEntity: "light.kitchen", CategoryID: "1"},
			{ID: "1269455", Name: "Living Room Shutter", LinkedEntity: "cover.living_room", CategoryID: "48"},
			{ID: "1269456", Name: "Outdoor Temperature", LinkedEntity: "sensor.outdoor_temperature", CategoryID: "7"},
			{ID: "1269457", Name: "Heating Mode", LinkedEntity: "select.heating_mode", CategoryID: "38"},
		}}
		if err := writeYAML(inventory, "# Hub device inventory\n\n", inv); err != nil {
			return written, err
		}
		written = append(written, inventory)
	}

	return written, nil
}
