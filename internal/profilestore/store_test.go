package profilestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/muurk/hubcfg/internal/panelconfig"
)

const testInventory = `devices:
  - periph_id: "100"
    name: Kitchen Lamp
    ha_entity: light.kitchen
    usage_id: 1
  - periph_id: "200"
    name: Hall Sensor
    ha_entity: sensor.hall
    usage_id: "7"
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, InventoryFile, testInventory)
	s, err := Open(dir)
	require.NoError(t, err)
	return s, dir
}

var ctx = context.Background()

func TestOpen_BuiltinDefaults(t *testing.T) {
	s, _ := openStore(t)

	snap, err := s.GetConfig(ctx)
	require.NoError(t, err)

	assert.Equal(t, panelconfig.ProfileDefault, snap.ActiveProfile)
	assert.Equal(t, builtinFlags(), snap.EntityTypeFlags)
	assert.Empty(t, snap.DeviceOverrides)
	require.Len(t, snap.Devices, 2)
	assert.True(t, snap.Devices[0].DynamicByDefault, "light is dynamic by default")
	assert.False(t, snap.Devices[1].DynamicByDefault, "sensor is static by default")
	assert.Equal(t, panelconfig.CategoryID("1"), snap.Devices[0].CategoryID)
}

func TestOpen_DefaultMappingFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, DefaultMappingFile, `
dynamic_entity_properties:
  light: false
  sensor: true
specific_device_dynamic_overrides:
  100: true
`)
	s, err := Open(dir)
	require.NoError(t, err)

	snap, _ := s.GetConfig(ctx)
	assert.False(t, snap.EntityTypeFlags[panelconfig.EntityLight])
	assert.True(t, snap.EntityTypeFlags[panelconfig.EntitySensor])
	assert.Equal(t, map[string]bool{"100": true}, snap.DeviceOverrides)
}

func TestOpen_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, DefaultMappingFile, "dynamic_entity_properties: [unterminated")

	_, err := Open(dir)
	assert.Error(t, err)
}

func TestOpen_CustomMergedOverDefault(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, InventoryFile, testInventory)
	writeFile(t, dir, CustomMappingFile, `
version: 1.0
custom_dynamic_entity_properties:
  sensor: true
custom_specific_device_dynamic_overrides:
  "200": false
`)
	s, err := Open(dir)
	require.NoError(t, err)

	ok, err := s.SwitchProfile(ctx, panelconfig.ProfileCustom)
	require.NoError(t, err)
	require.True(t, ok)

	snap, _ := s.GetConfig(ctx)
	assert.Equal(t, panelconfig.ProfileCustom, snap.ActiveProfile)
	assert.True(t, snap.EntityTypeFlags[panelconfig.EntitySensor])
	assert.True(t, snap.EntityTypeFlags[panelconfig.EntityLight], "inherited from default")
	assert.Equal(t, map[string]bool{"200": false}, snap.DeviceOverrides)
	assert.True(t, snap.Devices[1].DynamicByDefault, "follows the custom sensor flag")
}

func TestSwitchProfile_Unknown(t *testing.T) {
	s, _ := openStore(t)

	ok, err := s.SwitchProfile(ctx, "legacy")
	require.NoError(t, err)
	assert.False(t, ok)

	snap, _ := s.GetConfig(ctx)
	assert.Equal(t, panelconfig.ProfileDefault, snap.ActiveProfile)
}

func TestUpdateEntityTypeFlag(t *testing.T) {
	s, dir := openStore(t)

	ok, err := s.UpdateEntityTypeFlag(ctx, panelconfig.EntitySensor, true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoFileExists(t, filepath.Join(dir, CustomMappingFile), "default profile changes stay in memory")

	ok, _ = s.UpdateEntityTypeFlag(ctx, "vacuum", true)
	assert.False(t, ok)

	snap, _ := s.GetConfig(ctx)
	assert.True(t, snap.EntityTypeFlags[panelconfig.EntitySensor])
	assert.NotContains(t, snap.EntityTypeFlags, panelconfig.EntityType("vacuum"))
}

func TestUpdateDeviceOverride(t *testing.T) {
	s, _ := openStore(t)

	ok, err := s.UpdateDeviceOverride(ctx, "200", true)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = s.UpdateDeviceOverride(ctx, "999", true)
	assert.False(t, ok, "unknown device")

	ok, _ = s.UpdateDeviceOverride(ctx, "", true)
	assert.False(t, ok, "empty id")

	snap, _ := s.GetConfig(ctx)
	assert.Equal(t, map[string]bool{"200": true}, snap.DeviceOverrides)
}

func TestRemoveDeviceOverride(t *testing.T) {
	s, _ := openStore(t)
	_, _ = s.UpdateDeviceOverride(ctx, "100", false)

	ok, err := s.RemoveDeviceOverride(ctx, "100")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = s.RemoveDeviceOverride(ctx, "100")
	assert.False(t, ok, "already removed")

	snap, _ := s.GetConfig(ctx)
	assert.NotContains(t, snap.DeviceOverrides, "100")
}

func TestCustomProfile_Persisted(t *testing.T) {
	s, dir := openStore(t)
	_, _ = s.SwitchProfile(ctx, panelconfig.ProfileCustom)

	_, err := s.UpdateEntityTypeFlag(ctx, panelconfig.EntitySensor, true)
	require.NoError(t, err)
	_, err = s.UpdateEntityTypeFlag(ctx, panelconfig.EntityLight, true) // same as default
	require.NoError(t, err)
	_, err = s.UpdateDeviceOverride(ctx, "100", false)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, CustomMappingFile))
	require.NoError(t, err)

	var saved customFile
	require.NoError(t, yaml.Unmarshal(data, &saved))
	assert.Equal(t, map[string]bool{"sensor": true}, saved.DynamicEntityProperties)
	assert.Equal(t, map[string]bool{"100": false}, saved.DeviceOverrides)
	assert.Equal(t, customFileVersion, saved.Version)
	assert.NotNil(t, saved.CustomRules)

	// a fresh store sees the same custom profile
	again, err := Open(dir)
	require.NoError(t, err)
	_, _ = again.SwitchProfile(ctx, panelconfig.ProfileCustom)
	snap, _ := again.GetConfig(ctx)
	assert.True(t, snap.EntityTypeFlags[panelconfig.EntitySensor])
	assert.Equal(t, map[string]bool{"100": false}, snap.DeviceOverrides)
}

func TestReload(t *testing.T) {
	s, dir := openStore(t)
	_, _ = s.UpdateDeviceOverride(ctx, "100", true)

	ok, err := s.Reload(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	snap, _ := s.GetConfig(ctx)
	assert.Empty(t, snap.DeviceOverrides, "in-memory default changes are dropped")

	writeFile(t, dir, InventoryFile, "devices: {broken")
	ok, err = s.Reload(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	snap, _ = s.GetConfig(ctx)
	assert.Len(t, snap.Devices, 2, "previous inventory kept")
}

func TestGetConfig_ReturnsCopy(t *testing.T) {
	s, _ := openStore(t)

	snap, _ := s.GetConfig(ctx)
	snap.DeviceOverrides["100"] = true
	snap.EntityTypeFlags[panelconfig.EntityScene] = true

	again, _ := s.GetConfig(ctx)
	assert.Empty(t, again.DeviceOverrides)
	assert.False(t, again.EntityTypeFlags[panelconfig.EntityScene])
}

func TestWriteExampleData(t *testing.T) {
	dir := t.TempDir()

	written, err := WriteExampleData(dir)
	require.NoError(t, err)
	assert.Len(t, written, 2)

	written, err = WriteExampleData(dir)
	require.NoError(t, err)
	assert.Empty(t, written, "existing files are kept")

	s, err := Open(dir)
	require.NoError(t, err)
	snap, _ := s.GetConfig(ctx)
	assert.Len(t, snap.Devices, 4)
}
