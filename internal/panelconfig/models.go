package panelconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EntityType is a category of hub entity (light, sensor, ...).
type EntityType string

// The eight entity types the panel knows how to present.
const (
	EntityLight        EntityType = "light"
	EntitySwitch       EntityType = "switch"
	EntityBinarySensor EntityType = "binary_sensor"
	EntitySensor       EntityType = "sensor"
	EntityClimate      EntityType = "climate"
	EntityCover        EntityType = "cover"
	EntitySelect       EntityType = "select"
	EntityScene        EntityType = "scene"
)

// KnownEntityTypes lists the presented entity types in display order.
var KnownEntityTypes = []EntityType{
	EntityLight,
	EntitySwitch,
	EntityBinarySensor,
	EntitySensor,
	EntityClimate,
	EntityCover,
	EntitySelect,
	EntityScene,
}

// IsKnown reports whether t is one of KnownEntityTypes.
func (t EntityType) IsKnown() bool {
	for _, k := range KnownEntityTypes {
		if k == t {
			return true
		}
	}
	return false
}

// ParseEntityType validates a user-supplied entity type name.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsKnown() {
		return "", fmt.Errorf("unknown entity type %q", s)
	}
	return t, nil
}

// EntityTypeOf derives the entity type from a linked entity reference such as
// "light.kitchen" or a bare "light".
func EntityTypeOf(linkedEntity string) EntityType {
	if i := strings.IndexByte(linkedEntity, '.'); i >= 0 {
		return EntityType(linkedEntity[:i])
	}
	return EntityType(linkedEntity)
}

// Profile names a configuration profile on the service.
type Profile string

const (
	ProfileDefault Profile = "default"
	ProfileCustom  Profile = "custom"
)

// Profiles lists the profiles that get a selector button.
var Profiles = []Profile{ProfileDefault, ProfileCustom}

// IsKnown reports whether p is default or custom. Unknown profiles reported by
// the service are kept verbatim.
func (p Profile) IsKnown() bool {
	return p == ProfileDefault || p == ProfileCustom
}

// CategoryID is the hub's usage category. The service sends it either as a
// JSON string or a number; it is kept in its textual form.
type CategoryID string

// UnmarshalJSON accepts strings, numbers and null.
func (c *CategoryID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = CategoryID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("usage_id: %w", err)
	}
	*c = CategoryID(n.String())
	return nil
}

// MarshalJSON writes ids in canonical integer form as numbers. Anything
// else, such as "007" or "+5", stays a string.
func (c CategoryID) MarshalJSON() ([]byte, error) {
	if c == "" {
		return []byte("null"), nil
	}
	if n, err := strconv.ParseInt(string(c), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(c) {
		return []byte(c), nil
	}
	return json.Marshal(string(c))
}

// Device is one entry of the read-only device inventory.
type Device struct {
	ID               string     `json:"periph_id" yaml:"periph_id"`
	Name             string     `json:"name" yaml:"name"`
	LinkedEntity     string     `json:"ha_entity" yaml:"ha_entity"`
	CategoryID       CategoryID `json:"usage_id" yaml:"usage_id"`
	DynamicByDefault bool       `json:"is_dynamic" yaml:"-"`
}

// String returns a one-line summary of the device.
func (d Device) String() string {
	return fmt.Sprintf("%s (%s) -> %s", d.Name, d.ID, d.LinkedEntity)
}

// Snapshot is the configuration state returned by the service. A Snapshot is
// replaced wholesale on every fetch and never patched in place.
type Snapshot struct {
	ActiveProfile   Profile             `json:"current_config"`
	EntityTypeFlags map[EntityType]bool `json:"dynamic_entity_properties"`
	DeviceOverrides map[string]bool     `json:"specific_device_overrides"`
	Devices         []Device            `json:"devices"`
}

// PresentedFlags returns exactly the eight known entity types. Missing keys
// read as false and unknown keys are dropped.
func (s *Snapshot) PresentedFlags() map[EntityType]bool {
	out := make(map[EntityType]bool, len(KnownEntityTypes))
	for _, t := range KnownEntityTypes {
		out[t] = s != nil && s.EntityTypeFlags[t]
	}
	return out
}

// IsOverridden reports whether the device id has a manual override.
func (s *Snapshot) IsOverridden(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.DeviceOverrides[id]
	return ok
}

// EffectiveDynamic is the override when one exists, otherwise the device's
// own default.
func (s *Snapshot) EffectiveDynamic(d Device) bool {
	if s != nil {
		if v, ok := s.DeviceOverrides[d.ID]; ok {
			return v
		}
	}
	return d.DynamicByDefault
}

// Device looks up a device by id.
func (s *Snapshot) Device(id string) (Device, bool) {
	if s == nil {
		return Device{}, false
	}
	for _, d := range s.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := &Snapshot{
		ActiveProfile:   s.ActiveProfile,
		EntityTypeFlags: make(map[EntityType]bool, len(s.EntityTypeFlags)),
		DeviceOverrides: make(map[string]bool, len(s.DeviceOverrides)),
		Devices:         append([]Device(nil), s.Devices...),
	}
	for k, v := range s.EntityTypeFlags {
		c.EntityTypeFlags[k] = v
	}
	for k, v := range s.DeviceOverrides {
		c.DeviceOverrides[k] = v
	}
	return c
}

// normalize replaces nil maps so that callers can index freely.
func (s *Snapshot) normalize() {
	if s.EntityTypeFlags == nil {
		s.EntityTypeFlags = map[EntityType]bool{}
	}
	if s.DeviceOverrides == nil {
		s.DeviceOverrides = map[string]bool{}
	}
}

// DecodeSnapshot parses the wire form of a snapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	s.normalize()
	return &s, nil
}
