// Package viewmodel derives the renderable data of the three panel tabs from
// a configuration snapshot. Every function here is pure.
package viewmodel

import (
	"fmt"

	"github.com/muurk/hubcfg/internal/filter"
	"github.com/muurk/hubcfg/internal/panelconfig"
)

// Tab identifies one of the panel tabs.
type Tab string

const (
	TabEntities  Tab = "entities"
	TabOverrides Tab = "overrides"
	TabDevices   Tab = "devices"
)

// Tabs lists the tabs in display order.
var Tabs = []Tab{TabEntities, TabOverrides, TabDevices}

// Label is the tab title.
func (t Tab) Label() string {
	switch t {
	case TabEntities:
		return "Entity Properties"
	case TabOverrides:
		return "Device Overrides"
	case TabDevices:
		return "All Devices"
	default:
		return string(t)
	}
}

// Scope maps a searchable tab to its filter scope.
func (t Tab) Scope() (filter.Scope, bool) {
	switch t {
	case TabOverrides:
		return filter.ScopeOverrides, true
	case TabDevices:
		return filter.ScopeAllDevices, true
	default:
		return "", false
	}
}

// ParseTab accepts the tab ids and a few short aliases.
func ParseTab(s string) (Tab, error) {
	switch s {
	case "entities", "entity", "types", "1":
		return TabEntities, nil
	case "overrides", "override", "2":
		return TabOverrides, nil
	case "devices", "all", "all-devices", "3":
		return TabDevices, nil
	}
	return "", fmt.Errorf("unknown tab %q", s)
}

// Placeholder replaces an empty list.
type Placeholder string

const (
	PlaceholderNone        Placeholder = ""
	PlaceholderNoOverrides Placeholder = "no-overrides"
	PlaceholderNoDevices   Placeholder = "no-devices"
	PlaceholderNoMatches   Placeholder = "no-matches"
)

// Text is the message shown in place of the list.
func (p Placeholder) Text() string {
	switch p {
	case PlaceholderNoOverrides:
		return "No specific device overrides"
	case PlaceholderNoDevices:
		return "No devices found"
	case PlaceholderNoMatches:
		return "No matching devices found"
	}
	return ""
}

// Badge classifies where a device's effective state comes from.
type Badge string

const (
	BadgeOverride    Badge = "override"
	BadgeDynamicType Badge = "dynamic-type"
	BadgeFallback    Badge = "fallback"
)

// Label is the badge caption.
func (b Badge) Label() string {
	switch b {
	case BadgeOverride:
		return "Manual Override"
	case BadgeDynamicType:
		return "Entity Type"
	default:
		return "Fallback"
	}
}

// Icon is the badge's material design icon id.
func (b Badge) Icon() string {
	switch b {
	case BadgeOverride:
		return "mdi:cog"
	case BadgeDynamicType:
		return "mdi:chart-line"
	default:
		return "mdi:help"
	}
}

// Caption describes a dynamic flag value.
func Caption(dynamic bool) string {
	if dynamic {
		return "Dynamic updates enabled"
	}
	return "Static (no frequent updates)"
}

// EntityRow is one line of the entity-properties tab.
type EntityRow struct {
	Type    panelconfig.EntityType `json:"type"`
	Icon    string                 `json:"icon"`
	Glyph   string                 `json:"-"`
	Label   string                 `json:"label"`
	Dynamic bool                   `json:"dynamic"`
	Caption string                 `json:"caption"`
}

// EntityTab is the entity-properties view.
type EntityTab struct {
	Rows []EntityRow `json:"rows"`
}

// DeviceCard is one device entry of the overrides or all-devices tab.
type DeviceCard struct {
	Device      panelconfig.Device `json:"device"`
	Dynamic     bool               `json:"dynamic"`
	Overridden  bool               `json:"overridden"`
	Badge       Badge              `json:"badge"`
	Interactive bool               `json:"interactive"`
	Removable   bool               `json:"removable"`
}

// OverrideStats summarises the override map.
type OverrideStats struct {
	Total   int `json:"total"`
	Dynamic int `json:"dynamic"`
	Static  int `json:"static"`
}

// OverridesTab is the device-overrides view.
type OverridesTab struct {
	Stats      OverrideStats `json:"stats"`
	SearchTerm string        `json:"search_term,omitempty"`
	Cards      []DeviceCard  `json:"cards"`
	Empty      Placeholder   `json:"empty,omitempty"`
}

// DeviceStats summarises the whole inventory by effective state.
type DeviceStats struct {
	Total     int `json:"total"`
	Dynamic   int `json:"dynamic"`
	Static    int `json:"static"`
	Overrides int `json:"overrides"`
}

// DevicesTab is the all-devices view.
type DevicesTab struct {
	Stats      DeviceStats  `json:"stats"`
	SearchTerm string       `json:"search_term,omitempty"`
	Cards      []DeviceCard `json:"cards"`
	Empty      Placeholder  `json:"empty,omitempty"`
}

// Views holds the three derived tab views.
type Views struct {
	Entities  EntityTab    `json:"entities"`
	Overrides OverridesTab `json:"overrides"`
	Devices   DevicesTab   `json:"devices"`
}
