// Package filter narrows the device inventory for the searchable tabs.
package filter

import (
	"strings"

	"github.com/muurk/hubcfg/internal/panelconfig"
)

// Scope selects which devices are candidates and which fields are searched.
type Scope string

const (
	// ScopeOverrides: only devices with an override; name and id are searched.
	ScopeOverrides Scope = "overrides"
	// ScopeAllDevices: every device; name, id and linked entity are searched.
	ScopeAllDevices Scope = "all-devices"
)

// Filter returns the devices of scope whose searched fields contain term,
// case-insensitively. Order is preserved and the input is not modified. An
// empty term matches every candidate.
func Filter(devices []panelconfig.Device, term string, scope Scope, overrides map[string]bool) []panelconfig.Device {
	needle := strings.ToLower(strings.TrimSpace(term))

	out := make([]panelconfig.Device, 0, len(devices))
	for _, d := range devices {
		if scope == ScopeOverrides {
			if _, ok := overrides[d.ID]; !ok {
				continue
			}
		}
		if needle == "" || matches(d, needle, scope) {
			out = append(out, d)
		}
	}
	return out
}

func matches(d panelconfig.Device, needle string, scope Scope) bool {
	if contains(d.Name, needle) || contains(d.ID, needle) {
		return true
	}
	return scope == ScopeAllDevices && contains(d.LinkedEntity, needle)
}

func contains(field, needle string) bool {
	return strings.Contains(strings.ToLower(field), needle)
}
