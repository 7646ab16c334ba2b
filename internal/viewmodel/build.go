package viewmodel

import (
	"strings"

	"github.com/muurk/hubcfg/internal/filter"
	"github.com/muurk/hubcfg/internal/panelconfig"
)

type entityInfo struct {
	icon  string
	glyph string
	label string
}

// entityTable is the fixed presentation of the known entity types.
var entityTable = map[panelconfig.EntityType]entityInfo{
	panelconfig.EntityLight:        {"mdi:lightbulb", "💡", "Lights"},
	panelconfig.EntitySwitch:       {"mdi:toggle-switch", "🔘", "Switches"},
	panelconfig.EntityBinarySensor: {"mdi:eye", "👁", "Binary Sensors"},
	panelconfig.EntitySensor:       {"mdi:chart-line", "📈", "Sensors"},
	panelconfig.EntityClimate:      {"mdi:thermostat", "🌡", "Climate"},
	panelconfig.EntityCover:        {"mdi:window-shutter", "🪟", "Covers"},
	panelconfig.EntitySelect:       {"mdi:form-dropdown", "📋", "Selects"},
	panelconfig.EntityScene:        {"mdi:palette", "🎨", "Scenes"},
}

// BuildEntityTab lists the eight known entity types with their flags.
func BuildEntityTab(snap *panelconfig.Snapshot) EntityTab {
	flags := snap.PresentedFlags()
	rows := make([]EntityRow, 0, len(panelconfig.KnownEntityTypes))
	for _, t := range panelconfig.KnownEntityTypes {
		info := entityTable[t]
		rows = append(rows, EntityRow{
			Type:    t,
			Icon:    info.icon,
			Glyph:   info.glyph,
			Label:   info.label,
			Dynamic: flags[t],
			Caption: Caption(flags[t]),
		})
	}
	return EntityTab{Rows: rows}
}

// BuildOverridesTab derives the overrides view. Stats count every override
// entry; the list only holds inventory devices that match term.
func BuildOverridesTab(snap *panelconfig.Snapshot, term string) OverridesTab {
	tab := OverridesTab{SearchTerm: term}
	if snap == nil {
		tab.Empty = PlaceholderNoOverrides
		return tab
	}

	for _, v := range snap.DeviceOverrides {
		tab.Stats.Total++
		if v {
			tab.Stats.Dynamic++
		} else {
			tab.Stats.Static++
		}
	}

	for _, d := range filter.Filter(snap.Devices, term, filter.ScopeOverrides, snap.DeviceOverrides) {
		tab.Cards = append(tab.Cards, DeviceCard{
			Device:      d,
			Dynamic:     snap.DeviceOverrides[d.ID],
			Overridden:  true,
			Badge:       BadgeOverride,
			Interactive: true,
			Removable:   true,
		})
	}

	switch {
	case tab.Stats.Total == 0:
		tab.Empty = PlaceholderNoOverrides
	case len(tab.Cards) == 0 && strings.TrimSpace(term) != "":
		tab.Empty = PlaceholderNoMatches
	case len(tab.Cards) == 0:
		// overrides exist only for ids missing from the inventory
		tab.Empty = PlaceholderNoOverrides
	}
	return tab
}

// BuildDevicesTab derives the all-devices view. Stats cover the whole
// inventory regardless of term.
func BuildDevicesTab(snap *panelconfig.Snapshot, term string) DevicesTab {
	tab := DevicesTab{SearchTerm: term}
	if snap == nil {
		tab.Empty = PlaceholderNoDevices
		return tab
	}

	tab.Stats.Total = len(snap.Devices)
	tab.Stats.Overrides = len(snap.DeviceOverrides)
	for _, d := range snap.Devices {
		if snap.EffectiveDynamic(d) {
			tab.Stats.Dynamic++
		} else {
			tab.Stats.Static++
		}
	}

	for _, d := range filter.Filter(snap.Devices, term, filter.ScopeAllDevices, nil) {
		tab.Cards = append(tab.Cards, deviceCard(snap, d))
	}

	switch {
	case len(snap.Devices) == 0:
		tab.Empty = PlaceholderNoDevices
	case len(tab.Cards) == 0:
		tab.Empty = PlaceholderNoMatches
	}
	return tab
}

func deviceCard(snap *panelconfig.Snapshot, d panelconfig.Device) DeviceCard {
	overridden := snap.IsOverridden(d.ID)
	card := DeviceCard{
		Device:      d,
		Dynamic:     snap.EffectiveDynamic(d),
		Overridden:  overridden,
		Interactive: overridden,
		Removable:   overridden,
	}
	switch {
	case overridden:
		card.Badge = BadgeOverride
	case d.DynamicByDefault:
		card.Badge = BadgeDynamicType
	default:
		card.Badge = BadgeFallback
	}
	return card
}

// BuildAll derives every tab.
func BuildAll(snap *panelconfig.Snapshot, overridesTerm, devicesTerm string) Views {
	return Views{
		Entities:  BuildEntityTab(snap),
		Overrides: BuildOverridesTab(snap, overridesTerm),
		Devices:   BuildDevicesTab(snap, devicesTerm),
	}
}

// Rebuild re-derives a single tab in place. It reports a RenderPrecondition
// error when there is no snapshot yet or the tab is unknown.
func Rebuild(views *Views, tab Tab, snap *panelconfig.Snapshot, term string) error {
	if views == nil || snap == nil {
		return panelconfig.NewRenderError("no snapshot to render " + string(tab))
	}
	switch tab {
	case TabEntities:
		views.Entities = BuildEntityTab(snap)
	case TabOverrides:
		views.Overrides = BuildOverridesTab(snap, term)
	case TabDevices:
		views.Devices = BuildDevicesTab(snap, term)
	default:
		return panelconfig.NewRenderError("unknown tab " + string(tab))
	}
	return nil
}
