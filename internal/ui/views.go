package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/hubcfg/internal/panelconfig"
	"github.com/muurk/hubcfg/internal/viewmodel"
)

// Format selects how a tab is printed.
type Format string

const (
	FormatDetailed Format = "detailed"
	FormatCompact  Format = "compact"
	FormatJSON     Format = "json"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatDetailed, FormatCompact, FormatJSON:
		return Format(s), nil
	case "":
		return FormatDetailed, nil
	}
	return "", fmt.Errorf("unknown format %q (want detailed, compact or json)", s)
}

// BadgeText renders a device source badge.
func BadgeText(b viewmodel.Badge) string {
	color := MutedColor
	switch b {
	case viewmodel.BadgeOverride:
		color = WarningColor
	case viewmodel.BadgeDynamicType:
		color = SuccessColor
	}
	return BadgeStyle.Foreground(color).Render("[" + b.Label() + "]")
}

// RenderTab prints one tab of views.
func RenderTab(views *viewmodel.Views, tab viewmodel.Tab, f Format) string {
	switch tab {
	case viewmodel.TabOverrides:
		return RenderOverridesTab(views.Overrides, f)
	case viewmodel.TabDevices:
		return RenderDevicesTab(views.Devices, f)
	default:
		return RenderEntityTab(views.Entities, f)
	}
}

// RenderEntityTab prints the entity-properties tab.
func RenderEntityTab(tab viewmodel.EntityTab, f Format) string {
	var b strings.Builder
	b.WriteString(SectionTitleStyle.Render(viewmodel.TabEntities.Label()))
	b.WriteString("\n\n")

	label := lipgloss.NewStyle().Width(16)
	for _, row := range tab.Rows {
		fmt.Fprintf(&b, "  %s %s %s\n", row.Glyph, label.Render(row.Label), FlagText(row.Dynamic))
		if f == FormatCompact {
			continue
		}
		fmt.Fprintf(&b, "     %s\n", MutedStyle.Render(string(row.Type)+" · "+row.Caption))
	}
	return b.String()
}

// RenderOverridesTab prints the device-overrides tab.
func RenderOverridesTab(tab viewmodel.OverridesTab, f Format) string {
	var b strings.Builder
	b.WriteString(SectionTitleStyle.Render(viewmodel.TabOverrides.Label()))
	b.WriteString("\n")
	b.WriteString(MutedStyle.Render(fmt.Sprintf("Total: %d  Dynamic: %d  Static: %d",
		tab.Stats.Total, tab.Stats.Dynamic, tab.Stats.Static)))
	b.WriteString("\n")
	writeSearch(&b, tab.SearchTerm)
	b.WriteString("\n")
	writeCards(&b, tab.Cards, tab.Empty, f)
	return b.String()
}

// RenderDevicesTab prints the all-devices tab.
func RenderDevicesTab(tab viewmodel.DevicesTab, f Format) string {
	var b strings.Builder
	b.WriteString(SectionTitleStyle.Render(viewmodel.TabDevices.Label()))
	b.WriteString("\n")
	b.WriteString(MutedStyle.Render(fmt.Sprintf("Total: %d  Dynamic: %d  Static: %d  Overrides: %d",
		tab.Stats.Total, tab.Stats.Dynamic, tab.Stats.Static, tab.Stats.Overrides)))
	b.WriteString("\n")
	writeSearch(&b, tab.SearchTerm)
	b.WriteString("\n")
	writeCards(&b, tab.Cards, tab.Empty, f)
	return b.String()
}

func writeSearch(b *strings.Builder, term string) {
	if term != "" {
		b.WriteString(MutedStyle.Render(fmt.Sprintf("Search: %q", term)))
		b.WriteString("\n")
	}
}

func writeCards(b *strings.Builder, cards []viewmodel.DeviceCard, empty viewmodel.Placeholder, f Format) {
	if len(cards) == 0 {
		b.WriteString("  ")
		b.WriteString(MutedStyle.Render(empty.Text()))
		b.WriteString("\n")
		return
	}
	for _, c := range cards {
		b.WriteString(RenderCard(c, f))
	}
}

// RenderCard prints one device card.
func RenderCard(c viewmodel.DeviceCard, f Format) string {
	name := lipgloss.NewStyle().Bold(true).Render(c.Device.Name)
	if f == FormatCompact {
		return fmt.Sprintf("  %s (%s)  %s  %s\n", name, c.Device.ID, FlagText(c.Dynamic), BadgeText(c.Badge))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "  %s  %s\n", name, BadgeText(c.Badge))
	details := fmt.Sprintf("ID: %s | Category: %s", c.Device.ID, categoryText(c.Device))
	if c.Device.LinkedEntity != "" {
		details += " | Entity: " + c.Device.LinkedEntity
	}
	fmt.Fprintf(&b, "     %s\n", MutedStyle.Render(details))
	state := FlagText(c.Dynamic)
	if c.Removable {
		state += MutedStyle.Render("  (removable)")
	}
	fmt.Fprintf(&b, "     %s\n", state)
	return b.String()
}

func categoryText(d panelconfig.Device) string {
	if d.CategoryID == "" {
		return "-"
	}
	return string(d.CategoryID)
}
