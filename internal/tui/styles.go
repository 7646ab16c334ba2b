package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/hubcfg/internal/ui"
	"github.com/muurk/hubcfg/internal/version"
)

// Application branding constants
const (
	AppName   = "HUBCFG CONFIGURATION PANEL"
	GitHubURL = "github.com/muurk/hubcfg"
)

// AppVersion returns the application version from the centralized version package
func AppVersion() string {
	return version.Version
}

// Layout constants for responsive terminal width
const (
	MinTerminalWidth  = 72 // Minimum supported terminal width
	DefaultTermHeight = 24
)

// Colors come from the CLI palette so both outputs look alike.
var (
	PrimaryColor   = ui.PrimaryColor
	SecondaryColor = ui.SuccessColor
	WarningColor   = ui.WarningColor
	ErrorColor     = ui.ErrorColor
	TextColor      = ui.TextColor
	SubtleColor    = ui.MutedColor
	BorderColor    = ui.PrimaryColor
	HighlightColor = ui.SuccessColor
)

var (
	// Title style - bold, primary colour
	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(SubtleColor).
			Italic(true)

	// Selected list row
	SelectedRowStyle = lipgloss.NewStyle().
				Foreground(HighlightColor).
				Bold(true)

	// Inactive rows (non-interactive cards)
	DisabledRowStyle = lipgloss.NewStyle().
				Foreground(SubtleColor)

	// Profile and tab buttons
	ActiveButtonStyle = lipgloss.NewStyle().
				Foreground(TextColor).
				Background(PrimaryColor).
				Bold(true).
				Padding(0, 1)

	InactiveButtonStyle = lipgloss.NewStyle().
				Foreground(SubtleColor).
				Padding(0, 1)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)

	// Notification box for the latest failure
	NotificationBoxStyle = lipgloss.NewStyle().
				Foreground(ErrorColor).
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ErrorColor).
				Padding(0, 1)

	// Search input prompt
	FocusedInputStyle = lipgloss.NewStyle().
				Foreground(PrimaryColor).
				Bold(true)
)

// RenderButton renders a profile or tab button.
func RenderButton(label string, active bool) string {
	if active {
		return ActiveButtonStyle.Render(label)
	}
	return InactiveButtonStyle.Render(label)
}

// RenderRow renders a list row with a selection indicator.
func RenderRow(text string, selected, enabled bool) string {
	switch {
	case selected:
		return SelectedRowStyle.Render("→ " + text)
	case !enabled:
		return DisabledRowStyle.Render("  " + text)
	}
	return "  " + text
}

// BuildHeaderContent creates header content with app name and GitHub URL
func BuildHeaderContent(title string) string {
	if title == "" {
		title = AppName
	}
	left := lipgloss.NewStyle().
		Foreground(TextColor).
		Bold(true).
		Render(title + " v" + AppVersion())

	right := lipgloss.NewStyle().
		Foreground(SubtleColor).
		Render(GitHubURL)

	return lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right)
}

// RenderApplicationContainer wraps a screen with the application header, a
// footer carrying help text and an outer border filling the terminal.
func RenderApplicationContainer(title, content, footerText string, terminalWidth, terminalHeight int) string {
	if terminalWidth < MinTerminalWidth {
		terminalWidth = MinTerminalWidth
	}
	if terminalHeight <= 0 {
		terminalHeight = DefaultTermHeight
	}

	headerStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Bottom: "─"}).
		BorderForeground(BorderColor).
		Width(terminalWidth-4).
		Padding(0, 1)

	footerStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Top: "─"}).
		BorderForeground(BorderColor).
		Width(terminalWidth-4).
		Padding(0, 1)

	contentStyle := lipgloss.NewStyle().
		Width(terminalWidth - 4)

	inner := lipgloss.JoinVertical(
		lipgloss.Left,
		headerStyle.Render(BuildHeaderContent(title)),
		contentStyle.Render(content),
		footerStyle.Render(lipgloss.NewStyle().Foreground(SubtleColor).Render(footerText)),
	)

	bordered := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(BorderColor).
		Width(terminalWidth - 2).
		Height(terminalHeight - 2).
		AlignVertical(lipgloss.Top).
		Render(inner)

	return lipgloss.Place(terminalWidth, terminalHeight, lipgloss.Left, lipgloss.Top, bordered)
}

// RenderModal centers modal content over a dimmed background.
func RenderModal(modalContent string, terminalWidth, terminalHeight int) string {
	if terminalWidth < MinTerminalWidth {
		terminalWidth = MinTerminalWidth
	}
	if terminalHeight <= 0 {
		terminalHeight = DefaultTermHeight
	}
	return lipgloss.Place(
		terminalWidth,
		terminalHeight,
		lipgloss.Center,
		lipgloss.Center,
		modalContent,
		lipgloss.WithWhitespaceChars("░"),
		lipgloss.WithWhitespaceForeground(lipgloss.Color("240")),
	)
}

// SafeModalWidth returns the smaller of requestedWidth and the terminal
// width minus a margin, never below 40.
func SafeModalWidth(requestedWidth, terminalWidth int) int {
	maxWidth := terminalWidth - 4
	if maxWidth < 40 {
		maxWidth = 40
	}
	if requestedWidth < maxWidth {
		return requestedWidth
	}
	return maxWidth
}
