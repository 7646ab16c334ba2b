package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/hubcfg/internal/controller"
	"github.com/muurk/hubcfg/internal/panelconfig"
	"github.com/muurk/hubcfg/internal/ui"
	"github.com/muurk/hubcfg/internal/viewmodel"
)

// chrome is the number of terminal lines used around the tab body
// (container borders, header, buttons, tab bar, stats, footer).
const chrome = 14

// panelKeyMap defines key bindings for the panel screen
type panelKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	NextTab key.Binding
	PrevTab key.Binding
	Tab1    key.Binding
	Tab2    key.Binding
	Tab3    key.Binding
	Toggle  key.Binding
	Remove  key.Binding
	Search  key.Binding
	Default key.Binding
	Custom  key.Binding
	Reload  key.Binding
	Dismiss key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k panelKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.NextTab, k.Search, k.Remove, k.Reload, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k panelKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Toggle, k.Remove},
		{k.NextTab, k.PrevTab, k.Tab1, k.Tab2, k.Tab3},
		{k.Default, k.Custom, k.Reload},
		{k.Search, k.Dismiss, k.Help, k.Quit},
	}
}

// searchKeyMap defines key bindings while the search input has focus
type searchKeyMap struct {
	Confirm key.Binding
	Cancel  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k searchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Confirm, k.Cancel}
}

// FullHelp returns keybindings for the expanded help view
func (k searchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Confirm, k.Cancel}}
}

func newPanelKeyMap() panelKeyMap {
	return panelKeyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "move up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "move down")),
		NextTab: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next tab")),
		PrevTab: key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "previous tab")),
		Tab1:    key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "entities")),
		Tab2:    key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "overrides")),
		Tab3:    key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "devices")),
		Toggle:  key.NewBinding(key.WithKeys(" ", "enter"), key.WithHelp("space", "toggle")),
		Remove:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "remove override")),
		Search:  key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		Default: key.NewBinding(key.WithKeys("D"), key.WithHelp("D", "default profile")),
		Custom:  key.NewBinding(key.WithKeys("C"), key.WithHelp("C", "custom profile")),
		Reload:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		Dismiss: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "dismiss error")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// PanelModel is the interactive configuration panel. It renders the
// controller's views and turns key presses into controller commands.
type PanelModel struct {
	ctrl *controller.Controller
	cfg  *controller.PanelConfig
	host controller.Host

	Width  int
	Height int

	cursor map[viewmodel.Tab]int

	Searching   bool
	SearchInput textinput.Model
	ShowingHelp bool
	Quitting    bool

	Spinner    spinner.Model
	Help       help.Model
	Keys       panelKeyMap
	SearchKeys searchKeyMap
}

// NewPanelModel creates a panel bound to host. The controller is created
// here and initialized by Init.
func NewPanelModel(cfg *controller.PanelConfig, host controller.Host) PanelModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	search := textinput.New()
	search.Placeholder = "name, id or entity"
	search.Prompt = "Search: "
	search.PromptStyle = FocusedInputStyle
	search.CharLimit = 64
	search.Width = 40

	if cfg == nil {
		cfg = &controller.PanelConfig{Title: AppName}
	}

	return PanelModel{
		ctrl:        controller.New(),
		cfg:         cfg,
		host:        host,
		cursor:      make(map[viewmodel.Tab]int),
		SearchInput: search,
		Spinner:     s,
		Help:        help.New(),
		Keys:        newPanelKeyMap(),
		SearchKeys: searchKeyMap{
			Confirm: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "apply")),
			Cancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "clear")),
		},
	}
}

// Controller exposes the panel's controller.
func (m PanelModel) Controller() *controller.Controller {
	return m.ctrl
}

// Init attaches the configuration and host and starts the first load.
func (m PanelModel) Init() tea.Cmd {
	cfgCmd, err := m.ctrl.SetConfig(m.cfg)
	if err != nil {
		return nil
	}
	return tea.Batch(cfgCmd, m.ctrl.SetHost(m.host), m.Spinner.Tick)
}

// Update handles messages and updates the model
func (m PanelModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case controller.ConfigLoadedMsg, controller.MutationDoneMsg:
		cmd := m.ctrl.Update(msg)
		m.clampCursor()
		return m, cmd

	case controller.NotificationMsg:
		return m, nil

	case tea.KeyMsg:
		if m.ShowingHelp {
			m.ShowingHelp = false
			return m, nil
		}
		if m.Searching {
			return m.updateSearch(msg)
		}
		return m.updateNormal(msg)
	}
	return m, nil
}

func (m PanelModel) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	tab := m.ctrl.ActiveTab()

	switch {
	case key.Matches(msg, m.Keys.Quit):
		m.ctrl.Close()
		m.Quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.Keys.Help):
		m.ShowingHelp = true

	case key.Matches(msg, m.Keys.Dismiss):
		m.ctrl.DismissNotifications()

	case key.Matches(msg, m.Keys.Up):
		m.moveCursor(-1)

	case key.Matches(msg, m.Keys.Down):
		m.moveCursor(1)

	case key.Matches(msg, m.Keys.NextTab):
		m.ctrl.SetActiveTab(shiftTab(tab, 1))

	case key.Matches(msg, m.Keys.PrevTab):
		m.ctrl.SetActiveTab(shiftTab(tab, -1))

	case key.Matches(msg, m.Keys.Tab1):
		m.ctrl.SetActiveTab(viewmodel.TabEntities)

	case key.Matches(msg, m.Keys.Tab2):
		m.ctrl.SetActiveTab(viewmodel.TabOverrides)

	case key.Matches(msg, m.Keys.Tab3):
		m.ctrl.SetActiveTab(viewmodel.TabDevices)

	case key.Matches(msg, m.Keys.Default):
		return m, m.ctrl.SwitchProfile(panelconfig.ProfileDefault)

	case key.Matches(msg, m.Keys.Custom):
		return m, m.ctrl.SwitchProfile(panelconfig.ProfileCustom)

	case key.Matches(msg, m.Keys.Reload):
		return m, m.ctrl.ReloadFromSource()

	case key.Matches(msg, m.Keys.Toggle):
		return m, m.toggle()

	case key.Matches(msg, m.Keys.Remove):
		return m, m.remove()

	case key.Matches(msg, m.Keys.Search):
		if _, ok := tab.Scope(); ok {
			m.Searching = true
			m.SearchInput.SetValue(m.ctrl.SearchTerm(tab))
			m.SearchInput.CursorEnd()
			return m, m.SearchInput.Focus()
		}
	}
	return m, nil
}

func (m PanelModel) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	tab := m.ctrl.ActiveTab()

	switch {
	case key.Matches(msg, m.SearchKeys.Confirm):
		m.Searching = false
		m.SearchInput.Blur()
		return m, nil

	case key.Matches(msg, m.SearchKeys.Cancel):
		m.Searching = false
		m.SearchInput.Blur()
		m.SearchInput.SetValue("")
		m.ctrl.SetSearchTerm(tab, "")
		m.clampCursor()
		return m, nil
	}

	var cmd tea.Cmd
	m.SearchInput, cmd = m.SearchInput.Update(msg)
	if m.SearchInput.Value() != m.ctrl.SearchTerm(tab) {
		m.ctrl.SetSearchTerm(tab, m.SearchInput.Value())
		m.cursor[tab] = 0
	}
	return m, cmd
}

// toggle flips the flag under the cursor. Cards of devices without an
// override are read-only.
func (m PanelModel) toggle() tea.Cmd {
	views := m.ctrl.Views()
	tab := m.ctrl.ActiveTab()
	idx := m.cursor[tab]

	switch tab {
	case viewmodel.TabEntities:
		if idx < len(views.Entities.Rows) {
			row := views.Entities.Rows[idx]
			return m.ctrl.SetEntityTypeFlag(row.Type, !row.Dynamic)
		}
	default:
		card, ok := m.selectedCard()
		if ok && card.Interactive {
			return m.ctrl.SetDeviceOverride(card.Device.ID, !card.Dynamic)
		}
	}
	return nil
}

func (m PanelModel) remove() tea.Cmd {
	card, ok := m.selectedCard()
	if !ok || !card.Removable {
		return nil
	}
	return m.ctrl.RemoveDeviceOverride(card.Device.ID)
}

func (m PanelModel) selectedCard() (viewmodel.DeviceCard, bool) {
	tab := m.ctrl.ActiveTab()
	cards := m.cards(tab)
	idx := m.cursor[tab]
	if idx < 0 || idx >= len(cards) {
		return viewmodel.DeviceCard{}, false
	}
	return cards[idx], true
}

func (m PanelModel) cards(tab viewmodel.Tab) []viewmodel.DeviceCard {
	views := m.ctrl.Views()
	switch tab {
	case viewmodel.TabOverrides:
		return views.Overrides.Cards
	case viewmodel.TabDevices:
		return views.Devices.Cards
	}
	return nil
}

func (m PanelModel) itemCount(tab viewmodel.Tab) int {
	if tab == viewmodel.TabEntities {
		return len(m.ctrl.Views().Entities.Rows)
	}
	return len(m.cards(tab))
}

func (m *PanelModel) moveCursor(delta int) {
	tab := m.ctrl.ActiveTab()
	n := m.itemCount(tab)
	if n == 0 {
		m.cursor[tab] = 0
		return
	}
	m.cursor[tab] = (m.cursor[tab] + delta + n) % n
}

func (m *PanelModel) clampCursor() {
	for _, tab := range viewmodel.Tabs {
		n := m.itemCount(tab)
		if m.cursor[tab] >= n {
			m.cursor[tab] = max(n-1, 0)
		}
	}
}

// Cursor returns the selected row of tab.
func (m PanelModel) Cursor(tab viewmodel.Tab) int {
	return m.cursor[tab]
}

func shiftTab(tab viewmodel.Tab, delta int) viewmodel.Tab {
	n := len(viewmodel.Tabs)
	for i, t := range viewmodel.Tabs {
		if t == tab {
			return viewmodel.Tabs[(i+delta+n)%n]
		}
	}
	return viewmodel.TabEntities
}

// View renders the panel
func (m PanelModel) View() string {
	if m.Quitting {
		return ""
	}
	if m.ShowingHelp {
		return RenderModal(m.renderHelpModal(), m.Width, m.Height)
	}

	helpText := m.Help.View(m.Keys)
	if m.Searching {
		helpText = m.Help.View(m.SearchKeys)
	}
	return RenderApplicationContainer(m.cfg.Title, m.renderContent(), helpText, m.Width, m.Height)
}

func (m PanelModel) renderContent() string {
	var b strings.Builder

	b.WriteString(m.renderToolbar())
	b.WriteString("\n\n")
	b.WriteString(m.renderTabBar())
	b.WriteString("\n\n")

	if note, ok := m.ctrl.LastNotification(); ok {
		text := note.String()
		if hint := note.Hint(); hint != "" {
			text += "\n" + hint
		}
		b.WriteString(NotificationBoxStyle.Width(SafeModalWidth(70, m.Width)).Render(text))
		b.WriteString("\n")
	}

	if m.ctrl.Loading() && m.ctrl.Snapshot() == nil {
		b.WriteString(fmt.Sprintf("\n  %s Loading configuration...\n", m.Spinner.View()))
		return b.String()
	}

	switch m.ctrl.ActiveTab() {
	case viewmodel.TabOverrides:
		b.WriteString(m.renderOverrides())
	case viewmodel.TabDevices:
		b.WriteString(m.renderDevices())
	default:
		b.WriteString(m.renderEntities())
	}
	return b.String()
}

func (m PanelModel) renderToolbar() string {
	var parts []string
	for _, btn := range m.ctrl.ProfileButtons() {
		label := "[D] Default"
		if btn.Profile == panelconfig.ProfileCustom {
			label = "[C] Custom"
		}
		parts = append(parts, RenderButton(label, btn.Active))
	}
	parts = append(parts, InactiveButtonStyle.Render("[r] Reload"))
	if m.ctrl.Pending() {
		parts = append(parts, m.Spinner.View())
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m PanelModel) renderTabBar() string {
	active := m.ctrl.ActiveTab()
	var parts []string
	for i, t := range viewmodel.Tabs {
		parts = append(parts, RenderButton(fmt.Sprintf("%d %s", i+1, t.Label()), t == active))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m PanelModel) renderEntities() string {
	rows := m.ctrl.Views().Entities.Rows
	cursor := m.cursor[viewmodel.TabEntities]
	label := lipgloss.NewStyle().Width(16)

	var b strings.Builder
	for i, row := range rows {
		text := fmt.Sprintf("%s %s %s  %s", row.Glyph, label.Render(row.Label),
			ui.FlagText(row.Dynamic), ui.MutedStyle.Render(row.Caption))
		b.WriteString(RenderRow(text, i == cursor, true))
		b.WriteString("\n")
	}
	return b.String()
}

func (m PanelModel) renderOverrides() string {
	tab := m.ctrl.Views().Overrides
	stats := fmt.Sprintf("Total: %d  Dynamic: %d  Static: %d", tab.Stats.Total, tab.Stats.Dynamic, tab.Stats.Static)
	return m.renderCardList(viewmodel.TabOverrides, stats, tab.Cards, tab.Empty)
}

func (m PanelModel) renderDevices() string {
	tab := m.ctrl.Views().Devices
	stats := fmt.Sprintf("Total: %d  Dynamic: %d  Static: %d  Overrides: %d",
		tab.Stats.Total, tab.Stats.Dynamic, tab.Stats.Static, tab.Stats.Overrides)
	return m.renderCardList(viewmodel.TabDevices, stats, tab.Cards, tab.Empty)
}

func (m PanelModel) renderCardList(tab viewmodel.Tab, stats string, cards []viewmodel.DeviceCard, empty viewmodel.Placeholder) string {
	var b strings.Builder
	b.WriteString(SubtitleStyle.Render(stats))
	b.WriteString("\n")

	switch {
	case m.Searching:
		b.WriteString(m.SearchInput.View())
		b.WriteString("\n")
	case m.ctrl.SearchTerm(tab) != "":
		b.WriteString(ui.MutedStyle.Render(fmt.Sprintf("Search: %q  (/ to edit)", m.ctrl.SearchTerm(tab))))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(cards) == 0 {
		b.WriteString("  " + ui.MutedStyle.Render(empty.Text()) + "\n")
		return b.String()
	}

	cursor := m.cursor[tab]
	start, end := visibleWindow(len(cards), cursor, m.capacity())
	for i := start; i < end; i++ {
		c := cards[i]
		line := fmt.Sprintf("%s (%s)  %s  %s", c.Device.Name, c.Device.ID, ui.FlagText(c.Dynamic), ui.BadgeText(c.Badge))
		b.WriteString(RenderRow(line, i == cursor, c.Interactive))
		b.WriteString("\n")

		detail := "    " + c.Device.LinkedEntity
		if c.Removable {
			detail += "  x to remove"
		}
		b.WriteString(ui.MutedStyle.Render(detail))
		b.WriteString("\n")
	}
	if end-start < len(cards) {
		b.WriteString(ui.MutedStyle.Render(fmt.Sprintf("  %d-%d of %d", start+1, end, len(cards))))
		b.WriteString("\n")
	}
	return b.String()
}

// capacity is the number of two-line cards that fit in the body.
func (m PanelModel) capacity() int {
	h := m.Height
	if h <= 0 {
		h = DefaultTermHeight
	}
	return max((h-chrome)/2, 1)
}

// visibleWindow returns the [start, end) range of n items that keeps cursor
// on screen.
func visibleWindow(n, cursor, capacity int) (int, int) {
	if n <= capacity {
		return 0, n
	}
	start := 0
	if cursor >= capacity {
		start = cursor - capacity + 1
	}
	return start, start + capacity
}

func (m PanelModel) renderHelpModal() string {
	sub := lipgloss.NewStyle().Foreground(SecondaryColor).Bold(true)

	content := lipgloss.JoinVertical(lipgloss.Left,
		TitleStyle.Render("CONFIGURATION PANEL HELP"),
		"",
		sub.Render("Tabs:"),
		"  1 Entity Properties - dynamic flag per entity type",
		"  2 Device Overrides  - devices pinned to a value",
		"  3 All Devices       - effective state of every device",
		"",
		sub.Render("Badges:"),
		"  "+ui.BadgeText(viewmodel.BadgeOverride)+"    set on the device itself",
		"  "+ui.BadgeText(viewmodel.BadgeDynamicType)+"        inherited from the entity type",
		"  "+ui.BadgeText(viewmodel.BadgeFallback)+"           no rule applies",
		"",
		m.Help.FullHelpView(m.Keys.FullHelp()),
		"",
		"Press any key to close this help screen",
	)

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Padding(1, 2).
		Width(SafeModalWidth(76, m.Width)).
		Render(content)
}
