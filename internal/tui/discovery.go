package tui

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/hubcfg/internal/discovery"
)

// Messages for async operations
type scanStartMsg struct{}
type scanCompleteMsg struct {
	services []*discovery.Service
	err      error
}

// ServiceSelectedMsg is emitted when the user picks a service.
type ServiceSelectedMsg struct {
	Service *discovery.Service
}

// discoveryKeyMap defines key bindings for the discovery screen
type discoveryKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Rescan key.Binding
	Manual key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k discoveryKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Enter, k.Rescan, k.Manual, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k discoveryKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Enter},
		{k.Rescan, k.Manual, k.Quit},
	}
}

// manualModeKeyMap defines key bindings for manual URL entry mode
type manualModeKeyMap struct {
	Confirm key.Binding
	Cancel  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (m manualModeKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{m.Confirm, m.Cancel}
}

// FullHelp returns keybindings for the expanded help view
func (m manualModeKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{m.Confirm, m.Cancel}}
}

// serviceItem wraps a Service for use with bubbles/list
type serviceItem struct {
	service *discovery.Service
}

// FilterValue implements list.Item
func (s serviceItem) FilterValue() string {
	return s.service.Instance + " " + s.service.IP + " " + s.service.Hostname
}

// Title returns the instance name for list display
func (s serviceItem) Title() string { return s.service.Instance }

// Description returns service details for list display
func (s serviceItem) Description() string {
	return fmt.Sprintf("%s • version %s", s.service.BaseURL(), s.service.Version())
}

// serviceDelegate renders services as bordered cards
type serviceDelegate struct {
	width int
}

func (d serviceDelegate) Height() int { return 6 }

func (d serviceDelegate) Spacing() int { return 1 }

func (d serviceDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d serviceDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	si, ok := item.(serviceItem)
	if !ok {
		return
	}
	svc := si.service
	selected := index == m.Index()

	var content strings.Builder
	if selected {
		content.WriteString(SelectedRowStyle.Render("→ " + svc.Instance))
	} else {
		content.WriteString("  " + svc.Instance)
	}
	content.WriteString("\n")
	content.WriteString(fmt.Sprintf("  URL:     %s\n", svc.BaseURL()))
	content.WriteString(fmt.Sprintf("  Version: %s", svc.Version()))

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BorderColor).
		Padding(0, 2).
		MarginLeft(2)

	cardWidth := max(d.width-6, MinTerminalWidth-6)
	cardStyle = cardStyle.Width(cardWidth)
	if selected {
		cardStyle = cardStyle.BorderForeground(HighlightColor)
	}

	fmt.Fprint(w, cardStyle.Render(content.String()))
}

// DiscoveryModel lists configuration services announced on the network.
type DiscoveryModel struct {
	Scanning    bool
	ServiceList list.Model
	Err         error
	ScanTimeout time.Duration

	ManualMode bool
	URLInput   textinput.Model

	Width         int
	Height        int
	Spinner       spinner.Model
	ProgressBar   progress.Model
	ScanStartTime time.Time
	Help          help.Model
	Keys          discoveryKeyMap
	ManualKeys    manualModeKeyMap

	scan func(ctx context.Context, timeout time.Duration) ([]*discovery.Service, error)
}

// NewDiscoveryModel creates a new discovery screen model
func NewDiscoveryModel(timeout time.Duration) DiscoveryModel {
	if timeout <= 0 {
		timeout = discovery.DefaultScanTimeout
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	urlInput := textinput.New()
	urlInput.Placeholder = "http://192.168.1.20:8099"
	urlInput.CharLimit = 128
	urlInput.Width = 40

	progressBar := progress.New(progress.WithDefaultGradient())
	progressBar.Width = 40

	serviceList := list.New([]list.Item{}, serviceDelegate{width: MinTerminalWidth}, 0, 0)
	serviceList.Title = "Configuration Services"
	serviceList.SetShowStatusBar(false)
	serviceList.SetFilteringEnabled(false)
	serviceList.Styles.Title = TitleStyle

	return DiscoveryModel{
		ServiceList: serviceList,
		ScanTimeout: timeout,
		URLInput:    urlInput,
		Spinner:     s,
		ProgressBar: progressBar,
		Help:        help.New(),
		Keys: discoveryKeyMap{
			Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "move up")),
			Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "move down")),
			Enter:  key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "open panel")),
			Rescan: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rescan")),
			Manual: key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "enter URL")),
			Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		},
		ManualKeys: manualModeKeyMap{
			Confirm: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "confirm")),
			Cancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		},
		scan: discovery.Scan,
	}
}

// Init starts scanning immediately
func (m DiscoveryModel) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return scanStartMsg{} },
		m.scanCmd(),
		m.Spinner.Tick,
	)
}

func (m DiscoveryModel) scanCmd() tea.Cmd {
	scan, timeout := m.scan, m.ScanTimeout
	return func() tea.Msg {
		services, err := scan(context.Background(), timeout)
		return scanCompleteMsg{services: services, err: err}
	}
}

// Update handles messages and updates the model
func (m DiscoveryModel) Update(msg tea.Msg) (DiscoveryModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.ManualMode {
			return m.updateManualMode(msg)
		}
		return m.updateNormalMode(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.ServiceList.SetDelegate(serviceDelegate{width: msg.Width})
		m.ServiceList.SetWidth(msg.Width - 4)
		m.ServiceList.SetHeight(msg.Height - 10)

	case scanStartMsg:
		m.Scanning = true
		m.ScanStartTime = time.Now()

	case scanCompleteMsg:
		m.Scanning = false
		m.Err = msg.err
		items := make([]list.Item, len(msg.services))
		for i, svc := range msg.services {
			items[i] = serviceItem{service: svc}
		}
		m.ServiceList.SetItems(items)

	case spinner.TickMsg:
		if !m.Scanning {
			return m, nil
		}
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	return m, cmd
}

func (m DiscoveryModel) updateNormalMode(msg tea.KeyMsg) (DiscoveryModel, tea.Cmd) {
	switch {
	case key.Matches(msg, m.Keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.Keys.Enter):
		if m.Scanning {
			return m, nil
		}
		if item, ok := m.ServiceList.SelectedItem().(serviceItem); ok {
			svc := item.service
			return m, func() tea.Msg { return ServiceSelectedMsg{Service: svc} }
		}

	case key.Matches(msg, m.Keys.Rescan):
		if m.Scanning {
			return m, nil
		}
		m.ServiceList.SetItems([]list.Item{})
		m.Err = nil
		return m, tea.Batch(
			func() tea.Msg { return scanStartMsg{} },
			m.scanCmd(),
			m.Spinner.Tick,
		)

	case key.Matches(msg, m.Keys.Manual):
		m.ManualMode = true
		m.URLInput.SetValue("")
		return m, m.URLInput.Focus()

	default:
		if !m.Scanning {
			var cmd tea.Cmd
			m.ServiceList, cmd = m.ServiceList.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

func (m DiscoveryModel) updateManualMode(msg tea.KeyMsg) (DiscoveryModel, tea.Cmd) {
	switch {
	case key.Matches(msg, m.ManualKeys.Cancel):
		m.ManualMode = false
		m.URLInput.SetValue("")
		m.URLInput.Blur()
		return m, nil

	case key.Matches(msg, m.ManualKeys.Confirm):
		svc, err := manualService(m.URLInput.Value())
		if err != nil {
			m.Err = err
			return m, nil
		}
		m.Err = nil
		items := append([]list.Item{serviceItem{service: svc}}, m.ServiceList.Items()...)
		m.ServiceList.SetItems(items)
		m.ServiceList.Select(0)
		m.ManualMode = false
		m.URLInput.SetValue("")
		m.URLInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.URLInput, cmd = m.URLInput.Update(msg)
	return m, cmd
}

// manualService turns a typed URL or host[:port] into a Service entry.
func manualService(raw string) (*discovery.Service, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("no address entered")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("invalid address %q", raw)
	}

	port := discovery.DefaultPort
	if p := u.Port(); p != "" {
		if _, err := fmt.Sscanf(p, "%d", &port); err != nil {
			return nil, fmt.Errorf("invalid port %q", p)
		}
	}
	return &discovery.Service{
		Instance:     "Manual: " + u.Host,
		Hostname:     u.Hostname(),
		IP:           u.Hostname(),
		Port:         port,
		Metadata:     map[string]string{},
		DiscoveredAt: time.Now(),
	}, nil
}

// View renders the discovery screen
func (m DiscoveryModel) View() string {
	var content, helpText string
	switch {
	case m.ManualMode:
		content = m.renderManualEntry()
		helpText = m.Help.View(m.ManualKeys)
	case m.Scanning:
		content = m.renderScanning()
		helpText = m.Help.View(m.Keys)
	default:
		content = m.renderResults()
		helpText = m.Help.View(m.Keys)
	}
	return RenderApplicationContainer(AppName, content, helpText, m.Width, m.Height)
}

func (m DiscoveryModel) renderScanning() string {
	width := m.Width
	if width == 0 {
		width = MinTerminalWidth
	}
	elapsed := time.Since(m.ScanStartTime)
	fraction := 0.0
	if m.ScanTimeout > 0 {
		fraction = min(1, elapsed.Seconds()/m.ScanTimeout.Seconds())
	}

	content := lipgloss.JoinVertical(lipgloss.Center,
		"",
		TitleStyle.Render(fmt.Sprintf("%s SEARCHING FOR CONFIGURATION SERVICES", m.Spinner.View())),
		"",
		SubtitleStyle.Render("Browsing "+discovery.ServiceType+" on the local network..."),
		"",
		m.ProgressBar.ViewAs(fraction),
		"",
		SubtitleStyle.Render(fmt.Sprintf("Elapsed: %ds", int(elapsed.Seconds()))),
		"",
	)
	return lipgloss.Place(width, 0, lipgloss.Center, lipgloss.Top, content)
}

func (m DiscoveryModel) renderResults() string {
	var b strings.Builder
	b.WriteString("\n")

	if m.Err != nil {
		b.WriteString(NotificationBoxStyle.Render("✗ " + m.Err.Error()))
		b.WriteString("\n\n")
	}

	if len(m.ServiceList.Items()) == 0 {
		warning := lipgloss.NewStyle().Foreground(WarningColor).Bold(true)
		b.WriteString("  " + warning.Render("⚠ No configuration services found"))
		b.WriteString("\n\n")
		b.WriteString("  Troubleshooting:\n")
		b.WriteString("    • Start the server with 'hubcfg-server serve --advertise'\n")
		b.WriteString("    • Multicast DNS may be blocked between networks\n")
		b.WriteString("    • Press 'm' to enter the service URL by hand\n")
		return b.String()
	}

	b.WriteString(m.ServiceList.View())
	return b.String()
}

func (m DiscoveryModel) renderManualEntry() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(SubtitleStyle.Render("Enter the configuration service address"))
	b.WriteString("\n\n  URL: ")
	b.WriteString(m.URLInput.View())
	b.WriteString("\n")
	if m.Err != nil {
		b.WriteString("\n  " + lipgloss.NewStyle().Foreground(ErrorColor).Render(m.Err.Error()) + "\n")
	}
	return b.String()
}
