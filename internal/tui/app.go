package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/muurk/hubcfg/internal/controller"
	"github.com/muurk/hubcfg/internal/discovery"
	"github.com/muurk/hubcfg/internal/logging"
	"github.com/muurk/hubcfg/internal/panelconfig"
)

// Screen represents the current active screen in the application
type Screen string

const (
	ScreenDiscovery Screen = "discovery"
	ScreenPanel     Screen = "panel"
)

// ConnectFunc opens the configuration service at serviceURL.
type ConnectFunc func(serviceURL string) (panelconfig.Service, error)

// AppModel is the top-level model. It either starts on the panel directly or
// lets the user pick a service first.
type AppModel struct {
	CurrentScreen Screen

	Discovery DiscoveryModel
	Panel     PanelModel

	// Selected is the service picked on the discovery screen.
	Selected *discovery.Service

	cfg     *controller.PanelConfig
	connect ConnectFunc
	closer  func()

	Width  int
	Height int
}

// NewPanelApp starts directly on the panel for svc.
func NewPanelApp(cfg *controller.PanelConfig, svc panelconfig.Service) AppModel {
	return AppModel{
		CurrentScreen: ScreenPanel,
		Panel:         NewPanelModel(cfg, controller.StaticHost(svc)),
		cfg:           cfg,
	}
}

// NewDiscoveryApp starts on the discovery screen and opens the panel for the
// chosen service through connect.
func NewDiscoveryApp(cfg *controller.PanelConfig, screen DiscoveryModel, connect ConnectFunc) AppModel {
	return AppModel{
		CurrentScreen: ScreenDiscovery,
		Discovery:     screen,
		cfg:           cfg,
		connect:       connect,
	}
}

// Init initializes the current screen
func (m AppModel) Init() tea.Cmd {
	if m.CurrentScreen == ScreenDiscovery {
		return m.Discovery.Init()
	}
	return m.Panel.Init()
}

// Update routes messages to the active screen
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if ws, ok := msg.(tea.WindowSizeMsg); ok {
		m.Width, m.Height = ws.Width, ws.Height
	}

	if sel, ok := msg.(ServiceSelectedMsg); ok {
		return m.openPanel(sel.Service)
	}

	switch m.CurrentScreen {
	case ScreenDiscovery:
		var cmd tea.Cmd
		m.Discovery, cmd = m.Discovery.Update(msg)
		return m, cmd
	default:
		model, cmd := m.Panel.Update(msg)
		m.Panel = model.(PanelModel)
		if m.Panel.Quitting {
			m.close()
		}
		return m, cmd
	}
}

func (m AppModel) openPanel(svc *discovery.Service) (tea.Model, tea.Cmd) {
	if m.connect == nil || svc == nil {
		return m, nil
	}
	service, err := m.connect(svc.BaseURL())
	if err != nil {
		logging.Warn("Failed to open service", zap.String("url", svc.BaseURL()), zap.Error(err))
		m.Discovery.Err = err
		return m, nil
	}
	if c, ok := service.(interface{ Close() error }); ok {
		m.closer = func() { _ = c.Close() }
	}

	m.Selected = svc
	m.CurrentScreen = ScreenPanel
	m.Panel = NewPanelModel(m.cfg, controller.StaticHost(service))
	m.Panel.Width, m.Panel.Height = m.Width, m.Height
	m.Panel.Help.Width = m.Width
	return m, m.Panel.Init()
}

func (m AppModel) close() {
	if m.closer != nil {
		m.closer()
	}
}

// View renders the active screen
func (m AppModel) View() string {
	if m.CurrentScreen == ScreenDiscovery {
		return m.Discovery.View()
	}
	return m.Panel.View()
}
