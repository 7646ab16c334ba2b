package controller

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/muurk/hubcfg/internal/logging"
	"github.com/muurk/hubcfg/internal/panelconfig"
	"github.com/muurk/hubcfg/internal/viewmodel"
)

// maxNotifications bounds the notification history.
const maxNotifications = 20

// Host provides the Configuration Service once it is available. The second
// return value is false while there is nothing to talk to.
type Host interface {
	ConfigService() (panelconfig.Service, bool)
}

// HostFunc adapts a function to Host.
type HostFunc func() (panelconfig.Service, bool)

// ConfigService implements Host.
func (f HostFunc) ConfigService() (panelconfig.Service, bool) { return f() }

// StaticHost always offers the same service. A nil service is reported as
// unavailable.
func StaticHost(svc panelconfig.Service) Host {
	return HostFunc(func() (panelconfig.Service, bool) { return svc, svc != nil })
}

// PanelConfig is the panel's own configuration.
type PanelConfig struct {
	Title      string
	DefaultTab viewmodel.Tab
}

// ProfileButton is the state of one profile selector.
type ProfileButton struct {
	Profile panelconfig.Profile
	Active  bool
}

// Controller owns the configuration snapshot and the transient panel state.
// All methods must be called from the same goroutine (the bubbletea update
// loop); service calls run inside the returned commands and come back as
// messages passed to Update.
type Controller struct {
	cfg  *PanelConfig
	host Host

	snapshot      *panelconfig.Snapshot
	activeProfile panelconfig.Profile
	activeTab     viewmodel.Tab
	terms         map[viewmodel.Tab]string
	loading       bool
	views         viewmodel.Views

	notifications []Notification

	// in-flight commands keyed by op and target
	inFlight       map[string]bool
	refreshPending bool

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

// New creates a detached controller. It does nothing until both SetConfig and
// SetHost have been called.
func New() *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		activeTab: viewmodel.TabEntities,
		terms:     make(map[viewmodel.Tab]string),
		views:     viewmodel.BuildAll(nil, "", ""),
		inFlight:  make(map[string]bool),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetConfig stores the panel configuration and initializes.
func (c *Controller) SetConfig(cfg *PanelConfig) (tea.Cmd, error) {
	if cfg == nil {
		return nil, errors.New("configuration not provided")
	}
	c.cfg = cfg
	if cfg.DefaultTab != "" {
		c.SetActiveTab(cfg.DefaultTab)
	}
	return c.Initialize(), nil
}

// SetHost attaches the host. Every attachment re-runs Initialize.
func (c *Controller) SetHost(h Host) tea.Cmd {
	c.host = h
	if h == nil {
		return nil
	}
	return c.Initialize()
}

// Initialize starts the first load. It is a no-op until config and host are
// both present.
func (c *Controller) Initialize() tea.Cmd {
	if c.closed.Load() || c.cfg == nil || c.host == nil {
		return nil
	}
	c.loading = true
	return c.Refresh()
}

// Refresh fetches a full snapshot. A refresh requested while another is in
// flight is queued and issued once the first resolves.
func (c *Controller) Refresh() tea.Cmd {
	if c.closed.Load() {
		return nil
	}
	svc, ok := c.service()
	if !ok {
		c.loading = false
		return c.notify(panelconfig.OpGetConfig, "", "", panelconfig.NewNoHandleError())
	}

	key := string(panelconfig.OpGetConfig)
	if c.inFlight[key] {
		c.refreshPending = true
		return nil
	}
	c.inFlight[key] = true
	c.loading = true

	ctx := c.ctx
	return func() tea.Msg {
		snap, err := svc.GetConfig(ctx)
		return ConfigLoadedMsg{owner: c, Snapshot: snap, Err: err}
	}
}

// SwitchProfile asks the service to activate profile. The profile buttons
// only change once the service acknowledges.
func (c *Controller) SwitchProfile(profile panelconfig.Profile) tea.Cmd {
	return c.mutation(panelconfig.OpSwitchProfile, string(profile), "", func(ctx context.Context, svc panelconfig.Service) (bool, error) {
		return svc.SwitchProfile(ctx, profile)
	})
}

// ReloadFromSource asks the service to reload its backing files.
func (c *Controller) ReloadFromSource() tea.Cmd {
	return c.mutation(panelconfig.OpReload, "", "", func(ctx context.Context, svc panelconfig.Service) (bool, error) {
		return svc.Reload(ctx)
	})
}

// SetEntityTypeFlag persists the dynamic flag of an entity type.
func (c *Controller) SetEntityTypeFlag(t panelconfig.EntityType, dynamic bool) tea.Cmd {
	return c.mutation(panelconfig.OpUpdateEntityType, string(t), flagDetail(dynamic), func(ctx context.Context, svc panelconfig.Service) (bool, error) {
		return svc.UpdateEntityTypeFlag(ctx, t, dynamic)
	})
}

// SetDeviceOverride creates or replaces a device override.
func (c *Controller) SetDeviceOverride(id string, dynamic bool) tea.Cmd {
	return c.mutation(panelconfig.OpUpdateDeviceOverride, id, flagDetail(dynamic), func(ctx context.Context, svc panelconfig.Service) (bool, error) {
		return svc.UpdateDeviceOverride(ctx, id, dynamic)
	})
}

// RemoveDeviceOverride deletes a device override.
func (c *Controller) RemoveDeviceOverride(id string) tea.Cmd {
	return c.mutation(panelconfig.OpRemoveDeviceOverride, id, "", func(ctx context.Context, svc panelconfig.Service) (bool, error) {
		return svc.RemoveDeviceOverride(ctx, id)
	})
}

type serviceCall func(ctx context.Context, svc panelconfig.Service) (bool, error)

func (c *Controller) mutation(op panelconfig.Op, target, detail string, call serviceCall) tea.Cmd {
	if c.closed.Load() {
		return nil
	}
	svc, ok := c.service()
	if !ok {
		return c.notify(op, target, detail, panelconfig.NewNoHandleError())
	}

	key := string(op) + ":" + target
	if c.inFlight[key] {
		logging.Debug("Ignoring duplicate command", zap.String("op", string(op)), zap.String("target", target))
		return nil
	}
	c.inFlight[key] = true

	ctx := c.ctx
	return func() tea.Msg {
		ok, err := call(ctx, svc)
		return MutationDoneMsg{owner: c, Op: op, Target: target, Detail: detail, OK: ok, Err: err}
	}
}

// Update applies a command result. Messages from another controller, or
// arriving after Close, are ignored.
func (c *Controller) Update(msg tea.Msg) tea.Cmd {
	switch m := msg.(type) {
	case ConfigLoadedMsg:
		if m.owner != c || c.closed.Load() {
			return nil
		}
		return c.applyLoaded(m)
	case MutationDoneMsg:
		if m.owner != c || c.closed.Load() {
			return nil
		}
		return c.applyMutation(m)
	}
	return nil
}

func (c *Controller) applyLoaded(m ConfigLoadedMsg) tea.Cmd {
	delete(c.inFlight, string(panelconfig.OpGetConfig))
	c.loading = false

	if m.Err != nil || m.Snapshot == nil {
		err := m.Err
		if err == nil {
			err = panelconfig.NewParseError("empty configuration", nil)
		}
		cmd := c.notify(panelconfig.OpGetConfig, "", "", err)
		return tea.Batch(cmd, c.drainRefresh())
	}

	c.snapshot = m.Snapshot
	c.activeProfile = m.Snapshot.ActiveProfile
	c.views = viewmodel.BuildAll(c.snapshot, c.terms[viewmodel.TabOverrides], c.terms[viewmodel.TabDevices])
	logging.Debug("Configuration loaded",
		zap.String("profile", string(c.activeProfile)),
		zap.Int("devices", len(c.snapshot.Devices)),
		zap.Int("overrides", len(c.snapshot.DeviceOverrides)),
	)
	return c.drainRefresh()
}

func (c *Controller) drainRefresh() tea.Cmd {
	if !c.refreshPending {
		return nil
	}
	c.refreshPending = false
	return c.Refresh()
}

func (c *Controller) applyMutation(m MutationDoneMsg) tea.Cmd {
	delete(c.inFlight, string(m.Op)+":"+m.Target)

	switch {
	case m.Err != nil:
		return c.notify(m.Op, m.Target, m.Detail, m.Err)
	case !m.OK:
		return c.notify(m.Op, m.Target, m.Detail, panelconfig.NewRejectedError(m.Op, m.Target))
	}

	if m.Op == panelconfig.OpSwitchProfile {
		c.activeProfile = panelconfig.Profile(m.Target)
	}
	logging.Info("Change applied", zap.String("op", string(m.Op)), zap.String("target", m.Target))
	return c.Refresh()
}

// notify records a failure and returns a command announcing it.
// RenderPrecondition errors are dropped.
func (c *Controller) notify(op panelconfig.Op, target, detail string, err error) tea.Cmd {
	kind := panelconfig.KindOf(err)
	if kind == panelconfig.KindRenderPrecondition {
		logging.Debug("Render skipped", zap.Error(err))
		return nil
	}

	n := Notification{Op: op, Target: target, Detail: detail, Kind: kind, Err: err, At: time.Now()}
	c.notifications = append(c.notifications, n)
	if len(c.notifications) > maxNotifications {
		c.notifications = c.notifications[len(c.notifications)-maxNotifications:]
	}
	logging.LogNotification(string(op), target, n.String())

	return func() tea.Msg { return NotificationMsg{Notification: n} }
}

// SetSearchTerm stores the term of a searchable tab and rebuilds that tab only.
func (c *Controller) SetSearchTerm(tab viewmodel.Tab, term string) {
	if _, ok := tab.Scope(); !ok {
		logging.Debug("Search ignored on tab", zap.String("tab", string(tab)))
		return
	}
	c.terms[tab] = term
	// Rebuild only fails before the first snapshot arrives.
	if err := viewmodel.Rebuild(&c.views, tab, c.snapshot, term); err != nil {
		logging.Debug("Render skipped", zap.String("tab", string(tab)), zap.Error(err))
	}
}

// SetActiveTab switches the visible tab. Unknown tabs are ignored.
func (c *Controller) SetActiveTab(tab viewmodel.Tab) {
	for _, t := range viewmodel.Tabs {
		if t == tab {
			c.activeTab = tab
			return
		}
	}
}

// SetActiveProfileButton marks a profile button as active without asking the
// service.
func (c *Controller) SetActiveProfileButton(p panelconfig.Profile) {
	c.activeProfile = p
}

// ProfileButtons returns the selector state. An unknown active profile leaves
// both buttons inactive.
func (c *Controller) ProfileButtons() []ProfileButton {
	out := make([]ProfileButton, 0, len(panelconfig.Profiles))
	for _, p := range panelconfig.Profiles {
		out = append(out, ProfileButton{Profile: p, Active: c.activeProfile == p})
	}
	return out
}

// Close tears the controller down. Outstanding calls are canceled and their
// results ignored.
func (c *Controller) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.cancel()
}

func (c *Controller) service() (panelconfig.Service, bool) {
	if c.host == nil {
		return nil, false
	}
	svc, ok := c.host.ConfigService()
	if !ok || svc == nil {
		return nil, false
	}
	return svc, true
}

// Snapshot returns the current snapshot, nil before the first load.
func (c *Controller) Snapshot() *panelconfig.Snapshot { return c.snapshot }

// Views returns the derived tab views.
func (c *Controller) Views() viewmodel.Views { return c.views }

// ActiveTab returns the visible tab.
func (c *Controller) ActiveTab() viewmodel.Tab { return c.activeTab }

// ActiveProfile returns the profile the buttons reflect.
func (c *Controller) ActiveProfile() panelconfig.Profile { return c.activeProfile }

// SearchTerm returns the stored term of a tab.
func (c *Controller) SearchTerm(tab viewmodel.Tab) string { return c.terms[tab] }

// Loading reports whether a load is outstanding.
func (c *Controller) Loading() bool { return c.loading }

// Closed reports whether Close has been called.
func (c *Controller) Closed() bool { return c.closed.Load() }

// Config returns the panel configuration.
func (c *Controller) Config() *PanelConfig { return c.cfg }

// Notifications returns the recorded failures, oldest first.
func (c *Controller) Notifications() []Notification {
	return append([]Notification(nil), c.notifications...)
}

// LastNotification returns the most recent failure.
func (c *Controller) LastNotification() (Notification, bool) {
	if len(c.notifications) == 0 {
		return Notification{}, false
	}
	return c.notifications[len(c.notifications)-1], true
}

// DismissNotifications clears the history.
func (c *Controller) DismissNotifications() {
	c.notifications = nil
}

// Pending reports whether any service call is outstanding.
func (c *Controller) Pending() bool {
	return len(c.inFlight) > 0
}
