package controller

import (
	"context"
	"errors"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/hubcfg/internal/panelconfig"
	"github.com/muurk/hubcfg/internal/viewmodel"
)

// fakeService is an in-memory Configuration Service with call counters.
type fakeService struct {
	mu   sync.Mutex
	snap *panelconfig.Snapshot

	getCalls  int
	getErr    error
	ack       *bool
	callErr   error
	lastCalls []panelconfig.Op
}

func newFakeService() *fakeService {
	return &fakeService{snap: &panelconfig.Snapshot{
		ActiveProfile:   panelconfig.ProfileDefault,
		EntityTypeFlags: map[panelconfig.EntityType]bool{"light": true},
		DeviceOverrides: map[string]bool{"P1": true},
		Devices: []panelconfig.Device{
			{ID: "P1", Name: "Lamp", LinkedEntity: "light.lamp"},
			{ID: "P2", Name: "Fan", LinkedEntity: "switch.fan", DynamicByDefault: true},
		},
	}}
}

func (f *fakeService) record(op panelconfig.Op) (bool, error, bool) {
	f.lastCalls = append(f.lastCalls, op)
	if f.callErr != nil {
		return false, f.callErr, false
	}
	if f.ack != nil && !*f.ack {
		return false, nil, false
	}
	return true, nil, true
}

func (f *fakeService) GetConfig(ctx context.Context) (*panelconfig.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.snap.Clone(), nil
}

func (f *fakeService) SwitchProfile(ctx context.Context, p panelconfig.Profile) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok, err, apply := f.record(panelconfig.OpSwitchProfile)
	if apply {
		f.snap.ActiveProfile = p
	}
	return ok, err
}

func (f *fakeService) Reload(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok, err, _ := f.record(panelconfig.OpReload)
	return ok, err
}

func (f *fakeService) UpdateEntityTypeFlag(ctx context.Context, t panelconfig.EntityType, v bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok, err, apply := f.record(panelconfig.OpUpdateEntityType)
	if apply {
		f.snap.EntityTypeFlags[t] = v
	}
	return ok, err
}

func (f *fakeService) UpdateDeviceOverride(ctx context.Context, id string, v bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok, err, apply := f.record(panelconfig.OpUpdateDeviceOverride)
	if apply {
		f.snap.DeviceOverrides[id] = v
	}
	return ok, err
}

func (f *fakeService) RemoveDeviceOverride(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok, err, apply := f.record(panelconfig.OpRemoveDeviceOverride)
	if apply {
		delete(f.snap.DeviceOverrides, id)
	}
	return ok, err
}

func boolPtr(b bool) *bool { return &b }

// loaded returns a controller that has completed its first load.
func loaded(t *testing.T, svc *fakeService) *Controller {
	t.Helper()
	c := New()
	cmd, err := c.SetConfig(&PanelConfig{Title: "test"})
	require.NoError(t, err)
	assert.Nil(t, cmd, "no host yet")
	c.Drive(c.SetHost(StaticHost(svc)))
	require.NotNil(t, c.Snapshot())
	return c
}

func TestInitialize_WaitsForConfigAndHost(t *testing.T) {
	svc := newFakeService()
	c := New()

	assert.Nil(t, c.Initialize())
	assert.Nil(t, c.SetHost(StaticHost(svc)), "config missing")

	_, err := c.SetConfig(nil)
	assert.Error(t, err)

	cmd, err := c.SetConfig(&PanelConfig{})
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.True(t, c.Loading())

	c.Drive(cmd)
	assert.False(t, c.Loading())
	assert.Equal(t, 1, svc.getCalls)
	assert.Len(t, c.Views().Entities.Rows, 8)
	assert.Len(t, c.Views().Devices.Cards, 2)
}

func TestSetHost_ReinitializesEachTime(t *testing.T) {
	svc := newFakeService()
	c := loaded(t, svc)

	c.Drive(c.SetHost(StaticHost(svc)))
	assert.Equal(t, 2, svc.getCalls)

	assert.Nil(t, c.SetHost(nil))
	assert.Equal(t, 2, svc.getCalls)
}

func TestRefresh_NoServiceHandle(t *testing.T) {
	c := New()
	_, _ = c.SetConfig(&PanelConfig{})
	cmd := c.SetHost(HostFunc(func() (panelconfig.Service, bool) { return nil, false }))

	require.NotNil(t, cmd, "hosts must see the failure")
	msg, ok := cmd().(NotificationMsg)
	require.True(t, ok)
	assert.Equal(t, panelconfig.KindServiceUnreachable, msg.Notification.Kind)
	assert.Equal(t, panelconfig.OpGetConfig, msg.Notification.Op)

	assert.False(t, c.Loading())
	n, ok := c.LastNotification()
	require.True(t, ok)
	assert.Equal(t, panelconfig.KindServiceUnreachable, n.Kind)
	assert.Equal(t, panelconfig.OpGetConfig, n.Op)
}

func TestMutation_NoServiceHandle(t *testing.T) {
	c := New()
	_, _ = c.SetConfig(&PanelConfig{})
	c.Drive(c.SetHost(StaticHost(nil)))

	msgs := c.Drive(c.SetDeviceOverride("100", true))
	require.Len(t, msgs, 1)
	msg, ok := msgs[0].(NotificationMsg)
	require.True(t, ok)
	assert.Equal(t, panelconfig.KindServiceUnreachable, msg.Notification.Kind)
	assert.Equal(t, panelconfig.OpUpdateDeviceOverride, msg.Notification.Op)
	assert.Equal(t, "100", msg.Notification.Target)
}

func TestRefresh_FailureKeepsSnapshot(t *testing.T) {
	svc := newFakeService()
	c := loaded(t, svc)
	before := c.Snapshot()

	svc.getErr = panelconfig.NewHTTPError(503, "down")
	c.Drive(c.Refresh())

	assert.Same(t, before, c.Snapshot())
	assert.False(t, c.Loading())
	assert.Len(t, c.Views().Devices.Cards, 2)
	n, _ := c.LastNotification()
	assert.Equal(t, panelconfig.KindServiceUnreachable, n.Kind)
}

func TestSetDeviceOverride_FailureDoesNotRefresh(t *testing.T) {
	svc := newFakeService()
	c := loaded(t, svc)
	svc.callErr = errors.New("socket closed")

	c.Drive(c.SetDeviceOverride("P2", false))

	assert.Equal(t, 1, svc.getCalls)
	assert.Equal(t, map[string]bool{"P1": true}, c.Snapshot().DeviceOverrides)
	n, ok := c.LastNotification()
	require.True(t, ok)
	assert.Equal(t, "P2", n.Target)
	assert.Equal(t, "is_dynamic=false", n.Detail)
	assert.Contains(t, n.String(), "Update device override failed for P2")
}

func TestSetDeviceOverride_RejectedDoesNotRefresh(t *testing.T) {
	svc := newFakeService()
	c := loaded(t, svc)
	svc.ack = boolPtr(false)

	c.Drive(c.SetDeviceOverride("NOPE", true))

	assert.Equal(t, 1, svc.getCalls)
	n, _ := c.LastNotification()
	assert.Equal(t, panelconfig.KindOperationRejected, n.Kind)
	assert.NotContains(t, c.Snapshot().DeviceOverrides, "NOPE")
}

func TestSetDeviceOverride_SuccessRefreshes(t *testing.T) {
	svc := newFakeService()
	c := loaded(t, svc)

	c.Drive(c.SetDeviceOverride("P2", false))

	assert.Equal(t, 2, svc.getCalls)
	assert.Equal(t, false, c.Snapshot().DeviceOverrides["P2"])
	assert.Equal(t, 2, c.Views().Overrides.Stats.Total)
}

func TestRemoveDeviceOverride_SuccessRefreshes(t *testing.T) {
	svc := newFakeService()
	c := loaded(t, svc)

	c.Drive(c.RemoveDeviceOverride("P1"))

	assert.NotContains(t, c.Snapshot().DeviceOverrides, "P1")
	assert.Equal(t, viewmodel.PlaceholderNoOverrides, c.Views().Overrides.Empty)
}

func TestSetEntityTypeFlag(t *testing.T) {
	svc := newFakeService()
	c := loaded(t, svc)

	c.Drive(c.SetEntityTypeFlag(panelconfig.EntitySensor, true))

	assert.True(t, c.Snapshot().EntityTypeFlags[panelconfig.EntitySensor])
	assert.True(t, c.Views().Entities.Rows[3].Dynamic)
}

func TestSwitchProfile_RejectedKeepsProfile(t *testing.T) {
	svc := newFakeService()
	c := loaded(t, svc)
	svc.ack = boolPtr(false)

	c.Drive(c.SwitchProfile(panelconfig.ProfileCustom))

	assert.Equal(t, panelconfig.ProfileDefault, c.ActiveProfile())
	assert.Equal(t, 1, svc.getCalls)
}

func TestSwitchProfile_Success(t *testing.T) {
	svc := newFakeService()
	c := loaded(t, svc)

	c.Drive(c.SwitchProfile(panelconfig.ProfileCustom))

	assert.Equal(t, panelconfig.ProfileCustom, c.ActiveProfile())
	assert.Equal(t, 2, svc.getCalls)
	assert.Equal(t, []ProfileButton{
		{Profile: panelconfig.ProfileDefault, Active: false},
		{Profile: panelconfig.ProfileCustom, Active: true},
	}, c.ProfileButtons())
}

func TestReloadFromSource(t *testing.T) {
	svc := newFakeService()
	c := loaded(t, svc)

	c.Drive(c.ReloadFromSource())
	assert.Equal(t, 2, svc.getCalls)

	svc.ack = boolPtr(false)
	c.Drive(c.ReloadFromSource())
	assert.Equal(t, 2, svc.getCalls, "no refresh after a declined reload")
}

func TestProfileButtons_UnknownProfile(t *testing.T) {
	svc := newFakeService()
	svc.snap.ActiveProfile = "legacy"
	c := loaded(t, svc)

	assert.Equal(t, panelconfig.Profile("legacy"), c.ActiveProfile())
	for _, b := range c.ProfileButtons() {
		assert.False(t, b.Active, "%s should be inactive", b.Profile)
	}
}

func TestSetSearchTerm_RebuildsOnlyThatTab(t *testing.T) {
	svc := newFakeService()
	c := loaded(t, svc)
	overrides := c.Views().Overrides

	c.SetSearchTerm(viewmodel.TabDevices, "lamp")

	assert.Equal(t, "lamp", c.SearchTerm(viewmodel.TabDevices))
	require.Len(t, c.Views().Devices.Cards, 1)
	assert.Equal(t, "Lamp", c.Views().Devices.Cards[0].Device.Name)
	assert.Equal(t, overrides, c.Views().Overrides)
	assert.Equal(t, 1, svc.getCalls)

	c.SetSearchTerm(viewmodel.TabEntities, "x")
	assert.Empty(t, c.SearchTerm(viewmodel.TabEntities))
}

func TestSetSearchTerm_BeforeLoadIsSwallowed(t *testing.T) {
	c := New()
	c.SetSearchTerm(viewmodel.TabOverrides, "lamp")

	assert.Equal(t, "lamp", c.SearchTerm(viewmodel.TabOverrides))
	_, ok := c.LastNotification()
	assert.False(t, ok, "render preconditions are not surfaced")
}

func TestSearchTermSurvivesRefresh(t *testing.T) {
	svc := newFakeService()
	c := loaded(t, svc)
	c.SetSearchTerm(viewmodel.TabDevices, "fan")

	c.Drive(c.Refresh())

	require.Len(t, c.Views().Devices.Cards, 1)
	assert.Equal(t, "Fan", c.Views().Devices.Cards[0].Device.Name)
}

func TestSetActiveTab(t *testing.T) {
	c := New()
	c.SetActiveTab(viewmodel.TabDevices)
	assert.Equal(t, viewmodel.TabDevices, c.ActiveTab())

	c.SetActiveTab("bogus")
	assert.Equal(t, viewmodel.TabDevices, c.ActiveTab())
}

func TestClose_IgnoresLateResults(t *testing.T) {
	svc := newFakeService()
	c := loaded(t, svc)
	before := c.Snapshot()

	cmd := c.SetDeviceOverride("P2", false)
	require.NotNil(t, cmd)
	c.Close()
	msg := cmd()

	assert.Nil(t, c.Update(msg))
	assert.Same(t, before, c.Snapshot())
	assert.Nil(t, c.Refresh())
	assert.True(t, c.Closed())
}

func TestUpdate_IgnoresOtherControllers(t *testing.T) {
	svc := newFakeService()
	a := loaded(t, svc)
	b := loaded(t, svc)

	msg := a.Refresh()()
	assert.Nil(t, b.Update(msg))
	assert.Nil(t, b.Update(tea.KeyMsg{}))
}

func TestDuplicateCommandsAreIgnored(t *testing.T) {
	svc := newFakeService()
	c := loaded(t, svc)

	first := c.SetDeviceOverride("P2", true)
	second := c.SetDeviceOverride("P2", false)
	other := c.SetDeviceOverride("P1", false)

	require.NotNil(t, first)
	assert.Nil(t, second)
	assert.NotNil(t, other)
	assert.True(t, c.Pending())

	c.Drive(first)
	assert.NotNil(t, c.SetDeviceOverride("P2", false), "guard released after resolution")
}

func TestRefreshRequestedDuringRefreshIsQueued(t *testing.T) {
	svc := newFakeService()
	c := loaded(t, svc)

	first := c.Refresh()
	require.NotNil(t, first)
	assert.Nil(t, c.Refresh())

	c.Drive(first)
	assert.Equal(t, 3, svc.getCalls, "initial load, first refresh and the queued one")
}

func TestNotificationsAreBounded(t *testing.T) {
	svc := newFakeService()
	c := loaded(t, svc)
	svc.ack = boolPtr(false)

	for i := 0; i < maxNotifications+5; i++ {
		c.Drive(c.ReloadFromSource())
	}
	assert.Len(t, c.Notifications(), maxNotifications)

	c.DismissNotifications()
	assert.Empty(t, c.Notifications())
}
