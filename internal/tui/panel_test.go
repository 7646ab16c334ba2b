package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/hubcfg/internal/cards"
	"github.com/muurk/hubcfg/internal/controller"
	"github.com/muurk/hubcfg/internal/panelconfig"
	"github.com/muurk/hubcfg/internal/profilestore"
	"github.com/muurk/hubcfg/internal/viewmodel"
)

func openExampleStore(t *testing.T) *profilestore.Store {
	t.Helper()
	dir := t.TempDir()
	if _, err := profilestore.WriteExampleData(dir); err != nil {
		t.Fatalf("WriteExampleData() error = %v", err)
	}
	store, err := profilestore.Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return store
}

// drive runs cmd and feeds controller results back into the panel until the
// chain settles. Spinner ticks and other UI messages are dropped.
func drive(m PanelModel, cmd tea.Cmd) PanelModel {
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		switch msg := next().(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case controller.ConfigLoadedMsg, controller.MutationDoneMsg:
			model, c := m.Update(msg)
			m = model.(PanelModel)
			queue = append(queue, c)
		}
	}
	return m
}

func press(m PanelModel, k tea.KeyMsg) (PanelModel, tea.Cmd) {
	model, cmd := m.Update(k)
	return model.(PanelModel), cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var (
	keySpace    = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	keyTab      = tea.KeyMsg{Type: tea.KeyTab}
	keyShiftTab = tea.KeyMsg{Type: tea.KeyShiftTab}
	keyEsc      = tea.KeyMsg{Type: tea.KeyEsc}
	keyEnter    = tea.KeyMsg{Type: tea.KeyEnter}
	keyDown     = tea.KeyMsg{Type: tea.KeyDown}
)

func newLoadedPanel(t *testing.T, store *profilestore.Store) PanelModel {
	t.Helper()
	m := NewPanelModel(nil, controller.StaticHost(store))
	model, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m = model.(PanelModel)
	m = drive(m, m.Init())
	if m.Controller().Snapshot() == nil {
		t.Fatal("panel did not load a snapshot")
	}
	return m
}

func TestPanel_InitialLoad(t *testing.T) {
	m := newLoadedPanel(t, openExampleStore(t))

	if got := m.Controller().ActiveProfile(); got != panelconfig.ProfileDefault {
		t.Errorf("ActiveProfile() = %q, want default", got)
	}
	if m.Controller().Loading() {
		t.Error("controller should not be loading after the first snapshot")
	}

	view := m.View()
	for _, want := range []string{"Entity Properties", "Lights", "Scenes", "[D] Default"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestPanel_ToggleEntityType(t *testing.T) {
	m := newLoadedPanel(t, openExampleStore(t))

	m, cmd := press(m, keySpace)
	if cmd == nil {
		t.Fatal("toggle should issue a command")
	}
	m = drive(m, cmd)

	if m.Controller().Snapshot().EntityTypeFlags[panelconfig.EntityLight] {
		t.Error("light should be static after toggling")
	}

	// second row is switch
	m, _ = press(m, keyDown)
	if m.Cursor(viewmodel.TabEntities) != 1 {
		t.Fatalf("Cursor() = %d, want 1", m.Cursor(viewmodel.TabEntities))
	}
	m, cmd = press(m, keySpace)
	m = drive(m, cmd)
	if m.Controller().Snapshot().EntityTypeFlags[panelconfig.EntitySwitch] {
		t.Error("switch should be static after toggling")
	}
}

func TestPanel_SwitchProfile(t *testing.T) {
	m := newLoadedPanel(t, openExampleStore(t))

	m, cmd := press(m, runes("C"))
	m = drive(m, cmd)

	if got := m.Controller().ActiveProfile(); got != panelconfig.ProfileCustom {
		t.Errorf("ActiveProfile() = %q, want custom", got)
	}
	for _, b := range m.Controller().ProfileButtons() {
		if b.Active != (b.Profile == panelconfig.ProfileCustom) {
			t.Errorf("button %q active = %v", b.Profile, b.Active)
		}
	}

	m, cmd = press(m, runes("D"))
	m = drive(m, cmd)
	if got := m.Controller().ActiveProfile(); got != panelconfig.ProfileDefault {
		t.Errorf("ActiveProfile() = %q, want default", got)
	}
}

func TestPanel_Reload(t *testing.T) {
	m := newLoadedPanel(t, openExampleStore(t))

	m, cmd := press(m, runes("r"))
	if cmd == nil {
		t.Fatal("reload should issue a command")
	}
	m = drive(m, cmd)

	if _, ok := m.Controller().LastNotification(); ok {
		t.Error("reload should succeed without notifications")
	}
}

func TestPanel_TabNavigation(t *testing.T) {
	m := newLoadedPanel(t, openExampleStore(t))

	m, _ = press(m, keyTab)
	if got := m.Controller().ActiveTab(); got != viewmodel.TabOverrides {
		t.Errorf("after tab ActiveTab() = %q", got)
	}
	m, _ = press(m, keyShiftTab)
	m, _ = press(m, keyShiftTab)
	if got := m.Controller().ActiveTab(); got != viewmodel.TabDevices {
		t.Errorf("after shift+tab twice ActiveTab() = %q", got)
	}
	m, _ = press(m, runes("1"))
	if got := m.Controller().ActiveTab(); got != viewmodel.TabEntities {
		t.Errorf("after 1 ActiveTab() = %q", got)
	}
}

func TestPanel_OverrideToggleAndRemove(t *testing.T) {
	store := openExampleStore(t)
	if ok, err := store.UpdateDeviceOverride(context.Background(), "1269456", true); !ok || err != nil {
		t.Fatalf("UpdateDeviceOverride() = %v, %v", ok, err)
	}
	m := newLoadedPanel(t, store)

	m, _ = press(m, runes("2"))
	if !strings.Contains(m.View(), "Outdoor Temperature") {
		t.Fatal("overrides tab should list the overridden device")
	}

	m, cmd := press(m, keySpace)
	m = drive(m, cmd)
	if v, ok := m.Controller().Snapshot().DeviceOverrides["1269456"]; !ok || v {
		t.Errorf("override = %v, %v; want false, true", v, ok)
	}

	m, cmd = press(m, runes("x"))
	m = drive(m, cmd)
	if m.Controller().Snapshot().IsOverridden("1269456") {
		t.Error("override should be removed")
	}
	if !strings.Contains(m.View(), viewmodel.PlaceholderNoOverrides.Text()) {
		t.Error("overrides tab should show the empty placeholder")
	}
}

func TestPanel_DeviceCardsReadOnlyWithoutOverride(t *testing.T) {
	m := newLoadedPanel(t, openExampleStore(t))

	m, _ = press(m, runes("3"))
	m, cmd := press(m, keySpace)
	if cmd != nil {
		t.Error("toggling a device without an override should do nothing")
	}
	_, cmd = press(m, runes("x"))
	if cmd != nil {
		t.Error("removing a device without an override should do nothing")
	}
}

func TestPanel_Search(t *testing.T) {
	m := newLoadedPanel(t, openExampleStore(t))
	m, _ = press(m, runes("3"))

	m, _ = press(m, runes("/"))
	if !m.Searching {
		t.Fatal("expected search mode")
	}
	for _, r := range "lamp" {
		m, _ = press(m, runes(string(r)))
	}
	if got := m.Controller().SearchTerm(viewmodel.TabDevices); got != "lamp" {
		t.Errorf("SearchTerm() = %q, want lamp", got)
	}
	if n := len(m.Controller().Views().Devices.Cards); n != 1 {
		t.Errorf("cards = %d, want 1", n)
	}

	m, _ = press(m, keyEnter)
	if m.Searching {
		t.Error("enter should leave search mode")
	}
	if got := m.Controller().SearchTerm(viewmodel.TabDevices); got != "lamp" {
		t.Error("enter should keep the term")
	}

	m, _ = press(m, runes("/"))
	m, _ = press(m, keyEsc)
	if got := m.Controller().SearchTerm(viewmodel.TabDevices); got != "" {
		t.Errorf("esc should clear the term, got %q", got)
	}
	if n := len(m.Controller().Views().Devices.Cards); n != 4 {
		t.Errorf("cards = %d, want 4", n)
	}
}

func TestPanel_SearchIgnoredOnEntityTab(t *testing.T) {
	m := newLoadedPanel(t, openExampleStore(t))

	m, _ = press(m, runes("/"))
	if m.Searching {
		t.Error("entity tab has no search")
	}
}

func TestPanel_NoService(t *testing.T) {
	m := NewPanelModel(nil, controller.StaticHost(nil))
	m = drive(m, m.Init())

	note, ok := m.Controller().LastNotification()
	if !ok {
		t.Fatal("expected a notification")
	}
	if note.Kind != panelconfig.KindServiceUnreachable {
		t.Errorf("Kind = %v, want ServiceUnreachable", note.Kind)
	}
	if !strings.Contains(m.View(), "failed") {
		t.Error("View() should show the notification")
	}

	m, _ = press(m, keyEsc)
	if _, ok := m.Controller().LastNotification(); ok {
		t.Error("esc should dismiss notifications")
	}
}

func TestPanel_HelpModal(t *testing.T) {
	m := newLoadedPanel(t, openExampleStore(t))

	m, _ = press(m, runes("?"))
	if !m.ShowingHelp || !strings.Contains(m.View(), "CONFIGURATION PANEL HELP") {
		t.Fatal("expected the help modal")
	}
	m, _ = press(m, runes("z"))
	if m.ShowingHelp {
		t.Error("any key should close help")
	}
}

func TestPanel_QuitClosesController(t *testing.T) {
	m := newLoadedPanel(t, openExampleStore(t))

	m, cmd := press(m, runes("q"))
	if cmd == nil {
		t.Fatal("quit should return tea.Quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if !m.Controller().Closed() {
		t.Error("controller should be closed")
	}
	if m.View() != "" {
		t.Error("View() should be empty after quitting")
	}
}

func TestVisibleWindow(t *testing.T) {
	tests := []struct {
		n, cursor, capacity int
		start, end          int
	}{
		{3, 0, 5, 0, 3},
		{10, 0, 4, 0, 4},
		{10, 3, 4, 0, 4},
		{10, 4, 4, 1, 5},
		{10, 9, 4, 6, 10},
	}
	for _, tt := range tests {
		start, end := visibleWindow(tt.n, tt.cursor, tt.capacity)
		if start != tt.start || end != tt.end {
			t.Errorf("visibleWindow(%d, %d, %d) = %d, %d; want %d, %d",
				tt.n, tt.cursor, tt.capacity, start, end, tt.start, tt.end)
		}
	}
}

func TestShiftTab(t *testing.T) {
	if got := shiftTab(viewmodel.TabDevices, 1); got != viewmodel.TabEntities {
		t.Errorf("shiftTab(devices, 1) = %q", got)
	}
	if got := shiftTab(viewmodel.TabEntities, -1); got != viewmodel.TabDevices {
		t.Errorf("shiftTab(entities, -1) = %q", got)
	}
}

func TestCardRegistered(t *testing.T) {
	card, ok := cards.Lookup(CardType)
	if !ok {
		t.Fatalf("card %q not registered", CardType)
	}
	if card.Name == "" {
		t.Error("card should have a name")
	}
}
