// Package controller holds the State Controller of the configuration panel.
//
// The Controller owns the current snapshot together with the transient panel
// state: active tab, per-tab search terms, loading flag and the failure
// notifications. It never edits the snapshot. Every accepted change is
// followed by a full refresh from the Configuration Service, and a failed or
// declined change leaves the state exactly as it was.
//
// Operations return bubbletea commands. The service call runs inside the
// command and its result comes back through Update:
//
//	ctrl := controller.New()
//	cmd, _ := ctrl.SetConfig(&controller.PanelConfig{Title: "Dynamic Updates"})
//	cmd = tea.Batch(cmd, ctrl.SetHost(controller.StaticHost(client)))
//
//	// inside a tea.Model
//	func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
//	    return m, m.ctrl.Update(msg)
//	}
//
// One-shot CLI commands use Drive to run a command chain to completion:
//
//	ctrl.Drive(ctrl.SetDeviceOverride("1269454", true))
//
// A command whose operation and target are still outstanding is ignored, and
// a refresh requested during another refresh is issued once the first one
// resolves. After Close, results that arrive late are dropped.
package controller
