package controller

import (
	"fmt"
	"time"

	"github.com/muurk/hubcfg/internal/panelconfig"
)

// ConfigLoadedMsg carries the result of a GetConfig call.
type ConfigLoadedMsg struct {
	owner    *Controller
	Snapshot *panelconfig.Snapshot
	Err      error
}

// MutationDoneMsg carries the acknowledgment of a mutating call.
type MutationDoneMsg struct {
	owner  *Controller
	Op     panelconfig.Op
	Target string
	Detail string
	OK     bool
	Err    error
}

// NotificationMsg is emitted when a failure is recorded, so that hosts can
// react (flash a status line, ring a bell) without polling.
type NotificationMsg struct {
	Notification Notification
}

// Notification is a user-visible failure report.
type Notification struct {
	Op     panelconfig.Op
	Target string
	Detail string
	Kind   panelconfig.ErrorKind
	Err    error
	At     time.Time
}

// String renders the notification for a status line.
func (n Notification) String() string {
	s := n.Op.Label() + " failed"
	if n.Target != "" {
		s += " for " + n.Target
	}
	if n.Detail != "" {
		s += " (" + n.Detail + ")"
	}
	if n.Err != nil {
		s += ": " + panelconfig.GetShortErrorMessage(n.Err)
	}
	return s
}

// Hint returns troubleshooting advice for the failure.
func (n Notification) Hint() string {
	return panelconfig.GetTroubleshootingHint(n.Err)
}

func flagDetail(dynamic bool) string {
	return fmt.Sprintf("is_dynamic=%t", dynamic)
}
