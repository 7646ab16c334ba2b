package controller

import tea "github.com/charmbracelet/bubbletea"

// Drive runs cmd and every follow-up command on the calling goroutine until
// the chain settles. It is the synchronous counterpart of a bubbletea
// program for one-shot CLI commands. Messages the controller does not own are
// returned to the caller.
func (c *Controller) Drive(cmd tea.Cmd) []tea.Msg {
	var foreign []tea.Msg
	queue := []tea.Cmd{cmd}

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}

		switch msg := next().(type) {
		case nil:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case ConfigLoadedMsg, MutationDoneMsg:
			queue = append(queue, c.Update(msg))
		default:
			foreign = append(foreign, msg)
		}
	}
	return foreign
}
