package tui

import (
	"sync"

	"deckhand/internal/cli"
	"deckhand/internal/layout"
	"deckhand/internal/panel"
)

// Actions routes voice commands into the UI stores. It satisfies the
// voice controller's LayoutActions contract.
type Actions struct {
	Layout *layout.State
	Panels *panel.Store
	CLI    *cli.Store

	mu          sync.Mutex
	searchQuery string
	pendingCmd  string
}

func (a *Actions) ShowTerminal() {
	a.Layout.SetTerminalVisible(true)
}

func (a *Actions) ShowPreview() {
	a.Panels.AddPanel(panel.Preview, panel.SideRight)
}

func (a *Actions) ToggleLeftSidebar() {
	a.Panels.ToggleSidebar(panel.SideLeft)
}

// SearchFiles opens the search panel with the query prefilled.
func (a *Actions) SearchFiles(query string) {
	a.mu.Lock()
	a.searchQuery = query
	a.mu.Unlock()
	a.Panels.AddPanel(panel.Search, panel.SideLeft)
}

// RunCommand queues a shell command for the terminal pane and reveals it.
func (a *Actions) RunCommand(command string) {
	a.mu.Lock()
	a.pendingCmd = command
	a.mu.Unlock()
	a.Layout.SetTerminalVisible(true)
	if a.CLI != nil {
		a.CLI.AddToHistory(command)
	}
}

// SearchQuery returns the last voice-issued search query.
func (a *Actions) SearchQuery() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.searchQuery
}

// TakePendingCommand pops the queued terminal command, if any.
func (a *Actions) TakePendingCommand() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cmd := a.pendingCmd
	a.pendingCmd = ""
	return cmd, cmd != ""
}
