package api

// CommandType tags a parsed voice command. The set is closed; the
// dispatcher switches exhaustively over it and treats anything else as
// CommandUnknown.
type CommandType string

const (
	CommandOpenFile      CommandType = "open_file"
	CommandTalkToAgent   CommandType = "talk_to_agent"
	CommandShowTerminal  CommandType = "show_terminal"
	CommandShowPreview   CommandType = "show_preview"
	CommandToggleSidebar CommandType = "toggle_sidebar"
	CommandSearchFiles   CommandType = "search_files"
	CommandRunCommand    CommandType = "run_command"
	CommandCreateAgent   CommandType = "create_agent"
	CommandUnknown       CommandType = "unknown"
)

// ParsedCommand is the backend's interpretation of a transcript. Target
// and Message are empty when the command kind does not use them.
type ParsedCommand struct {
	CommandType CommandType `json:"command_type"`
	Target      string      `json:"target,omitempty"`
	Message     string      `json:"message,omitempty"`
	RawText     string      `json:"raw_text"`
}

// Agent is the backend's view of a workspace agent.
type Agent struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model,omitempty"`
}

// CreateAgentRequest names the agent to spawn.
type CreateAgentRequest struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// UserConfig is the persisted per-user configuration blob. Only the
// ui_preferences subset is owned by this client; everything else is
// round-tripped opaquely by the server.
type UserConfig struct {
	UIPreferences *UIPreferences `json:"ui_preferences,omitempty"`
}

// UIPreferences is the whitelisted preference subset synced with the
// server. Pointer fields distinguish "absent" from zero values so a
// partial server document merges instead of clobbering local state.
type UIPreferences struct {
	Theme           *string         `json:"theme,omitempty"`
	TerminalHeight  *int            `json:"terminal_height,omitempty"`
	ShowHiddenFiles *bool           `json:"show_hidden_files,omitempty"`
	Grid            *GridSnapshot   `json:"grid,omitempty"`
	Sidebar         *SidebarLayout  `json:"sidebar_layout,omitempty"`
}

// GridSnapshot mirrors layout.GridConfig on the wire.
type GridSnapshot struct {
	Columns   int `json:"columns"`
	RowHeight int `json:"row_height"`
	MaxRows   int `json:"max_rows"`
	MaxCols   int `json:"max_cols"`
}

// SidebarLayout mirrors panel.Snapshot on the wire.
type SidebarLayout struct {
	Left  SidebarDock `json:"left"`
	Right SidebarDock `json:"right"`
}

// SidebarDock mirrors panel.SidebarState on the wire.
type SidebarDock struct {
	Collapsed bool        `json:"collapsed"`
	Width     int         `json:"width"`
	Panels    []PanelSlot `json:"panels"`
}

// PanelSlot mirrors panel.Slot on the wire.
type PanelSlot struct {
	ID     string  `json:"id"`
	Height float64 `json:"height"`
}
