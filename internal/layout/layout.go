package layout

import (
	"cmp"
	"sync"
)

// Clamp pins v into [lo, hi].
func Clamp[T cmp.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Bounds for the flat UI values. The sidebar width bounds are shared with
// the panel store.
const (
	MinTerminalHeight = 100
	MaxTerminalHeight = 600
	MinPanelHeight    = 100
	MaxPanelHeight    = 400
	MinSidebarWidth   = 200
	MaxSidebarWidth   = 500
)

// GridConfig shapes the dashboard widget grid.
type GridConfig struct {
	Columns   int `json:"columns"`
	RowHeight int `json:"row_height"`
	MaxRows   int `json:"max_rows"`
	MaxCols   int `json:"max_cols"`
}

// DefaultGrid returns the built-in grid shape.
func DefaultGrid() GridConfig {
	return GridConfig{Columns: 12, RowHeight: 80, MaxRows: 8, MaxCols: 12}
}

// State holds the flat UI values that sit beside the sidebar layout:
// clamped pixel sizes, theme, visibility flags, and the widget grid.
// All methods are safe for concurrent use.
type State struct {
	mu sync.RWMutex

	terminalHeight  int
	panelHeight     int
	terminalVisible bool
	theme           string
	showHiddenFiles bool
	grid            GridConfig
}

// NewState returns a State populated with defaults.
func NewState() *State {
	return &State{
		terminalHeight: 250,
		panelHeight:    200,
		theme:          "dark",
		grid:           DefaultGrid(),
	}
}

func (s *State) TerminalHeight() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.terminalHeight
}

func (s *State) SetTerminalHeight(px int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminalHeight = Clamp(px, MinTerminalHeight, MaxTerminalHeight)
}

func (s *State) PanelHeight() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.panelHeight
}

func (s *State) SetPanelHeight(px int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panelHeight = Clamp(px, MinPanelHeight, MaxPanelHeight)
}

func (s *State) TerminalVisible() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.terminalVisible
}

func (s *State) SetTerminalVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminalVisible = visible
}

func (s *State) Theme() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.theme
}

func (s *State) SetTheme(theme string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if theme == "" {
		return
	}
	s.theme = theme
}

func (s *State) ShowHiddenFiles() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.showHiddenFiles
}

func (s *State) SetShowHiddenFiles(show bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showHiddenFiles = show
}

func (s *State) Grid() GridConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grid
}

func (s *State) SetGrid(g GridConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.Columns <= 0 || g.RowHeight <= 0 {
		return
	}
	s.grid = g
}

// ResetGrid restores the built-in grid shape, leaving everything else.
func (s *State) ResetGrid() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grid = DefaultGrid()
}

// Snapshot is the serializable subset synced to the server.
type Snapshot struct {
	Theme           string     `json:"theme"`
	TerminalHeight  int        `json:"terminal_height"`
	ShowHiddenFiles bool       `json:"show_hidden_files"`
	Grid            GridConfig `json:"grid"`
}

// Snapshot captures the syncable values.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Theme:           s.theme,
		TerminalHeight:  s.terminalHeight,
		ShowHiddenFiles: s.showHiddenFiles,
		Grid:            s.grid,
	}
}

// Restore applies a snapshot, clamping values that arrive out of range.
func (s *State) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Theme != "" {
		s.theme = snap.Theme
	}
	if snap.TerminalHeight != 0 {
		s.terminalHeight = Clamp(snap.TerminalHeight, MinTerminalHeight, MaxTerminalHeight)
	}
	s.showHiddenFiles = snap.ShowHiddenFiles
	if snap.Grid.Columns > 0 && snap.Grid.RowHeight > 0 {
		s.grid = snap.Grid
	}
}
