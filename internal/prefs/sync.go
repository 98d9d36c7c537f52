package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"deckhand/internal/api"
	"deckhand/internal/credentials"
	"deckhand/internal/layout"
	"deckhand/internal/panel"
)

// DefaultDebounce is how long mutations coalesce before a server push.
const DefaultDebounce = 1000 * time.Millisecond

// ConfigAPI is the slice of the workspace API the sync controller uses.
type ConfigAPI interface {
	GetUserConfig(ctx context.Context) (*api.UserConfig, error)
	UpdateUserConfig(ctx context.Context, cfg api.UserConfig) error
}

var _ ConfigAPI = (*api.Client)(nil)

// TokenSource reports the current API token, if any. The default reads
// the system keyring.
type TokenSource func() (string, bool)

// KeyringToken sources the token from the system keyring.
func KeyringToken() (string, bool) {
	token, err := credentials.GetAPIToken()
	if err != nil || token == "" {
		return "", false
	}
	return token, true
}

// SyncConfig wires a sync controller.
type SyncConfig struct {
	API      ConfigAPI
	Token    TokenSource
	Layout   *layout.State
	Panels   *panel.Store
	Store    *Store // optional local persistence
	Log      *zap.Logger
	Debounce time.Duration

	// schedule lets tests intercept the debounce timer.
	schedule func(d time.Duration, fn func()) *time.Timer
}

// Sync pushes the preference whitelist to the server, debounced, and
// pulls it at startup. Unauthenticated sessions degrade to local-only.
type Sync struct {
	cfg SyncConfig
	log *zap.Logger

	mu           sync.Mutex
	timer        *time.Timer
	isLoading    bool
	lastSyncedAt time.Time

	now func() time.Time
}

// NewSync validates cfg and builds a controller.
func NewSync(cfg SyncConfig) (*Sync, error) {
	if cfg.API == nil || cfg.Layout == nil || cfg.Panels == nil {
		return nil, errors.New("preference sync requires api, layout, and panel collaborators")
	}
	if cfg.Token == nil {
		cfg.Token = KeyringToken
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.schedule == nil {
		cfg.schedule = time.AfterFunc
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Sync{cfg: cfg, log: log.Named("prefsync"), now: time.Now}, nil
}

// Loading reports whether LoadFromServer is in flight.
func (s *Sync) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isLoading
}

// LastSyncedAt returns the time of the last successful push, zero if
// none happened yet.
func (s *Sync) LastSyncedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSyncedAt
}

// LoadFromServer pulls the user config and merges the whitelisted
// preference fields into local state. A nil config (unauthenticated) or
// a fetch error leaves local state untouched.
func (s *Sync) LoadFromServer(ctx context.Context) error {
	s.mu.Lock()
	if s.isLoading {
		s.mu.Unlock()
		return nil
	}
	s.isLoading = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isLoading = false
		s.mu.Unlock()
	}()

	cfg, err := s.cfg.API.GetUserConfig(ctx)
	if err != nil {
		s.log.Warn("preference load failed", zap.Error(err))
		return err
	}
	if cfg == nil || cfg.UIPreferences == nil {
		return nil
	}

	s.merge(*cfg.UIPreferences)
	s.persistLocal(ctx)
	return nil
}

// merge applies the server's preference document field by field; absent
// fields keep the local value.
func (s *Sync) merge(p api.UIPreferences) {
	if p.Theme != nil && *p.Theme != "" {
		s.cfg.Layout.SetTheme(*p.Theme)
	}
	if p.TerminalHeight != nil {
		s.cfg.Layout.SetTerminalHeight(*p.TerminalHeight)
	}
	if p.ShowHiddenFiles != nil {
		s.cfg.Layout.SetShowHiddenFiles(*p.ShowHiddenFiles)
	}
	if p.Grid != nil {
		s.cfg.Layout.SetGrid(layout.GridConfig{
			Columns:   p.Grid.Columns,
			RowHeight: p.Grid.RowHeight,
			MaxRows:   p.Grid.MaxRows,
			MaxCols:   p.Grid.MaxCols,
		})
	}
	if p.Sidebar != nil {
		s.cfg.Panels.Restore(sidebarFromWire(*p.Sidebar))
	}
}

// SyncToServer pushes the current whitelist subset. Without a token it
// is a no-op; 401/403 responses are swallowed because an expired session
// mid-edit is expected, not an error the user can act on.
func (s *Sync) SyncToServer(ctx context.Context) error {
	token, ok := s.cfg.Token()
	if !ok || token == "" {
		return nil
	}

	prefs := s.snapshotWire()
	err := s.cfg.API.UpdateUserConfig(ctx, api.UserConfig{UIPreferences: &prefs})
	if errors.Is(err, api.ErrUnauthorized) {
		s.log.Debug("preference sync skipped, session expired")
		return nil
	}
	if err != nil {
		s.log.Warn("preference sync failed", zap.Error(err))
		return err
	}

	s.mu.Lock()
	s.lastSyncedAt = s.now()
	s.mu.Unlock()
	s.persistLocal(ctx)
	return nil
}

// Schedule arms the debounce timer; an armed timer is reset, so rapid
// mutations coalesce into one push.
func (s *Sync) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.cfg.schedule(s.cfg.Debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.SyncToServer(ctx)
	})
}

// Flush cancels any pending debounce and pushes synchronously. Used at
// shutdown so the last edit is not lost to the timer.
func (s *Sync) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	return s.SyncToServer(ctx)
}

// Close stops the pending timer without syncing.
func (s *Sync) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// snapshotWire serializes the whitelist subset of local state.
func (s *Sync) snapshotWire() api.UIPreferences {
	ls := s.cfg.Layout.Snapshot()
	sidebar := sidebarToWire(s.cfg.Panels.Snapshot())

	theme := ls.Theme
	height := ls.TerminalHeight
	hidden := ls.ShowHiddenFiles
	grid := api.GridSnapshot{
		Columns:   ls.Grid.Columns,
		RowHeight: ls.Grid.RowHeight,
		MaxRows:   ls.Grid.MaxRows,
		MaxCols:   ls.Grid.MaxCols,
	}
	return api.UIPreferences{
		Theme:           &theme,
		TerminalHeight:  &height,
		ShowHiddenFiles: &hidden,
		Grid:            &grid,
		Sidebar:         &sidebar,
	}
}

// persistLocal mirrors the whitelist into the sqlite store so the next
// start works offline. Failures are logged, never fatal.
func (s *Sync) persistLocal(ctx context.Context) {
	if s.cfg.Store == nil {
		return
	}
	ls := s.cfg.Layout.Snapshot()
	st := s.cfg.Store

	if err := st.Set(ctx, KeyTheme, ls.Theme); err != nil {
		s.log.Warn("persist theme", zap.Error(err))
	}
	if err := st.SetInt(ctx, KeyTerminalHeight, ls.TerminalHeight); err != nil {
		s.log.Warn("persist terminal height", zap.Error(err))
	}
	if err := st.SetBool(ctx, KeyShowHiddenFiles, ls.ShowHiddenFiles); err != nil {
		s.log.Warn("persist hidden files flag", zap.Error(err))
	}
	if data, err := json.Marshal(ls.Grid); err == nil {
		if err := st.Set(ctx, KeyGrid, string(data)); err != nil {
			s.log.Warn("persist grid", zap.Error(err))
		}
	}
	if data, err := json.Marshal(s.cfg.Panels.Snapshot()); err == nil {
		if err := st.Set(ctx, KeySidebarLayout, string(data)); err != nil {
			s.log.Warn("persist sidebar layout", zap.Error(err))
		}
	}
	s.mu.Lock()
	synced := s.lastSyncedAt
	s.mu.Unlock()
	if !synced.IsZero() {
		if err := st.Set(ctx, KeyLastSyncedAt, synced.Format(time.RFC3339)); err != nil {
			s.log.Warn("persist last synced at", zap.Error(err))
		}
	}
}

// LoadLocal restores the whitelist from the sqlite store, for startup
// before (or instead of) the server round trip.
func (s *Sync) LoadLocal(ctx context.Context) error {
	if s.cfg.Store == nil {
		return nil
	}
	st := s.cfg.Store

	theme, err := st.Get(ctx, KeyTheme)
	if err != nil {
		return err
	}
	if theme != "" {
		s.cfg.Layout.SetTheme(theme)
	}
	if height, err := st.GetInt(ctx, KeyTerminalHeight); err == nil && height > 0 {
		s.cfg.Layout.SetTerminalHeight(height)
	}
	if hidden, err := st.GetBool(ctx, KeyShowHiddenFiles); err == nil {
		s.cfg.Layout.SetShowHiddenFiles(hidden)
	}
	if raw, err := st.Get(ctx, KeyGrid); err == nil && raw != "" {
		var grid layout.GridConfig
		if json.Unmarshal([]byte(raw), &grid) == nil {
			s.cfg.Layout.SetGrid(grid)
		}
	}
	if raw, err := st.Get(ctx, KeySidebarLayout); err == nil && raw != "" {
		var snap panel.Snapshot
		if json.Unmarshal([]byte(raw), &snap) == nil {
			s.cfg.Panels.Restore(snap)
		}
	}
	if raw, err := st.Get(ctx, KeyLastSyncedAt); err == nil && raw != "" {
		if synced, err := time.Parse(time.RFC3339, raw); err == nil {
			s.mu.Lock()
			s.lastSyncedAt = synced
			s.mu.Unlock()
		}
	}
	return nil
}

func sidebarToWire(snap panel.Snapshot) api.SidebarLayout {
	return api.SidebarLayout{
		Left:  dockToWire(snap.Left),
		Right: dockToWire(snap.Right),
	}
}

func dockToWire(st panel.SidebarState) api.SidebarDock {
	dock := api.SidebarDock{Collapsed: st.Collapsed, Width: st.Width}
	for _, slot := range st.Panels {
		dock.Panels = append(dock.Panels, api.PanelSlot{
			ID:     string(slot.ID),
			Height: slot.Height,
		})
	}
	return dock
}

func sidebarFromWire(w api.SidebarLayout) panel.Snapshot {
	return panel.Snapshot{
		Left:  dockFromWire(w.Left),
		Right: dockFromWire(w.Right),
	}
}

func dockFromWire(dock api.SidebarDock) panel.SidebarState {
	st := panel.SidebarState{Collapsed: dock.Collapsed, Width: dock.Width}
	for _, slot := range dock.Panels {
		st.Panels = append(st.Panels, panel.Slot{
			ID:     panel.ID(slot.ID),
			Height: slot.Height,
		})
	}
	return st
}
