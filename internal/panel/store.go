package panel

import (
	"fmt"
	"math"
	"sync"

	"deckhand/internal/layout"
)

// Height bounds for panels that share a dock. A lone panel always takes
// the full height regardless of these bounds.
const (
	MinHeight = 10.0
	MaxHeight = 90.0

	defaultWidth  = 300
	defaultHeight = 50.0

	// sumTolerance bounds the floating point drift allowed on a dock's
	// total height.
	sumTolerance = 1e-6
)

// Slot is one docked panel with its share of the dock height in percent.
type Slot struct {
	ID     ID      `json:"id"`
	Height float64 `json:"height"`
}

// SidebarState is the mutable state of one dock.
type SidebarState struct {
	Collapsed bool   `json:"collapsed"`
	Width     int    `json:"width"`
	Panels    []Slot `json:"panels"`
}

// Announcer receives user-facing announcements for layout changes. The
// TUI status line implements it; tests use a recorder.
type Announcer interface {
	Announce(text string)
}

// NopAnnouncer discards announcements.
type NopAnnouncer struct{}

func (NopAnnouncer) Announce(string) {}

// Store owns the sidebar layout for both docks. Every mutation keeps the
// dock invariant: visible panel heights sum to 100, each within bounds,
// and a panel id appears on at most one dock. Invalid input degrades to
// a no-op; no operation returns an error.
type Store struct {
	mu        sync.RWMutex
	left      SidebarState
	right     SidebarState
	announcer Announcer
}

// NewStore returns a store holding the built-in default layout.
func NewStore(announcer Announcer) *Store {
	if announcer == nil {
		announcer = NopAnnouncer{}
	}
	s := &Store{announcer: announcer}
	s.left = defaultLeft()
	s.right = defaultRight()
	return s
}

func defaultLeft() SidebarState {
	return SidebarState{
		Width:  defaultWidth,
		Panels: []Slot{{ID: Files, Height: 50}, {ID: Git, Height: 50}},
	}
}

func defaultRight() SidebarState {
	return SidebarState{
		Width:  defaultWidth,
		Panels: []Slot{{ID: Agents, Height: 60}, {ID: MCP, Height: 40}},
	}
}

func (s *Store) side(side Side) *SidebarState {
	if side == SideRight {
		return &s.right
	}
	return &s.left
}

// Sidebar returns a copy of one dock's state.
func (s *Store) Sidebar(side Side) SidebarState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := *s.side(side)
	st.Panels = append([]Slot(nil), st.Panels...)
	return st
}

// Holds reports which dock contains id, if any.
func (s *Store) Holds(id ID) (Side, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if indexOf(s.left.Panels, id) >= 0 {
		return SideLeft, true
	}
	if indexOf(s.right.Panels, id) >= 0 {
		return SideRight, true
	}
	return "", false
}

// ToggleSidebar flips a dock between collapsed and expanded.
func (s *Store) ToggleSidebar(side Side) {
	s.mu.Lock()
	st := s.side(side)
	st.Collapsed = !st.Collapsed
	collapsed := st.Collapsed
	s.mu.Unlock()

	verb := "expanded"
	if collapsed {
		verb = "collapsed"
	}
	s.announcer.Announce(fmt.Sprintf("%s sidebar %s", sideTitle(side), verb))
}

// SetCollapsed sets a dock's collapsed flag directly, without the toggle
// announcement.
func (s *Store) SetCollapsed(side Side, collapsed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.side(side).Collapsed = collapsed
}

// SetWidth stores a dock width, clamped to the allowed pixel range.
func (s *Store) SetWidth(side Side, px int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.side(side).Width = layout.Clamp(px, layout.MinSidebarWidth, layout.MaxSidebarWidth)
}

// SetPanelHeight sets the height of the panel at index on side. The value
// is clamped to the per-panel bounds and the dock is renormalized around
// it. An out-of-range index is a no-op.
func (s *Store) SetPanelHeight(side Side, index int, height float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.side(side)
	if index < 0 || index >= len(st.Panels) {
		return
	}
	st.Panels[index].Height = layout.Clamp(height, MinHeight, MaxHeight)
	renormalize(st.Panels, index)
}

// MovePanel relocates id to targetSide. Moving a panel to the dock it is
// already on leaves that dock untouched, including the backing slice.
func (s *Store) MovePanel(id ID, targetSide Side) {
	s.mu.Lock()
	source := s.side(targetSide.Other())
	target := s.side(targetSide)

	if indexOf(target.Panels, id) >= 0 {
		s.mu.Unlock()
		return
	}
	i := indexOf(source.Panels, id)
	if i < 0 {
		s.mu.Unlock()
		return
	}

	source.Panels = append(source.Panels[:i:i], source.Panels[i+1:]...)
	renormalize(source.Panels, -1)
	target.Panels = append(target.Panels, Slot{ID: id, Height: defaultHeight})
	renormalize(target.Panels, len(target.Panels)-1)
	s.mu.Unlock()

	s.announcer.Announce(fmt.Sprintf("%s moved to %s", id, targetSide))
}

// AddPanel docks id on side. If the panel already lives on the other dock
// it is removed there first; if it is already on side the call is
// idempotent and no duplicate is created.
func (s *Store) AddPanel(id ID, side Side) {
	s.mu.Lock()
	target := s.side(side)
	if indexOf(target.Panels, id) >= 0 {
		s.mu.Unlock()
		return
	}

	other := s.side(side.Other())
	if i := indexOf(other.Panels, id); i >= 0 {
		other.Panels = append(other.Panels[:i:i], other.Panels[i+1:]...)
		renormalize(other.Panels, -1)
	}

	target.Panels = append(target.Panels, Slot{ID: id, Height: defaultHeight})
	renormalize(target.Panels, len(target.Panels)-1)
	s.mu.Unlock()

	s.announcer.Announce(fmt.Sprintf("%s opened in %s", id, side))
}

// RemovePanel closes id on whichever dock holds it.
func (s *Store) RemovePanel(id ID) {
	s.mu.Lock()
	removed := false
	for _, st := range []*SidebarState{&s.left, &s.right} {
		if i := indexOf(st.Panels, id); i >= 0 {
			st.Panels = append(st.Panels[:i:i], st.Panels[i+1:]...)
			renormalize(st.Panels, -1)
			removed = true
			break
		}
	}
	s.mu.Unlock()

	if removed {
		s.announcer.Announce(fmt.Sprintf("%s closed", id))
	}
}

// ResetLayout restores both docks to the built-in defaults.
func (s *Store) ResetLayout() {
	s.mu.Lock()
	s.left = defaultLeft()
	s.right = defaultRight()
	s.mu.Unlock()

	s.announcer.Announce("Layout reset")
}

// Snapshot is the serializable layout for preference sync.
type Snapshot struct {
	Left  SidebarState `json:"left"`
	Right SidebarState `json:"right"`
}

// Snapshot copies the current layout.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	left := s.left
	left.Panels = append([]Slot(nil), left.Panels...)
	right := s.right
	right.Panels = append([]Slot(nil), right.Panels...)
	return Snapshot{Left: left, Right: right}
}

// Restore applies a persisted layout. Unknown panel ids and duplicates
// are dropped, widths clamped, and heights renormalized, so a stale or
// hand-edited snapshot cannot break the dock invariant.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[ID]bool)
	sanitize := func(st SidebarState) SidebarState {
		out := SidebarState{Collapsed: st.Collapsed}
		out.Width = layout.Clamp(st.Width, layout.MinSidebarWidth, layout.MaxSidebarWidth)
		for _, slot := range st.Panels {
			if !Known(slot.ID) || seen[slot.ID] {
				continue
			}
			seen[slot.ID] = true
			slot.Height = layout.Clamp(slot.Height, MinHeight, MaxHeight)
			out.Panels = append(out.Panels, slot)
		}
		renormalize(out.Panels, -1)
		return out
	}

	left := sanitize(snap.Left)
	right := sanitize(snap.Right)
	if len(left.Panels) == 0 && len(right.Panels) == 0 {
		return
	}
	s.left = left
	s.right = right
}

func indexOf(slots []Slot, id ID) int {
	for i, slot := range slots {
		if slot.ID == id {
			return i
		}
	}
	return -1
}

func sideTitle(side Side) string {
	if side == SideRight {
		return "Right"
	}
	return "Left"
}

// renormalize rescales slot heights so they sum to 100. When pinned is a
// valid index that slot keeps its value and the remainder is split among
// the others in proportion to their prior heights; otherwise all slots
// scale proportionally. Bounds are re-applied after scaling and any
// residual is settled among unsaturated slots.
func renormalize(slots []Slot, pinned int) {
	n := len(slots)
	switch n {
	case 0:
		return
	case 1:
		slots[0].Height = 100
		return
	}

	if pinned >= 0 && pinned < n {
		fixed := layout.Clamp(slots[pinned].Height, MinHeight, MaxHeight)
		slots[pinned].Height = fixed
		remainder := 100 - fixed

		var prior float64
		for i, slot := range slots {
			if i != pinned {
				prior += slot.Height
			}
		}
		for i := range slots {
			if i == pinned {
				continue
			}
			var share float64
			if prior > 0 {
				share = remainder * slots[i].Height / prior
			} else {
				share = remainder / float64(n-1)
			}
			slots[i].Height = layout.Clamp(share, MinHeight, MaxHeight)
		}
		settle(slots, pinned)
		return
	}

	var prior float64
	for _, slot := range slots {
		prior += slot.Height
	}
	for i := range slots {
		var share float64
		if prior > 0 {
			share = 100 * slots[i].Height / prior
		} else {
			share = 100 / float64(n)
		}
		slots[i].Height = layout.Clamp(share, MinHeight, MaxHeight)
	}
	settle(slots, -1)
}

// settle spreads any residual from post-scale clamping across slots that
// still have headroom, skipping the pinned one. A few passes suffice; if
// the bounds make 100 unreachable the remainder stays within tolerance of
// the closest feasible total.
func settle(slots []Slot, pinned int) {
	for pass := 0; pass < 4; pass++ {
		var sum float64
		for _, slot := range slots {
			sum += slot.Height
		}
		diff := 100 - sum
		if math.Abs(diff) <= sumTolerance {
			return
		}

		var adjustable []int
		for i := range slots {
			if i == pinned {
				continue
			}
			if diff > 0 && slots[i].Height < MaxHeight {
				adjustable = append(adjustable, i)
			}
			if diff < 0 && slots[i].Height > MinHeight {
				adjustable = append(adjustable, i)
			}
		}
		if len(adjustable) == 0 {
			// Every movable slot is saturated; fall back to adjusting
			// the pinned slot rather than leaving the dock unbalanced.
			if pinned >= 0 {
				slots[pinned].Height = layout.Clamp(slots[pinned].Height+diff, MinHeight, MaxHeight)
			}
			return
		}

		per := diff / float64(len(adjustable))
		for _, i := range adjustable {
			slots[i].Height = layout.Clamp(slots[i].Height+per, MinHeight, MaxHeight)
		}
	}
}
