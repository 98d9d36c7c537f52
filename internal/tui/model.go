package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"deckhand/internal/cli"
	"deckhand/internal/layout"
	"deckhand/internal/panel"
	"deckhand/internal/pubsub"
	"deckhand/internal/session"
	"deckhand/internal/voice"
)

// BrokerAnnouncer publishes layout announcements on a broker so the
// status line (and anything else subscribed) can show them.
type BrokerAnnouncer struct {
	Broker *pubsub.Broker[string]
}

func (a BrokerAnnouncer) Announce(msg string) {
	a.Broker.Publish(pubsub.AnnouncedEvent, msg)
}

// VoiceController is the slice of the voice controller the UI drives.
type VoiceController interface {
	StartListening(ctx context.Context) error
	StopListening()
	CancelListening()
	State() voice.State
	Transcript() string
	ErrorMessage() string
}

type keyMap struct {
	Quit        key.Binding
	ToggleLeft  key.Binding
	ToggleRight key.Binding
	ResetLayout key.Binding
	Voice       key.Binding
	Cancel      key.Binding
	FocusNext   key.Binding
	MovePanel   key.Binding
	Grow        key.Binding
	Shrink      key.Binding
	HistoryUp   key.Binding
	HistoryDown key.Binding
	Submit      key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:        key.NewBinding(key.WithKeys("ctrl+c")),
		ToggleLeft:  key.NewBinding(key.WithKeys("ctrl+b")),
		ToggleRight: key.NewBinding(key.WithKeys("ctrl+n")),
		ResetLayout: key.NewBinding(key.WithKeys("ctrl+r")),
		Voice:       key.NewBinding(key.WithKeys("ctrl+v")),
		Cancel:      key.NewBinding(key.WithKeys("esc")),
		FocusNext:   key.NewBinding(key.WithKeys("tab")),
		MovePanel:   key.NewBinding(key.WithKeys("ctrl+o")),
		Grow:        key.NewBinding(key.WithKeys("ctrl+up")),
		Shrink:      key.NewBinding(key.WithKeys("ctrl+down")),
		HistoryUp:   key.NewBinding(key.WithKeys("up")),
		HistoryDown: key.NewBinding(key.WithKeys("down")),
		Submit:      key.NewBinding(key.WithKeys("enter")),
	}
}

type announcementMsg string

// focusRef addresses one panel slot for keyboard resize and move.
type focusRef struct {
	side  panel.Side
	index int
}

// Config wires the root model.
type Config struct {
	Layout        *layout.State
	Panels        *panel.Store
	CLI           *cli.Store
	Session       *session.Store
	Voice         VoiceController
	Actions       *Actions
	Announcements <-chan pubsub.Event[string]
	OnSubmit      func(input string)
	Log           *zap.Logger
}

// Model is the root bubbletea model. All state lives in the stores; the
// model only tracks view concerns: focus, sizes, and the status line.
type Model struct {
	cfg  Config
	keys keyMap
	log  *zap.Logger

	input       textinput.Model
	focus       focusRef
	status      string
	terminalCmd string

	width  int
	height int
}

// New builds the root model around the shared stores.
func New(cfg Config) Model {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	ti := textinput.New()
	ti.Placeholder = "Type a command, or ctrl+v to speak"
	ti.Prompt = "> "
	ti.Focus()

	return Model{
		cfg:   cfg,
		keys:  defaultKeyMap(),
		log:   log.Named("tui"),
		input: ti,
		focus: focusRef{side: panel.SideLeft},
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.listenAnnouncements())
}

// listenAnnouncements turns broker events into tea messages, one at a
// time; Update re-arms it after each delivery.
func (m Model) listenAnnouncements() tea.Cmd {
	ch := m.cfg.Announcements
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			return nil
		}
		return announcementMsg(evt.Payload)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Voice commands queue terminal input through Actions; drain it into
	// view state on whatever message wakes the loop next.
	if m.cfg.Actions != nil {
		if cmd, ok := m.cfg.Actions.TakePendingCommand(); ok {
			m.terminalCmd = cmd
		}
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 4
		return m, nil

	case announcementMsg:
		m.status = string(msg)
		return m, m.listenAnnouncements()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	keys := m.keys
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.ToggleLeft):
		m.cfg.Panels.ToggleSidebar(panel.SideLeft)
		return m, nil

	case key.Matches(msg, keys.ToggleRight):
		m.cfg.Panels.ToggleSidebar(panel.SideRight)
		return m, nil

	case key.Matches(msg, keys.ResetLayout):
		m.cfg.Panels.ResetLayout()
		m.focus = focusRef{side: panel.SideLeft}
		return m, nil

	case key.Matches(msg, keys.Voice):
		return m.toggleVoice()

	case key.Matches(msg, keys.Cancel):
		if m.cfg.Voice != nil && m.cfg.Voice.State() != voice.StateIdle {
			m.cfg.Voice.CancelListening()
			m.status = "Voice input cancelled"
		}
		return m, nil

	case key.Matches(msg, keys.FocusNext):
		m.focus = m.nextFocus()
		return m, nil

	case key.Matches(msg, keys.MovePanel):
		m.movePanel()
		return m, nil

	case key.Matches(msg, keys.Grow):
		m.resizePanel(+5)
		return m, nil

	case key.Matches(msg, keys.Shrink):
		m.resizePanel(-5)
		return m, nil

	case key.Matches(msg, keys.HistoryUp):
		m.cfg.CLI.SetCurrentInput(m.input.Value())
		m.input.SetValue(m.cfg.CLI.NavigateHistory(cli.Up))
		m.input.CursorEnd()
		return m, nil

	case key.Matches(msg, keys.HistoryDown):
		m.input.SetValue(m.cfg.CLI.NavigateHistory(cli.Down))
		m.input.CursorEnd()
		return m, nil

	case key.Matches(msg, keys.Submit):
		value := strings.TrimSpace(m.input.Value())
		if value == "" {
			return m, nil
		}
		m.cfg.CLI.AddToHistory(value)
		m.input.SetValue("")
		m.cfg.CLI.SetCurrentInput("")
		if m.cfg.OnSubmit != nil {
			m.cfg.OnSubmit(value)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.cfg.CLI.SetCurrentInput(m.input.Value())
	return m, cmd
}

func (m Model) toggleVoice() (tea.Model, tea.Cmd) {
	v := m.cfg.Voice
	if v == nil {
		m.status = "Voice input not available"
		return m, nil
	}
	switch v.State() {
	case voice.StateIdle:
		if err := v.StartListening(context.Background()); err != nil {
			m.status = v.ErrorMessage()
			return m, nil
		}
		m.status = "Listening..."
	case voice.StateListening:
		v.StopListening()
		m.status = "Processing..."
	}
	return m, nil
}

// nextFocus cycles left panels, then right panels, then wraps.
func (m Model) nextFocus() focusRef {
	snap := m.cfg.Panels.Snapshot()
	order := make([]focusRef, 0, len(snap.Left.Panels)+len(snap.Right.Panels))
	for i := range snap.Left.Panels {
		order = append(order, focusRef{side: panel.SideLeft, index: i})
	}
	for i := range snap.Right.Panels {
		order = append(order, focusRef{side: panel.SideRight, index: i})
	}
	if len(order) == 0 {
		return focusRef{side: panel.SideLeft}
	}
	for i, ref := range order {
		if ref == m.focus {
			return order[(i+1)%len(order)]
		}
	}
	return order[0]
}

func (m *Model) movePanel() {
	snap := m.cfg.Panels.Snapshot()
	side := snap.Left
	if m.focus.side == panel.SideRight {
		side = snap.Right
	}
	if m.focus.index >= len(side.Panels) {
		return
	}
	id := side.Panels[m.focus.index].ID
	m.cfg.Panels.MovePanel(id, m.focus.side.Other())
	m.focus = focusRef{side: m.focus.side.Other()}
}

func (m *Model) resizePanel(delta float64) {
	snap := m.cfg.Panels.Snapshot()
	side := snap.Left
	if m.focus.side == panel.SideRight {
		side = snap.Right
	}
	if m.focus.index >= len(side.Panels) {
		return
	}
	current := side.Panels[m.focus.index].Height
	m.cfg.Panels.SetPanelHeight(m.focus.side, m.focus.index, current+delta)
}

func (m Model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	styles := newViewStyles(ThemeByName(m.cfg.Layout.Theme()))
	snap := m.cfg.Panels.Snapshot()

	bodyHeight := m.height - 3
	left := m.renderSidebar(styles, panel.SideLeft, snap.Left, bodyHeight)
	right := m.renderSidebar(styles, panel.SideRight, snap.Right, bodyHeight)

	centerWidth := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if centerWidth < 0 {
		centerWidth = 0
	}
	center := lipgloss.NewStyle().
		Width(centerWidth).
		Height(bodyHeight).
		Render(m.renderCenter(styles))

	body := lipgloss.JoinHorizontal(lipgloss.Top, left, center, right)
	return lipgloss.JoinVertical(lipgloss.Left, body, m.input.View(), m.statusLine(styles))
}

// renderSidebar draws the icon rail and, when expanded, the panel stack
// with heights proportional to their stored percentages.
func (m Model) renderSidebar(styles viewStyles, side panel.Side, state panel.SidebarState, height int) string {
	rail := m.renderRail(styles, state)
	if state.Collapsed || len(state.Panels) == 0 {
		return rail
	}

	// Terminal cells, not pixels: scale the stored width down.
	cols := state.Width / 10
	var boxes []string
	for i, slot := range state.Panels {
		meta, ok := panel.Lookup(slot.ID)
		if !ok {
			continue
		}
		rows := int(float64(height) * slot.Height / 100)
		if rows < 3 {
			rows = 3
		}
		name := styles.panelName.Render(meta.Label)
		if (focusRef{side: side, index: i}) == m.focus {
			name = styles.panelName.Underline(true).Render(meta.Label)
		}
		content := m.renderPanelContent(slot.ID)
		box := styles.panelBox.Width(cols).Height(rows - 2).Render(
			name + "\n" + content)
		boxes = append(boxes, box)
	}

	stack := lipgloss.JoinVertical(lipgloss.Left, boxes...)
	if side == panel.SideLeft {
		return lipgloss.JoinHorizontal(lipgloss.Top, rail, stack)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, stack, rail)
}

func (m Model) renderRail(styles viewStyles, state panel.SidebarState) string {
	var icons []string
	for _, slot := range state.Panels {
		if meta, ok := panel.Lookup(slot.ID); ok {
			icons = append(icons, styles.railIcon.Render(meta.Icon))
		}
	}
	return styles.rail.Render(strings.Join(icons, "\n"))
}

func (m Model) renderPanelContent(id panel.ID) string {
	switch id {
	case panel.Agents:
		agents := m.cfg.Session.Agents()
		if len(agents) == 0 {
			return "no agents"
		}
		lines := make([]string, len(agents))
		for i, a := range agents {
			dot := lipgloss.NewStyle().Foreground(lipgloss.Color(a.Color)).Render("●")
			lines[i] = fmt.Sprintf("%s %s", dot, a.Name)
		}
		return strings.Join(lines, "\n")
	case panel.Preview:
		previews := m.cfg.Session.Previews()
		if len(previews) == 0 {
			return "no file open"
		}
		return previews[len(previews)-1]
	case panel.Search:
		if m.cfg.Actions != nil {
			if q := m.cfg.Actions.SearchQuery(); q != "" {
				return "searching: " + q
			}
		}
		return "no query"
	default:
		return ""
	}
}

func (m Model) renderCenter(styles viewStyles) string {
	if !m.cfg.Layout.TerminalVisible() {
		return ""
	}
	if m.terminalCmd != "" {
		return styles.status.Render("terminal") + "\n$ " + m.terminalCmd
	}
	return styles.status.Render("terminal")
}

func (m Model) statusLine(styles viewStyles) string {
	parts := []string{}

	if v := m.cfg.Voice; v != nil {
		switch v.State() {
		case voice.StateListening:
			parts = append(parts, styles.voiceOn.Render("● listening"), v.Transcript())
		case voice.StateProcessing:
			parts = append(parts, styles.voiceOn.Render("◌ processing"))
		}
		if msg := v.ErrorMessage(); msg != "" {
			parts = append(parts, styles.errText.Render(msg))
		}
	}
	if errMsg := m.cfg.CLI.Error(); errMsg != "" {
		parts = append(parts, styles.errText.Render(errMsg))
	}
	if loading, msg := m.cfg.CLI.Loading(); loading && msg != "" {
		parts = append(parts, styles.status.Render(msg))
	}
	if m.status != "" {
		parts = append(parts, styles.status.Render(m.status))
	}
	return strings.Join(parts, "  ")
}
