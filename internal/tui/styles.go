package tui

import "github.com/charmbracelet/lipgloss"

// Theme is the color set the views render with.
type Theme struct {
	Border    lipgloss.Color
	Accent    lipgloss.Color
	Muted     lipgloss.Color
	Error     lipgloss.Color
	Highlight lipgloss.Color
}

var themes = map[string]Theme{
	"dark": {
		Border:    lipgloss.Color("#3b3b3b"),
		Accent:    lipgloss.Color("#7C3AED"),
		Muted:     lipgloss.Color("#6b6b6b"),
		Error:     lipgloss.Color("#DC2626"),
		Highlight: lipgloss.Color("#2563EB"),
	},
	"light": {
		Border:    lipgloss.Color("#c8c8c8"),
		Accent:    lipgloss.Color("#5B21B6"),
		Muted:     lipgloss.Color("#8a8a8a"),
		Error:     lipgloss.Color("#B91C1C"),
		Highlight: lipgloss.Color("#1D4ED8"),
	},
}

// ThemeByName falls back to dark for unknown names.
func ThemeByName(name string) Theme {
	if t, ok := themes[name]; ok {
		return t
	}
	return themes["dark"]
}

type viewStyles struct {
	panelBox  lipgloss.Style
	panelName lipgloss.Style
	rail      lipgloss.Style
	railIcon  lipgloss.Style
	status    lipgloss.Style
	errText   lipgloss.Style
	voiceOn   lipgloss.Style
}

func newViewStyles(t Theme) viewStyles {
	return viewStyles{
		panelBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Border).
			Padding(0, 1),
		panelName: lipgloss.NewStyle().
			Foreground(t.Accent).
			Bold(true),
		rail: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, true, false, false).
			BorderForeground(t.Border).
			Padding(0, 1),
		railIcon: lipgloss.NewStyle().
			Foreground(t.Muted),
		status: lipgloss.NewStyle().
			Foreground(t.Muted),
		errText: lipgloss.NewStyle().
			Foreground(t.Error).
			Bold(true),
		voiceOn: lipgloss.NewStyle().
			Foreground(t.Highlight).
			Bold(true),
	}
}
