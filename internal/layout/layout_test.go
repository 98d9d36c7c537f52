package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetTerminalHeightClamps(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"below minimum", 50, 100},
		{"at minimum", 100, 100},
		{"in range", 420, 420},
		{"above maximum", 900, 600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState()
			s.SetTerminalHeight(tt.in)
			assert.Equal(t, tt.want, s.TerminalHeight())
		})
	}
}

func TestSetPanelHeightClamps(t *testing.T) {
	s := NewState()
	s.SetPanelHeight(50)
	assert.Equal(t, 100, s.PanelHeight())
	s.SetPanelHeight(1000)
	assert.Equal(t, 400, s.PanelHeight())
}

func TestResetGrid(t *testing.T) {
	s := NewState()
	s.SetGrid(GridConfig{Columns: 6, RowHeight: 40, MaxRows: 4, MaxCols: 6})
	assert.Equal(t, 6, s.Grid().Columns)

	s.ResetGrid()
	assert.Equal(t, DefaultGrid(), s.Grid())
}

func TestSetGridRejectsInvalid(t *testing.T) {
	s := NewState()
	s.SetGrid(GridConfig{Columns: 0, RowHeight: 40})
	assert.Equal(t, DefaultGrid(), s.Grid())
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := NewState()
	s.SetTheme("light")
	s.SetTerminalHeight(300)
	s.SetShowHiddenFiles(true)

	restored := NewState()
	restored.Restore(s.Snapshot())

	assert.Equal(t, "light", restored.Theme())
	assert.Equal(t, 300, restored.TerminalHeight())
	assert.True(t, restored.ShowHiddenFiles())
}

func TestRestoreClampsOutOfRange(t *testing.T) {
	s := NewState()
	s.Restore(Snapshot{TerminalHeight: 9999})
	assert.Equal(t, 600, s.TerminalHeight())
}
