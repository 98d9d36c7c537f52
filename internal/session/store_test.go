package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAgentAssignsPaletteColors(t *testing.T) {
	s := NewStore()
	defer s.Close()

	for i := 0; i < 8; i++ {
		s.AddAgent(Agent{ID: "a", Name: "agent", Role: "coder"})
	}

	agents := s.Agents()
	require.Len(t, agents, 8)
	assert.Equal(t, agents[0].Color, agents[6].Color, "palette cycles after six agents")
	assert.NotEqual(t, agents[0].Color, agents[1].Color)
}

func TestAddAgentKeepsExplicitColor(t *testing.T) {
	s := NewStore()
	defer s.Close()

	s.AddAgent(Agent{Name: "x", Color: "#123456"})
	assert.Equal(t, "#123456", s.Agents()[0].Color)
}

func TestFindAgentRoleBeforeName(t *testing.T) {
	s := NewStore()
	defer s.Close()
	s.AddAgent(Agent{ID: "1", Name: "Reviewer Bob", Role: "coder"})
	s.AddAgent(Agent{ID: "2", Name: "Alice", Role: "reviewer"})

	// "reviewer" matches agent 2 by role even though agent 1 has it in
	// the name.
	got, ok := s.FindAgent("Reviewer")
	require.True(t, ok)
	assert.Equal(t, "2", got.ID)

	// substring match on name
	got, ok = s.FindAgent("bob")
	require.True(t, ok)
	assert.Equal(t, "1", got.ID)

	_, ok = s.FindAgent("nonexistent")
	assert.False(t, ok)

	_, ok = s.FindAgent("   ")
	assert.False(t, ok)
}

func TestOpenFilePreview(t *testing.T) {
	s := NewStore()
	defer s.Close()

	s.OpenFilePreview("main.go")
	s.OpenFilePreview("  ")
	s.OpenFilePreview("store.go")

	assert.Equal(t, []string{"main.go", "store.go"}, s.Previews())
}

func TestSessionIDStable(t *testing.T) {
	s := NewStore()
	defer s.Close()
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, s.ID(), s.ID())
}
