package session

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/lucasb-eyer/go-colorful"

	"deckhand/internal/pubsub"
)

// Agent is one workspace agent as the client sees it.
type Agent struct {
	ID    string
	Name  string
	Role  string
	Color string
	Model string
}

// palette is the fixed agent color cycle; new agents pick the entry at
// (existing count) mod len(palette).
var palette = mustPalette([]string{
	"#7C3AED", // violet
	"#2563EB", // blue
	"#059669", // emerald
	"#D97706", // amber
	"#DC2626", // red
	"#0891B2", // cyan
})

func mustPalette(hexes []string) []string {
	out := make([]string, 0, len(hexes))
	for _, hex := range hexes {
		c, err := colorful.Hex(hex)
		if err != nil {
			panic(err)
		}
		out = append(out, c.Hex())
	}
	return out
}

// NextColor returns the palette color for an agent joining a session that
// already holds count agents.
func NextColor(count int) string {
	return palette[count%len(palette)]
}

// Store tracks the current session: its id, agent roster, and opened file
// previews. Mutations publish on the broker so panels can refresh.
type Store struct {
	mu       sync.RWMutex
	id       string
	agents   []Agent
	previews []string
	events   *pubsub.Broker[string]
}

// NewStore creates a session store with a fresh session id.
func NewStore() *Store {
	return &Store{
		id:     uuid.NewString(),
		events: pubsub.NewBroker[string](),
	}
}

// ID returns the session identifier.
func (s *Store) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Events exposes the session change broker.
func (s *Store) Events() *pubsub.Broker[string] { return s.events }

// Agents returns a copy of the roster.
func (s *Store) Agents() []Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Agent(nil), s.agents...)
}

// AgentCount returns the roster size.
func (s *Store) AgentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.agents)
}

// AddAgent appends an agent to the roster. An agent with an empty color
// is assigned the next palette color.
func (s *Store) AddAgent(agent Agent) {
	s.mu.Lock()
	if agent.Color == "" {
		agent.Color = NextColor(len(s.agents))
	}
	s.agents = append(s.agents, agent)
	s.mu.Unlock()

	s.events.Publish(pubsub.CreatedEvent, agent.Name)
}

// FindAgent resolves target against the roster: case-insensitive role
// equality first, then case-insensitive name substring.
func (s *Store) FindAgent(target string) (Agent, bool) {
	target = strings.ToLower(strings.TrimSpace(target))
	if target == "" {
		return Agent{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.agents {
		if strings.ToLower(a.Role) == target {
			return a, true
		}
	}
	for _, a := range s.agents {
		if strings.Contains(strings.ToLower(a.Name), target) {
			return a, true
		}
	}
	return Agent{}, false
}

// OpenFilePreview records a preview request for path.
func (s *Store) OpenFilePreview(path string) {
	path = strings.TrimSpace(path)
	if path == "" {
		return
	}
	s.mu.Lock()
	s.previews = append(s.previews, path)
	s.mu.Unlock()

	s.events.Publish(pubsub.UpdatedEvent, path)
}

// Previews returns the opened preview paths, oldest first.
func (s *Store) Previews() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.previews...)
}

// Close shuts the event broker down.
func (s *Store) Close() {
	s.events.Shutdown()
}
