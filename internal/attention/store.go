package attention

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"deckhand/internal/pubsub"
)

// Attention is a notification that needs the user to act, typically an
// approval request raised by an agent.
type Attention struct {
	ID        string
	SessionID string
	AgentName string
	Reason    string
	CreatedAt time.Time
}

// PanelOpener is the slice of the layout surface the attention store
// needs: the ability to bring its panel into view.
type PanelOpener interface {
	OpenAttentionPanel()
}

type nopOpener struct{}

func (nopOpener) OpenAttentionPanel() {}

// Store holds pending attentions and routes dismiss/approve actions.
type Store struct {
	mu      sync.RWMutex
	pending []Attention
	opener  PanelOpener
	events  *pubsub.Broker[Attention]
}

// NewStore creates an attention store. opener may be nil.
func NewStore(opener PanelOpener) *Store {
	if opener == nil {
		opener = nopOpener{}
	}
	return &Store{
		opener: opener,
		events: pubsub.NewBroker[Attention](),
	}
}

// Events exposes the attention change broker.
func (s *Store) Events() *pubsub.Broker[Attention] { return s.events }

// Raise records a new attention and publishes it.
func (s *Store) Raise(sessionID, agentName, reason string) Attention {
	att := Attention{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		AgentName: agentName,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	s.pending = append(s.pending, att)
	s.mu.Unlock()

	s.events.Publish(pubsub.CreatedEvent, att)
	return att
}

// OpenPanel brings the attention panel into view.
func (s *Store) OpenPanel() {
	s.opener.OpenAttentionPanel()
}

// ForSession returns pending attentions for one session.
func (s *Store) ForSession(sessionID string) []Attention {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Attention
	for _, att := range s.pending {
		if att.SessionID == sessionID {
			out = append(out, att)
		}
	}
	return out
}

// DismissAllForSession drops every pending attention in a session and
// returns how many were dropped.
func (s *Store) DismissAllForSession(sessionID string) int {
	return s.dismiss(func(att Attention) bool { return att.SessionID == sessionID })
}

// DismissAllForAgent drops every pending attention raised by one agent,
// matched case-insensitively.
func (s *Store) DismissAllForAgent(agentName string) int {
	return s.dismiss(func(att Attention) bool {
		return strings.EqualFold(att.AgentName, agentName)
	})
}

// Approve resolves the oldest pending attention for the named agent. It
// reports whether anything matched.
func (s *Store) Approve(agentName string) bool {
	s.mu.Lock()
	for i, att := range s.pending {
		if strings.EqualFold(att.AgentName, agentName) {
			s.pending = append(s.pending[:i:i], s.pending[i+1:]...)
			s.mu.Unlock()
			s.events.Publish(pubsub.DeletedEvent, att)
			return true
		}
	}
	s.mu.Unlock()
	return false
}

func (s *Store) dismiss(match func(Attention) bool) int {
	s.mu.Lock()
	var kept []Attention
	var dropped []Attention
	for _, att := range s.pending {
		if match(att) {
			dropped = append(dropped, att)
		} else {
			kept = append(kept, att)
		}
	}
	s.pending = kept
	s.mu.Unlock()

	for _, att := range dropped {
		s.events.Publish(pubsub.DeletedEvent, att)
	}
	return len(dropped)
}

// Close shuts the event broker down.
func (s *Store) Close() {
	s.events.Shutdown()
}
