package cli

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// MaxHistory bounds the input history ring.
const MaxHistory = 100

// Mode is the input line's interaction mode.
type Mode string

const (
	ModePrompt  Mode = "prompt"
	ModeCommand Mode = "command"
)

// Direction moves the history cursor.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Persister stores accepted history entries durably. Optional.
type Persister interface {
	Add(ctx context.Context, sessionID, text string) error
}

// Store holds the CLI input line state: a newest-first history ring with
// a navigation cursor, plus mode and loading/error/approval flags. The
// cursor is -1 while not navigating.
type Store struct {
	mu              sync.Mutex
	history         []string
	cursor          int
	currentInput    string
	mode            Mode
	loading         bool
	loadingMessage  string
	errMsg          string
	approvalPending bool

	sessionID string
	persist   Persister
	log       *zap.Logger
}

// NewStore builds a store in prompt mode with an empty history.
func NewStore() *Store {
	return &Store{cursor: -1, mode: ModePrompt, log: zap.NewNop()}
}

// WithPersistence mirrors accepted entries into persist under sessionID.
// Persistence failures are logged, never surfaced to the input loop.
func (s *Store) WithPersistence(persist Persister, sessionID string, log *zap.Logger) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persist = persist
	s.sessionID = sessionID
	if log != nil {
		s.log = log.Named("cli")
	}
	return s
}

// AddToHistory records an accepted input line. Blank lines and a repeat
// of the most recent entry are rejected; the cursor resets either way
// only on an actual insert.
func (s *Store) AddToHistory(input string) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return
	}

	s.mu.Lock()
	if len(s.history) > 0 && s.history[0] == trimmed {
		s.mu.Unlock()
		return
	}
	s.history = append([]string{trimmed}, s.history...)
	if len(s.history) > MaxHistory {
		s.history = s.history[:MaxHistory]
	}
	s.cursor = -1
	persist, sessionID := s.persist, s.sessionID
	s.mu.Unlock()

	if persist != nil {
		if err := persist.Add(context.Background(), sessionID, trimmed); err != nil {
			s.log.Warn("history persist failed", zap.Error(err))
		}
	}
}

// NavigateHistory moves the cursor and returns the entry under it. Up
// walks toward older entries, clamped at the oldest; Down walks back,
// returning the empty string once the cursor leaves history. With no
// history at all the live input comes back unchanged.
func (s *Store) NavigateHistory(dir Direction) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.history) == 0 {
		return s.currentInput
	}

	switch dir {
	case Up:
		if s.cursor < len(s.history)-1 {
			s.cursor++
		}
	case Down:
		if s.cursor > -1 {
			s.cursor--
		}
	}

	if s.cursor == -1 {
		return ""
	}
	return s.history[s.cursor]
}

// ClearHistory drops all entries and resets the cursor.
func (s *Store) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.cursor = -1
}

// SeedHistory replaces the ring with persisted entries, newest first.
func (s *Store) SeedHistory(entries []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(entries) > MaxHistory {
		entries = entries[:MaxHistory]
	}
	s.history = append([]string(nil), entries...)
	s.cursor = -1
}

// History returns a copy of the ring, newest first.
func (s *Store) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history...)
}

// Cursor returns the navigation index, -1 when not navigating.
func (s *Store) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// SetCurrentInput tracks the live, not-yet-submitted input line.
func (s *Store) SetCurrentInput(input string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentInput = input
}

func (s *Store) CurrentInput() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentInput
}

func (s *Store) SetMode(mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

func (s *Store) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetLoading flips the loading flag. The message only survives while
// loading is true; clearing always discards it.
func (s *Store) SetLoading(loading bool, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
	if !loading {
		message = ""
	}
	s.loadingMessage = message
}

func (s *Store) Loading() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading, s.loadingMessage
}

func (s *Store) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = msg
}

func (s *Store) Error() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

func (s *Store) SetApprovalPending(pending bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvalPending = pending
}

func (s *Store) ApprovalPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.approvalPending
}
