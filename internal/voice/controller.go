package voice

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"deckhand/internal/api"
	"deckhand/internal/pubsub"
	"deckhand/internal/session"
	"deckhand/internal/stream"
)

// ErrBusy is returned by StartListening while a capture or parse cycle is
// still in flight. Listening and Processing are exclusive states; callers
// retry once the controller is idle again.
var ErrBusy = errors.New("voice capture already in progress")

// State is the controller's lifecycle phase.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
)

// Error messages surfaced to the UI. The strings are part of the surface:
// the status line renders them verbatim.
const (
	errMicrophone   = "Failed to access microphone"
	errParseCommand = "Failed to process command"
)

// Uplink carries audio frames to the backend.
type Uplink interface {
	StreamStart(streamID, sessionID, encoding string) error
	StreamChunk(streamID string, seq int, audio []byte) error
	StreamEnd(streamID string) error
}

// Parser turns a final transcript into a command.
type Parser interface {
	ParseVoiceCommand(ctx context.Context, text, sessionID string) (api.ParsedCommand, error)
}

// AgentAPI is the slice of the backend API the dispatcher needs.
type AgentAPI interface {
	SendAgentMessage(ctx context.Context, sessionID, agentID, message string) error
	CreateAgent(ctx context.Context, sessionID string, req api.CreateAgentRequest) (api.Agent, error)
}

// SessionStore is the dispatcher's view of the current session.
type SessionStore interface {
	ID() string
	AgentCount() int
	FindAgent(target string) (session.Agent, bool)
	AddAgent(agent session.Agent)
	OpenFilePreview(path string)
}

// AttentionStore routes notification commands.
type AttentionStore interface {
	OpenPanel()
	DismissAllForSession(sessionID string) int
	Approve(agentName string) bool
}

// LayoutActions is the slice of the UI surface voice commands drive.
type LayoutActions interface {
	ShowTerminal()
	ShowPreview()
	ToggleLeftSidebar()
	SearchFiles(query string)
	RunCommand(command string)
}

// Callbacks notify the owner about dispatch outcomes. Either may be nil.
type Callbacks struct {
	OnCommandExecuted func(api.ParsedCommand)
	OnError           func(error)
}

// Config wires a Controller's collaborators.
type Config struct {
	Recorder  Recorder
	Uplink    Uplink
	Parser    Parser
	Agents    AgentAPI
	Session   SessionStore
	Attention AttentionStore
	UI        LayoutActions
	Log       *zap.Logger
	Callbacks Callbacks

	// Options overrides microphone capture settings. Zero value means
	// DefaultCaptureOptions.
	Options CaptureOptions
}

// Controller runs the voice command lifecycle: capture, streaming upload,
// transcription handling, parse, and dispatch. State transitions are
// Idle -> Listening -> Processing -> Idle; Error is orthogonal and never
// blocks the next cycle.
type Controller struct {
	cfg Config
	log *zap.Logger

	mu          sync.Mutex
	state       State
	transcript  string
	lastCommand *api.ParsedCommand
	errMsg      string
	streamID    string

	wg     sync.WaitGroup
	closed bool
}

// builtinRoles are the agent roles create_agent accepts verbatim.
var builtinRoles = map[string]bool{
	"architect": true,
	"coder":     true,
	"reviewer":  true,
	"tester":    true,
}

var approvePattern = regexp.MustCompile(`approve\s+(\S+)`)

// NewController validates cfg and builds a controller in StateIdle.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Recorder == nil || cfg.Uplink == nil || cfg.Parser == nil {
		return nil, fmt.Errorf("voice controller requires recorder, uplink, and parser")
	}
	if cfg.Session == nil || cfg.Attention == nil || cfg.UI == nil || cfg.Agents == nil {
		return nil, fmt.Errorf("voice controller requires session, attention, agents, and ui collaborators")
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Options == (CaptureOptions{}) {
		cfg.Options = DefaultCaptureOptions()
	}
	return &Controller{cfg: cfg, log: log.Named("voice"), state: StateIdle}, nil
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcript returns the latest (possibly partial) transcript.
func (c *Controller) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript
}

// LastCommand returns the most recent successfully parsed command.
func (c *Controller) LastCommand() (api.ParsedCommand, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastCommand == nil {
		return api.ParsedCommand{}, false
	}
	return *c.lastCommand, true
}

// ErrorMessage returns the current user-facing error, if any.
func (c *Controller) ErrorMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// StartListening opens the microphone and begins streaming audio to the
// backend. It returns ErrBusy unless the controller is idle.
func (c *Controller) StartListening(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("voice controller closed")
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrBusy
	}

	enc, ok := SelectEncoding(c.cfg.Recorder)
	if !ok {
		c.errMsg = errMicrophone
		c.mu.Unlock()
		err := fmt.Errorf("%s: no supported audio encoding", errMicrophone)
		c.notifyError(err)
		return err
	}

	chunks, err := c.cfg.Recorder.Start(ctx, c.cfg.Options, enc)
	if err != nil {
		c.errMsg = errMicrophone
		c.mu.Unlock()
		wrapped := fmt.Errorf("%s: %w", errMicrophone, err)
		c.notifyError(wrapped)
		return wrapped
	}

	c.state = StateListening
	c.errMsg = ""
	c.transcript = ""
	c.streamID = uuid.NewString()
	streamID := c.streamID
	sessionID := c.cfg.Session.ID()
	c.mu.Unlock()

	// Stream start is fire-and-forget: a failed ack degrades to a logged
	// warning, the recorder keeps running.
	if err := c.cfg.Uplink.StreamStart(streamID, sessionID, string(enc)); err != nil {
		c.log.Warn("voice stream start not acknowledged", zap.Error(err))
	}

	c.wg.Add(1)
	go c.pumpChunks(streamID, chunks)
	return nil
}

func (c *Controller) pumpChunks(streamID string, chunks <-chan []byte) {
	defer c.wg.Done()
	seq := 0
	for chunk := range chunks {
		if err := c.cfg.Uplink.StreamChunk(streamID, seq, chunk); err != nil {
			c.log.Warn("voice chunk dropped", zap.Int("seq", seq), zap.Error(err))
		}
		seq++
	}
}

// StopListening ends capture and waits for the final transcription. The
// transcript arrives later via HandleTranscription; this call only moves
// the controller into Processing.
func (c *Controller) StopListening() {
	c.mu.Lock()
	if c.state != StateListening {
		c.mu.Unlock()
		return
	}
	streamID := c.streamID
	c.state = StateProcessing
	c.mu.Unlock()

	if err := c.cfg.Recorder.Stop(); err != nil {
		c.log.Warn("recorder stop", zap.Error(err))
	}
	if err := c.cfg.Uplink.StreamEnd(streamID); err != nil {
		c.log.Warn("voice stream end not acknowledged", zap.Error(err))
	}
}

// CancelListening aborts the cycle without transcription: capture stops,
// buffered audio is discarded, and the controller returns to Idle.
func (c *Controller) CancelListening() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	c.transcript = ""
	c.streamID = ""
	c.mu.Unlock()

	if err := c.cfg.Recorder.Stop(); err != nil {
		c.log.Warn("recorder stop", zap.Error(err))
	}
}

// Run consumes transcription events until ctx is done or the channel
// closes. It is the owner's event loop glue.
func (c *Controller) Run(ctx context.Context, events <-chan pubsub.Event[stream.Transcription]) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.HandleTranscription(ctx, evt.Payload)
		}
	}
}

// HandleTranscription processes one transcription event. Events for
// other agent channels are ignored; non-final events only update the
// transcript; a final event triggers parse and dispatch.
func (c *Controller) HandleTranscription(ctx context.Context, tr stream.Transcription) {
	if tr.AgentID != stream.VoiceAgentID {
		return
	}

	c.mu.Lock()
	if !tr.IsFinal {
		c.transcript = tr.Text
		c.mu.Unlock()
		return
	}

	text := strings.TrimSpace(tr.Text)
	if text == "" {
		// Nothing to parse; the cycle ends here.
		c.state = StateIdle
		c.mu.Unlock()
		return
	}
	c.transcript = tr.Text
	c.state = StateProcessing
	sessionID := c.cfg.Session.ID()
	c.mu.Unlock()

	cmd, err := c.cfg.Parser.ParseVoiceCommand(ctx, text, sessionID)
	if err != nil {
		c.mu.Lock()
		c.errMsg = errParseCommand
		c.state = StateIdle
		c.mu.Unlock()
		c.notifyError(fmt.Errorf("%s: %w", errParseCommand, err))
		return
	}

	c.mu.Lock()
	c.lastCommand = &cmd
	c.state = StateIdle
	c.mu.Unlock()

	c.ExecuteCommand(ctx, cmd)
}

// ExecuteCommand routes a parsed command to its collaborator. Dispatch
// failures are caught here: they set the user-facing error and invoke the
// error callback, never panic through the event loop.
func (c *Controller) ExecuteCommand(ctx context.Context, cmd api.ParsedCommand) {
	if err := c.dispatch(ctx, cmd); err != nil {
		c.log.Warn("voice command failed",
			zap.String("command", string(cmd.CommandType)),
			zap.Error(err))
		c.notifyError(err)
		return
	}
	if c.cfg.Callbacks.OnCommandExecuted != nil {
		c.cfg.Callbacks.OnCommandExecuted(cmd)
	}
}

func (c *Controller) dispatch(ctx context.Context, cmd api.ParsedCommand) error {
	switch cmd.CommandType {
	case api.CommandOpenFile:
		if cmd.Target != "" {
			c.cfg.Session.OpenFilePreview(cmd.Target)
		}
		return nil

	case api.CommandTalkToAgent:
		agent, ok := c.cfg.Session.FindAgent(cmd.Target)
		if !ok {
			msg := fmt.Sprintf("Agent %q not found", cmd.Target)
			c.setError(msg)
			return errors.New(msg)
		}
		if err := c.cfg.Agents.SendAgentMessage(ctx, c.cfg.Session.ID(), agent.ID, cmd.Message); err != nil {
			return fmt.Errorf("send message to %s: %w", agent.Name, err)
		}
		return nil

	case api.CommandShowTerminal:
		c.cfg.UI.ShowTerminal()
		return nil

	case api.CommandShowPreview:
		c.cfg.UI.ShowPreview()
		return nil

	case api.CommandToggleSidebar:
		c.cfg.UI.ToggleLeftSidebar()
		return nil

	case api.CommandSearchFiles:
		c.cfg.UI.SearchFiles(cmd.Target)
		return nil

	case api.CommandRunCommand:
		c.cfg.UI.RunCommand(cmd.Target)
		return nil

	case api.CommandCreateAgent:
		return c.createAgent(ctx, cmd)

	case api.CommandUnknown:
		return c.dispatchUnknown(cmd)

	default:
		// Unrecognized tag from a newer backend; treat like unknown.
		return c.dispatchUnknown(cmd)
	}
}

func (c *Controller) createAgent(ctx context.Context, cmd api.ParsedCommand) error {
	target := strings.TrimSpace(cmd.Target)
	role := strings.ToLower(target)
	name := capitalize(role)
	if !builtinRoles[role] {
		role = "custom"
		name = capitalize(target)
	}

	created, err := c.cfg.Agents.CreateAgent(ctx, c.cfg.Session.ID(), api.CreateAgentRequest{
		Name: name,
		Role: role,
	})
	if err != nil {
		msg := fmt.Sprintf("Failed to create %s agent", target)
		c.setError(msg)
		return fmt.Errorf("%s: %w", msg, err)
	}

	c.cfg.Session.AddAgent(session.Agent{
		ID:    created.ID,
		Name:  created.Name,
		Role:  role,
		Model: created.Model,
		Color: session.NextColor(c.cfg.Session.AgentCount()),
	})
	return nil
}

// dispatchUnknown keyword-sniffs the raw transcript for notification
// phrasing before giving up.
func (c *Controller) dispatchUnknown(cmd api.ParsedCommand) error {
	raw := strings.ToLower(cmd.RawText)
	switch {
	case strings.Contains(raw, "show notification"):
		c.cfg.Attention.OpenPanel()
	case strings.Contains(raw, "dismiss all notification"):
		c.cfg.Attention.DismissAllForSession(c.cfg.Session.ID())
	default:
		if m := approvePattern.FindStringSubmatch(raw); m != nil {
			c.cfg.Attention.Approve(m[1])
			return nil
		}
		c.log.Info("unhandled voice command", zap.String("raw", cmd.RawText))
	}
	return nil
}

func (c *Controller) setError(msg string) {
	c.mu.Lock()
	c.errMsg = msg
	c.mu.Unlock()
}

func (c *Controller) notifyError(err error) {
	if c.cfg.Callbacks.OnError != nil {
		c.cfg.Callbacks.OnError(err)
	}
}

// Close releases the recorder and waits for the chunk pump. Safe to call
// more than once and alongside an active cycle.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = StateIdle
	c.mu.Unlock()

	if err := c.cfg.Recorder.Stop(); err != nil {
		c.log.Warn("recorder stop on close", zap.Error(err))
	}
	c.wg.Wait()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
