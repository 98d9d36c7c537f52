package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deckhand/internal/api"
	"deckhand/internal/pubsub"
	"deckhand/internal/session"
	"deckhand/internal/stream"
)

type fakeRecorder struct {
	mu        sync.Mutex
	supported []Encoding
	failStart bool
	starts    int
	stops     int
	ch        chan []byte
}

func newFakeRecorder(supported ...Encoding) *fakeRecorder {
	if len(supported) == 0 {
		supported = []Encoding{EncodingOpusWebM}
	}
	return &fakeRecorder{supported: supported}
}

func (r *fakeRecorder) Supports(enc Encoding) bool {
	for _, s := range r.supported {
		if s == enc {
			return true
		}
	}
	return false
}

func (r *fakeRecorder) Start(ctx context.Context, opts CaptureOptions, enc Encoding) (<-chan []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failStart {
		return nil, errors.New("device busy")
	}
	r.starts++
	r.ch = make(chan []byte, 8)
	return r.ch, nil
}

func (r *fakeRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	if r.ch != nil {
		close(r.ch)
		r.ch = nil
	}
	return nil
}

func (r *fakeRecorder) emit(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch != nil {
		r.ch <- chunk
	}
}

type uplinkCall struct {
	frame    string
	streamID string
	seq      int
	audio    []byte
}

type fakeUplink struct {
	mu        sync.Mutex
	calls     []uplinkCall
	failStart bool
}

func (u *fakeUplink) StreamStart(streamID, sessionID, encoding string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, uplinkCall{frame: "start", streamID: streamID})
	if u.failStart {
		return errors.New("no ack")
	}
	return nil
}

func (u *fakeUplink) StreamChunk(streamID string, seq int, audio []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, uplinkCall{frame: "chunk", streamID: streamID, seq: seq, audio: audio})
	return nil
}

func (u *fakeUplink) StreamEnd(streamID string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, uplinkCall{frame: "end", streamID: streamID})
	return nil
}

func (u *fakeUplink) frames() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]string, len(u.calls))
	for i, c := range u.calls {
		out[i] = c.frame
	}
	return out
}

type fakeParser struct {
	cmd   api.ParsedCommand
	err   error
	calls []string
}

func (p *fakeParser) ParseVoiceCommand(ctx context.Context, text, sessionID string) (api.ParsedCommand, error) {
	p.calls = append(p.calls, text)
	if p.err != nil {
		return api.ParsedCommand{}, p.err
	}
	if p.cmd.RawText == "" {
		p.cmd.RawText = text
	}
	return p.cmd, nil
}

type fakeAgentAPI struct {
	sent        []string
	created     []api.CreateAgentRequest
	failCreate  bool
	failMessage bool
}

func (a *fakeAgentAPI) SendAgentMessage(ctx context.Context, sessionID, agentID, message string) error {
	if a.failMessage {
		return errors.New("offline")
	}
	a.sent = append(a.sent, fmt.Sprintf("%s:%s", agentID, message))
	return nil
}

func (a *fakeAgentAPI) CreateAgent(ctx context.Context, sessionID string, req api.CreateAgentRequest) (api.Agent, error) {
	if a.failCreate {
		return api.Agent{}, errors.New("quota exceeded")
	}
	a.created = append(a.created, req)
	return api.Agent{ID: "agent-9", Name: req.Name, Model: "default"}, nil
}

type fakeAttention struct {
	opened    int
	dismissed []string
	approved  []string
}

func (f *fakeAttention) OpenPanel() { f.opened++ }
func (f *fakeAttention) DismissAllForSession(sessionID string) int {
	f.dismissed = append(f.dismissed, sessionID)
	return 0
}
func (f *fakeAttention) Approve(agentName string) bool {
	f.approved = append(f.approved, agentName)
	return true
}

type fakeUI struct {
	actions []string
}

func (f *fakeUI) ShowTerminal()            { f.actions = append(f.actions, "terminal") }
func (f *fakeUI) ShowPreview()             { f.actions = append(f.actions, "preview") }
func (f *fakeUI) ToggleLeftSidebar()       { f.actions = append(f.actions, "toggle-left") }
func (f *fakeUI) SearchFiles(query string) { f.actions = append(f.actions, "search:"+query) }
func (f *fakeUI) RunCommand(cmd string)    { f.actions = append(f.actions, "run:"+cmd) }

type harness struct {
	ctrl      *Controller
	rec       *fakeRecorder
	uplink    *fakeUplink
	parser    *fakeParser
	agents    *fakeAgentAPI
	attention *fakeAttention
	ui        *fakeUI
	sess      *session.Store

	mu       sync.Mutex
	executed []api.ParsedCommand
	errs     []error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		rec:       newFakeRecorder(),
		uplink:    &fakeUplink{},
		parser:    &fakeParser{},
		agents:    &fakeAgentAPI{},
		attention: &fakeAttention{},
		ui:        &fakeUI{},
		sess:      session.NewStore(),
	}
	t.Cleanup(h.sess.Close)

	ctrl, err := NewController(Config{
		Recorder:  h.rec,
		Uplink:    h.uplink,
		Parser:    h.parser,
		Agents:    h.agents,
		Session:   h.sess,
		Attention: h.attention,
		UI:        h.ui,
		Callbacks: Callbacks{
			OnCommandExecuted: func(cmd api.ParsedCommand) {
				h.mu.Lock()
				h.executed = append(h.executed, cmd)
				h.mu.Unlock()
			},
			OnError: func(err error) {
				h.mu.Lock()
				h.errs = append(h.errs, err)
				h.mu.Unlock()
			},
		},
	})
	require.NoError(t, err)
	h.ctrl = ctrl
	t.Cleanup(ctrl.Close)
	return h
}

func (h *harness) executedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.executed)
}

func (h *harness) finalEvent(text string) stream.Transcription {
	return stream.Transcription{AgentID: stream.VoiceAgentID, Text: text, IsFinal: true}
}

func TestStartListeningStreamsChunks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.ctrl.StartListening(ctx))
	assert.Equal(t, StateListening, h.ctrl.State())

	h.rec.emit([]byte{1})
	h.rec.emit([]byte{2})
	h.ctrl.StopListening()
	assert.Equal(t, StateProcessing, h.ctrl.State())
	h.ctrl.Close()

	frames := h.uplink.frames()
	require.GreaterOrEqual(t, len(frames), 4)
	assert.Equal(t, "start", frames[0])
	assert.Contains(t, frames, "chunk")
	assert.Contains(t, frames, "end")
}

func TestStartListeningMicrophoneFailure(t *testing.T) {
	h := newHarness(t)
	h.rec.failStart = true

	err := h.ctrl.StartListening(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.Equal(t, "Failed to access microphone", h.ctrl.ErrorMessage())
	assert.Len(t, h.errs, 1)
}

func TestStartListeningNoSupportedEncoding(t *testing.T) {
	h := newHarness(t)
	sess := session.NewStore()
	t.Cleanup(sess.Close)

	ctrl, err := NewController(Config{
		Recorder:  &fakeRecorder{},
		Uplink:    h.uplink,
		Parser:    h.parser,
		Agents:    h.agents,
		Session:   sess,
		Attention: h.attention,
		UI:        h.ui,
	})
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)

	err = ctrl.StartListening(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateIdle, ctrl.State())
	assert.Equal(t, "Failed to access microphone", ctrl.ErrorMessage())
}

func TestStartListeningWhileBusy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.ctrl.StartListening(ctx))
	assert.ErrorIs(t, h.ctrl.StartListening(ctx), ErrBusy)

	// Still busy while processing.
	h.ctrl.StopListening()
	assert.ErrorIs(t, h.ctrl.StartListening(ctx), ErrBusy)

	// Idle again after the final transcription lands.
	h.parser.cmd = api.ParsedCommand{CommandType: api.CommandShowTerminal}
	h.ctrl.HandleTranscription(ctx, h.finalEvent("show terminal"))
	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.NoError(t, h.ctrl.StartListening(ctx))
}

func TestCancelListeningSkipsProcessing(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.StartListening(context.Background()))

	h.ctrl.CancelListening()
	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.Empty(t, h.ctrl.Transcript())
	assert.Empty(t, h.parser.calls, "cancel must not reach the parser")

	// Cancel again: idempotent, including the recorder stop underneath.
	h.ctrl.CancelListening()
	assert.Equal(t, StateIdle, h.ctrl.State())
}

func TestTranscriptIsolationByAgentID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ctrl.HandleTranscription(ctx, stream.Transcription{
		AgentID: "agent-42", Text: "crosstalk", IsFinal: true,
	})
	assert.Empty(t, h.ctrl.Transcript())
	assert.Empty(t, h.parser.calls)
}

func TestPartialTranscriptOnlyUpdatesText(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ctrl.HandleTranscription(ctx, stream.Transcription{
		AgentID: stream.VoiceAgentID, Text: "open ma", IsFinal: false,
	})
	assert.Equal(t, "open ma", h.ctrl.Transcript())
	assert.Empty(t, h.parser.calls)
	assert.Equal(t, 0, h.executedCount())
}

func TestFinalEmptyTranscriptDropped(t *testing.T) {
	h := newHarness(t)
	h.ctrl.HandleTranscription(context.Background(), h.finalEvent("   "))
	assert.Empty(t, h.parser.calls)
	assert.Equal(t, StateIdle, h.ctrl.State())
}

func TestFinalTranscriptParsesAndDispatches(t *testing.T) {
	h := newHarness(t)
	h.parser.cmd = api.ParsedCommand{CommandType: api.CommandShowTerminal, RawText: "show terminal"}

	h.ctrl.HandleTranscription(context.Background(), h.finalEvent("show terminal"))

	assert.Equal(t, []string{"show terminal"}, h.parser.calls)
	assert.Equal(t, []string{"terminal"}, h.ui.actions)
	last, ok := h.ctrl.LastCommand()
	require.True(t, ok)
	assert.Equal(t, api.CommandShowTerminal, last.CommandType)
	assert.Equal(t, 1, h.executedCount())
	assert.Equal(t, StateIdle, h.ctrl.State())
}

func TestParseFailureSetsError(t *testing.T) {
	h := newHarness(t)
	h.parser.err = errors.New("service unavailable")

	h.ctrl.HandleTranscription(context.Background(), h.finalEvent("do something"))

	assert.Equal(t, "Failed to process command", h.ctrl.ErrorMessage())
	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.Equal(t, 0, h.executedCount())
	assert.Len(t, h.errs, 1)
}

func TestTalkToAgentNotFound(t *testing.T) {
	h := newHarness(t)

	h.ctrl.ExecuteCommand(context.Background(), api.ParsedCommand{
		CommandType: api.CommandTalkToAgent,
		Target:      "nonexistent",
		Message:     "hi",
	})

	assert.Equal(t, `Agent "nonexistent" not found`, h.ctrl.ErrorMessage())
	assert.Empty(t, h.agents.sent)
	assert.Equal(t, 0, h.executedCount())
}

func TestTalkToAgentByRoleAndName(t *testing.T) {
	h := newHarness(t)
	h.sess.AddAgent(session.Agent{ID: "a1", Name: "Ada", Role: "coder"})
	h.sess.AddAgent(session.Agent{ID: "a2", Name: "Grace Reviewer", Role: "custom"})

	h.ctrl.ExecuteCommand(context.Background(), api.ParsedCommand{
		CommandType: api.CommandTalkToAgent, Target: "CODER", Message: "run tests",
	})
	h.ctrl.ExecuteCommand(context.Background(), api.ParsedCommand{
		CommandType: api.CommandTalkToAgent, Target: "grace", Message: "review please",
	})

	assert.Equal(t, []string{"a1:run tests", "a2:review please"}, h.agents.sent)
	assert.Equal(t, 2, h.executedCount())
}

func TestOpenFileCommand(t *testing.T) {
	h := newHarness(t)

	h.ctrl.ExecuteCommand(context.Background(), api.ParsedCommand{
		CommandType: api.CommandOpenFile, Target: "main.go",
	})
	assert.Equal(t, []string{"main.go"}, h.sess.Previews())

	// Missing target: dispatch succeeds but opens nothing.
	h.ctrl.ExecuteCommand(context.Background(), api.ParsedCommand{CommandType: api.CommandOpenFile})
	assert.Len(t, h.sess.Previews(), 1)
	assert.Equal(t, 2, h.executedCount())
}

func TestUICommands(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ctrl.ExecuteCommand(ctx, api.ParsedCommand{CommandType: api.CommandShowPreview})
	h.ctrl.ExecuteCommand(ctx, api.ParsedCommand{CommandType: api.CommandToggleSidebar})
	h.ctrl.ExecuteCommand(ctx, api.ParsedCommand{CommandType: api.CommandSearchFiles, Target: "handler"})
	h.ctrl.ExecuteCommand(ctx, api.ParsedCommand{CommandType: api.CommandRunCommand, Target: "make test"})

	assert.Equal(t, []string{"preview", "toggle-left", "search:handler", "run:make test"}, h.ui.actions)
	assert.Equal(t, 4, h.executedCount())
}

func TestCreateAgentBuiltinRole(t *testing.T) {
	h := newHarness(t)

	h.ctrl.ExecuteCommand(context.Background(), api.ParsedCommand{
		CommandType: api.CommandCreateAgent, Target: "reviewer",
	})

	require.Len(t, h.agents.created, 1)
	assert.Equal(t, "reviewer", h.agents.created[0].Role)
	assert.Equal(t, "Reviewer", h.agents.created[0].Name)

	agents := h.sess.Agents()
	require.Len(t, agents, 1)
	assert.Equal(t, "agent-9", agents[0].ID)
	assert.Equal(t, session.NextColor(0), agents[0].Color)
	assert.Equal(t, 1, h.executedCount())
}

func TestCreateAgentCustomRoleFallback(t *testing.T) {
	h := newHarness(t)

	h.ctrl.ExecuteCommand(context.Background(), api.ParsedCommand{
		CommandType: api.CommandCreateAgent, Target: "documentarian",
	})

	require.Len(t, h.agents.created, 1)
	assert.Equal(t, "custom", h.agents.created[0].Role)
	assert.Equal(t, "Documentarian", h.agents.created[0].Name)
}

func TestCreateAgentFailure(t *testing.T) {
	h := newHarness(t)
	h.agents.failCreate = true

	h.ctrl.ExecuteCommand(context.Background(), api.ParsedCommand{
		CommandType: api.CommandCreateAgent, Target: "tester",
	})

	assert.Equal(t, "Failed to create tester agent", h.ctrl.ErrorMessage())
	assert.Empty(t, h.sess.Agents())
	assert.Equal(t, 0, h.executedCount())
	assert.Len(t, h.errs, 1)
}

func TestUnknownCommandKeywordSniffing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ctrl.ExecuteCommand(ctx, api.ParsedCommand{
		CommandType: api.CommandUnknown, RawText: "please show notifications",
	})
	assert.Equal(t, 1, h.attention.opened)

	h.ctrl.ExecuteCommand(ctx, api.ParsedCommand{
		CommandType: api.CommandUnknown, RawText: "dismiss all notifications now",
	})
	assert.Equal(t, []string{h.sess.ID()}, h.attention.dismissed)

	h.ctrl.ExecuteCommand(ctx, api.ParsedCommand{
		CommandType: api.CommandUnknown, RawText: "approve coder",
	})
	assert.Equal(t, []string{"coder"}, h.attention.approved)

	// Unmatched raw text is a logged no-op but still counts as handled.
	h.ctrl.ExecuteCommand(ctx, api.ParsedCommand{
		CommandType: api.CommandUnknown, RawText: "sing a song",
	})
	assert.Equal(t, 4, h.executedCount())
}

func TestStreamStartFailureDoesNotAbortCapture(t *testing.T) {
	h := newHarness(t)
	h.uplink.failStart = true

	require.NoError(t, h.ctrl.StartListening(context.Background()))
	assert.Equal(t, StateListening, h.ctrl.State())
}

func TestSelectEncodingPreference(t *testing.T) {
	all := newFakeRecorder(EncodingMP4, EncodingWebM, EncodingOpusWebM)
	enc, ok := SelectEncoding(all)
	require.True(t, ok)
	assert.Equal(t, EncodingOpusWebM, enc)

	webmOnly := newFakeRecorder(EncodingWebM, EncodingMP4)
	enc, ok = SelectEncoding(webmOnly)
	require.True(t, ok)
	assert.Equal(t, EncodingWebM, enc)

	mp4Only := newFakeRecorder(EncodingMP4)
	enc, ok = SelectEncoding(mp4Only)
	require.True(t, ok)
	assert.Equal(t, EncodingMP4, enc)

	none := &fakeRecorder{}
	_, ok = SelectEncoding(none)
	assert.False(t, ok)
}

func TestRunConsumesEvents(t *testing.T) {
	h := newHarness(t)
	h.parser.cmd = api.ParsedCommand{CommandType: api.CommandShowTerminal}

	ch := make(chan pubsub.Event[stream.Transcription], 2)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ctrl.Run(ctx, ch)
	}()

	ch <- pubsub.Event[stream.Transcription]{Payload: h.finalEvent("show terminal")}
	close(ch)
	<-done

	assert.Equal(t, []string{"terminal"}, h.ui.actions)
}
