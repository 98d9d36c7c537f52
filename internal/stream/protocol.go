package stream

import "encoding/json"

// FrameType tags an uplink frame on the voice channel.
type FrameType string

const (
	FrameStreamStart FrameType = "voice_stream_start"
	FrameChunk       FrameType = "voice_chunk"
	FrameStreamEnd   FrameType = "voice_stream_end"
)

// VoiceAgentID is the reserved agent id for the voice command channel.
// Transcription events carrying any other id belong to regular agent
// streams and must be ignored by the voice controller.
const VoiceAgentID = "voice_commands"

// Frame is one uplink message. Audio carries base64-encoded bytes; Seq
// orders chunks within a stream.
type Frame struct {
	Type      FrameType `json:"type"`
	StreamID  string    `json:"stream_id"`
	SessionID string    `json:"session_id,omitempty"`
	Encoding  string    `json:"encoding,omitempty"`
	Audio     string    `json:"audio,omitempty"`
	Seq       int       `json:"seq,omitempty"`
}

// Transcription is the backend's (partial or final) transcript of an
// audio stream.
type Transcription struct {
	SessionID  string  `json:"session_id"`
	AgentID    string  `json:"agent_id"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	IsFinal    bool    `json:"is_final"`
}

// Downlink event type tags.
const (
	EventAck           = "ack"
	EventTranscription = "voice_transcription"
)

// Event is one downlink message: either an ack for an uplink frame or a
// transcription event.
type Event struct {
	Type          string         `json:"type"`
	Ref           string         `json:"ref,omitempty"` // frame type being acked
	OK            bool           `json:"ok,omitempty"`
	Error         string         `json:"error,omitempty"`
	Transcription *Transcription `json:"transcription,omitempty"`
}

func encodeFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

func decodeEvent(data []byte) (Event, error) {
	var evt Event
	err := json.Unmarshal(data, &evt)
	return evt, err
}
