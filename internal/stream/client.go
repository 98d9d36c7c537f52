package stream

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"deckhand/internal/pubsub"
)

const (
	dialTimeout  = 5 * time.Second
	writeTimeout = 5 * time.Second

	// Transcription lines can carry long partial transcripts; size the
	// scanner well past the default 64KB.
	maxLineSize = 1024 * 1024
)

// Client is the voice channel to the workspace backend: JSON lines over a
// unix or tcp socket. Uplink frames are fire-and-forget; the backend acks
// asynchronously and failed acks are logged, not returned. Downlink
// transcription events fan out through Subscribe.
type Client struct {
	conn   net.Conn
	log    *zap.Logger
	events *pubsub.Broker[Transcription]

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to address and starts the event pump. Address formats:
//
//   - unix:///path/to/socket.sock
//   - tcp://hostname:port (requires authToken for the handshake)
//   - /path/to/socket.sock (assumes unix socket)
func Dial(address, authToken string, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var network, addr string
	switch {
	case strings.HasPrefix(address, "unix://"):
		network, addr = "unix", strings.TrimPrefix(address, "unix://")
	case strings.HasPrefix(address, "tcp://"):
		network, addr = "tcp", strings.TrimPrefix(address, "tcp://")
	default:
		network, addr = "unix", address
	}

	conn, err := net.DialTimeout(network, addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to workspace backend: %w", err)
	}

	if network == "tcp" {
		if err := authHandshake(conn, authToken); err != nil {
			conn.Close()
			return nil, fmt.Errorf("authentication failed: %w", err)
		}
	}

	c := &Client{
		conn:   conn,
		log:    log.Named("stream"),
		events: pubsub.NewBroker[Transcription](),
		done:   make(chan struct{}),
	}
	go c.pump()
	return c, nil
}

// authHandshake sends the token and waits for the backend's verdict.
func authHandshake(conn net.Conn, token string) error {
	conn.SetDeadline(time.Now().Add(dialTimeout))
	defer conn.SetDeadline(time.Time{})

	if _, err := fmt.Fprintf(conn, "AUTH %s\n", token); err != nil {
		return fmt.Errorf("failed to send auth token: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read auth response: %w", err)
		}
		return fmt.Errorf("no auth response from backend")
	}
	if resp := strings.TrimSpace(scanner.Text()); resp != "OK" {
		return fmt.Errorf("auth rejected: %s", resp)
	}
	return nil
}

// pump reads downlink events until the connection closes.
func (c *Client) pump() {
	defer c.events.Shutdown()

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		evt, err := decodeEvent(scanner.Bytes())
		if err != nil {
			c.log.Warn("dropping malformed event", zap.Error(err))
			continue
		}
		switch evt.Type {
		case EventAck:
			if !evt.OK {
				c.log.Warn("backend rejected frame",
					zap.String("frame", evt.Ref),
					zap.String("error", evt.Error))
			}
		case EventTranscription:
			if evt.Transcription != nil {
				c.events.Publish(pubsub.UpdatedEvent, *evt.Transcription)
			}
		default:
			c.log.Debug("ignoring unknown event", zap.String("type", evt.Type))
		}
	}

	select {
	case <-c.done:
		// closed locally, quiet shutdown
	default:
		if err := scanner.Err(); err != nil {
			c.log.Warn("voice channel closed", zap.Error(err))
		}
	}
}

func (c *Client) send(f Frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", f.Type, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write %s frame: %w", f.Type, err)
	}
	c.conn.SetWriteDeadline(time.Time{})
	return nil
}

// StreamStart announces a new audio stream.
func (c *Client) StreamStart(streamID, sessionID, encoding string) error {
	return c.send(Frame{
		Type:      FrameStreamStart,
		StreamID:  streamID,
		SessionID: sessionID,
		Encoding:  encoding,
	})
}

// StreamChunk uploads one audio chunk, base64-encoded on the wire.
func (c *Client) StreamChunk(streamID string, seq int, audio []byte) error {
	return c.send(Frame{
		Type:     FrameChunk,
		StreamID: streamID,
		Seq:      seq,
		Audio:    base64.StdEncoding.EncodeToString(audio),
	})
}

// StreamEnd marks the stream finished; the backend answers with a final
// transcription event.
func (c *Client) StreamEnd(streamID string) error {
	return c.send(Frame{Type: FrameStreamEnd, StreamID: streamID})
}

// Subscribe returns a channel of transcription events. The channel closes
// when ctx is done or the client closes.
func (c *Client) Subscribe(ctx context.Context) <-chan pubsub.Event[Transcription] {
	return c.events.Subscribe(ctx)
}

// Close tears the connection down. Idempotent.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}
