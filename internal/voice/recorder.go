package voice

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Encoding is an audio container/codec the recorder can produce.
type Encoding string

const (
	EncodingOpusWebM Encoding = "audio/webm;codecs=opus"
	EncodingWebM     Encoding = "audio/webm"
	EncodingMP4      Encoding = "audio/mp4"
)

// encodingPreference orders encodings best-first for stream selection.
var encodingPreference = []Encoding{EncodingOpusWebM, EncodingWebM, EncodingMP4}

// CaptureOptions configures microphone capture.
type CaptureOptions struct {
	Channels         int
	SampleRate       int
	EchoCancellation bool
	NoiseSuppression bool
	ChunkInterval    time.Duration
}

// DefaultCaptureOptions matches the voice channel's expectations: mono
// 16kHz with echo cancellation and noise suppression, one chunk every
// 100ms.
func DefaultCaptureOptions() CaptureOptions {
	return CaptureOptions{
		Channels:         1,
		SampleRate:       16000,
		EchoCancellation: true,
		NoiseSuppression: true,
		ChunkInterval:    100 * time.Millisecond,
	}
}

// Recorder captures audio as a stream of encoded chunks. Start returns a
// channel that closes when capture ends; Stop must be safe to call
// multiple times and after the recorder already stopped.
type Recorder interface {
	Supports(enc Encoding) bool
	Start(ctx context.Context, opts CaptureOptions, enc Encoding) (<-chan []byte, error)
	Stop() error
}

// SelectEncoding picks the best encoding the recorder supports,
// preferring opus-in-webm, then plain webm, then mp4.
func SelectEncoding(r Recorder) (Encoding, bool) {
	for _, enc := range encodingPreference {
		if r.Supports(enc) {
			return enc, true
		}
	}
	return "", false
}

// DeviceOpener opens the capture device and returns its encoded byte
// stream. Implementations typically shell out to the platform capture
// tool; tests hand back an in-memory reader.
type DeviceOpener func(opts CaptureOptions, enc Encoding) (io.ReadCloser, error)

// streamRecorder slices a device byte stream into fixed-duration chunks.
type streamRecorder struct {
	open      DeviceOpener
	supported map[Encoding]bool

	mu     sync.Mutex
	source io.ReadCloser
	active bool
}

// NewStreamRecorder builds a Recorder on top of a device opener.
func NewStreamRecorder(open DeviceOpener, supported ...Encoding) Recorder {
	set := make(map[Encoding]bool, len(supported))
	for _, enc := range supported {
		set[enc] = true
	}
	return &streamRecorder{open: open, supported: set}
}

func (r *streamRecorder) Supports(enc Encoding) bool {
	return r.supported[enc]
}

func (r *streamRecorder) Start(ctx context.Context, opts CaptureOptions, enc Encoding) (<-chan []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return nil, fmt.Errorf("recorder already capturing")
	}
	if !r.supported[enc] {
		return nil, fmt.Errorf("unsupported encoding %s", enc)
	}

	source, err := r.open(opts, enc)
	if err != nil {
		return nil, fmt.Errorf("open capture device: %w", err)
	}
	r.source = source
	r.active = true

	interval := opts.ChunkInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	// 16-bit samples; the chunk size approximates one interval of audio.
	chunkSize := opts.SampleRate * opts.Channels * 2 * int(interval) / int(time.Second)
	if chunkSize <= 0 {
		chunkSize = 3200
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer r.Stop()
		buf := make([]byte, chunkSize)
		for {
			n, err := io.ReadFull(source, buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return out, nil
}

// Stop releases the capture device. Safe against double-stop: a closed
// source reports an error we deliberately ignore.
func (r *streamRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return nil
	}
	r.active = false
	if r.source != nil {
		_ = r.source.Close()
		r.source = nil
	}
	return nil
}
