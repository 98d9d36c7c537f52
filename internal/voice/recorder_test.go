package voice

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryOpener(data []byte) DeviceOpener {
	return func(opts CaptureOptions, enc Encoding) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

func collect(t *testing.T, ch <-chan []byte) [][]byte {
	t.Helper()
	var out [][]byte
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, chunk)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out draining chunks")
		}
	}
}

func TestStreamRecorderChunksBySize(t *testing.T) {
	data := make([]byte, 50)
	for i := range data {
		data[i] = byte(i)
	}
	rec := NewStreamRecorder(memoryOpener(data), EncodingOpusWebM)

	// 100 samples/s mono at 16 bits over 100ms gives 20-byte chunks.
	opts := CaptureOptions{Channels: 1, SampleRate: 100, ChunkInterval: 100 * time.Millisecond}
	ch, err := rec.Start(context.Background(), opts, EncodingOpusWebM)
	require.NoError(t, err)

	chunks := collect(t, ch)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 20)
	assert.Len(t, chunks[1], 20)
	assert.Len(t, chunks[2], 10, "trailing partial chunk is delivered, not dropped")
	assert.Equal(t, data[:20], chunks[0])
	assert.Equal(t, data[40:], chunks[2])
}

func TestStreamRecorderRejectsDoubleStart(t *testing.T) {
	blocker := make(chan struct{})
	t.Cleanup(func() { close(blocker) })
	rec := NewStreamRecorder(func(opts CaptureOptions, enc Encoding) (io.ReadCloser, error) {
		return io.NopCloser(blockingReader{unblock: blocker}), nil
	}, EncodingWebM)

	_, err := rec.Start(context.Background(), DefaultCaptureOptions(), EncodingWebM)
	require.NoError(t, err)
	defer rec.Stop()

	_, err = rec.Start(context.Background(), DefaultCaptureOptions(), EncodingWebM)
	assert.ErrorContains(t, err, "already capturing")
}

type blockingReader struct {
	unblock <-chan struct{}
}

func (r blockingReader) Read(p []byte) (int, error) {
	<-r.unblock
	return 0, io.EOF
}

func TestStreamRecorderRejectsUnsupportedEncoding(t *testing.T) {
	rec := NewStreamRecorder(memoryOpener(nil), EncodingOpusWebM)
	_, err := rec.Start(context.Background(), DefaultCaptureOptions(), EncodingMP4)
	assert.ErrorContains(t, err, "unsupported encoding")
}

func TestStreamRecorderOpenFailure(t *testing.T) {
	rec := NewStreamRecorder(func(opts CaptureOptions, enc Encoding) (io.ReadCloser, error) {
		return nil, errors.New("device in use")
	}, EncodingOpusWebM)

	_, err := rec.Start(context.Background(), DefaultCaptureOptions(), EncodingOpusWebM)
	assert.ErrorContains(t, err, "open capture device")
}

func TestStreamRecorderStopIsIdempotent(t *testing.T) {
	rec := NewStreamRecorder(memoryOpener(make([]byte, 10)), EncodingOpusWebM)

	ch, err := rec.Start(context.Background(), DefaultCaptureOptions(), EncodingOpusWebM)
	require.NoError(t, err)
	collect(t, ch)

	assert.NoError(t, rec.Stop())
	assert.NoError(t, rec.Stop())

	// The device can be reopened for a fresh capture after a full stop.
	ch, err = rec.Start(context.Background(), DefaultCaptureOptions(), EncodingOpusWebM)
	require.NoError(t, err)
	collect(t, ch)
}

func TestDefaultCaptureOptions(t *testing.T) {
	opts := DefaultCaptureOptions()
	assert.Equal(t, 1, opts.Channels)
	assert.Equal(t, 16000, opts.SampleRate)
	assert.True(t, opts.EchoCancellation)
	assert.True(t, opts.NoiseSuppression)
	assert.Equal(t, 100*time.Millisecond, opts.ChunkInterval)
}
