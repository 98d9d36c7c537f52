package main

import (
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"deckhand/internal/voice"
)

// newRecorder captures microphone audio through ffmpeg, encoding to the
// negotiated container on the fly. mp4 is excluded: the muxer needs a
// seekable output and we stream over a pipe.
func newRecorder() voice.Recorder {
	open := func(opts voice.CaptureOptions, enc voice.Encoding) (io.ReadCloser, error) {
		args := []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "alsa", "-i", "default",
			"-ac", strconv.Itoa(opts.Channels),
			"-ar", strconv.Itoa(opts.SampleRate),
		}
		if opts.NoiseSuppression {
			args = append(args, "-af", "afftdn")
		}
		switch enc {
		case voice.EncodingOpusWebM:
			args = append(args, "-c:a", "libopus", "-f", "webm")
		case voice.EncodingWebM:
			args = append(args, "-c:a", "libvorbis", "-f", "webm")
		default:
			return nil, fmt.Errorf("unsupported capture encoding %s", enc)
		}
		args = append(args, "-")

		cmd := exec.Command("ffmpeg", args...)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return &processReader{ReadCloser: stdout, cmd: cmd}, nil
	}

	return voice.NewStreamRecorder(open, voice.EncodingOpusWebM, voice.EncodingWebM)
}

// processReader closes the pipe and reaps the capture process.
type processReader struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (p *processReader) Close() error {
	_ = p.ReadCloser.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.cmd.Wait()
	return nil
}
