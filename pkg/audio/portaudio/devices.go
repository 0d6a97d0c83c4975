//go:build portaudio
// +build portaudio

// Package portaudio implements the audio device interfaces on top of the
// PortAudio library via github.com/gordonklaus/portaudio.
//
// The package requires the PortAudio C library at build time and is gated
// behind the "portaudio" build tag; without the tag a stub is compiled whose
// open operations fail with [ErrUnavailable].
package portaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/vocata-ai/vocata/pkg/audio"
)

var (
	initOnce sync.Once
	initErr  error
)

// initialize initializes PortAudio once for the life of the process. It is
// never terminated: capture and output streams share the library state and a
// Terminate while either is open would invalidate it.
func initialize() error {
	initOnce.Do(func() {
		initErr = portaudio.Initialize()
	})
	return initErr
}

// Devices opens capture and output streams on the default PortAudio devices.
type Devices struct{}

var _ audio.Devices = (*Devices)(nil)

// New initializes PortAudio and returns a device opener.
func New() (*Devices, error) {
	if err := initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return &Devices{}, nil
}

// OpenCapture implements audio.Devices.
//
// PortAudio reports an OS-level microphone permission refusal as an
// unanticipated host error with no distinct code, so it cannot be mapped to
// [audio.ErrPermissionDenied] here; callers see a wrapped open failure
// instead.
func (d *Devices) OpenCapture(ctx context.Context, format audio.Format, blockSize int) (audio.CaptureDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if format.Channels < 1 {
		format.Channels = 1
	}
	if blockSize < 1 {
		return nil, fmt.Errorf("portaudio: block size must be positive, got %d", blockSize)
	}

	cap := &captureDevice{
		format: format,
		frames: make(chan audio.AudioFrame, frameChannelDepth),
	}
	stream, err := portaudio.OpenDefaultStream(format.Channels, 0, float64(format.SampleRate), blockSize, cap.callback)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open capture stream: %w", err)
	}
	cap.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("portaudio: start capture stream: %w", err)
	}
	return cap, nil
}

// OpenOutput implements audio.Devices.
func (d *Devices) OpenOutput(ctx context.Context, format audio.Format) (audio.OutputDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if format.Channels < 1 {
		format.Channels = 1
	}

	out := &outputDevice{format: format}
	stream, err := portaudio.OpenDefaultStream(0, format.Channels, float64(format.SampleRate), outputBlockFrames, out.callback)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open output stream: %w", err)
	}
	out.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("portaudio: start output stream: %w", err)
	}
	return out, nil
}

// frameChannelDepth bounds how far the capture consumer may fall behind
// before blocks are dropped.
const frameChannelDepth = 32

// outputBlockFrames is the render quantum of the playback callback. At
// 24000 Hz this is ~21 ms per callback.
const outputBlockFrames = 512

// ── capture ──

type captureDevice struct {
	stream *portaudio.Stream
	format audio.Format
	frames chan audio.AudioFrame

	delivered int64 // frames handed to the channel, callback goroutine only

	stopOnce sync.Once
	stopErr  error
}

var _ audio.CaptureDevice = (*captureDevice)(nil)

func (c *captureDevice) Frames() <-chan audio.AudioFrame {
	return c.frames
}

// callback runs on the PortAudio audio thread. It copies the block out of the
// callback buffer and hands it off without blocking: if the consumer is
// behind, the block is dropped.
func (c *captureDevice) callback(in []float32) {
	samples := make([]float32, len(in))
	copy(samples, in)

	frame := audio.AudioFrame{
		Samples:    samples,
		SampleRate: c.format.SampleRate,
		Channels:   c.format.Channels,
		Timestamp:  c.format.Duration(int(c.delivered)),
	}
	c.delivered += int64(len(in) / c.format.Channels)

	select {
	case c.frames <- frame:
	default:
	}
}

func (c *captureDevice) Stop() error {
	c.stopOnce.Do(func() {
		// Pa_StopStream waits for the callback to finish, so closing the
		// frame channel afterwards cannot race a send.
		if err := c.stream.Stop(); err != nil {
			c.stopErr = fmt.Errorf("portaudio: stop capture stream: %w", err)
		}
		if err := c.stream.Close(); err != nil && c.stopErr == nil {
			c.stopErr = fmt.Errorf("portaudio: close capture stream: %w", err)
		}
		close(c.frames)
	})
	return c.stopErr
}
