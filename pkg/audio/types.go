package audio

import "time"

// AudioFrame is a single fixed-size block of captured audio flowing through
// the pipeline. Frames are ephemeral: produced by a [CaptureDevice] at a fixed
// cadence and consumed immediately by the encoder, never stored.
type AudioFrame struct {
	// Samples holds float samples in [-1.0, 1.0], interleaved when Channels > 1.
	Samples []float32

	// SampleRate in Hz (16000 for the live capture leg).
	SampleRate int

	// Channels: 1 for mono capture.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// PlaybackBuffer is a decoded audio buffer ready to be scheduled on an
// [OutputDevice]. Once scheduled it is owned by the device until playback
// completes or the source is stopped.
type PlaybackBuffer struct {
	// Samples holds mono float samples in [-1.0, 1.0].
	Samples []float32

	// Format is the buffer's sample rate and channel count
	// (24000 Hz mono for the live playback leg).
	Format Format
}

// Duration returns the buffer's playback duration.
func (b PlaybackBuffer) Duration() time.Duration {
	n := len(b.Samples)
	if b.Format.Channels > 1 {
		n /= b.Format.Channels
	}
	return b.Format.Duration(n)
}
