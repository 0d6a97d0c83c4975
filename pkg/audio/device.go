package audio

import (
	"context"
	"errors"
	"time"
)

// ErrPermissionDenied is returned by [Devices.OpenCapture] when the platform
// refuses microphone access. It is fatal to session start and is surfaced to
// the caller without retry.
//
// Implementations report it on a best-effort basis: some audio backends fold
// a permission refusal into a generic host error that cannot be told apart
// from other open failures.
var ErrPermissionDenied = errors.New("audio: microphone access denied")

// CaptureDevice is a running microphone stream delivering fixed-size blocks.
//
// The frame channel is closed when the device is stopped. Implementations
// deliver blocks at the capture cadence and may drop blocks if the consumer
// falls behind; they never block the platform's audio callback.
type CaptureDevice interface {
	// Frames returns the channel on which captured blocks arrive.
	Frames() <-chan AudioFrame

	// Stop detaches the block processor and stops the capture stream. The
	// frame channel is closed. Stop is idempotent.
	Stop() error
}

// Source is a single scheduled playback buffer on an [OutputDevice].
type Source interface {
	// Stop halts playback of this source immediately, before its natural end.
	// Stopping an already-finished source is a no-op.
	Stop()

	// Done is closed when the source finishes playing naturally or is stopped.
	Done() <-chan struct{}
}

// OutputDevice is an audio output exposing a monotonic playback clock and the
// ability to schedule a decoded buffer to start at a specific future time.
//
// Implementations must accept starts at or after Now(); a start in the past is
// clamped to "as soon as possible". Scheduled buffers are released
// automatically on completion.
type OutputDevice interface {
	// Now returns the device's monotonic clock position. It never decreases
	// for the lifetime of the device.
	Now() time.Duration

	// ScheduleAt schedules buf to begin playing at start on the device clock
	// and returns a handle to the scheduled source.
	ScheduleAt(buf PlaybackBuffer, start time.Duration) (Source, error)

	// Close stops the output stream and releases the device. Any still-active
	// sources are completed (their Done channels close).
	Close() error
}

// Devices opens capture and output streams on the platform audio subsystem.
// Exactly one capture stream and one playback timeline may be open per
// process; a second concurrent open of either is implementation-defined and
// callers must not rely on it.
type Devices interface {
	// OpenCapture requests microphone access and starts a capture stream
	// delivering blockSize-sample frames in the given format. Returns
	// [ErrPermissionDenied] (possibly wrapped) when access is refused.
	OpenCapture(ctx context.Context, format Format, blockSize int) (CaptureDevice, error)

	// OpenOutput opens a playback stream in the given format with its clock
	// at zero.
	OpenOutput(ctx context.Context, format Format) (OutputDevice, error)
}
