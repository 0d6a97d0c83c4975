package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vocata-ai/vocata/internal/observe"
	"github.com/vocata-ai/vocata/pkg/audio"
	"github.com/vocata-ai/vocata/pkg/provider/live"
)

// ErrNoTransport is returned by [Controller.Start] when no live transport
// was configured. Callers should treat it as "mode unavailable" rather than
// a session failure.
var ErrNoTransport = errors.New("voice: no live transport configured")

// State is the lifecycle state of a [Controller].
type State int32

const (
	// StateIdle means no session is open. Start may be called.
	StateIdle State = iota

	// StateOpening means Start is mid-flight: devices are being acquired and
	// the transport handshake is in progress.
	StateOpening

	// StateActive means the session event loop is running.
	StateActive

	// StateClosing means teardown is in progress.
	StateClosing
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateOpening:
		return "OPENING"
	case StateActive:
		return "ACTIVE"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Config holds the fixed parameters of a live voice session.
type Config struct {
	// Session is the transport-level session configuration (voice,
	// instructions, transcription).
	Session live.SessionConfig

	// Input is the capture format sent to the model (16000 Hz mono).
	Input audio.Format

	// Output is the playback format received from the model (24000 Hz mono).
	Output audio.Format

	// BlockSize is the number of samples per captured frame.
	BlockSize int
}

// TranscriptFunc receives transcription events from the session. It is called
// from the session event loop and must not block.
type TranscriptFunc func(role live.TranscriptRole, text string)

// Option is a functional option for configuring a [Controller].
type Option func(*Controller)

// WithTranscriptFunc registers fn to receive transcription events.
func WithTranscriptFunc(fn TranscriptFunc) Option {
	return func(c *Controller) {
		c.transcriptFn = fn
	}
}

// WithMetrics overrides the metrics instance used by the controller. The
// default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// Controller owns the full lifecycle of a live voice session: acquiring the
// microphone and output device, opening the transport session, running the
// event loop that bridges the two, and releasing everything on stop.
//
// At most one session is open at a time. [Controller.Start] while a session
// is active is a no-op, as is [Controller.Stop] while idle. Both are safe for
// concurrent use; the event loop itself is a single goroutine, so the
// scheduler it drives needs no locking.
type Controller struct {
	devices   audio.Devices
	transport live.Transport
	cfg       Config

	metrics      *observe.Metrics
	transcriptFn TranscriptFunc

	state atomic.Int32

	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce *sync.Once
	loopDone chan struct{}
}

// NewController creates a controller in [StateIdle]. No devices are touched
// until [Controller.Start].
func NewController(devices audio.Devices, transport live.Transport, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		devices:   devices,
		transport: transport,
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Active reports whether a live session is currently running.
func (c *Controller) Active() bool {
	return c.State() == StateActive
}

// Start opens a live session: microphone first, then the output device, then
// the transport. On any failure everything acquired so far is released and
// the controller returns to [StateIdle] with a wrapped error; a microphone
// permission failure surfaces [audio.ErrPermissionDenied].
//
// Start returns once the session is fully active. If a session is already
// open, Start returns nil without touching anything.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if State(c.state.Load()) != StateIdle {
		slog.Debug("session already active, ignoring start")
		return nil
	}
	if c.transport == nil {
		return ErrNoTransport
	}
	c.state.Store(int32(StateOpening))

	capture, err := c.devices.OpenCapture(ctx, c.cfg.Input, c.cfg.BlockSize)
	if err != nil {
		c.state.Store(int32(StateIdle))
		return fmt.Errorf("voice: open capture: %w", err)
	}

	out, err := c.devices.OpenOutput(ctx, c.cfg.Output)
	if err != nil {
		_ = capture.Stop()
		c.state.Store(int32(StateIdle))
		return fmt.Errorf("voice: open output: %w", err)
	}

	sess, err := c.transport.Open(ctx, c.cfg.Session)
	if err != nil {
		_ = out.Close()
		_ = capture.Stop()
		c.state.Store(int32(StateIdle))
		return fmt.Errorf("voice: open transport: %w", err)
	}

	c.stopCh = make(chan struct{})
	c.stopOnce = &sync.Once{}
	c.loopDone = make(chan struct{})
	c.state.Store(int32(StateActive))
	c.metrics.ActiveSessions.Add(ctx, 1)

	slog.Info("live session started",
		"voice", c.cfg.Session.Voice,
		"input_rate", c.cfg.Input.SampleRate,
		"output_rate", c.cfg.Output.SampleRate,
	)

	// The session outlives this call: an HTTP request context is cancelled
	// as soon as its handler returns, which would turn every ordinary close
	// into a hard stop of still-playing speech. The caller's ctx governs
	// only the acquisitions above; the loop and teardown run detached.
	go c.run(context.WithoutCancel(ctx), capture, out, sess, c.stopCh, c.loopDone)

	return nil
}

// Stop ends the session. Capture stops immediately; speech already scheduled
// on the output device is allowed to finish before the device is released.
// Stop returns once the event loop has exited. Calling Stop while no session
// is open is a no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if State(c.state.Load()) != StateActive {
		return nil
	}

	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.loopDone

	return nil
}

// run is the session event loop. It is the only goroutine that touches the
// scheduler. It exits when the stop channel closes, the transport's event
// channel closes, or the capture channel closes unexpectedly.
func (c *Controller) run(ctx context.Context, capture audio.CaptureDevice, out audio.OutputDevice, sess live.SessionHandle, stopCh <-chan struct{}, loopDone chan<- struct{}) {
	started := time.Now()
	sched := NewScheduler(out)
	mimeType := fmt.Sprintf("audio/pcm;rate=%d", c.cfg.Input.SampleRate)

	frames := capture.Frames()
	events := sess.Events()

	defer func() {
		c.teardown(ctx, capture, out, sess, sched)
		c.metrics.ActiveSessions.Add(ctx, -1)
		c.metrics.LiveSessionDuration.Record(ctx, time.Since(started).Seconds())
		c.state.Store(int32(StateIdle))
		close(loopDone)
	}()

	for {
		select {
		case <-stopCh:
			return

		case frame, ok := <-frames:
			if !ok {
				slog.Warn("capture stream ended unexpectedly")
				frames = nil
				continue
			}
			chunk := live.EncodedChunk{
				Data:     audio.EncodeText(audio.SamplesToPCM16(frame.Samples)),
				MIMEType: mimeType,
			}
			if err := sess.SendRealtimeInput(chunk); err != nil {
				// Fire-and-forget: a failed send loses that frame only.
				slog.Warn("send frame failed", "err", err, "timestamp", frame.Timestamp)
				c.metrics.FramesDropped.Add(ctx, 1)
				continue
			}
			c.metrics.FramesSent.Add(ctx, 1)

		case ev, ok := <-events:
			if !ok {
				if err := sess.Err(); err != nil {
					slog.Error("session ended", "err", err)
				} else {
					slog.Info("session closed by server")
				}
				return
			}
			c.handleEvent(ctx, sched, ev)
		}
	}
}

// handleEvent dispatches a single inbound session event.
func (c *Controller) handleEvent(ctx context.Context, sched *Scheduler, ev live.Event) {
	switch ev.Type {
	case live.EventInterrupted:
		sched.Interrupt()
		c.metrics.Interruptions.Add(ctx, 1)
		slog.Debug("barge-in: playback discarded", "cursor", sched.Cursor())

	case live.EventAudio:
		raw, err := audio.DecodeText(ev.Data)
		if err != nil {
			slog.Warn("bad audio chunk", "err", err)
			return
		}
		channels := ch(c.cfg.Output.Channels)
		buf := audio.PlaybackBuffer{
			Samples: audio.PCM16ToSamples(raw, channels)[0],
			Format:  c.cfg.Output,
		}
		start, err := sched.Enqueue(buf)
		if err != nil {
			slog.Warn("enqueue chunk failed", "err", err)
			return
		}
		c.metrics.ChunksScheduled.Add(ctx, 1)
		slog.Debug("chunk scheduled", "start", start, "duration", buf.Duration())

	case live.EventTranscript:
		if c.transcriptFn != nil {
			c.transcriptFn(ev.Role, ev.Text)
		}

	case live.EventError:
		slog.Warn("session error event", "err", ev.Err)
	}
}

// teardown releases session resources in dependency order: capture first so
// no further frames go out, then the transport session, then — after letting
// any still-scheduled speech finish — the output device.
func (c *Controller) teardown(ctx context.Context, capture audio.CaptureDevice, out audio.OutputDevice, sess live.SessionHandle, sched *Scheduler) {
	c.state.Store(int32(StateClosing))

	if err := capture.Stop(); err != nil {
		slog.Warn("stop capture", "err", err)
	}
	if err := sess.Close(); err != nil {
		slog.Warn("close session", "err", err)
	}

	// Let already-scheduled speech play out before the device goes away.
	// This happens off the caller's critical path.
	srcs := sched.Sources()
	go func() {
		for _, src := range srcs {
			select {
			case <-src.Done():
			case <-ctx.Done():
			}
		}
		if err := out.Close(); err != nil {
			slog.Warn("close output", "err", err)
		}
		slog.Info("live session released")
	}()
}

// ch normalises a channel count, treating zero as mono.
func ch(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
