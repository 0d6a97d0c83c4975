package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/vocata-ai/vocata/internal/observe"
	"github.com/vocata-ai/vocata/pkg/audio"
	"github.com/vocata-ai/vocata/pkg/provider/live"
)

// ── fakes ──

type fakeCapture struct {
	frames chan audio.AudioFrame

	mu      sync.Mutex
	stopped bool
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{frames: make(chan audio.AudioFrame, 16)}
}

func (c *fakeCapture) Frames() <-chan audio.AudioFrame { return c.frames }

func (c *fakeCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.stopped {
		c.stopped = true
		close(c.frames)
	}
	return nil
}

func (c *fakeCapture) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// lingeringCapture models a platform capture device whose block callback can
// fire once more after Stop returns: Stop marks the device stopped but leaves
// the frame channel open.
type lingeringCapture struct {
	frames chan audio.AudioFrame

	mu      sync.Mutex
	stopped bool
}

func newLingeringCapture() *lingeringCapture {
	return &lingeringCapture{frames: make(chan audio.AudioFrame, 16)}
}

func (c *lingeringCapture) Frames() <-chan audio.AudioFrame { return c.frames }

func (c *lingeringCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	return nil
}

type fakeDevices struct {
	capture    *fakeCapture
	output     *fakeOutput
	captureErr error
	outputErr  error

	// captureOverride, when set, is returned by OpenCapture instead of
	// capture.
	captureOverride audio.CaptureDevice

	mu           sync.Mutex
	captureOpens int
}

func (d *fakeDevices) OpenCapture(_ context.Context, _ audio.Format, _ int) (audio.CaptureDevice, error) {
	d.mu.Lock()
	d.captureOpens++
	d.mu.Unlock()
	if d.captureErr != nil {
		return nil, d.captureErr
	}
	if d.captureOverride != nil {
		return d.captureOverride, nil
	}
	return d.capture, nil
}

func (d *fakeDevices) OpenOutput(_ context.Context, _ audio.Format) (audio.OutputDevice, error) {
	if d.outputErr != nil {
		return nil, d.outputErr
	}
	return d.output, nil
}

type fakeSession struct {
	events chan live.Event

	mu        sync.Mutex
	sent      []live.EncodedChunk
	sendCalls int
	sendErr   error
	closed    bool
	err       error
}

func newFakeSession() *fakeSession {
	return &fakeSession{events: make(chan live.Event, 16)}
}

func (s *fakeSession) SendRealtimeInput(chunk live.EncodedChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendCalls++
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, chunk)
	return nil
}

func (s *fakeSession) sendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendCalls
}

func (s *fakeSession) Events() <-chan live.Event { return s.events }

func (s *fakeSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) sentChunks() []live.EncodedChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]live.EncodedChunk, len(s.sent))
	copy(out, s.sent)
	return out
}

type fakeTransport struct {
	sess    *fakeSession
	openErr error

	mu     sync.Mutex
	opens  int
	gotCfg live.SessionConfig
}

func (t *fakeTransport) Open(_ context.Context, cfg live.SessionConfig) (live.SessionHandle, error) {
	t.mu.Lock()
	t.opens++
	t.gotCfg = cfg
	t.mu.Unlock()
	if t.openErr != nil {
		return nil, t.openErr
	}
	return t.sess, nil
}

func (t *fakeTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

// ── helpers ──

func testConfig() Config {
	return Config{
		Session:   live.SessionConfig{Voice: "Puck", Transcribe: true},
		Input:     audio.Format{SampleRate: 16000, Channels: 1},
		Output:    audio.Format{SampleRate: 24000, Channels: 1},
		BlockSize: 4096,
	}
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newTestController(t *testing.T, opts ...Option) (*Controller, *fakeDevices, *fakeTransport) {
	t.Helper()
	devices := &fakeDevices{capture: newFakeCapture(), output: newFakeOutput()}
	transport := &fakeTransport{sess: newFakeSession()}
	opts = append([]Option{WithMetrics(testMetrics(t))}, opts...)
	c := NewController(devices, transport, testConfig(), opts...)
	return c, devices, transport
}

// waitFor polls cond until it returns true or the deadline expires.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// ── tests ──

func TestController_StartStop(t *testing.T) {
	c, devices, transport := newTestController(t)

	if got := c.State(); got != StateIdle {
		t.Fatalf("initial state = %v, want IDLE", got)
	}
	if c.Active() {
		t.Fatal("Active() = true before start")
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := c.State(); got != StateActive {
		t.Fatalf("state after start = %v, want ACTIVE", got)
	}
	if !c.Active() {
		t.Error("Active() = false while session is running")
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := c.State(); got != StateIdle {
		t.Errorf("state after stop = %v, want IDLE", got)
	}
	if c.Active() {
		t.Error("Active() = true after stop")
	}

	if !devices.capture.isStopped() {
		t.Error("capture not stopped")
	}
	if !transport.sess.isClosed() {
		t.Error("session not closed")
	}
	waitFor(t, devices.output.isClosed, "output device not released")
}

func TestController_StartWhileActiveIsNoOp(t *testing.T) {
	c, _, transport := newTestController(t)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if got := transport.openCount(); got != 1 {
		t.Errorf("transport opened %d times, want 1", got)
	}
}

func TestController_StopWhileIdleIsNoOp(t *testing.T) {
	c, _, _ := newTestController(t)

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop while idle: %v", err)
	}

	// Stop after a full start/stop cycle is also a no-op.
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestController_PermissionDenied(t *testing.T) {
	c, devices, transport := newTestController(t)
	devices.captureErr = audio.ErrPermissionDenied

	err := c.Start(context.Background())
	if !errors.Is(err, audio.ErrPermissionDenied) {
		t.Fatalf("Start error = %v, want ErrPermissionDenied", err)
	}
	if got := c.State(); got != StateIdle {
		t.Errorf("state after failed start = %v, want IDLE", got)
	}
	if got := transport.openCount(); got != 0 {
		t.Errorf("transport opened %d times, want 0", got)
	}
}

func TestController_TransportOpenFailureReleasesDevices(t *testing.T) {
	c, devices, transport := newTestController(t)
	transport.openErr = errors.New("handshake rejected")

	err := c.Start(context.Background())
	if err == nil {
		t.Fatal("Start succeeded despite transport failure")
	}
	if got := c.State(); got != StateIdle {
		t.Errorf("state = %v, want IDLE", got)
	}
	if !devices.capture.isStopped() {
		t.Error("capture not released after transport failure")
	}
	if !devices.output.isClosed() {
		t.Error("output not released after transport failure")
	}
}

func TestController_ForwardsCapturedFrames(t *testing.T) {
	c, devices, transport := newTestController(t)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	samples := []float32{0, 0.5, -0.5, 1}
	devices.capture.frames <- audio.AudioFrame{Samples: samples, SampleRate: 16000, Channels: 1}

	waitFor(t, func() bool { return len(transport.sess.sentChunks()) == 1 }, "frame not forwarded")

	chunk := transport.sess.sentChunks()[0]
	if chunk.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("mime type = %q, want audio/pcm;rate=16000", chunk.MIMEType)
	}
	if want := audio.EncodeText(audio.SamplesToPCM16(samples)); chunk.Data != want {
		t.Errorf("chunk data = %q, want %q", chunk.Data, want)
	}
}

func TestController_SendFailureDropsFrameOnly(t *testing.T) {
	c, devices, transport := newTestController(t)
	transport.sess.sendErr = errors.New("socket gone")

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	devices.capture.frames <- audio.AudioFrame{Samples: []float32{0.1}}
	waitFor(t, func() bool { return transport.sess.sendCount() == 1 }, "frame not attempted")

	// The failed send must not kill the session.
	transport.sess.mu.Lock()
	transport.sess.sendErr = nil
	transport.sess.mu.Unlock()

	devices.capture.frames <- audio.AudioFrame{Samples: []float32{0.2}}
	waitFor(t, func() bool { return len(transport.sess.sentChunks()) == 1 }, "session did not survive a failed send")

	if got := c.State(); got != StateActive {
		t.Errorf("state = %v, want ACTIVE", got)
	}
}

func TestController_SchedulesModelAudio(t *testing.T) {
	c, devices, transport := newTestController(t)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	payload := audio.EncodeText(audio.SamplesToPCM16(make([]float32, 12000)))
	transport.sess.events <- live.Event{Type: live.EventAudio, Data: payload}
	transport.sess.events <- live.Event{Type: live.EventAudio, Data: payload}

	waitFor(t, func() bool { return len(devices.output.scheduled()) == 2 }, "model audio not scheduled")

	// Back-to-back placement: second chunk starts where the first ends.
	srcs := devices.output.scheduled()
	if srcs[0].start != 0 {
		t.Errorf("first chunk start = %v, want 0", srcs[0].start)
	}
	if srcs[1].start != 500*time.Millisecond {
		t.Errorf("second chunk start = %v, want 0.5s", srcs[1].start)
	}
}

func TestController_InterruptDiscardsPlayback(t *testing.T) {
	c, devices, transport := newTestController(t)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	payload := audio.EncodeText(audio.SamplesToPCM16(make([]float32, 12000)))
	transport.sess.events <- live.Event{Type: live.EventAudio, Data: payload}
	waitFor(t, func() bool { return len(devices.output.scheduled()) == 1 }, "chunk not scheduled")

	transport.sess.events <- live.Event{Type: live.EventInterrupted}
	waitFor(t, func() bool { return devices.output.scheduled()[0].isStopped() }, "interrupt did not stop playback")
}

func TestController_TranscriptCallback(t *testing.T) {
	var (
		mu  sync.Mutex
		got []string
	)
	c, _, transport := newTestController(t, WithTranscriptFunc(func(role live.TranscriptRole, text string) {
		mu.Lock()
		got = append(got, string(role)+": "+text)
		mu.Unlock()
	}))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	transport.sess.events <- live.Event{Type: live.EventTranscript, Role: live.RoleUser, Text: "hello"}
	transport.sess.events <- live.Event{Type: live.EventTranscript, Role: live.RoleModel, Text: "hi there"}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, "transcripts not delivered")

	mu.Lock()
	defer mu.Unlock()
	if got[0] != "user: hello" || got[1] != "model: hi there" {
		t.Errorf("transcripts = %v", got)
	}
}

func TestController_RemoteCloseReturnsToIdle(t *testing.T) {
	c, devices, transport := newTestController(t)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	close(transport.sess.events)

	waitFor(t, func() bool { return c.State() == StateIdle }, "controller did not return to IDLE after remote close")
	if !devices.capture.isStopped() {
		t.Error("capture not stopped after remote close")
	}
}

func TestController_RestartAfterStop(t *testing.T) {
	devices := &fakeDevices{capture: newFakeCapture(), output: newFakeOutput()}
	transport := &fakeTransport{sess: newFakeSession()}
	c := NewController(devices, transport, testConfig(), WithMetrics(testMetrics(t)))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// Fresh fakes for the second session, as real devices would be.
	devices.capture = newFakeCapture()
	devices.output = newFakeOutput()
	transport.sess = newFakeSession()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if got := c.State(); got != StateActive {
		t.Errorf("state after restart = %v, want ACTIVE", got)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateIdle:    "IDLE",
		StateOpening: "OPENING",
		StateActive:  "ACTIVE",
		StateClosing: "CLOSING",
		State(99):    "UNKNOWN",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestController_StartWithoutTransport(t *testing.T) {
	devices := &fakeDevices{capture: newFakeCapture(), output: newFakeOutput()}
	c := NewController(devices, nil, testConfig(), WithMetrics(testMetrics(t)))

	err := c.Start(context.Background())
	if !errors.Is(err, ErrNoTransport) {
		t.Fatalf("Start error = %v, want ErrNoTransport", err)
	}
	if got := c.State(); got != StateIdle {
		t.Errorf("state = %v, want IDLE", got)
	}
	devices.mu.Lock()
	opens := devices.captureOpens
	devices.mu.Unlock()
	if opens != 0 {
		t.Errorf("capture opened %d times, want 0", opens)
	}
}

func TestController_NoSendAfterStop(t *testing.T) {
	// A capture callback can race Stop and deliver one last block. That
	// block must never reach the transport.
	capture := newLingeringCapture()
	devices := &fakeDevices{capture: newFakeCapture(), output: newFakeOutput(), captureOverride: capture}
	transport := &fakeTransport{sess: newFakeSession()}
	c := NewController(devices, transport, testConfig(), WithMetrics(testMetrics(t)))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	capture.frames <- audio.AudioFrame{Samples: []float32{0.1}}
	waitFor(t, func() bool { return transport.sess.sendCount() == 1 }, "first frame not sent")

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// The late block arrives after Stop has returned.
	capture.frames <- audio.AudioFrame{Samples: []float32{0.2}}

	time.Sleep(100 * time.Millisecond)
	if got := transport.sess.sendCount(); got != 1 {
		t.Errorf("send count after stop = %d, want 1", got)
	}
}

func TestController_OrdinaryCloseDrainsAfterCallerContextGone(t *testing.T) {
	// Sessions are started from HTTP handlers whose request context dies as
	// soon as the handler returns. That must not turn an ordinary close into
	// a hard stop of still-playing speech.
	c, devices, transport := newTestController(t)

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	payload := audio.EncodeText(audio.SamplesToPCM16(make([]float32, 12000)))
	transport.sess.events <- live.Event{Type: live.EventAudio, Data: payload}
	waitFor(t, func() bool { return len(devices.output.scheduled()) == 1 }, "chunk not scheduled")

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// The scheduled chunk has not finished playing: it must be left alone
	// and the device must stay open for it.
	time.Sleep(100 * time.Millisecond)
	src := devices.output.scheduled()[0]
	if src.isStopped() {
		t.Fatal("scheduled speech hard-stopped on ordinary close")
	}
	if devices.output.isClosed() {
		t.Fatal("output closed before scheduled speech finished")
	}

	// Once playback completes, the device is released.
	devices.output.advance(time.Second)
	waitFor(t, func() bool { return devices.output.isClosed() }, "output not released after playback finished")
}
