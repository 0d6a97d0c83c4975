package voice

import (
	"sync"
	"testing"
	"time"

	"github.com/vocata-ai/vocata/pkg/audio"
)

// fakeSource is a scheduled buffer on a fakeOutput.
type fakeSource struct {
	start, end time.Duration

	mu      sync.Mutex
	done    chan struct{}
	stopped bool
}

func (s *fakeSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.done)
	}
}

func (s *fakeSource) Done() <-chan struct{} { return s.done }

func (s *fakeSource) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// fakeOutput is an OutputDevice with a manually advanced clock. Advancing the
// clock completes any source whose scheduled end has passed.
type fakeOutput struct {
	mu      sync.Mutex
	now     time.Duration
	sources []*fakeSource
	closed  bool
}

func newFakeOutput() *fakeOutput { return &fakeOutput{} }

func (d *fakeOutput) Now() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now
}

func (d *fakeOutput) ScheduleAt(buf audio.PlaybackBuffer, start time.Duration) (audio.Source, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	src := &fakeSource{
		start: start,
		end:   start + buf.Duration(),
		done:  make(chan struct{}),
	}
	d.sources = append(d.sources, src)
	return src, nil
}

func (d *fakeOutput) Close() error {
	d.mu.Lock()
	srcs := d.sources
	d.closed = true
	d.mu.Unlock()
	for _, src := range srcs {
		src.Stop()
	}
	return nil
}

// advance moves the device clock to t and completes finished sources.
func (d *fakeOutput) advance(t time.Duration) {
	d.mu.Lock()
	d.now = t
	srcs := make([]*fakeSource, len(d.sources))
	copy(srcs, d.sources)
	d.mu.Unlock()
	for _, src := range srcs {
		if src.end <= t {
			src.Stop()
		}
	}
}

func (d *fakeOutput) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *fakeOutput) scheduled() []*fakeSource {
	d.mu.Lock()
	defer d.mu.Unlock()
	srcs := make([]*fakeSource, len(d.sources))
	copy(srcs, d.sources)
	return srcs
}

// halfSecondBuffer returns a 0.5 s mono buffer at 24 kHz.
func halfSecondBuffer() audio.PlaybackBuffer {
	return audio.PlaybackBuffer{
		Samples: make([]float32, 12000),
		Format:  audio.Format{SampleRate: 24000, Channels: 1},
	}
}

func TestScheduler_GaplessBackToBack(t *testing.T) {
	out := newFakeOutput()
	sched := NewScheduler(out)

	// Three 0.5 s chunks arriving at t=0.0, t=0.4, and t=1.2.
	arrivals := []time.Duration{0, 400 * time.Millisecond, 1200 * time.Millisecond}
	wantStarts := []time.Duration{0, 500 * time.Millisecond, 1200 * time.Millisecond}

	for i, at := range arrivals {
		out.advance(at)
		start, err := sched.Enqueue(halfSecondBuffer())
		if err != nil {
			t.Fatalf("Enqueue #%d: %v", i, err)
		}
		if start != wantStarts[i] {
			t.Errorf("chunk %d start = %v, want %v", i, start, wantStarts[i])
		}
	}

	// Cursor ends past the third chunk: 1.2 + 0.5 = 1.7 s.
	if got := sched.Cursor(); got != 1700*time.Millisecond {
		t.Errorf("cursor = %v, want 1.7s", got)
	}
}

func TestScheduler_LateChunkStartsImmediately(t *testing.T) {
	out := newFakeOutput()
	sched := NewScheduler(out)

	if _, err := sched.Enqueue(halfSecondBuffer()); err != nil {
		t.Fatal(err)
	}

	// The first chunk finished long ago; the cursor is stale at 0.5 s.
	out.advance(3 * time.Second)

	start, err := sched.Enqueue(halfSecondBuffer())
	if err != nil {
		t.Fatal(err)
	}
	if start != 3*time.Second {
		t.Errorf("late chunk start = %v, want 3s (device now)", start)
	}
	if got := sched.Cursor(); got != 3500*time.Millisecond {
		t.Errorf("cursor = %v, want 3.5s", got)
	}
}

func TestScheduler_CursorStartsAtDeviceClock(t *testing.T) {
	out := newFakeOutput()
	out.advance(2 * time.Second)

	sched := NewScheduler(out)
	if got := sched.Cursor(); got != 2*time.Second {
		t.Errorf("initial cursor = %v, want 2s", got)
	}
}

func TestScheduler_InterruptStopsAllAndResetsCursor(t *testing.T) {
	out := newFakeOutput()
	sched := NewScheduler(out)

	// One 0.5 s chunk playing, interrupted at t=0.3.
	if _, err := sched.Enqueue(halfSecondBuffer()); err != nil {
		t.Fatal(err)
	}
	out.advance(300 * time.Millisecond)

	sched.Interrupt()

	srcs := out.scheduled()
	if len(srcs) != 1 {
		t.Fatalf("scheduled sources = %d, want 1", len(srcs))
	}
	if !srcs[0].isStopped() {
		t.Error("interrupt did not stop the playing source")
	}
	if got := sched.Cursor(); got != 300*time.Millisecond {
		t.Errorf("cursor after interrupt = %v, want 0.3s (device now)", got)
	}
	if got := sched.Active(); got != 0 {
		t.Errorf("active sources after interrupt = %d, want 0", got)
	}

	// Speech after the interruption starts immediately, not after the
	// discarded backlog.
	start, err := sched.Enqueue(halfSecondBuffer())
	if err != nil {
		t.Fatal(err)
	}
	if start != 300*time.Millisecond {
		t.Errorf("post-interrupt start = %v, want 0.3s", start)
	}
}

func TestScheduler_InterruptDiscardsQueuedBacklog(t *testing.T) {
	out := newFakeOutput()
	sched := NewScheduler(out)

	// Queue up 2.5 s of speech.
	for range 5 {
		if _, err := sched.Enqueue(halfSecondBuffer()); err != nil {
			t.Fatal(err)
		}
	}
	out.advance(100 * time.Millisecond)

	sched.Interrupt()

	for i, src := range out.scheduled() {
		if !src.isStopped() {
			t.Errorf("source %d still active after interrupt", i)
		}
	}
	if got := sched.Cursor(); got != 100*time.Millisecond {
		t.Errorf("cursor = %v, want 0.1s", got)
	}
}

func TestScheduler_ReapsFinishedSources(t *testing.T) {
	out := newFakeOutput()
	sched := NewScheduler(out)

	if _, err := sched.Enqueue(halfSecondBuffer()); err != nil {
		t.Fatal(err)
	}
	if got := sched.Active(); got != 1 {
		t.Fatalf("active = %d, want 1", got)
	}

	out.advance(time.Second)

	if got := sched.Active(); got != 0 {
		t.Errorf("active after completion = %d, want 0", got)
	}
}
