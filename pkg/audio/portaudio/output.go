//go:build portaudio
// +build portaudio

package portaudio

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/vocata-ai/vocata/pkg/audio"
)

// ErrOutputClosed is returned by ScheduleAt after the output device has been
// closed.
var ErrOutputClosed = errors.New("portaudio: output device closed")

// outputDevice renders scheduled buffers sample-accurately against a clock
// counting frames delivered to the hardware. The clock starts at zero when
// the stream starts and advances by one render quantum per callback.
type outputDevice struct {
	stream *portaudio.Stream
	format audio.Format

	mu      sync.Mutex
	clock   int64 // frames rendered so far
	sources []*playbackSource
	closed  bool

	closeOnce sync.Once
	closeErr  error
}

var _ audio.OutputDevice = (*outputDevice)(nil)

func (d *outputDevice) Now() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format.Duration(int(d.clock))
}

func (d *outputDevice) ScheduleAt(buf audio.PlaybackBuffer, start time.Duration) (audio.Source, error) {
	startFrame := int64(start) * int64(d.format.SampleRate) / int64(time.Second)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrOutputClosed
	}
	if startFrame < d.clock {
		startFrame = d.clock
	}
	src := &playbackSource{
		samples: buf.Samples,
		start:   startFrame,
		done:    make(chan struct{}),
	}
	d.sources = append(d.sources, src)
	return src, nil
}

// callback runs on the PortAudio audio thread. The lock is held only for the
// mix itself; nothing inside allocates or blocks.
func (d *outputDevice) callback(out []float32) {
	for i := range out {
		out[i] = 0
	}
	ch := d.format.Channels
	frames := len(out) / ch

	d.mu.Lock()
	kept := d.sources[:0]
	for _, s := range d.sources {
		if s.stopped.Load() {
			s.finish()
			continue
		}
		i := int64(0)
		if s.start > d.clock {
			i = s.start - d.clock
		}
		if i >= int64(frames) {
			kept = append(kept, s)
			continue
		}
		for ; i < int64(frames) && s.pos < len(s.samples); i++ {
			v := s.samples[s.pos]
			s.pos++
			for c := 0; c < ch; c++ {
				out[int(i)*ch+c] += v
			}
		}
		if s.pos >= len(s.samples) {
			s.finish()
			continue
		}
		kept = append(kept, s)
	}
	for i := len(kept); i < len(d.sources); i++ {
		d.sources[i] = nil
	}
	d.sources = kept
	d.clock += int64(frames)
	d.mu.Unlock()

	for i, v := range out {
		if v > 1 {
			out[i] = 1
		} else if v < -1 {
			out[i] = -1
		}
	}
}

func (d *outputDevice) Close() error {
	d.closeOnce.Do(func() {
		// Stop first so the callback cannot run while sources are drained.
		if err := d.stream.Stop(); err != nil {
			d.closeErr = err
		}
		d.mu.Lock()
		d.closed = true
		for _, s := range d.sources {
			s.finish()
		}
		d.sources = nil
		d.mu.Unlock()
		if err := d.stream.Close(); err != nil && d.closeErr == nil {
			d.closeErr = err
		}
	})
	return d.closeErr
}

// playbackSource is one scheduled buffer. start and pos are touched only by
// the render callback (under the device lock); stopped is the cross-goroutine
// stop signal.
type playbackSource struct {
	samples []float32
	start   int64
	pos     int

	stopped  atomic.Bool
	doneOnce sync.Once
	done     chan struct{}
}

var _ audio.Source = (*playbackSource)(nil)

func (s *playbackSource) Stop() {
	s.stopped.Store(true)
	s.finish()
}

func (s *playbackSource) Done() <-chan struct{} {
	return s.done
}

func (s *playbackSource) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}
