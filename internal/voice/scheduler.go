// Package voice implements the live voice pipeline: microphone capture
// flowing out to a realtime transport, and synthesised speech flowing back
// through a gapless playback scheduler, all driven by a single session
// event loop.
//
// The package is internal because it encapsulates application-private
// pipeline logic and is not intended for import by external code.
package voice

import (
	"fmt"
	"time"

	"github.com/vocata-ai/vocata/pkg/audio"
)

// Scheduler places decoded audio buffers on an [audio.OutputDevice] so that
// consecutive chunks play back-to-back without gaps or overlap.
//
// It keeps a timeline cursor: the device-clock position at which the next
// chunk should begin. Each enqueued buffer starts at the later of the cursor
// and the device's current clock, then advances the cursor by the buffer's
// duration. When chunks arrive faster than real time they queue up seamlessly;
// when a chunk arrives after the previous one finished, it starts immediately
// and the cursor snaps forward past the silent gap.
//
// Scheduler is NOT safe for concurrent use. It is owned by the session event
// loop, which is the only goroutine that touches it.
type Scheduler struct {
	out    audio.OutputDevice
	cursor time.Duration
	active map[audio.Source]struct{}
}

// NewScheduler creates a scheduler over out with its cursor at the device's
// current clock position.
func NewScheduler(out audio.OutputDevice) *Scheduler {
	return &Scheduler{
		out:    out,
		cursor: out.Now(),
		active: make(map[audio.Source]struct{}),
	}
}

// Enqueue schedules buf for gapless playback after everything already
// enqueued. It returns the device-clock time at which the buffer will start.
func (s *Scheduler) Enqueue(buf audio.PlaybackBuffer) (time.Duration, error) {
	s.reap()

	start := s.cursor
	if now := s.out.Now(); now > start {
		start = now
	}

	src, err := s.out.ScheduleAt(buf, start)
	if err != nil {
		return 0, fmt.Errorf("voice: schedule chunk: %w", err)
	}
	s.active[src] = struct{}{}
	s.cursor = start + buf.Duration()

	return start, nil
}

// Interrupt stops every still-active source immediately and resets the
// timeline cursor to the device's current clock, so that speech enqueued
// after the interruption starts right away instead of waiting out the
// discarded backlog.
func (s *Scheduler) Interrupt() {
	for src := range s.active {
		src.Stop()
	}
	clear(s.active)
	s.cursor = s.out.Now()
}

// Active returns the number of sources that were still playing at the last
// reap. It reaps first, so the count reflects current device state.
func (s *Scheduler) Active() int {
	s.reap()
	return len(s.active)
}

// Cursor returns the device-clock position at which the next enqueued chunk
// will start, assuming it arrives before the clock passes it.
func (s *Scheduler) Cursor() time.Duration {
	return s.cursor
}

// Sources returns the still-active sources. Used during session teardown to
// wait for buffered speech to finish before the output device is released.
func (s *Scheduler) Sources() []audio.Source {
	s.reap()
	srcs := make([]audio.Source, 0, len(s.active))
	for src := range s.active {
		srcs = append(srcs, src)
	}
	return srcs
}

// reap drops sources that have finished playing from the active set.
func (s *Scheduler) reap() {
	for src := range s.active {
		select {
		case <-src.Done():
			delete(s.active, src)
		default:
		}
	}
}
