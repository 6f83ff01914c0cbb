// Package playback schedules decoded agent speech on a contiguous
// output timeline and mixes it with ambience for the speaker.
package playback

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// Clock reports the position of the output timeline in seconds. The
// real implementation anchors wall time; tests drive it manually.
type Clock interface {
	Now() float64
}

// NewRealClock returns a clock anchored at the time of the call.
func NewRealClock() Clock {
	return realClock{start: time.Now()}
}

type realClock struct {
	start time.Time
}

func (c realClock) Now() float64 {
	return time.Since(c.start).Seconds()
}

// segment is one scheduled chunk of agent speech.
type segment struct {
	startSample int64
	samples     []float32
}

func (s *segment) endSample() int64 {
	return s.startSample + int64(len(s.samples))
}

// Scheduler keeps a single monotonically advancing next-start cursor
// so a turn's sequentially arriving chunks play gaplessly and never
// overlap. Segments are rendered by the output mixer pulling Render.
type Scheduler struct {
	clock  Clock
	rate   int
	logger *slog.Logger

	mu         sync.Mutex
	nextStart  float64
	renderPos  int64 // samples consumed off the timeline
	renderInit bool
	segments   []*segment
}

// NewScheduler creates a scheduler for the given output sample rate.
func NewScheduler(clock Clock, sampleRate int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{clock: clock, rate: sampleRate, logger: logger}
}

// Enqueue schedules decoded samples to start where the previous chunk
// ends. If the cursor has fallen behind the output clock (after a
// pause in agent speech) it snaps forward to now so nothing is
// scheduled in the past. Empty chunks are dropped.
func (s *Scheduler) Enqueue(samples []float32) {
	if len(samples) == 0 {
		s.logger.Debug("dropping empty playback segment")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if s.nextStart < now {
		s.nextStart = now
	}
	seg := &segment{
		startSample: int64(math.Round(s.nextStart * float64(s.rate))),
		samples:     samples,
	}
	s.segments = append(s.segments, seg)
	s.nextStart += float64(len(samples)) / float64(s.rate)
}

// Speaking reports whether any scheduled segment has not finished.
func (s *Scheduler) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	return len(s.segments) > 0
}

// Interrupt discards every scheduled segment immediately and resets
// the cursor to now. Interrupting an empty schedule is a no-op.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.segments); n > 0 {
		s.logger.Debug("flushing scheduled playback", "segments", n)
	}
	s.segments = nil
	s.nextStart = s.clock.Now()
}

// Stop discards all scheduled audio. Equivalent to Interrupt; kept
// separate for teardown call sites.
func (s *Scheduler) Stop() {
	s.Interrupt()
}

// Render sums the next len(out) samples of the timeline into out and
// advances the render position. The mixer calls this once per tick.
// If the render position has fallen behind the clock it skips ahead,
// dropping the missed span.
func (s *Scheduler) Render(out []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowSample := int64(math.Round(s.clock.Now() * float64(s.rate)))
	if !s.renderInit || s.renderPos < nowSample {
		s.renderPos = nowSample
		s.renderInit = true
	}

	start := s.renderPos
	end := start + int64(len(out))
	for _, seg := range s.segments {
		lo := max64(start, seg.startSample)
		hi := min64(end, seg.endSample())
		for i := lo; i < hi; i++ {
			out[i-start] += seg.samples[i-seg.startSample]
		}
	}
	s.renderPos = end
	s.pruneLocked()
}

// pruneLocked drops segments fully behind both the render position and
// the clock. Caller holds the mutex.
func (s *Scheduler) pruneLocked() {
	nowSample := int64(math.Round(s.clock.Now() * float64(s.rate)))
	cutoff := s.renderPos
	if nowSample > cutoff {
		cutoff = nowSample
	}
	kept := s.segments[:0]
	for _, seg := range s.segments {
		if seg.endSample() > cutoff {
			kept = append(kept, seg)
		}
	}
	s.segments = kept
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
