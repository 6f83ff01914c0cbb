package playback

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sparring-ai/sparring/pkg/core/audio"
)

// DefaultTick is the mixer render quantum.
const DefaultTick = 20 * time.Millisecond

// Renderer adds audio into a sample buffer. Both the scheduler and the
// ambience generator satisfy it.
type Renderer interface {
	Render(out []float32)
}

// Mixer drives the output side of a session: on every tick it pulls
// due agent speech from the scheduler, feeds the analyser and the
// recorder tap, layers ambience on top, and writes s16le PCM to the
// speaker.
//
// Ambience joins after the analyser and recorder taps: meters and the
// session recording carry agent speech only, not the noise bed.
type Mixer struct {
	speech   Renderer
	ambience Renderer
	analyser *audio.Analyser
	tap      func(samples []float32)
	speaker  io.Writer
	logger   *slog.Logger

	rate int
	tick time.Duration

	started  atomic.Bool
	closed   atomic.Bool
	stopOnce sync.Once
	quit     chan struct{}
	done     chan struct{}
}

// NewMixer wires the output chain. ambience, analyser and tap may each
// be nil.
func NewMixer(speech Renderer, ambienceGen Renderer, analyser *audio.Analyser, tap func([]float32), speaker io.Writer, sampleRate int, logger *slog.Logger) *Mixer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mixer{
		speech:   speech,
		ambience: ambienceGen,
		analyser: analyser,
		tap:      tap,
		speaker:  speaker,
		logger:   logger,
		rate:     sampleRate,
		tick:     DefaultTick,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// SetTick overrides the render quantum. Must be called before Start.
func (m *Mixer) SetTick(d time.Duration) {
	if d > 0 && !m.started.Load() {
		m.tick = d
	}
}

// Start launches the tick loop.
func (m *Mixer) Start() {
	if m.closed.Load() || !m.started.CompareAndSwap(false, true) {
		return
	}
	go m.loop()
}

func (m *Mixer) loop() {
	defer close(m.done)
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()
	for {
		select {
		case <-m.quit:
			return
		case <-ticker.C:
			m.Step()
		}
	}
}

// Step renders one tick worth of audio. Exported so tests and manual
// drivers can pump the mixer without the ticker.
func (m *Mixer) Step() {
	n := int(int64(m.rate) * int64(m.tick) / int64(time.Second))
	if n <= 0 {
		return
	}
	buf := make([]float32, n)
	if m.speech != nil {
		m.speech.Render(buf)
	}
	if m.analyser != nil {
		m.analyser.Push(buf)
	}
	if m.tap != nil {
		m.tap(buf)
	}
	if m.ambience != nil {
		m.ambience.Render(buf)
	}
	if m.speaker != nil {
		if _, err := m.speaker.Write(audio.FrameBytes(buf)); err != nil {
			if !m.closed.Load() {
				m.logger.Warn("speaker write failed", "error", err)
			}
		}
	}
}

// Stop halts the tick loop. Safe to call multiple times.
func (m *Mixer) Stop() {
	m.stopOnce.Do(func() {
		m.closed.Store(true)
		close(m.quit)
		if m.started.Load() {
			<-m.done
		}
	})
}
