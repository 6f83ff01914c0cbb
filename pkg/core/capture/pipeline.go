// Package capture reads microphone audio in fixed-size frames, meters
// it, and forwards frames that pass the transmit gate to a sink.
package capture

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/sparring-ai/sparring/pkg/core/audio"
)

// DefaultFrameSamples is the capture block size. At 16 kHz this is
// 256 ms per frame.
const DefaultFrameSamples = 4096

// Source delivers raw s16le PCM from a microphone.
type Source interface {
	io.Reader
	Close() error
}

// Sink receives frames that passed the gate, in arrival order.
type Sink interface {
	SendFrame(samples []float32) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(samples []float32) error

// SendFrame implements Sink.
func (f SinkFunc) SendFrame(samples []float32) error { return f(samples) }

// Pipeline owns the microphone read loop for one session. Every frame
// feeds the analyser for live metering; only frames that pass the gate
// reach the sink. Gating controls may be flipped from any goroutine.
type Pipeline struct {
	source   Source
	analyser *audio.Analyser
	sink     Sink
	tap      func(samples []float32)
	logger   *slog.Logger
	frame    int

	mu  sync.Mutex
	cfg GateConfig

	lastRMS atomic.Uint64 // float64 bits

	started  atomic.Bool
	closed   atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
}

// NewPipeline wires a source to a sink. The analyser may be nil when
// no metering is needed.
func NewPipeline(source Source, analyser *audio.Analyser, sink Sink, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		source:   source,
		analyser: analyser,
		sink:     sink,
		logger:   logger,
		frame:    DefaultFrameSamples,
		cfg:      GateConfig{Mode: ModeVAD},
		done:     make(chan struct{}),
	}
}

// SetFrameTap installs a callback that receives every frame before
// gating, muted or not. The session recorder taps the raw mic stream
// here. Must be called before Start.
func (p *Pipeline) SetFrameTap(tap func(samples []float32)) {
	if !p.started.Load() {
		p.tap = tap
	}
}

// SetFrameSamples overrides the capture block size. Must be called
// before Start.
func (p *Pipeline) SetFrameSamples(n int) {
	if n > 0 && !p.started.Load() {
		p.frame = n
	}
}

// Start launches the read loop. It returns an error if the pipeline
// was already started or stopped.
func (p *Pipeline) Start() error {
	if p.closed.Load() {
		return errors.New("capture pipeline is stopped")
	}
	if !p.started.CompareAndSwap(false, true) {
		return errors.New("capture pipeline already started")
	}
	go p.readLoop()
	return nil
}

func (p *Pipeline) readLoop() {
	defer close(p.done)
	buf := make([]byte, p.frame*2)
	for {
		if p.closed.Load() {
			return
		}
		if _, err := io.ReadFull(p.source, buf); err != nil {
			if !p.closed.Load() && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				p.logger.Warn("mic read failed", "error", err)
			}
			return
		}
		p.handleFrame(audio.SamplesFromBytes(buf))
	}
}

// handleFrame meters and gates one frame. Metering stays live while
// muted; the gate affects transmission only.
func (p *Pipeline) handleFrame(samples []float32) {
	if p.analyser != nil {
		p.analyser.Push(samples)
	}
	if p.tap != nil {
		p.tap(samples)
	}
	rms := audio.RMS(samples)
	p.lastRMS.Store(math.Float64bits(rms))

	p.mu.Lock()
	cfg := p.cfg
	p.mu.Unlock()

	if !ShouldSend(cfg, rms) {
		return
	}
	if err := p.sink.SendFrame(samples); err != nil {
		p.logger.Warn("frame send failed", "error", err)
	}
}

// SetMuted drops all transmission while true.
func (p *Pipeline) SetMuted(muted bool) {
	p.mu.Lock()
	p.cfg.Muted = muted
	p.mu.Unlock()
}

// SetMode switches between VAD and push-to-talk gating.
func (p *Pipeline) SetMode(mode Mode) {
	p.mu.Lock()
	p.cfg.Mode = mode
	p.mu.Unlock()
}

// SetPTTPressed records the push-to-talk control state.
func (p *Pipeline) SetPTTPressed(pressed bool) {
	p.mu.Lock()
	p.cfg.PTTPressed = pressed
	p.mu.Unlock()
}

// SetThreshold sets the VAD gate threshold (RMS, 0 to 1).
func (p *Pipeline) SetThreshold(threshold float64) {
	p.mu.Lock()
	p.cfg.Threshold = threshold
	p.mu.Unlock()
}

// Gate returns the current gating configuration.
func (p *Pipeline) Gate() GateConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// LastRMS returns the loudness of the most recent frame, gated or not.
func (p *Pipeline) LastRMS() float64 {
	return math.Float64frombits(p.lastRMS.Load())
}

// Stop closes the source and waits for the read loop to exit. Safe to
// call multiple times.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.closed.Store(true)
		_ = p.source.Close()
		if p.started.Load() {
			<-p.done
		}
	})
}
