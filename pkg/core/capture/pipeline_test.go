package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sparring-ai/sparring/pkg/core/audio"
)

// frameSource serves pre-built frames one Read at a time and blocks
// after the last one until closed.
type frameSource struct {
	mu     sync.Mutex
	data   *bytes.Reader
	closed chan struct{}
	once   sync.Once
}

func newFrameSource(frames ...[]float32) *frameSource {
	var buf bytes.Buffer
	for _, f := range frames {
		buf.Write(audio.FrameBytes(f))
	}
	return &frameSource{data: bytes.NewReader(buf.Bytes()), closed: make(chan struct{})}
}

func (s *frameSource) Read(p []byte) (int, error) {
	s.mu.Lock()
	n, err := s.data.Read(p)
	s.mu.Unlock()
	if err == io.EOF {
		// Hold the pipe open like a live mic would
		<-s.closed
		return 0, io.EOF
	}
	return n, err
}

func (s *frameSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type collectSink struct {
	mu     sync.Mutex
	frames [][]float32
	err    error
}

func (c *collectSink) SendFrame(samples []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, samples)
	return nil
}

func (c *collectSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func constantFrame(amplitude float32, n int) []float32 {
	f := make([]float32, n)
	for i := range f {
		f[i] = amplitude
	}
	return f
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestShouldSend(t *testing.T) {
	tests := []struct {
		name string
		cfg  GateConfig
		rms  float64
		want bool
	}{
		{"vad above threshold", GateConfig{Mode: ModeVAD, Threshold: 0.01}, 0.05, true},
		{"vad below threshold", GateConfig{Mode: ModeVAD, Threshold: 0.01}, 0.005, false},
		{"vad at threshold", GateConfig{Mode: ModeVAD, Threshold: 0.01}, 0.01, true},
		{"muted drops loud frame", GateConfig{Muted: true, Mode: ModeVAD}, 0.9, false},
		{"muted drops ptt frame", GateConfig{Muted: true, Mode: ModePTT, PTTPressed: true}, 0.9, false},
		{"ptt pressed passes silence", GateConfig{Mode: ModePTT, PTTPressed: true, Threshold: 0.5}, 0.0, true},
		{"ptt released drops loud frame", GateConfig{Mode: ModePTT, Threshold: 0}, 0.9, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldSend(tt.cfg, tt.rms); got != tt.want {
				t.Fatalf("ShouldSend(%+v, %f) = %v, want %v", tt.cfg, tt.rms, got, tt.want)
			}
		})
	}
}

func TestPipelineGatesOnRMS(t *testing.T) {
	loud := constantFrame(0.5, 64)
	quiet := constantFrame(0.001, 64)
	src := newFrameSource(loud, quiet, loud)
	sink := &collectSink{}

	p := NewPipeline(src, nil, sink, nil)
	p.SetFrameSamples(64)
	p.SetThreshold(0.01)
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	waitFor(t, func() bool { return sink.count() == 2 })
	time.Sleep(20 * time.Millisecond)
	if got := sink.count(); got != 2 {
		t.Fatalf("sent %d frames, want 2", got)
	}
}

func TestPipelineMuteDropsEverything(t *testing.T) {
	loud := constantFrame(0.5, 64)
	src := newFrameSource(loud, loud, loud)
	sink := &collectSink{}
	analyser := audio.NewAnalyser(256)

	p := NewPipeline(src, analyser, sink, nil)
	p.SetFrameSamples(64)
	p.SetMuted(true)
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	// Metering stays live while muted
	waitFor(t, func() bool { return p.LastRMS() > 0.4 })
	if got := sink.count(); got != 0 {
		t.Fatalf("muted pipeline sent %d frames", got)
	}
	if analyser.MeanMagnitude() == 0 {
		t.Fatal("analyser should still see muted audio")
	}
}

func TestPipelinePTTBypassesRMS(t *testing.T) {
	quiet := constantFrame(0.001, 64)
	src := newFrameSource(quiet, quiet)
	sink := &collectSink{}

	p := NewPipeline(src, nil, sink, nil)
	p.SetFrameSamples(64)
	p.SetThreshold(0.5)
	p.SetMode(ModePTT)
	p.SetPTTPressed(true)
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	waitFor(t, func() bool { return sink.count() == 2 })
}

func TestPipelineSinkErrorDoesNotStopLoop(t *testing.T) {
	loud := constantFrame(0.5, 64)
	src := newFrameSource(loud, loud)
	sink := &collectSink{err: errors.New("send failed")}

	p := NewPipeline(src, nil, sink, nil)
	p.SetFrameSamples(64)
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	// Both frames still get metered despite sink failures
	waitFor(t, func() bool { return p.LastRMS() > 0.4 })
}

func TestPipelineStopIsIdempotent(t *testing.T) {
	src := newFrameSource(constantFrame(0.5, 64))
	p := NewPipeline(src, nil, &collectSink{}, nil)
	p.SetFrameSamples(64)
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	p.Stop()
	p.Stop()

	if err := p.Start(); err == nil {
		t.Fatal("Start after Stop should fail")
	}
}

func TestCalibrateDerivesThreshold(t *testing.T) {
	// Noise floor frames peaking at RMS 0.008
	var buf bytes.Buffer
	buf.Write(audio.FrameBytes(constantFrame(0.004, 256)))
	buf.Write(audio.FrameBytes(constantFrame(0.008, 256)))
	buf.Write(audio.FrameBytes(constantFrame(0.002, 256)))

	format := audio.DefaultInput()
	cfg := CalibrationConfig{
		Window:       format.Duration(256 * 3),
		Margin:       0.005,
		Ceiling:      0.1,
		FrameSamples: 256,
	}
	got, err := Calibrate(context.Background(), &buf, format, cfg)
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}
	if got < 0.0125 || got > 0.0135 {
		t.Fatalf("threshold = %f, want ~0.013", got)
	}
}

func TestCalibrateClampsToCeiling(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(audio.FrameBytes(constantFrame(0.9, 256)))

	format := audio.DefaultInput()
	cfg := CalibrationConfig{
		Window:       format.Duration(256),
		Margin:       0.005,
		Ceiling:      0.1,
		FrameSamples: 256,
	}
	got, err := Calibrate(context.Background(), &buf, format, cfg)
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}
	if got != 0.1 {
		t.Fatalf("threshold = %f, want ceiling 0.1", got)
	}
}

func TestCalibrateMicFailurePropagates(t *testing.T) {
	format := audio.DefaultInput()
	cfg := DefaultCalibration()
	if _, err := Calibrate(context.Background(), bytes.NewReader(nil), format, cfg); err == nil {
		t.Fatal("expected error when the mic delivers nothing")
	}
}

func TestMicFFmpegArgs(t *testing.T) {
	format := audio.DefaultInput()

	args, err := micFFmpegArgs("darwin", "2", format)
	if err != nil {
		t.Fatalf("darwin args failed: %v", err)
	}
	for _, want := range []string{"avfoundation", ":2", "16000", "s16le"} {
		if !contains(args, want) {
			t.Fatalf("darwin args missing %q: %v", want, args)
		}
	}

	args, err = micFFmpegArgs("linux", "", format)
	if err != nil {
		t.Fatalf("linux args failed: %v", err)
	}
	for _, want := range []string{"pulse", "default"} {
		if !contains(args, want) {
			t.Fatalf("linux args missing %q: %v", want, args)
		}
	}

	if _, err := micFFmpegArgs("windows", "", format); err == nil {
		t.Fatal("expected error for unsupported platform")
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
