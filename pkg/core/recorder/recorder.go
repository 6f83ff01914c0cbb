// Package recorder captures a whole session, mic and agent speech
// mixed, and finalizes it as a WAV artifact at teardown.
package recorder

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/sparring-ai/sparring/pkg/core/audio"
)

// Artifact describes a finalized session recording.
type Artifact struct {
	Path     string        `json:"path"`
	Duration time.Duration `json:"duration"`
	Samples  int           `json:"samples"`
}

// Recorder accumulates two append-only streams: the raw mic tap at the
// capture rate and the agent-speech tap at the playback rate. Both
// producers only ever append and there is a single consumer at Stop,
// so no further synchronization is needed beyond the mutex.
//
// Ambience is deliberately absent from both taps.
type Recorder struct {
	inputFormat  audio.Config
	outputFormat audio.Config
	dir          string
	logger       *slog.Logger

	mu        sync.Mutex
	recording bool
	startedAt time.Time
	mic       []float32
	out       []float32

	stopOnce sync.Once
	artifact *Artifact
	stopErr  error
}

// NewRecorder creates a recorder that writes its artifact into dir.
func NewRecorder(inputFormat, outputFormat audio.Config, dir string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		inputFormat:  inputFormat,
		outputFormat: outputFormat,
		dir:          dir,
		logger:       logger,
	}
}

// Start begins accepting audio. Returns an error if the target
// directory is unusable; the caller degrades to a session without a
// recording rather than failing the session.
func (r *Recorder) Start() error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create recording dir: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = true
	r.startedAt = time.Now()
	return nil
}

// AddMic appends raw microphone samples at the capture rate. Dropped
// when the recorder is not running.
func (r *Recorder) AddMic(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	r.mic = append(r.mic, samples...)
}

// AddOutput appends agent speech samples at the playback rate.
func (r *Recorder) AddOutput(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	r.out = append(r.out, samples...)
}

// Stop finalizes the recording exactly once and returns the artifact.
// A session that accumulated no audio produces no artifact (nil, nil).
// Later calls return the first result.
func (r *Recorder) Stop() (*Artifact, error) {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.recording = false
		mic := r.mic
		out := r.out
		r.mic = nil
		r.out = nil
		r.mu.Unlock()

		r.artifact, r.stopErr = r.finalize(mic, out)
	})
	return r.artifact, r.stopErr
}

func (r *Recorder) finalize(mic, out []float32) (*Artifact, error) {
	if len(mic) == 0 && len(out) == 0 {
		return nil, nil
	}

	rate := r.outputFormat.SampleRate
	mixed := mix(Resample(mic, r.inputFormat.SampleRate, rate), out)

	// CreateTemp appends a unique suffix so sessions finalized within
	// the same second cannot overwrite each other.
	f, err := os.CreateTemp(r.dir, fmt.Sprintf("session-%s-*.wav", time.Now().Format("20060102-150405")))
	if err != nil {
		return nil, fmt.Errorf("create recording file: %w", err)
	}
	path := f.Name()

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	ints := make([]int, len(mixed))
	for i, s := range mixed {
		ints[i] = int(audio.SampleToInt16(s))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           ints,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("encode recording: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("finalize recording: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close recording file: %w", err)
	}

	art := &Artifact{
		Path:     path,
		Duration: r.outputFormat.Duration(len(mixed)),
		Samples:  len(mixed),
	}
	r.logger.Info("recording finalized", "path", art.Path, "duration", art.Duration)
	return art, nil
}

// mix sums two streams sample-wise, clamped to [-1, 1], over the
// length of the longer one.
func mix(a, b []float32) []float32 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]float32, n)
	for i := range out {
		var v float32
		if i < len(a) {
			v += a[i]
		}
		if i < len(b) {
			v += b[i]
		}
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = v
	}
	return out
}
