package capture

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sparring-ai/sparring/pkg/core/audio"
)

// CalibrationConfig tunes the auto-calibration run. Margin and ceiling
// are deployment-tunable rather than fixed constants.
type CalibrationConfig struct {
	// Window is how long to sample the noise floor.
	Window time.Duration
	// Margin is added above the peak observed RMS.
	Margin float64
	// Ceiling clamps the resulting threshold.
	Ceiling float64
	// FrameSamples is the block size used while sampling.
	FrameSamples int
}

// DefaultCalibration matches the reference tuning: a 3 second window,
// +0.005 margin, 0.1 ceiling.
func DefaultCalibration() CalibrationConfig {
	return CalibrationConfig{
		Window:       3 * time.Second,
		Margin:       0.005,
		Ceiling:      0.1,
		FrameSamples: DefaultFrameSamples,
	}
}

// Calibrate samples RMS loudness from the source for the configured
// window and derives a VAD gate threshold: peak observed RMS plus the
// safety margin, clamped to the ceiling. This adapts the gate to the
// ambient noise floor of the room and device.
//
// On mic failure the error is returned and the caller keeps its
// previous threshold.
func Calibrate(ctx context.Context, source io.Reader, format audio.Config, cfg CalibrationConfig) (float64, error) {
	if cfg.Window <= 0 {
		cfg.Window = 3 * time.Second
	}
	if cfg.FrameSamples <= 0 {
		cfg.FrameSamples = DefaultFrameSamples
	}

	frames := int(cfg.Window / format.Duration(cfg.FrameSamples))
	if frames < 1 {
		frames = 1
	}

	var peak float64
	buf := make([]byte, cfg.FrameSamples*format.BytesPerSample())
	for i := 0; i < frames; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if _, err := io.ReadFull(source, buf); err != nil {
			return 0, fmt.Errorf("calibration read: %w", err)
		}
		if rms := audio.RMS(audio.SamplesFromBytes(buf)); rms > peak {
			peak = rms
		}
	}

	threshold := peak + cfg.Margin
	if cfg.Ceiling > 0 && threshold > cfg.Ceiling {
		threshold = cfg.Ceiling
	}
	return threshold, nil
}
