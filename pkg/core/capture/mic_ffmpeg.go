package capture

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"

	"github.com/sparring-ai/sparring/pkg/core/audio"
)

// FFmpegSource captures microphone audio by running ffmpeg and reading
// raw s16le PCM from its stdout pipe.
type FFmpegSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

// OpenFFmpegSource starts an ffmpeg capture for the given device.
// An empty deviceID selects the platform default.
func OpenFFmpegSource(deviceID string, cfg audio.Config) (*FFmpegSource, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, errors.New("ffmpeg is required for mic capture (install ffmpeg and ensure it is in PATH)")
	}
	args, err := micFFmpegArgs(runtime.GOOS, deviceID, cfg)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg mic capture: %w", err)
	}
	return &FFmpegSource{cmd: cmd, stdout: stdout}, nil
}

func micFFmpegArgs(goos, deviceID string, cfg audio.Config) ([]string, error) {
	deviceID = strings.TrimSpace(deviceID)
	switch goos {
	case "darwin":
		if deviceID == "" {
			deviceID = "0"
		}
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-i", ":" + deviceID,
			"-ac", fmt.Sprintf("%d", cfg.Channels), "-ar", fmt.Sprintf("%d", cfg.SampleRate),
			"-f", "s16le", "-",
		}, nil
	case "linux":
		if deviceID == "" {
			deviceID = "default"
		}
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "pulse", "-i", deviceID,
			"-ac", fmt.Sprintf("%d", cfg.Channels), "-ar", fmt.Sprintf("%d", cfg.SampleRate),
			"-f", "s16le", "-",
		}, nil
	default:
		return nil, fmt.Errorf("mic capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
}

// Read implements io.Reader over the PCM pipe.
func (s *FFmpegSource) Read(p []byte) (int, error) {
	if s == nil || s.stdout == nil {
		return 0, io.EOF
	}
	return s.stdout.Read(p)
}

// Close kills the ffmpeg process and releases the device.
func (s *FFmpegSource) Close() error {
	if s == nil {
		return nil
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	return nil
}
