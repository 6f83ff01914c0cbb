package playback

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/sparring-ai/sparring/pkg/core/audio"
)

// FFplaySpeaker plays raw s16le PCM by piping it into an ffplay
// subprocess.
type FFplaySpeaker struct {
	format audio.Config

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// OpenFFplaySpeaker starts an ffplay process for the given format.
// ffplay always plays the system default output; per-device routing
// goes through the platform mixer.
func OpenFFplaySpeaker(format audio.Config) (*FFplaySpeaker, error) {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, errors.New("ffplay is required for playback (install ffmpeg/ffplay and ensure it is in PATH)")
	}
	s := &FFplaySpeaker{format: format}
	if err := s.startLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FFplaySpeaker) startLocked() error {
	s.cmd = exec.Command("ffplay",
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", s.format.SampleRate),
		"-ac", fmt.Sprintf("%d", s.format.Channels),
		"-i", "pipe:0",
	)
	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open ffplay stdin: %w", err)
	}
	s.cmd.Stdout = io.Discard
	s.cmd.Stderr = io.Discard
	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("start ffplay: %w", err)
	}
	s.stdin = stdin
	return nil
}

// Write sends PCM bytes to the playback pipe.
func (s *FFplaySpeaker) Write(data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stdin == nil {
		return 0, errors.New("ffplay stdin is not initialized")
	}
	return s.stdin.Write(data)
}

// Reset kills and restarts the process, discarding any audio still
// buffered in its pipe. Used on interruption so queued speech stops at
// once instead of draining.
func (s *FFplaySpeaker) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killLocked()
	return s.startLocked()
}

// Close kills the ffplay process.
func (s *FFplaySpeaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killLocked()
	return nil
}

func (s *FFplaySpeaker) killLocked() {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	s.stdin = nil
}
